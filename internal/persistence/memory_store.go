package persistence

import (
	"context"
	"path"
	"sync"
	"time"

	"github.com/petrijr/actiflow/pkg/api"
)

// InMemoryStore is a simple, goroutine-safe implementation of
// DefinitionStore and InstanceStore backed by maps. It is not durable and
// is intended for tests and development.
type InMemoryStore struct {
	mu          sync.RWMutex
	definitions map[string]*api.Definition
	instances   map[string]*api.Instance
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		definitions: make(map[string]*api.Definition),
		instances:   make(map[string]*api.Instance),
	}
}

// Ensure InMemoryStore implements the interfaces.
var _ DefinitionStore = (*InMemoryStore)(nil)

var _ InstanceStore = (*InMemoryStore)(nil)

func (s *InMemoryStore) SaveDefinition(ctx context.Context, def *api.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.definitions[def.ID] = def
	return nil
}

func (s *InMemoryStore) GetDefinition(ctx context.Context, id string) (*api.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	def, ok := s.definitions[id]
	if !ok {
		return nil, ErrDefinitionNotFound
	}
	return def, nil
}

func (s *InMemoryStore) SaveInstance(ctx context.Context, inst *api.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.instances[inst.ID] = inst.Clone()
	return nil
}

func (s *InMemoryStore) GetInstance(ctx context.Context, id string) (*api.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.instances[id]
	if !ok {
		return nil, ErrInstanceNotFound
	}
	return inst.Clone(), nil
}

func (s *InMemoryStore) UpdateCurrentNode(ctx context.Context, id string, nodeID *string, version int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instances[id]
	if !ok {
		return false, ErrInstanceNotFound
	}
	if inst.Version != version {
		return false, ErrVersionConflict
	}

	if nodeID == nil {
		inst.CurrentNodeID = nil
	} else {
		n := *nodeID
		inst.CurrentNodeID = &n
	}
	inst.Version++
	inst.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *InMemoryStore) UpdateVariables(ctx context.Context, id string, vars map[string]string, version int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instances[id]
	if !ok {
		return false, ErrInstanceNotFound
	}
	if inst.Version != version {
		return false, ErrVersionConflict
	}

	inst.Variables = make(map[string]string, len(vars))
	for k, v := range vars {
		inst.Variables[k] = v
	}
	inst.Version++
	inst.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *InMemoryStore) FindByNamePattern(ctx context.Context, pattern string, since time.Time) ([]*api.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*api.Instance
	for _, inst := range s.instances {
		if inst.CreatedAt.Before(since) {
			continue
		}
		ok, err := path.Match(pattern, inst.Name)
		if err != nil {
			return nil, err
		}
		if ok {
			result = append(result, inst.Clone())
		}
	}
	return result, nil
}
