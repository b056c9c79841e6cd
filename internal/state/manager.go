package state

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/petrijr/actiflow/internal/persistence"
	"github.com/petrijr/actiflow/pkg/api"
)

// Manager holds the authoritative in-memory state (current node pointer and
// variable map) for each workflow id, backed by a durable InstanceStore.
//
// The manager itself does not serialize callers; the controller holds a
// per-workflow lock around every operation that touches one instance. The
// internal cache map has its own lock so unrelated workflows never contend.
//
// Mutations follow a persist-first discipline: the store is updated before
// the in-memory instance, so in-memory and durable state can never diverge.
// A failed persistence call leaves the in-memory pointer at its pre-call
// value and surfaces the error.
type Manager struct {
	store  persistence.InstanceStore
	logger *zap.Logger

	mu    sync.RWMutex
	cache map[string]*api.Instance
}

// NewManager creates a Manager over the given store. A nil logger defaults
// to zap.NewNop().
func NewManager(store persistence.InstanceStore, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:  store,
		logger: logger,
		cache:  make(map[string]*api.Instance),
	}
}

// GetOrCreate returns the instance for workflowID, loading it from the
// store or initializing it at def's start node when it does not exist yet.
// It reports whether the instance was newly created.
func (m *Manager) GetOrCreate(ctx context.Context, workflowID string, def *api.Definition) (*api.Instance, bool, error) {
	if inst := m.cached(workflowID); inst != nil {
		if err := m.Restore(ctx, inst, def); err != nil {
			return nil, false, err
		}
		return inst, false, nil
	}

	inst, err := m.store.GetInstance(ctx, workflowID)
	if err == nil {
		if err := m.Restore(ctx, inst, def); err != nil {
			return nil, false, err
		}
		m.put(inst)
		return inst, false, nil
	}
	if !errors.Is(err, persistence.ErrInstanceNotFound) {
		return nil, false, err
	}

	start := def.StartNodeID()
	if start == "" {
		return nil, false, api.ErrNoStartPoint
	}

	now := time.Now().UTC()
	inst = &api.Instance{
		ID:            workflowID,
		DefinitionID:  def.ID,
		Name:          workflowID,
		CurrentNodeID: &start,
		Variables:     map[string]string{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if inst.ID == "" {
		inst.ID = uuid.NewString()
		inst.Name = inst.ID
	}
	if err := m.store.SaveInstance(ctx, inst); err != nil {
		return nil, false, err
	}
	m.put(inst)
	return inst, true, nil
}

// Get returns the instance for workflowID without creating it.
func (m *Manager) Get(ctx context.Context, workflowID string) (*api.Instance, error) {
	if inst := m.cached(workflowID); inst != nil {
		return inst, nil
	}
	inst, err := m.store.GetInstance(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	m.put(inst)
	return inst, nil
}

// MoveTo persists a pointer move and then applies it in memory.
func (m *Manager) MoveTo(ctx context.Context, inst *api.Instance, nodeID *string) error {
	ok, err := m.store.UpdateCurrentNode(ctx, inst.ID, nodeID, inst.Version)
	if err != nil {
		return err
	}
	if !ok {
		return persistence.ErrVersionConflict
	}
	if nodeID == nil {
		inst.CurrentNodeID = nil
	} else {
		n := *nodeID
		inst.CurrentNodeID = &n
	}
	inst.Version++
	inst.UpdatedAt = time.Now().UTC()
	return nil
}

// ApplyVariables merges updates into the instance variables, persisting the
// merged map before mutating the in-memory instance.
func (m *Manager) ApplyVariables(ctx context.Context, inst *api.Instance, updates map[string]string) error {
	if len(updates) == 0 {
		return nil
	}
	merged := make(map[string]string, len(inst.Variables)+len(updates))
	for k, v := range inst.Variables {
		merged[k] = v
	}
	for k, v := range updates {
		merged[k] = v
	}

	ok, err := m.store.UpdateVariables(ctx, inst.ID, merged, inst.Version)
	if err != nil {
		return err
	}
	if !ok {
		return persistence.ErrVersionConflict
	}
	inst.Variables = merged
	inst.Version++
	inst.UpdatedAt = time.Now().UTC()
	return nil
}

// SetVariables replaces the variable map wholesale (used by Restart to
// clear transient state).
func (m *Manager) SetVariables(ctx context.Context, inst *api.Instance, vars map[string]string) error {
	ok, err := m.store.UpdateVariables(ctx, inst.ID, vars, inst.Version)
	if err != nil {
		return err
	}
	if !ok {
		return persistence.ErrVersionConflict
	}
	inst.Variables = vars
	inst.Version++
	inst.UpdatedAt = time.Now().UTC()
	return nil
}

// Evict drops the in-memory copy of an instance. The durable copy is
// untouched; the next access reloads it.
func (m *Manager) Evict(workflowID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cache, workflowID)
}

// Find returns instances matching the name pattern created at or after
// since. It reads through to the store; cached copies are not consulted.
func (m *Manager) Find(ctx context.Context, pattern string, since time.Time) ([]*api.Instance, error) {
	return m.store.FindByNamePattern(ctx, pattern, since)
}

// Restore heals an instance whose persisted pointer no longer resolves in
// the (possibly re-imported) definition: it resets to the start node with a
// warning instead of failing.
func (m *Manager) Restore(ctx context.Context, inst *api.Instance, def *api.Definition) error {
	if inst.CurrentNodeID == nil {
		return nil
	}
	if _, ok := def.NodeByID(*inst.CurrentNodeID); ok {
		return nil
	}

	m.logger.Warn("persisted node no longer exists, resetting to start",
		zap.String("workflow_id", inst.ID),
		zap.String("stale_node", *inst.CurrentNodeID),
	)

	start := def.StartNodeID()
	if start == "" {
		return api.ErrNoStartPoint
	}
	return m.MoveTo(ctx, inst, &start)
}

func (m *Manager) cached(workflowID string) *api.Instance {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cache[workflowID]
}

func (m *Manager) put(inst *api.Instance) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[inst.ID] = inst
}
