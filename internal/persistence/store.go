package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/petrijr/actiflow/pkg/api"
)

var (
	// ErrDefinitionNotFound is returned when a workflow definition is not found.
	ErrDefinitionNotFound = errors.New("definition not found")

	// ErrInstanceNotFound is returned when a workflow instance is not found.
	ErrInstanceNotFound = errors.New("instance not found")

	// ErrVersionConflict is returned when an optimistic update carries a
	// stale version token. The caller should reload and retry.
	ErrVersionConflict = errors.New("instance version conflict")
)

// DefinitionStore handles storage of parsed workflow definitions.
// Saving a definition under an existing ID replaces it wholesale;
// definitions are immutable otherwise.
type DefinitionStore interface {
	SaveDefinition(ctx context.Context, def *api.Definition) error
	GetDefinition(ctx context.Context, id string) (*api.Definition, error)
}

// InstanceStore handles storage of workflow instances.
//
// All updates use optimistic concurrency: the caller passes the version it
// read, the store increments it on success and returns ErrVersionConflict
// when another writer got there first. Two processes updating the same
// instance can therefore never silently clobber each other.
type InstanceStore interface {
	SaveInstance(ctx context.Context, inst *api.Instance) error
	GetInstance(ctx context.Context, id string) (*api.Instance, error)

	// UpdateCurrentNode persists a pointer move. It reports true on
	// success; ErrVersionConflict or ErrInstanceNotFound otherwise.
	UpdateCurrentNode(ctx context.Context, id string, nodeID *string, version int64) (bool, error)

	// UpdateVariables replaces the instance's variable map.
	UpdateVariables(ctx context.Context, id string, vars map[string]string, version int64) (bool, error)

	// FindByNamePattern returns instances whose name matches pattern
	// ("*" wildcard, "?" single character) created at or after since.
	FindByNamePattern(ctx context.Context, pattern string, since time.Time) ([]*api.Instance, error)
}
