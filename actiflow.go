package actiflow

import (
	"context"
	"database/sql"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/petrijr/actiflow/internal/action"
	"github.com/petrijr/actiflow/internal/engine"
	"github.com/petrijr/actiflow/internal/parser"
	"github.com/petrijr/actiflow/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Controller         = api.Controller
	Definition         = api.Definition
	Node               = api.Node
	Transition         = api.Transition
	Instance           = api.Instance
	ActionInvocation   = api.ActionInvocation
	StatePayload       = api.StatePayload
	ChoiceOption       = api.ChoiceOption
	Handler            = api.Handler
	HandlerFunc        = api.HandlerFunc
	HandlerFactory     = api.HandlerFactory
	InvalidChoiceError = api.InvalidChoiceError
	Observer           = api.Observer
	LoggingObserver    = api.LoggingObserver
	BasicMetrics       = api.BasicMetrics
	CompositeObserver  = api.CompositeObserver
	NoopObserver       = api.NoopObserver
)

// Re-export common helpers.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
	IsInvalidChoice      = api.IsInvalidChoice
	ErrNoStartPoint      = api.ErrNoStartPoint
)

// Registry maps action names to handler factories. One registry is shared
// by all controllers that should dispatch the same set of actions.
type Registry = action.Registry

// NewRegistry creates an empty handler registry. A nil logger defaults to
// zap.NewNop().
func NewRegistry(logger *zap.Logger) *Registry {
	return action.NewRegistry(logger)
}

// ParseDefinition parses activity-diagram text into a Definition without
// persisting it. Most callers use Controller.ImportDefinition instead.
func ParseDefinition(name, diagramText string) (*Definition, error) {
	return parser.Parse(name, diagramText)
}

// Controller constructors
// These wrap the internal/engine package so external callers
// never need to import internal packages.

// NewInMemoryController returns a Controller backed entirely by in-memory
// stores. State does not survive a process restart; intended for tests.
func NewInMemoryController(registry *Registry) Controller {
	return engine.NewInMemoryController(registry)
}

// NewInMemoryControllerWithObserver returns an in-memory Controller with
// the given Observer.
func NewInMemoryControllerWithObserver(registry *Registry, obs Observer) Controller {
	return engine.NewInMemoryControllerWithObserver(registry, obs)
}

// NewSQLiteController returns a Controller that persists definitions and
// instances in a SQLite database.
func NewSQLiteController(db *sql.DB, registry *Registry) (Controller, error) {
	return engine.NewSQLiteController(db, registry)
}

// NewSQLiteControllerWithObserver returns a SQLite-backed Controller with
// the given Observer.
func NewSQLiteControllerWithObserver(db *sql.DB, registry *Registry, obs Observer) (Controller, error) {
	return engine.NewSQLiteControllerWithObserver(db, registry, obs)
}

// NewRedisController returns a Controller that persists instances in Redis.
// Definitions are kept in-memory.
func NewRedisController(client *redis.Client, registry *Registry) Controller {
	return engine.NewRedisController(client, registry)
}

// NewRedisControllerWithObserver returns a Redis-backed Controller with the
// given Observer.
func NewRedisControllerWithObserver(client *redis.Client, registry *Registry, obs Observer) Controller {
	return engine.NewRedisControllerWithObserver(client, registry, obs)
}

// Convenience helpers that just forward to the underlying Controller.

// Start creates or fetches the instance for workflowID and runs it to its
// first stable state.
func Start(ctx context.Context, c Controller, definitionID, workflowID string) (*StatePayload, error) {
	return c.Start(ctx, definitionID, workflowID)
}

// CurrentState returns the presentation payload for an instance.
func CurrentState(ctx context.Context, c Controller, workflowID string) (*StatePayload, error) {
	return c.CurrentState(ctx, workflowID)
}

// Advance follows the choice matching value and returns the next stable
// state.
func Advance(ctx context.Context, c Controller, workflowID, value string) (*StatePayload, error) {
	return c.AdvanceByChoiceValue(ctx, workflowID, value)
}

// Restart resets an instance to its start node, keeping business variables.
func Restart(ctx context.Context, c Controller, workflowID string) (*StatePayload, error) {
	return c.Restart(ctx, workflowID)
}

// FindInstances looks up instances by name pattern and creation window,
// e.g. to resume the workflow for "location:abc123" started within the
// last 24 hours:
//
//	matches, err := actiflow.FindInstances(ctx, c, "location:*", time.Now().Add(-24*time.Hour))
func FindInstances(ctx context.Context, c Controller, pattern string, since time.Time) ([]*Instance, error) {
	return c.FindInstances(ctx, pattern, since)
}
