package action

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"sync"

	"go.uber.org/zap"

	"github.com/petrijr/actiflow/pkg/api"
)

var placeholderRe = regexp.MustCompile(`\$\{([^}]*)\}`)

// ResolveTemplate substitutes ${name} placeholders in s with values from
// vars. Unknown names resolve to the empty string.
func ResolveTemplate(s string, vars map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(s, func(m string) string {
		name := m[2 : len(m)-1]
		return vars[name]
	})
}

// Executor resolves and invokes action handlers.
//
// Failure isolation is its core contract: an unresolved action name or a
// failing (even panicking) handler yields an empty update map and a logged
// warning, never an error. A single bad action can therefore never halt or
// corrupt an otherwise healthy instance. Only context cancellation is
// surfaced, and then no updates are returned at all, so variable
// application stays all-or-nothing.
type Executor struct {
	registry *Registry
	logger   *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewExecutor creates an Executor over the given registry. A nil logger
// defaults to zap.NewNop().
func NewExecutor(registry *Registry, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		registry: registry,
		logger:   logger,
		locks:    make(map[string]*sync.Mutex),
	}
}

// lockFor returns the mutex serializing executions for one workflow id.
// Contention is always per-id; distinct workflows never block each other.
func (e *Executor) lockFor(workflowID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[workflowID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[workflowID] = l
	}
	return l
}

// Execute dispatches inv for the given workflow id and returns the variable
// updates produced by the handler (possibly empty). Parameter values are
// template-resolved against vars before dispatch. Executions for the same
// workflow id are serialized; different ids run fully in parallel.
func (e *Executor) Execute(ctx context.Context, workflowID string, inv api.ActionInvocation, vars map[string]string) (map[string]string, error) {
	lock := e.lockFor(workflowID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	factory, ok := e.registry.Lookup(inv.Action)
	if !ok {
		// Forward-compatibility: diagrams may name actions this build does
		// not know about. Continue without updates instead of failing.
		e.logger.Warn("unknown action, skipped",
			zap.String("action", inv.Action),
			zap.String("workflow_id", workflowID),
		)
		return map[string]string{}, nil
	}

	params := make(map[string]string, len(inv.Params))
	for k, v := range inv.Params {
		params[k] = ResolveTemplate(v, vars)
	}

	updates, err := e.invoke(ctx, factory, workflowID, params)
	if err != nil {
		if ctx.Err() != nil {
			// Cancelled: abort with no partial variable application.
			return nil, ctx.Err()
		}
		e.logger.Error("action handler failed",
			zap.String("action", inv.Action),
			zap.String("workflow_id", workflowID),
			zap.Error(err),
		)
		return map[string]string{}, nil
	}
	if ctx.Err() != nil {
		// The handler finished after cancellation; discard its updates so
		// a cancelled call observably changes nothing.
		return nil, ctx.Err()
	}
	if updates == nil {
		updates = map[string]string{}
	}
	return updates, nil
}

// invoke builds one handler from the factory, runs it and guarantees
// cleanup and panic containment around the call.
func (e *Executor) invoke(ctx context.Context, factory api.HandlerFactory, workflowID string, params map[string]string) (updates map[string]string, err error) {
	handler := factory()
	if handler == nil {
		return nil, fmt.Errorf("handler factory returned nil")
	}
	defer func() {
		if c, ok := handler.(io.Closer); ok {
			if cerr := c.Close(); cerr != nil {
				e.logger.Warn("handler close failed", zap.Error(cerr))
			}
		}
		if r := recover(); r != nil {
			updates = nil
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler.Execute(ctx, workflowID, params)
}
