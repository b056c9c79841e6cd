package action

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/petrijr/actiflow/pkg/api"
)

var (
	// ErrEmptyActionName is returned by Register for a blank action name.
	ErrEmptyActionName = errors.New("action name must not be empty")

	// ErrNilFactory is returned by Register for a nil handler factory.
	ErrNilFactory = errors.New("handler factory must not be nil")
)

// Registry maps action names to handler factories.
//
// It is safe for concurrent use: handlers may be registered late from one
// goroutine while lookups run from others, and a reader never observes a
// partially registered entry. Registration is by exact name match; there is
// no reflection and no implicit discovery.
type Registry struct {
	handlers sync.Map // string -> api.HandlerFactory
	logger   *zap.Logger
}

// NewRegistry creates an empty Registry. A nil logger defaults to
// zap.NewNop().
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{logger: logger}
}

// Register associates name with a handler factory. Registering a name twice
// overwrites the previous factory and logs a warning; it never fails the
// process.
func (r *Registry) Register(name string, factory api.HandlerFactory) error {
	if name == "" {
		return ErrEmptyActionName
	}
	if factory == nil {
		return ErrNilFactory
	}
	if _, loaded := r.handlers.Swap(name, factory); loaded {
		r.logger.Warn("action handler overwritten", zap.String("action", name))
	}
	return nil
}

// Lookup returns the factory registered under name. It reports false rather
// than failing when the name is unregistered.
func (r *Registry) Lookup(name string) (api.HandlerFactory, bool) {
	v, ok := r.handlers.Load(name)
	if !ok {
		return nil, false
	}
	return v.(api.HandlerFactory), true
}
