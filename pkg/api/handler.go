package api

import "context"

// Handler is a pluggable unit of logic invoked by action name.
//
// Execute receives the workflow ID, the resolved parameter map (with ${var}
// placeholders already substituted) and the call context. It returns a map
// of variable updates to merge into the instance, which may be empty or nil.
//
// A handler may additionally implement io.Closer; Close is then called once
// after Execute returns, whether it succeeded or not.
type Handler interface {
	Execute(ctx context.Context, workflowID string, params map[string]string) (map[string]string, error)
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, workflowID string, params map[string]string) (map[string]string, error)

func (f HandlerFunc) Execute(ctx context.Context, workflowID string, params map[string]string) (map[string]string, error) {
	return f(ctx, workflowID, params)
}

// HandlerFactory produces one new Handler per invocation, so handlers can
// hold per-call scoped resources without synchronization.
type HandlerFactory func() Handler
