package api

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Observer receives callbacks from the controller for logging and metrics.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay workflow execution.
type Observer interface {
	// OnInstanceStarted is called once when an instance is first created
	// and positioned at its start node.
	OnInstanceStarted(ctx context.Context, inst *Instance)

	// OnNodeEntered is called each time the instance pointer moves onto a
	// node, including auto-advanced pass-through nodes.
	OnNodeEntered(ctx context.Context, inst *Instance, node Node)

	// OnActionExecuted is called after an action dispatch returns, for both
	// successes and failures (err != nil). Failed actions are isolated by
	// the executor and never halt the instance.
	OnActionExecuted(ctx context.Context, inst *Instance, action string, err error, duration time.Duration)

	// OnInstanceRestarted is called when an instance is reset to its start
	// node via Restart.
	OnInstanceRestarted(ctx context.Context, inst *Instance)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnInstanceStarted(ctx context.Context, inst *Instance) {}
func (NoopObserver) OnNodeEntered(ctx context.Context, inst *Instance, node Node) {
}
func (NoopObserver) OnActionExecuted(ctx context.Context, inst *Instance, action string, err error, d time.Duration) {
}
func (NoopObserver) OnInstanceRestarted(ctx context.Context, inst *Instance) {}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnInstanceStarted(ctx context.Context, inst *Instance) {
	for _, o := range c.observers {
		o.OnInstanceStarted(ctx, inst)
	}
}

func (c *CompositeObserver) OnNodeEntered(ctx context.Context, inst *Instance, node Node) {
	for _, o := range c.observers {
		o.OnNodeEntered(ctx, inst, node)
	}
}

func (c *CompositeObserver) OnActionExecuted(ctx context.Context, inst *Instance, action string, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnActionExecuted(ctx, inst, action, err, d)
	}
}

func (c *CompositeObserver) OnInstanceRestarted(ctx context.Context, inst *Instance) {
	for _, o := range c.observers {
		o.OnInstanceRestarted(ctx, inst)
	}
}

// LoggingObserver writes structured logs using zap.
type LoggingObserver struct {
	Logger *zap.Logger
}

// NewLoggingObserver creates an Observer that logs instance lifecycle events
// using the provided logger. If logger is nil, zap.NewNop() is used.
func NewLoggingObserver(logger *zap.Logger) Observer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnInstanceStarted(ctx context.Context, inst *Instance) {
	o.Logger.Info("instance_started",
		zap.String("workflow_id", inst.ID),
		zap.String("definition_id", inst.DefinitionID),
	)
}

func (o *LoggingObserver) OnNodeEntered(ctx context.Context, inst *Instance, node Node) {
	o.Logger.Debug("node_entered",
		zap.String("workflow_id", inst.ID),
		zap.String("node_id", node.ID),
		zap.String("node_label", node.Label),
	)
}

func (o *LoggingObserver) OnActionExecuted(ctx context.Context, inst *Instance, action string, err error, d time.Duration) {
	if err != nil {
		o.Logger.Error("action_executed",
			zap.String("workflow_id", inst.ID),
			zap.String("action", action),
			zap.Duration("duration", d),
			zap.Error(err),
		)
		return
	}
	o.Logger.Debug("action_executed",
		zap.String("workflow_id", inst.ID),
		zap.String("action", action),
		zap.Duration("duration", d),
	)
}

func (o *LoggingObserver) OnInstanceRestarted(ctx context.Context, inst *Instance) {
	o.Logger.Info("instance_restarted",
		zap.String("workflow_id", inst.ID),
		zap.String("definition_id", inst.DefinitionID),
	)
}

// BasicMetrics collects simple counters and aggregate action durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	instancesStarted   atomic.Int64
	instancesRestarted atomic.Int64
	nodesEntered       atomic.Int64
	actionsExecuted    atomic.Int64
	actionsFailed      atomic.Int64
	totalActionTime    atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	InstancesStarted   int64
	InstancesRestarted int64
	NodesEntered       int64
	ActionsExecuted    int64
	ActionsFailed      int64
	AvgActionDuration  time.Duration
}

func (m *BasicMetrics) OnInstanceStarted(ctx context.Context, inst *Instance) {
	m.instancesStarted.Add(1)
}

func (m *BasicMetrics) OnInstanceRestarted(ctx context.Context, inst *Instance) {
	m.instancesRestarted.Add(1)
}

func (m *BasicMetrics) OnNodeEntered(ctx context.Context, inst *Instance, node Node) {
	m.nodesEntered.Add(1)
}

func (m *BasicMetrics) OnActionExecuted(ctx context.Context, inst *Instance, action string, err error, d time.Duration) {
	if err != nil {
		m.actionsFailed.Add(1)
		return
	}
	// Only count successful actions for average duration.
	m.actionsExecuted.Add(1)
	m.totalActionTime.Add(d.Nanoseconds())
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	executed := m.actionsExecuted.Load()
	totalNs := m.totalActionTime.Load()

	var avg time.Duration
	if executed > 0 {
		avg = time.Duration(totalNs / executed)
	}

	return BasicMetricsSnapshot{
		InstancesStarted:   m.instancesStarted.Load(),
		InstancesRestarted: m.instancesRestarted.Load(),
		NodesEntered:       m.nodesEntered.Load(),
		ActionsExecuted:    executed,
		ActionsFailed:      m.actionsFailed.Load(),
		AvgActionDuration:  avg,
	}
}
