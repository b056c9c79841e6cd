package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/petrijr/actiflow/internal/action"
	"github.com/petrijr/actiflow/internal/parser"
	"github.com/petrijr/actiflow/internal/persistence"
	"github.com/petrijr/actiflow/internal/state"
	"github.com/petrijr/actiflow/pkg/api"
)

// controllerImpl is a simple, synchronous, in-process controller
// implementation. The only suspension points are handler execution and
// persistence I/O; parsing and graph traversal are fully synchronous.
type controllerImpl struct {
	defs      persistence.DefinitionStore
	instances *state.Manager
	executor  *action.Executor
	parser    *parser.Parser
	observer  api.Observer
	logger    *zap.Logger

	// locks serializes operations per workflow id. Distinct ids never
	// share a lock.
	locks *state.KeyedMutex
}

// Config describes how to construct a controller.
// Only used inside this package; external callers use the helper functions.
type Config struct {
	Persistence persistence.Persistence
	Registry    *action.Registry
	Observer    api.Observer
	Logger      *zap.Logger
}

// NewControllerWithConfig creates a new Controller using the given
// configuration.
func NewControllerWithConfig(cfg Config) api.Controller {
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := cfg.Registry
	if registry == nil {
		registry = action.NewRegistry(logger)
	}
	return &controllerImpl{
		defs:      cfg.Persistence.Definitions,
		instances: state.NewManager(cfg.Persistence.Instances, logger),
		executor:  action.NewExecutor(registry, logger),
		parser:    parser.New(logger),
		observer:  obs,
		logger:    logger,
		locks:     state.NewKeyedMutex(),
	}
}

func (c *controllerImpl) ImportDefinition(ctx context.Context, name, diagramText string) (*api.Definition, error) {
	def, err := c.parser.Parse(name, diagramText)
	if err != nil {
		return nil, err
	}
	if err := c.defs.SaveDefinition(ctx, def); err != nil {
		return nil, err
	}
	return def, nil
}

func (c *controllerImpl) Start(ctx context.Context, definitionID, workflowID string) (*api.StatePayload, error) {
	lock := c.locks.Get(workflowID)
	lock.Lock()
	defer lock.Unlock()

	def, err := c.defs.GetDefinition(ctx, definitionID)
	if err != nil {
		return nil, fmt.Errorf("load definition %s: %w", definitionID, err)
	}

	inst, created, err := c.instances.GetOrCreate(ctx, workflowID, def)
	if err != nil {
		return nil, err
	}
	if !created {
		// Start is get-or-create: an already-running instance just reports
		// its current state.
		return c.buildPayload(def, inst), nil
	}

	c.observer.OnInstanceStarted(ctx, inst)
	if node, ok := def.NodeByID(*inst.CurrentNodeID); ok {
		c.observer.OnNodeEntered(ctx, inst, node)
	}

	if err := c.autoRun(ctx, def, inst); err != nil {
		return nil, err
	}
	return c.buildPayload(def, inst), nil
}

func (c *controllerImpl) CurrentState(ctx context.Context, workflowID string) (*api.StatePayload, error) {
	lock := c.locks.Get(workflowID)
	lock.Lock()
	defer lock.Unlock()

	def, inst, err := c.load(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	return c.buildPayload(def, inst), nil
}

func (c *controllerImpl) AdvanceByChoiceValue(ctx context.Context, workflowID, value string) (*api.StatePayload, error) {
	lock := c.locks.Get(workflowID)
	lock.Lock()
	defer lock.Unlock()

	def, inst, err := c.load(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	current := *inst.CurrentNodeID
	out := def.Outgoing(current)

	var dest string
	var offered []string
	found := false
	for _, t := range out {
		v := choiceValue(def, t)
		offered = append(offered, v)
		if !found && v == value {
			dest = t.ToID
			found = true
		}
	}
	if !found {
		// Nothing was moved or persisted; the caller simply chose badly.
		return nil, &api.InvalidChoiceError{
			WorkflowID: workflowID,
			Value:      value,
			Offered:    offered,
		}
	}

	if err := c.instances.MoveTo(ctx, inst, &dest); err != nil {
		return nil, err
	}
	if node, ok := def.NodeByID(dest); ok {
		c.observer.OnNodeEntered(ctx, inst, node)
	}

	if err := c.autoRun(ctx, def, inst); err != nil {
		return nil, err
	}
	return c.buildPayload(def, inst), nil
}

func (c *controllerImpl) Restart(ctx context.Context, workflowID string) (*api.StatePayload, error) {
	lock := c.locks.Get(workflowID)
	lock.Lock()
	defer lock.Unlock()

	def, inst, err := c.load(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	start := def.StartNodeID()
	if start == "" {
		return nil, api.ErrNoStartPoint
	}

	// Business variables survive a restart; transient ones (underscore
	// prefix) are cleared.
	kept := make(map[string]string, len(inst.Variables))
	for k, v := range inst.Variables {
		if len(k) > 0 && k[0] == '_' {
			continue
		}
		kept[k] = v
	}
	if err := c.instances.SetVariables(ctx, inst, kept); err != nil {
		return nil, err
	}
	if err := c.instances.MoveTo(ctx, inst, &start); err != nil {
		return nil, err
	}

	c.observer.OnInstanceRestarted(ctx, inst)
	if node, ok := def.NodeByID(start); ok {
		c.observer.OnNodeEntered(ctx, inst, node)
	}

	if err := c.autoRun(ctx, def, inst); err != nil {
		return nil, err
	}
	return c.buildPayload(def, inst), nil
}

func (c *controllerImpl) FindInstances(ctx context.Context, pattern string, since time.Time) ([]*api.Instance, error) {
	return c.instances.Find(ctx, pattern, since)
}

// load fetches the instance and its definition, healing a stale persisted
// pointer against the current definition.
func (c *controllerImpl) load(ctx context.Context, workflowID string) (*api.Definition, *api.Instance, error) {
	inst, err := c.instances.Get(ctx, workflowID)
	if err != nil {
		return nil, nil, fmt.Errorf("instance %s: %w", workflowID, err)
	}
	def, err := c.defs.GetDefinition(ctx, inst.DefinitionID)
	if err != nil {
		return nil, nil, fmt.Errorf("load definition %s: %w", inst.DefinitionID, err)
	}
	if err := c.instances.Restore(ctx, inst, def); err != nil {
		return nil, nil, err
	}
	if inst.CurrentNodeID == nil {
		start := def.StartNodeID()
		if start == "" {
			return nil, nil, api.ErrNoStartPoint
		}
		if err := c.instances.MoveTo(ctx, inst, &start); err != nil {
			return nil, nil, err
		}
	}
	return def, inst, nil
}

// autoRun drives the instance forward from its current node: it executes
// the node's action (if its note decodes to one), then keeps advancing
// through pass-through nodes until it reaches a node with zero or two-plus
// outgoing transitions. Those are the only states ever surfaced to callers.
func (c *controllerImpl) autoRun(ctx context.Context, def *api.Definition, inst *api.Instance) error {
	// Legal cycles always pass through a decision node, which stops the
	// walk. A hand-written pass-through cycle would not, so revisits end
	// the walk instead of spinning.
	visited := make(map[string]bool)
	for {
		node, ok := def.NodeByID(*inst.CurrentNodeID)
		if !ok {
			return fmt.Errorf("current node %s not in definition %s", *inst.CurrentNodeID, def.ID)
		}
		if visited[node.ID] {
			c.logger.Warn("pass-through cycle detected, stopping walk",
				zap.String("workflow_id", inst.ID),
				zap.String("node", node.ID),
			)
			return nil
		}
		visited[node.ID] = true

		if inv, ok := action.DecodeNote(node.Note, c.logger); ok {
			started := time.Now()
			updates, err := c.executor.Execute(ctx, inst.ID, *inv, inst.Variables)
			c.observer.OnActionExecuted(ctx, inst, inv.Action, err, time.Since(started))
			if err != nil {
				// Only cancellation escapes the executor; handler failures
				// were already converted to an empty update map.
				return err
			}
			if err := c.instances.ApplyVariables(ctx, inst, updates); err != nil {
				return err
			}
		}

		out := def.Outgoing(node.ID)
		if len(out) != 1 {
			return nil
		}

		dest := out[0].ToID
		if err := c.instances.MoveTo(ctx, inst, &dest); err != nil {
			return err
		}
		if next, ok := def.NodeByID(dest); ok {
			c.observer.OnNodeEntered(ctx, inst, next)
		}
	}
}

func (c *controllerImpl) buildPayload(def *api.Definition, inst *api.Instance) *api.StatePayload {
	node, _ := def.NodeByID(*inst.CurrentNodeID)
	out := def.Outgoing(node.ID)

	p := &api.StatePayload{
		WorkflowID: inst.ID,
		NodeID:     node.ID,
		Text:       node.Label,
		IsChoice:   len(out) >= 2,
		IsTerminal: len(out) == 0,
	}
	if p.IsChoice {
		for i, t := range out {
			p.Options = append(p.Options, api.ChoiceOption{
				Index: i,
				Text:  choiceText(def, t),
				Value: choiceValue(def, t),
			})
		}
	}
	return p
}

// choiceValue is the value a caller must supply to follow transition t:
// the transition label when the diagram provides one, otherwise the label
// of the destination node.
func choiceValue(def *api.Definition, t api.Transition) string {
	if t.Label != "" {
		return t.Label
	}
	if n, ok := def.NodeByID(t.ToID); ok && n.Label != "" {
		return n.Label
	}
	return t.ToID
}

func choiceText(def *api.Definition, t api.Transition) string {
	return choiceValue(def, t)
}
