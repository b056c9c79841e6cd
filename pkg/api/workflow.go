package api

import (
	"time"
)

// Node is a single activity in a parsed diagram.
//
// Note carries the raw note text attached to the node in the diagram, if
// any. The engine does not interpret it at parse time; action metadata is
// extracted from it lazily when the node is entered.
type Node struct {
	ID    string
	Label string
	Note  string
}

// Transition is a directed edge between two nodes of the same definition.
//
// Label is the display / choice value advertised to callers when the source
// node is a decision node. Order preserves declaration order in the source
// text so repeated queries enumerate choices identically.
type Transition struct {
	ID     string
	FromID string
	ToID   string
	Label  string
	Order  int
}

// Definition is the parsed, immutable graph produced from diagram text.
//
// Nodes and Transitions are stored in flat, id-indexed slices. Cycles
// produced by loop constructs are ordinary edges; there are no object
// reference cycles to manage. A Definition is never mutated after parsing;
// re-importing under the same ID replaces it wholesale.
type Definition struct {
	ID        string
	Name      string
	CreatedAt time.Time

	Nodes       []Node
	Transitions []Transition

	// StartPoints lists node IDs marked as entry points, in declaration
	// order. The controller always starts at the first one.
	StartPoints []string
}

// NodeByID returns the node with the given id, if present.
func (d *Definition) NodeByID(id string) (Node, bool) {
	for _, n := range d.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Outgoing returns the transitions leaving the given node, in declaration
// order. A node with no outgoing transitions is terminal; a node with two
// or more is a decision node.
func (d *Definition) Outgoing(nodeID string) []Transition {
	var out []Transition
	for _, t := range d.Transitions {
		if t.FromID == nodeID {
			out = append(out, t)
		}
	}
	return out
}

// StartNodeID returns the first declared start point, or "" if the
// definition has none.
func (d *Definition) StartNodeID() string {
	if len(d.StartPoints) == 0 {
		return ""
	}
	return d.StartPoints[0]
}

// Instance is the mutable runtime state for one execution of a Definition.
//
// CurrentNodeID is nil until the instance has been started. Version is an
// optimistic concurrency token: every successful persisted update increments
// it, and stale writers are rejected instead of silently clobbering each
// other.
type Instance struct {
	ID           string
	DefinitionID string

	// Name is used for time-windowed resumption lookups
	// (e.g. "location:{hash}"). It defaults to the instance ID.
	Name string

	CurrentNodeID *string
	Variables     map[string]string

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy of the instance. Stores return clones so callers
// can never mutate persisted state behind the engine's back.
func (i *Instance) Clone() *Instance {
	cp := *i
	if i.CurrentNodeID != nil {
		node := *i.CurrentNodeID
		cp.CurrentNodeID = &node
	}
	cp.Variables = make(map[string]string, len(i.Variables))
	for k, v := range i.Variables {
		cp.Variables[k] = v
	}
	return &cp
}

// ActionInvocation is the action descriptor decoded from a node note.
// Param values may contain ${name} placeholders which are resolved against
// the instance variables before dispatch.
type ActionInvocation struct {
	Action string            `json:"action"`
	Params map[string]string `json:"params"`
}

// ChoiceOption is one selectable transition out of a decision node.
type ChoiceOption struct {
	Index int
	Text  string
	Value string
}

// StatePayload is everything a presentation layer needs to render the
// current position of a workflow instance. It deliberately exposes no
// nodes, transitions or diagram text.
type StatePayload struct {
	WorkflowID string
	NodeID     string
	Text       string

	// IsChoice is true when the current node has two or more outgoing
	// transitions and external input is required to proceed.
	IsChoice bool

	// IsTerminal is true when the current node has no outgoing transitions.
	IsTerminal bool

	// Options lists the selectable choices in stable declaration order.
	// Empty unless IsChoice is true.
	Options []ChoiceOption
}
