package api

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNoStartPoint is returned when an instance is started against a
// definition that declares no start points.
var ErrNoStartPoint = errors.New("definition has no start point")

// InvalidChoiceError is returned by AdvanceByChoiceValue when the supplied
// value matches none of the current node's outgoing transitions. The
// instance state is left unchanged and nothing is persisted.
type InvalidChoiceError struct {
	WorkflowID string
	Value      string
	Offered    []string
}

func (e *InvalidChoiceError) Error() string {
	return fmt.Sprintf("invalid choice %q for workflow %s (offered: %s)",
		e.Value, e.WorkflowID, strings.Join(e.Offered, ", "))
}

// IsInvalidChoice reports whether err indicates a rejected choice value.
func IsInvalidChoice(err error) bool {
	var e *InvalidChoiceError
	return errors.As(err, &e)
}

// Controller is the state-machine API over parsed workflow definitions.
//
// All methods are safe for concurrent use. Operations on distinct workflow
// IDs run fully in parallel; operations on the same ID are serialized so
// concurrent advances cannot produce lost or duplicated persistence writes.
//
// Durability contract: every successful state change is persisted before the
// call returns. If persistence fails, the in-memory pointer is rolled back
// to its pre-call value and the error is returned to the caller.
type Controller interface {
	// ImportDefinition parses activity-diagram text and persists the
	// resulting definition under the given name. Importing with an ID that
	// already exists replaces the stored definition wholesale.
	ImportDefinition(ctx context.Context, name, diagramText string) (*Definition, error)

	// Start creates (or fetches, when it already exists) the instance for
	// workflowID, positions it at the definition's first start point, runs
	// any action attached to that node and auto-advances through
	// pass-through nodes. It returns the first stable state.
	Start(ctx context.Context, definitionID, workflowID string) (*StatePayload, error)

	// CurrentState returns the presentation payload for the instance's
	// current node.
	CurrentState(ctx context.Context, workflowID string) (*StatePayload, error)

	// AdvanceByChoiceValue follows the outgoing transition whose advertised
	// value equals value, executes any action on the destination node, and
	// keeps auto-advancing through pass-through nodes until the instance
	// reaches a decision or terminal node. A value that matches no
	// transition yields *InvalidChoiceError and changes nothing.
	AdvanceByChoiceValue(ctx context.Context, workflowID, value string) (*StatePayload, error)

	// Restart resets the instance pointer to the start node. Persisted
	// business variables survive a restart; transient variables (names
	// beginning with "_") are cleared.
	Restart(ctx context.Context, workflowID string) (*StatePayload, error)

	// FindInstances returns instances whose name matches pattern ("*"
	// wildcard) and which were created at or after since. It is used for
	// time-windowed resumption lookups.
	FindInstances(ctx context.Context, pattern string, since time.Time) ([]*Instance, error)
}
