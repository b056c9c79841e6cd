// Package actiflow is an embeddable interpreter and state machine for
// activity-diagram workflows.
//
// It parses a textual activity-diagram dialect into a graph, executes that
// graph one step at a time under external or automatic input, dispatches
// named actions to pluggable handlers, and persists progress so execution
// survives process restarts.
//
// # Core Concepts
//
// The programming model is intentionally small:
//
//  1. Definition: the parsed, immutable graph produced from diagram text.
//  2. Instance: the mutable runtime pointer (current node + variables)
//     for one execution of a Definition.
//  3. Controller: the four-operation state-machine API:
//     Start, CurrentState, AdvanceByChoiceValue, Restart.
//  4. Handler: a pluggable unit of logic invoked by action name.
//
// # Diagrams
//
// Definitions are written in an activity-diagram dialect:
//
//	@startuml
//	[*] --> Menu
//	:Menu;
//	Menu --> Search
//	Menu --> Feedback
//	@enduml
//
// Decision nodes (two or more outgoing transitions) pause execution and
// surface an ordered list of choices; pass-through nodes (exactly one
// outgoing transition) are traversed automatically; terminal nodes end the
// flow. if/else and loop constructs are lowered into decision nodes and
// ordinary graph edges, so cycles are legal.
//
// # Actions
//
// A node note that decodes to a JSON descriptor such as
//
//	{"action": "get_nearby_businesses", "params": {"radius": "${radius}"}}
//
// is executed automatically when the node is entered. Handlers are
// registered by name on a Registry; parameter values are template-resolved
// against the instance variables before dispatch. A failing or unknown
// action is logged and skipped; it never halts the instance.
//
// # Durability
//
// Controllers can be backed by different storage systems:
//
//   - In-memory (non-durable, best for tests)
//   - SQLite (embedded durability)
//   - Redis
//
// Every successful state change is persisted before the call returns, and a
// failed persistence call rolls the in-memory pointer back, so durable and
// in-memory state never diverge.
//
// # Usage
//
//	registry := actiflow.NewRegistry(logger)
//	registry.Register("greet", func() actiflow.Handler {
//	    return actiflow.HandlerFunc(greet)
//	})
//
//	ctrl := actiflow.NewInMemoryController(registry)
//	def, _ := ctrl.ImportDefinition(ctx, "onboarding", diagramText)
//
//	state, _ := ctrl.Start(ctx, def.ID, "user:42")
//	for state.IsChoice {
//	    state, _ = ctrl.AdvanceByChoiceValue(ctx, "user:42", pick(state.Options))
//	}
//
// For runnable programs, see the /examples directory.
package actiflow
