// Package api contains the public types of the actiflow engine: parsed
// workflow definitions, runtime instances, the Controller state-machine
// interface, the action handler contract and the Observer callbacks.
//
// Application code normally imports the root actiflow package, which
// re-exports everything here.
package api
