package persistence

// Persistence bundles the two store interfaces so the controller
// can depend on a single abstraction.
type Persistence struct {
	Definitions DefinitionStore
	Instances   InstanceStore
}
