package engine

import (
	"database/sql"

	"github.com/redis/go-redis/v9"

	"github.com/petrijr/actiflow/internal/action"
	"github.com/petrijr/actiflow/internal/persistence"
	"github.com/petrijr/actiflow/pkg/api"
)

func NewInMemoryController(registry *action.Registry) api.Controller {
	return NewInMemoryControllerWithObserver(registry, nil)
}

func NewInMemoryControllerWithObserver(registry *action.Registry, obs api.Observer) api.Controller {
	mem := persistence.NewInMemoryStore()
	return NewControllerWithConfig(Config{
		Persistence: persistence.Persistence{
			Definitions: mem,
			Instances:   mem,
		},
		Registry: registry,
		Observer: obs,
	})
}

func NewSQLiteController(db *sql.DB, registry *action.Registry) (api.Controller, error) {
	return NewSQLiteControllerWithObserver(db, registry, nil)
}

func NewSQLiteControllerWithObserver(db *sql.DB, registry *action.Registry, obs api.Observer) (api.Controller, error) {
	store, err := persistence.NewSQLiteStore(db)
	if err != nil {
		return nil, err
	}
	return NewControllerWithConfig(Config{
		Persistence: persistence.Persistence{
			Definitions: store,
			Instances:   store,
		},
		Registry: registry,
		Observer: obs,
	}), nil
}

// NewRedisController creates a controller that persists instances in Redis.
// Definitions are kept in memory: they are re-imported on startup anyway.
func NewRedisController(client *redis.Client, registry *action.Registry) api.Controller {
	return NewRedisControllerWithObserver(client, registry, nil)
}

func NewRedisControllerWithObserver(client *redis.Client, registry *action.Registry, obs api.Observer) api.Controller {
	return NewControllerWithConfig(Config{
		Persistence: persistence.Persistence{
			Definitions: persistence.NewInMemoryStore(),
			Instances:   persistence.NewRedisInstanceStore(client, "actiflow:"),
		},
		Registry: registry,
		Observer: obs,
	})
}
