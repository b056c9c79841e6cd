package action

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/petrijr/actiflow/pkg/api"
)

func staticHandler(result string) api.HandlerFactory {
	return func() api.Handler {
		return api.HandlerFunc(func(ctx context.Context, workflowID string, params map[string]string) (map[string]string, error) {
			return map[string]string{"result": result}, nil
		})
	}
}

func TestRegistryRegisterValidation(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	require.ErrorIs(t, r.Register("", staticHandler("x")), ErrEmptyActionName)
	require.ErrorIs(t, r.Register("x", nil), ErrNilFactory)
}

func TestRegistryLookupUnknown(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	_, ok := r.Lookup("nope")
	require.False(t, ok)
}

func TestRegistryDuplicateOverwrites(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	require.NoError(t, r.Register("greet", staticHandler("first")))
	require.NoError(t, r.Register("greet", staticHandler("second")))

	factory, ok := r.Lookup("greet")
	require.True(t, ok)
	out, err := factory().Execute(context.Background(), "wf", nil)
	require.NoError(t, err)
	require.Equal(t, "second", out["result"], "last registration wins")
}

func TestRegistryConcurrentRegisterAndLookup(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	var g errgroup.Group
	for i := 0; i < 50; i++ {
		name := fmt.Sprintf("action-%d", i%10)
		g.Go(func() error {
			return r.Register(name, staticHandler(name))
		})
		g.Go(func() error {
			// Lookups race registrations; they must never observe a
			// partially registered entry.
			if factory, ok := r.Lookup(name); ok && factory == nil {
				return fmt.Errorf("lookup returned nil factory for %s", name)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for i := 0; i < 10; i++ {
		_, ok := r.Lookup(fmt.Sprintf("action-%d", i))
		require.True(t, ok)
	}
}
