package persistence

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/petrijr/actiflow/pkg/api"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store, err := NewSQLiteStore(db)
	if err != nil {
		t.Fatalf("init store: %v", err)
	}
	return store
}

func TestSQLiteStoreDefinitionRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	if _, err := store.GetDefinition(ctx, "missing"); !errors.Is(err, ErrDefinitionNotFound) {
		t.Fatalf("expected ErrDefinitionNotFound, got %v", err)
	}

	def := &api.Definition{
		ID:        "def-1",
		Name:      "onboarding",
		CreatedAt: time.Now().UTC(),
		Nodes: []api.Node{
			{ID: "Menu", Label: "Menu", Note: `{"action":"greet","params":{}}`},
			{ID: "Search", Label: "Search"},
		},
		Transitions: []api.Transition{
			{ID: "t-1", FromID: "Menu", ToID: "Search", Label: "find", Order: 1},
		},
		StartPoints: []string{"Menu"},
	}
	if err := store.SaveDefinition(ctx, def); err != nil {
		t.Fatalf("save definition: %v", err)
	}

	got, err := store.GetDefinition(ctx, "def-1")
	if err != nil {
		t.Fatalf("get definition: %v", err)
	}
	if got.Name != "onboarding" {
		t.Errorf("name: got %q, want %q", got.Name, "onboarding")
	}
	if len(got.Nodes) != 2 || len(got.Transitions) != 1 {
		t.Errorf("graph: got %d nodes / %d transitions, want 2 / 1", len(got.Nodes), len(got.Transitions))
	}
	if got.Nodes[0].Note != def.Nodes[0].Note {
		t.Errorf("note not preserved: got %q", got.Nodes[0].Note)
	}
	if got.StartNodeID() != "Menu" {
		t.Errorf("start node: got %q, want Menu", got.StartNodeID())
	}
}

func TestSQLiteStoreReimportReplacesDefinition(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	def := &api.Definition{ID: "def-1", Name: "v1", CreatedAt: time.Now().UTC()}
	if err := store.SaveDefinition(ctx, def); err != nil {
		t.Fatalf("save v1: %v", err)
	}

	def.Name = "v2"
	def.Nodes = []api.Node{{ID: "A", Label: "A"}}
	if err := store.SaveDefinition(ctx, def); err != nil {
		t.Fatalf("save v2: %v", err)
	}

	got, err := store.GetDefinition(ctx, "def-1")
	if err != nil {
		t.Fatalf("get definition: %v", err)
	}
	if got.Name != "v2" || len(got.Nodes) != 1 {
		t.Errorf("re-import did not replace: name=%q nodes=%d", got.Name, len(got.Nodes))
	}
}

func TestSQLiteStoreInstanceRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	if _, err := store.GetInstance(ctx, "missing"); !errors.Is(err, ErrInstanceNotFound) {
		t.Fatalf("expected ErrInstanceNotFound, got %v", err)
	}

	node := "Menu"
	now := time.Now().UTC()
	inst := &api.Instance{
		ID:            "wf-1",
		DefinitionID:  "def-1",
		Name:          "location:abc",
		CurrentNodeID: &node,
		Variables:     map[string]string{"lang": "fi"},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := store.SaveInstance(ctx, inst); err != nil {
		t.Fatalf("save instance: %v", err)
	}

	got, err := store.GetInstance(ctx, "wf-1")
	if err != nil {
		t.Fatalf("get instance: %v", err)
	}
	if got.Name != "location:abc" {
		t.Errorf("name: got %q", got.Name)
	}
	if got.CurrentNodeID == nil || *got.CurrentNodeID != "Menu" {
		t.Errorf("current node: got %v, want Menu", got.CurrentNodeID)
	}
	if got.Variables["lang"] != "fi" {
		t.Errorf("variables: got %v", got.Variables)
	}
	if got.Version != 0 {
		t.Errorf("version: got %d, want 0", got.Version)
	}
	if !got.CreatedAt.Equal(now) {
		t.Errorf("created_at: got %v, want %v", got.CreatedAt, now)
	}
}

func TestSQLiteStoreOptimisticUpdates(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	now := time.Now().UTC()
	inst := &api.Instance{ID: "wf-1", DefinitionID: "def-1", Name: "wf-1", CreatedAt: now, UpdatedAt: now}
	if err := store.SaveInstance(ctx, inst); err != nil {
		t.Fatalf("save instance: %v", err)
	}

	next := "Search"
	ok, err := store.UpdateCurrentNode(ctx, "wf-1", &next, 0)
	if err != nil || !ok {
		t.Fatalf("update node: ok=%v err=%v", ok, err)
	}

	// Same token again must be rejected as stale.
	ok, err = store.UpdateCurrentNode(ctx, "wf-1", &next, 0)
	if ok || !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("stale update: ok=%v err=%v, want version conflict", ok, err)
	}

	// A missing row is reported as not-found, not as a conflict.
	ok, err = store.UpdateCurrentNode(ctx, "missing", &next, 0)
	if ok || !errors.Is(err, ErrInstanceNotFound) {
		t.Fatalf("missing update: ok=%v err=%v, want not found", ok, err)
	}

	ok, err = store.UpdateVariables(ctx, "wf-1", map[string]string{"q": "pizza"}, 1)
	if err != nil || !ok {
		t.Fatalf("update variables: ok=%v err=%v", ok, err)
	}

	got, err := store.GetInstance(ctx, "wf-1")
	if err != nil {
		t.Fatalf("get instance: %v", err)
	}
	if got.Version != 2 {
		t.Errorf("version: got %d, want 2", got.Version)
	}
	if *got.CurrentNodeID != "Search" {
		t.Errorf("current node: got %q", *got.CurrentNodeID)
	}
	if got.Variables["q"] != "pizza" {
		t.Errorf("variables: got %v", got.Variables)
	}

	// Clearing the pointer stores NULL and reads back as nil.
	ok, err = store.UpdateCurrentNode(ctx, "wf-1", nil, 2)
	if err != nil || !ok {
		t.Fatalf("clear node: ok=%v err=%v", ok, err)
	}
	got, err = store.GetInstance(ctx, "wf-1")
	if err != nil {
		t.Fatalf("get instance: %v", err)
	}
	if got.CurrentNodeID != nil {
		t.Errorf("current node: got %q, want nil", *got.CurrentNodeID)
	}
}

func TestSQLiteStoreFindByNamePattern(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	save := func(id, name string, createdAt time.Time) {
		t.Helper()
		inst := &api.Instance{ID: id, DefinitionID: "def-1", Name: name, CreatedAt: createdAt, UpdatedAt: createdAt}
		if err := store.SaveInstance(ctx, inst); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	now := time.Now().UTC()
	save("wf-old", "location:abc", now.Add(-48*time.Hour))
	save("wf-1", "location:abc", now)
	save("wf-2", "location:def", now)
	save("wf-3", "feedback:abc", now)
	save("wf-4", "location_x", now) // literal underscore must not act as a wildcard

	found, err := store.FindByNamePattern(ctx, "location:*", now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("find: got %d instances, want 2", len(found))
	}

	found, err = store.FindByNamePattern(ctx, "location:ab?", now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("find with ?: %v", err)
	}
	if len(found) != 1 || found[0].ID != "wf-1" {
		t.Fatalf("find with ?: got %v", found)
	}

	// A pattern containing a literal underscore matches only itself.
	found, err = store.FindByNamePattern(ctx, "location_x", now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("find literal: %v", err)
	}
	if len(found) != 1 || found[0].ID != "wf-4" {
		t.Fatalf("find literal: got %v", found)
	}
}
