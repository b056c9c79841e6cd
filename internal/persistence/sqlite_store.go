package persistence

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/petrijr/actiflow/pkg/api"
)

// SQLiteStore implements DefinitionStore and InstanceStore on SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteStore struct {
	db *sql.DB
}

var _ DefinitionStore = (*SQLiteStore)(nil)

var _ InstanceStore = (*SQLiteStore)(nil)

// NewSQLiteStore initializes the required schema in the given database and
// returns a new SQLiteStore.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS definitions (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS instances (
			id TEXT PRIMARY KEY,
			definition_id TEXT NOT NULL,
			name TEXT NOT NULL,
			current_node TEXT,
			variables BLOB,
			version INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_instances_name ON instances(name, created_at);`,
	)
	return err
}

func (s *SQLiteStore) SaveDefinition(ctx context.Context, def *api.Definition) error {
	payload, err := encodeDefinition(def)
	if err != nil {
		return err
	}

	// Re-import with the same id replaces the definition wholesale.
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO definitions (id, name, created_at, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, payload = excluded.payload`,
		def.ID,
		def.Name,
		def.CreatedAt.UnixNano(),
		payload,
	)
	return err
}

func (s *SQLiteStore) GetDefinition(ctx context.Context, id string) (*api.Definition, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT payload FROM definitions WHERE id = ?`, id)

	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDefinitionNotFound
		}
		return nil, err
	}
	return decodeDefinition(payload)
}

func (s *SQLiteStore) SaveInstance(ctx context.Context, inst *api.Instance) error {
	vars, err := encodeVariables(inst.Variables)
	if err != nil {
		return err
	}

	var node sql.NullString
	if inst.CurrentNodeID != nil {
		node = sql.NullString{String: *inst.CurrentNodeID, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO instances (id, definition_id, name, current_node, variables, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		inst.ID,
		inst.DefinitionID,
		inst.Name,
		node,
		vars,
		inst.Version,
		inst.CreatedAt.UnixNano(),
		inst.UpdatedAt.UnixNano(),
	)
	return err
}

func (s *SQLiteStore) GetInstance(ctx context.Context, id string) (*api.Instance, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, definition_id, name, current_node, variables, version, created_at, updated_at
		FROM instances
		WHERE id = ?`,
		id,
	)
	inst, err := scanInstance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInstanceNotFound
		}
		return nil, err
	}
	return inst, nil
}

func (s *SQLiteStore) UpdateCurrentNode(ctx context.Context, id string, nodeID *string, version int64) (bool, error) {
	var node sql.NullString
	if nodeID != nil {
		node = sql.NullString{String: *nodeID, Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE instances
		SET current_node = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		node,
		time.Now().UTC().UnixNano(),
		id,
		version,
	)
	if err != nil {
		return false, err
	}
	return s.checkUpdated(ctx, res, id)
}

func (s *SQLiteStore) UpdateVariables(ctx context.Context, id string, vars map[string]string, version int64) (bool, error) {
	payload, err := encodeVariables(vars)
	if err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE instances
		SET variables = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		payload,
		time.Now().UTC().UnixNano(),
		id,
		version,
	)
	if err != nil {
		return false, err
	}
	return s.checkUpdated(ctx, res, id)
}

// checkUpdated distinguishes a stale version from a missing row when an
// optimistic update touched nothing.
func (s *SQLiteStore) checkUpdated(ctx context.Context, res sql.Result, id string) (bool, error) {
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected > 0 {
		return true, nil
	}

	var exists int
	row := s.db.QueryRowContext(ctx, `SELECT 1 FROM instances WHERE id = ?`, id)
	if err := row.Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrInstanceNotFound
		}
		return false, err
	}
	return false, ErrVersionConflict
}

func (s *SQLiteStore) FindByNamePattern(ctx context.Context, pattern string, since time.Time) ([]*api.Instance, error) {
	like := strings.NewReplacer("%", `\%`, "_", `\_`, "*", "%", "?", "_").Replace(pattern)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, definition_id, name, current_node, variables, version, created_at, updated_at
		FROM instances
		WHERE name LIKE ? ESCAPE '\' AND created_at >= ?`,
		like,
		since.UnixNano(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instances []*api.Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return instances, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstance(row rowScanner) (*api.Instance, error) {
	var inst api.Instance
	var node sql.NullString
	var vars []byte
	var createdAt, updatedAt int64

	if err := row.Scan(&inst.ID, &inst.DefinitionID, &inst.Name, &node, &vars, &inst.Version, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	if node.Valid {
		n := node.String
		inst.CurrentNodeID = &n
	}

	decoded, err := decodeVariables(vars)
	if err != nil {
		return nil, err
	}
	inst.Variables = decoded
	inst.CreatedAt = time.Unix(0, createdAt).UTC()
	inst.UpdatedAt = time.Unix(0, updatedAt).UTC()

	return &inst, nil
}
