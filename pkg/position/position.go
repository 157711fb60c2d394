// Package position persists replication progress per task name so a
// restarted task resumes where it left off instead of re-snapshotting.
// It is the generalization of the checkpoint table the migration
// runner keeps next to the table it's altering -- one row per task,
// kept in the destination database, overwritten on every save rather
// than a history of checkpoint rows (there is no "new table" to drop
// on success here, so there's nothing to clean up between runs).
package position

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/replibridge/replibridge/pkg/row"
)

// tableName is the single checkpoint table this module owns in the
// destination database, mirroring the migration runner's
// per-migration "_<table>_chkpnt" table but shared across tasks since
// a task replicates many tables at once.
const tableName = "_replibridge_checkpoints"

// Store persists and resumes the (Position, commit marker) for a
// named task. Implementations are safe for concurrent Save calls from
// a single task's own goroutines, but two tasks must not share a
// task name.
type Store interface {
	// EnsureTable creates the checkpoint table if it does not exist.
	EnsureTable(ctx context.Context) error
	// Load returns the last saved position for task, and ok=false if
	// none has ever been saved.
	Load(ctx context.Context, task string) (pos row.Position, ok bool, err error)
	// Save overwrites the saved position for task.
	Save(ctx context.Context, task string, pos row.Position) error
}

// SQLStore implements Store over any database/sql.DB speaking
// ANSI-ish SQL (both the MySQL and Postgres connections this module
// opens qualify); the placeholder func lets the same code serve both
// engines' placeholder styles.
type SQLStore struct {
	db              *sql.DB
	schema          string
	quoteIdent      func(string) string
	placeholder     func(i int) string
	upsertStatement string
}

// NewSQLStore builds a Store against schema.tableName, using
// quoteIdent/placeholder from the caller's engine.Capability so this
// package never imports pkg/engine directly (avoiding an import
// cycle, since engine has no dependency on position).
func NewSQLStore(db *sql.DB, schema string, quoteIdent func(string) string, placeholder func(i int) string) *SQLStore {
	return &SQLStore{db: db, schema: schema, quoteIdent: quoteIdent, placeholder: placeholder}
}

func (s *SQLStore) qualified() string {
	return s.quoteIdent(s.schema) + "." + s.quoteIdent(tableName)
}

func (s *SQLStore) EnsureTable(ctx context.Context) error {
	query := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (task_name VARCHAR(255) PRIMARY KEY, engine VARCHAR(32) NOT NULL, token TEXT NOT NULL)",
		s.qualified(),
	)
	_, err := s.db.ExecContext(ctx, query)
	return err
}

func (s *SQLStore) Load(ctx context.Context, task string) (row.Position, bool, error) {
	query := fmt.Sprintf("SELECT engine, token FROM %s WHERE task_name = %s", s.qualified(), s.placeholder(1))
	var engineName, token string
	err := s.db.QueryRowContext(ctx, query, task).Scan(&engineName, &token)
	if err == sql.ErrNoRows {
		return row.Position{}, false, nil
	}
	if err != nil {
		return row.Position{}, false, fmt.Errorf("position: load %q: %w", task, err)
	}
	pos, err := row.ParsePosition(engineName + ":" + token)
	if err != nil {
		return row.Position{}, false, err
	}
	return pos, true, nil
}

// Save upserts the task's row. MySQL and Postgres spell "upsert"
// differently, so this package builds its own two-clause SQL rather
// than pulling in pkg/querybuilder (a single three-column upsert
// isn't worth a Capability round-trip).
func (s *SQLStore) Save(ctx context.Context, task string, pos row.Position) error {
	p1, p2, p3 := s.placeholder(1), s.placeholder(2), s.placeholder(3)
	var query string
	if s.isPostgres() {
		query = fmt.Sprintf(
			"INSERT INTO %s (task_name, engine, token) VALUES (%s, %s, %s) ON CONFLICT (task_name) DO UPDATE SET engine = EXCLUDED.engine, token = EXCLUDED.token",
			s.qualified(), p1, p2, p3,
		)
	} else {
		query = fmt.Sprintf(
			"INSERT INTO %s (task_name, engine, token) VALUES (%s, %s, %s) ON DUPLICATE KEY UPDATE engine = VALUES(engine), token = VALUES(token)",
			s.qualified(), p1, p2, p3,
		)
	}
	_, err := s.db.ExecContext(ctx, query, task, pos.Engine.String(), pos.Token)
	if err != nil {
		return fmt.Errorf("position: save %q: %w", task, err)
	}
	return nil
}

// isPostgres distinguishes the two upsert dialects by placeholder
// style rather than taking an explicit engine.Capability, keeping
// this package import-cycle-free.
func (s *SQLStore) isPostgres() bool {
	return s.placeholder(1) == "$1"
}
