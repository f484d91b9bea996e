// Package database provides SQLite persistence for notebooks.
package database

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// PersistedNotebook represents one notebook snapshot stored in the database,
// keyed by notebook ID with the revision the snapshot was taken at.
type PersistedNotebook struct {
	ID       string
	Revision uint32
	Notebook []byte // JSON-encoded notebook.Notebook
}

// Database wraps a SQLite connection.
type Database struct {
	db *sql.DB
}

// New creates a new database connection and runs migrations.
func New(uri string) (*Database, error) {
	db, err := sql.Open("sqlite3", uri)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Run migrations
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &Database{db: db}, nil
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// LoadNotebook retrieves a notebook snapshot from the database.
func (d *Database) LoadNotebook(id string) (*PersistedNotebook, error) {
	var nb PersistedNotebook

	err := d.db.QueryRow(
		"SELECT notebook_id, revision, notebook_json FROM notebook WHERE notebook_id = ?",
		id,
	).Scan(&nb.ID, &nb.Revision, &nb.Notebook)

	if err == sql.ErrNoRows {
		return nil, nil // Notebook doesn't exist
	}
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	return &nb, nil
}

// StoreNotebook saves a notebook snapshot to the database (INSERT or UPDATE).
func (d *Database) StoreNotebook(nb *PersistedNotebook) error {
	query := `
	INSERT INTO notebook (notebook_id, revision, notebook_json)
	VALUES (?, ?, ?)
	ON CONFLICT(notebook_id) DO UPDATE SET
		revision = excluded.revision,
		notebook_json = excluded.notebook_json
	`

	result, err := d.db.Exec(query, nb.ID, nb.Revision, nb.Notebook)
	if err != nil {
		return fmt.Errorf("exec: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if rows != 1 {
		return fmt.Errorf("expected 1 row affected, got %d", rows)
	}

	return nil
}

// AppendOperation records one accepted operation in the durable operation
// log, independent of the periodic snapshot. The log lets a future session
// reconstruct intermediate revisions even if the last snapshot predates them,
// though the current persister relies on snapshots alone.
func (d *Database) AppendOperation(notebookID string, revision uint32, userID uint64, operationJSON []byte) error {
	_, err := d.db.Exec(
		"INSERT INTO notebook_operation (notebook_id, revision, user_id, operation_json) VALUES (?, ?, ?, ?)",
		notebookID, revision, userID, operationJSON,
	)
	if err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	return nil
}

// LoadOperationsSince returns every logged operation for notebookID with
// revision strictly greater than afterRevision, in ascending order.
func (d *Database) LoadOperationsSince(notebookID string, afterRevision uint32) ([]PersistedOperation, error) {
	rows, err := d.db.Query(
		"SELECT revision, user_id, operation_json FROM notebook_operation WHERE notebook_id = ? AND revision > ? ORDER BY revision ASC",
		notebookID, afterRevision,
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var ops []PersistedOperation
	for rows.Next() {
		var op PersistedOperation
		if err := rows.Scan(&op.Revision, &op.UserID, &op.OperationJSON); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// PersistedOperation is one row of the durable operation log.
type PersistedOperation struct {
	Revision      uint32
	UserID        uint64
	OperationJSON []byte
}

// Count returns the total number of notebooks in the database.
func (d *Database) Count() (int, error) {
	var count int
	err := d.db.QueryRow("SELECT COUNT(*) FROM notebook").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return count, nil
}

// Delete removes a notebook and its operation log from the database.
func (d *Database) Delete(id string) error {
	if _, err := d.db.Exec("DELETE FROM notebook_operation WHERE notebook_id = ?", id); err != nil {
		return fmt.Errorf("delete operations: %w", err)
	}
	if _, err := d.db.Exec("DELETE FROM notebook WHERE notebook_id = ?", id); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}
