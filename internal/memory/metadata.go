package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// metadataDB is the SQLite artifact holding entry ids, texts and metadata in
// insertion order, plus the generation shared with the index file.
type metadataDB struct {
	db *sql.DB
}

func openMetadataDB(path string) (*metadataDB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	m := &metadataDB{db: db}
	if err := m.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := m.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return m, nil
}

func (m *metadataDB) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=FULL",
	}
	for _, p := range pragmas {
		if _, err := m.db.Exec(p); err != nil {
			return fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

func (m *metadataDB) Close() error {
	if m.db == nil {
		return nil
	}
	return m.db.Close()
}

func (m *metadataDB) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS entries (
			position INTEGER PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			text TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			user_input TEXT NOT NULL DEFAULT '',
			assistant_response TEXT NOT NULL DEFAULT '',
			context TEXT NOT NULL DEFAULT '',
			extra TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE TABLE IF NOT EXISTS store_state (
			key INTEGER PRIMARY KEY CHECK (key = 1),
			generation INTEGER NOT NULL
		)`,
		`INSERT OR IGNORE INTO store_state(key, generation) VALUES (1, 0)`,
	}

	for _, stmt := range stmts {
		if _, err := m.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// load returns every entry ordered by position and the stored generation.
func (m *metadataDB) load(ctx context.Context) ([]Entry, uint64, error) {
	var generation uint64
	if err := m.db.QueryRowContext(ctx, `SELECT generation FROM store_state WHERE key = 1`).Scan(&generation); err != nil {
		return nil, 0, fmt.Errorf("load generation: %w", err)
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT position, id, text, timestamp, user_input, assistant_response, context, extra
		FROM entries ORDER BY position ASC
	`)
	if err != nil {
		return nil, 0, fmt.Errorf("load entries: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, 0, err
	}
	return entries, generation, nil
}

func (m *metadataDB) append(ctx context.Context, entry Entry, generation uint64) error {
	extra, err := encodeExtra(entry.Metadata.Extra)
	if err != nil {
		return err
	}
	return m.withTx(ctx, generation, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO entries(position, id, text, timestamp, user_input, assistant_response, context, extra)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			entry.Position,
			entry.ID,
			entry.Text,
			entry.Metadata.Timestamp,
			entry.Metadata.UserInput,
			entry.Metadata.AssistantResponse,
			entry.Metadata.Context,
			extra,
		)
		if err != nil {
			return fmt.Errorf("insert entry: %w", err)
		}
		return nil
	})
}

// truncate removes every entry at or after position n.
func (m *metadataDB) truncate(ctx context.Context, n int, generation uint64) error {
	return m.withTx(ctx, generation, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE position >= ?`, n); err != nil {
			return fmt.Errorf("truncate entries: %w", err)
		}
		return nil
	})
}

func (m *metadataDB) setGeneration(ctx context.Context, generation uint64) error {
	return m.withTx(ctx, generation, func(*sql.Tx) error { return nil })
}

func (m *metadataDB) withTx(ctx context.Context, generation uint64, fn func(tx *sql.Tx) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE store_state SET generation = ? WHERE key = 1`, generation); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("update generation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	result := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		var extra string
		if err := rows.Scan(
			&e.Position,
			&e.ID,
			&e.Text,
			&e.Metadata.Timestamp,
			&e.Metadata.UserInput,
			&e.Metadata.AssistantResponse,
			&e.Metadata.Context,
			&extra,
		); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		if extra != "" && extra != "{}" {
			if err := json.Unmarshal([]byte(extra), &e.Metadata.Extra); err != nil {
				return nil, fmt.Errorf("decode entry %s extra: %w", e.ID, err)
			}
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return result, nil
}

func encodeExtra(extra map[string]string) (string, error) {
	if len(extra) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(extra)
	if err != nil {
		return "", fmt.Errorf("encode extra: %w", err)
	}
	return string(data), nil
}
