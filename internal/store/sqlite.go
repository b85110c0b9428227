package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/notify-agent/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// SavePendingAction inserts or replaces a queued action.
func (s *SQLiteStore) SavePendingAction(ctx context.Context, a model.PendingAction) error {
	var payload string
	if a.Notification != nil {
		data, err := json.Marshal(a.Notification)
		if err != nil {
			return fmt.Errorf("marshaling payload for action %s: %w", a.ID, err)
		}
		payload = string(data)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO pending_actions (id, type, data, payload, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		a.ID, string(a.Type), a.Data, payload, a.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving pending action %s: %w", a.ID, err)
	}
	return nil
}

// ListPendingActions returns every queued action in insertion order.
func (s *SQLiteStore) ListPendingActions(ctx context.Context) ([]model.PendingAction, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, type, data, payload, created_at
		FROM pending_actions ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing pending actions: %w", err)
	}
	defer rows.Close()

	var actions []model.PendingAction
	for rows.Next() {
		var a model.PendingAction
		var actionType, payload string
		var createdAt time.Time
		if err := rows.Scan(&a.ID, &actionType, &a.Data, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning pending action: %w", err)
		}
		a.Type = model.ActionType(actionType)
		a.CreatedAt = createdAt
		if payload != "" {
			var n model.Notification
			if err := json.Unmarshal([]byte(payload), &n); err != nil {
				return nil, fmt.Errorf("unmarshaling payload for action %s: %w", a.ID, err)
			}
			a.Notification = &n
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// DeletePendingAction removes a queued action by id. Unknown ids are
// not an error; replay may race a direct removal.
func (s *SQLiteStore) DeletePendingAction(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM pending_actions WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting pending action %s: %w", id, err)
	}
	return nil
}

// ReplaceSnapshot atomically swaps the stored notification list.
func (s *SQLiteStore) ReplaceSnapshot(ctx context.Context, notifications []model.Notification) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM notification_snapshot"); err != nil {
		return fmt.Errorf("clearing snapshot: %w", err)
	}

	const query = `
		INSERT INTO notification_snapshot (
			id, type, priority, title, message, read, action_url, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing snapshot statement: %w", err)
	}
	defer stmt.Close()

	for _, n := range notifications {
		metadata, err := json.Marshal(n.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling metadata for %s: %w", n.ID, err)
		}
		readInt := 0
		if n.Read {
			readInt = 1
		}
		_, err = stmt.ExecContext(ctx,
			n.ID, string(n.Type), string(n.Priority), n.Title, n.Message,
			readInt, n.ActionURL, string(metadata), n.Timestamp.UTC(),
		)
		if err != nil {
			return fmt.Errorf("inserting snapshot row %s: %w", n.ID, err)
		}
	}

	return tx.Commit()
}

// GetSnapshot returns the stored notification list, newest first.
func (s *SQLiteStore) GetSnapshot(ctx context.Context) ([]model.Notification, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, type, priority, title, message, read, action_url, metadata, created_at
		FROM notification_snapshot ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	defer rows.Close()

	var notifications []model.Notification
	for rows.Next() {
		var n model.Notification
		var nType, priority, metadata string
		var readInt int
		var createdAt time.Time
		err := rows.Scan(&n.ID, &nType, &priority, &n.Title, &n.Message,
			&readInt, &n.ActionURL, &metadata, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		n.Type = model.Type(nType)
		n.Priority = model.Priority(priority)
		n.Read = readInt != 0
		n.Timestamp = createdAt
		if metadata != "" && metadata != "{}" {
			if err := json.Unmarshal([]byte(metadata), &n.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshaling metadata for %s: %w", n.ID, err)
			}
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}
