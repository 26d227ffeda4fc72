package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/backdesk/backdesk/internal/model"
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

// UpsertNotifications inserts or replaces a batch of notifications.
// The server-assigned id is the primary key, so re-mirroring a
// notification after reconnect or refetch is idempotent.
func (s *SQLiteStore) UpsertNotifications(
	ctx context.Context,
	notifications []model.Notification,
) error {
	if len(notifications) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT OR REPLACE INTO notifications (
			id, type, title, message, data, priority, read, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing upsert statement: %w", err)
	}
	defer stmt.Close()

	for _, n := range notifications {
		data, err := json.Marshal(n.Data)
		if err != nil {
			return fmt.Errorf("marshaling data for notification %d: %w", n.ID, err)
		}

		_, err = stmt.ExecContext(ctx,
			n.ID, string(n.Type), n.Title, n.Message,
			string(data), string(n.Priority), boolToInt(n.Read),
			n.CreatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("upserting notification %d: %w", n.ID, err)
		}
	}

	return tx.Commit()
}

// GetNotifications retrieves the most recent notifications, newest
// first with ties broken by descending id. A limit of zero or less
// means no limit.
func (s *SQLiteStore) GetNotifications(
	ctx context.Context,
	limit int,
) ([]model.Notification, error) {
	query := "SELECT * FROM notifications ORDER BY created_at DESC, id DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}
	defer rows.Close()

	var notifications []model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}

	return notifications, rows.Err()
}

// MarkNotificationRead sets the read flag of a single notification.
func (s *SQLiteStore) MarkNotificationRead(
	ctx context.Context,
	id int64,
	read bool,
) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET read = ? WHERE id = ?", boolToInt(read), id,
	)
	if err != nil {
		return fmt.Errorf("marking notification %d: %w", id, err)
	}
	return nil
}

// MarkAllNotificationsRead flags every mirrored notification as read.
func (s *SQLiteStore) MarkAllNotificationsRead(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "UPDATE notifications SET read = 1 WHERE read = 0")
	if err != nil {
		return fmt.Errorf("marking all notifications read: %w", err)
	}
	return nil
}

// SavePushSubscription upserts the device's push registration, keyed
// by endpoint.
func (s *SQLiteStore) SavePushSubscription(
	ctx context.Context,
	sub model.PushSubscription,
) error {
	createdAt := sub.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO push_subscriptions (
			endpoint, p256dh_key, auth_key, device_name, user_agent, created_at
		) VALUES (?, ?, ?, ?, ?, ?)`,
		sub.Endpoint, sub.P256DHKey, sub.AuthKey,
		sub.DeviceName, sub.UserAgent, createdAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving push subscription: %w", err)
	}

	return nil
}

// GetPushSubscription returns the device's current registration, or
// nil when the device has never subscribed. At most one row exists at
// a time; resubscribing replaces it.
func (s *SQLiteStore) GetPushSubscription(
	ctx context.Context,
) (*model.PushSubscription, error) {
	row := s.db.QueryRowxContext(ctx,
		"SELECT * FROM push_subscriptions ORDER BY created_at DESC LIMIT 1",
	)

	var (
		sub       model.PushSubscription
		createdAt time.Time
	)
	err := row.Scan(
		&sub.Endpoint, &sub.P256DHKey, &sub.AuthKey,
		&sub.DeviceName, &sub.UserAgent, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting push subscription: %w", err)
	}

	sub.CreatedAt = createdAt
	return &sub, nil
}

// DeletePushSubscription removes the registration for an endpoint.
func (s *SQLiteStore) DeletePushSubscription(
	ctx context.Context,
	endpoint string,
) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM push_subscriptions WHERE endpoint = ?", endpoint,
	)
	if err != nil {
		return fmt.Errorf("deleting push subscription: %w", err)
	}
	return nil
}

// SavePreferences stores the last-known preference record as a single
// JSON row, replacing any prior record.
func (s *SQLiteStore) SavePreferences(
	ctx context.Context,
	prefs model.Preferences,
) error {
	record, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("marshaling preferences: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO preferences (id, record, updated_at)
		VALUES (1, ?, ?)`,
		string(record), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving preferences: %w", err)
	}

	return nil
}

// GetPreferences returns the last-known preference record, or nil when
// none has been stored yet.
func (s *SQLiteStore) GetPreferences(
	ctx context.Context,
) (*model.Preferences, error) {
	var record string
	err := s.db.GetContext(ctx, &record, "SELECT record FROM preferences WHERE id = 1")
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting preferences: %w", err)
	}

	var prefs model.Preferences
	if err := json.Unmarshal([]byte(record), &prefs); err != nil {
		return nil, fmt.Errorf("unmarshaling preferences: %w", err)
	}

	return &prefs, nil
}

// scanNotification scans a notification row from a sqlx.Rows result set.
func scanNotification(rows *sqlx.Rows) (model.Notification, error) {
	var (
		n         model.Notification
		notifType string
		data      string
		priority  string
		readInt   int
		createdAt time.Time
	)

	err := rows.Scan(
		&n.ID, &notifType, &n.Title, &n.Message,
		&data, &priority, &readInt, &createdAt,
	)
	if err != nil {
		return model.Notification{}, fmt.Errorf("scanning notification row: %w", err)
	}

	n.Type = model.NotificationType(notifType)
	n.Priority = model.Priority(priority)
	n.Read = readInt != 0
	n.CreatedAt = createdAt

	if data != "" && data != "{}" {
		if err := json.Unmarshal([]byte(data), &n.Data); err != nil {
			return model.Notification{}, fmt.Errorf("unmarshaling notification data: %w", err)
		}
	}

	return n, nil
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
