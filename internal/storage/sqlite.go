package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

type SQLStore struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewSQLStore(dataSourceName string, logger *zap.Logger) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}
	// A single writer avoids "database is locked" under concurrent delivery.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return nil, fmt.Errorf("could not create migration driver: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations/sqlite")
	if err != nil {
		return nil, fmt.Errorf("could not open migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return nil, fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return nil, fmt.Errorf("could not run database migrations: %w", err)
	}

	logger.Info("Database connection and migration successful", zap.String("driver", "sqlite"))
	return &SQLStore{db: db, logger: logger.Named("sqlite_store")}, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) CreateChannel(ctx context.Context, ch *Channel) (bool, error) {
	if ch.CreatedAt == "" {
		ch.CreatedAt = now()
	}

	query := `INSERT INTO channels(id, name, description, importance, created_at) VALUES(?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`
	result, err := s.db.ExecContext(ctx, query, ch.ID, ch.Name, ch.Description, ch.Importance, ch.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("error creating channel: %w", err)
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

func (s *SQLStore) GetChannel(ctx context.Context, id string) (*Channel, error) {
	query := "SELECT id, name, description, importance, created_at FROM channels WHERE id = ?"
	row := s.db.QueryRowContext(ctx, query, id)

	var ch Channel
	err := row.Scan(&ch.ID, &ch.Name, &ch.Description, &ch.Importance, &ch.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, Errors.NotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error getting channel: %w", err)
	}
	return &ch, nil
}

func (s *SQLStore) ListChannels(ctx context.Context) ([]Channel, error) {
	query := "SELECT id, name, description, importance, created_at FROM channels ORDER BY created_at"
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing channels: %w", err)
	}
	defer rows.Close()

	channels := []Channel{}
	for rows.Next() {
		var ch Channel
		if err := rows.Scan(&ch.ID, &ch.Name, &ch.Description, &ch.Importance, &ch.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning channel: %w", err)
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

func (s *SQLStore) PostNotification(ctx context.Context, n *Notification) error {
	if n.PostedAt == "" {
		n.PostedAt = now()
	}

	query := `INSERT INTO notifications(id, channel_id, message_id, type, title, body, style, summary,
			image_url, image_format, image_width, image_height, sound, priority, auto_cancel,
			tap_screen, tap_clear_top, posted_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			channel_id = excluded.channel_id, message_id = excluded.message_id, type = excluded.type,
			title = excluded.title, body = excluded.body, style = excluded.style, summary = excluded.summary,
			image_url = excluded.image_url, image_format = excluded.image_format,
			image_width = excluded.image_width, image_height = excluded.image_height,
			sound = excluded.sound, priority = excluded.priority, auto_cancel = excluded.auto_cancel,
			tap_screen = excluded.tap_screen, tap_clear_top = excluded.tap_clear_top,
			posted_at = excluded.posted_at`

	_, err := s.db.ExecContext(ctx, query, notificationArgs(n)...)
	if err != nil {
		return fmt.Errorf("error posting notification: %w", err)
	}
	return nil
}

func (s *SQLStore) ListNotifications(ctx context.Context, limit int) ([]Notification, error) {
	query := "SELECT " + notificationColumns + " FROM notifications ORDER BY posted_at DESC LIMIT ?"
	rows, err := s.db.QueryContext(ctx, query, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("error listing notifications: %w", err)
	}
	defer rows.Close()
	return scanNotifications(rows)
}

func (s *SQLStore) DeleteNotification(ctx context.Context, id int32) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM notifications WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("error deleting notification: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return Errors.NotFound
	}
	return nil
}

func (s *SQLStore) CountNotifications(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM notifications").Scan(&count); err != nil {
		return 0, fmt.Errorf("error counting notifications: %w", err)
	}
	return count, nil
}

func (s *SQLStore) MaxNotificationID(ctx context.Context) (int32, error) {
	var id int32
	err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(id), 0) FROM notifications WHERE id > 0").Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("error reading max notification id: %w", err)
	}
	return id, nil
}

func (s *SQLStore) TrimNotifications(ctx context.Context, keep int) (int64, error) {
	query := `DELETE FROM notifications WHERE id NOT IN (
		SELECT id FROM notifications ORDER BY posted_at DESC LIMIT ?)`
	result, err := s.db.ExecContext(ctx, query, keep)
	if err != nil {
		return 0, fmt.Errorf("error trimming notifications: %w", err)
	}
	return result.RowsAffected()
}

func (s *SQLStore) PutPreference(ctx context.Context, key, value string) error {
	query := `INSERT INTO preferences(key, value, updated_at) VALUES(?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, query, key, value, now()); err != nil {
		return fmt.Errorf("error saving preference %s: %w", key, err)
	}
	return nil
}

func (s *SQLStore) GetPreference(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM preferences WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", Errors.NotFound
	}
	if err != nil {
		return "", fmt.Errorf("error reading preference %s: %w", key, err)
	}
	return value, nil
}
