package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresStore(databaseURL string, logger *zap.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("could not create migration driver: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations/postgres")
	if err != nil {
		return nil, fmt.Errorf("could not open migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return nil, fmt.Errorf("could not run database migrations: %w", err)
	}

	logger.Info("Database connection and migration successful", zap.String("driver", "postgres"))
	return &PostgresStore{db: db, logger: logger.Named("postgres_store")}, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Channel operations

func (s *PostgresStore) CreateChannel(ctx context.Context, ch *Channel) (bool, error) {
	if ch.CreatedAt == "" {
		ch.CreatedAt = now()
	}

	query := `INSERT INTO channels(id, name, description, importance, created_at) VALUES($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`
	result, err := s.db.ExecContext(ctx, query, ch.ID, ch.Name, ch.Description, ch.Importance, ch.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("error creating channel: %w", err)
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

func (s *PostgresStore) GetChannel(ctx context.Context, id string) (*Channel, error) {
	query := `SELECT id, name, description, importance, created_at FROM channels WHERE id = $1`
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

func (s *PostgresStore) ListChannels(ctx context.Context) ([]Channel, error) {
	query := `SELECT id, name, description, importance, created_at FROM channels ORDER BY created_at`
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

// Tray operations

func (s *PostgresStore) PostNotification(ctx context.Context, n *Notification) error {
	if n.PostedAt == "" {
		n.PostedAt = now()
	}

	query := `INSERT INTO notifications(` + notificationColumns + `)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (id) DO UPDATE SET
			channel_id = EXCLUDED.channel_id, message_id = EXCLUDED.message_id, type = EXCLUDED.type,
			title = EXCLUDED.title, body = EXCLUDED.body, style = EXCLUDED.style, summary = EXCLUDED.summary,
			image_url = EXCLUDED.image_url, image_format = EXCLUDED.image_format,
			image_width = EXCLUDED.image_width, image_height = EXCLUDED.image_height,
			sound = EXCLUDED.sound, priority = EXCLUDED.priority, auto_cancel = EXCLUDED.auto_cancel,
			tap_screen = EXCLUDED.tap_screen, tap_clear_top = EXCLUDED.tap_clear_top,
			posted_at = EXCLUDED.posted_at`

	if _, err := s.db.ExecContext(ctx, query, notificationArgs(n)...); err != nil {
		return fmt.Errorf("error posting notification: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListNotifications(ctx context.Context, limit int) ([]Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications ORDER BY posted_at DESC LIMIT $1`
	rows, err := s.db.QueryContext(ctx, query, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("error listing notifications: %w", err)
	}
	defer rows.Close()
	return scanNotifications(rows)
}

func (s *PostgresStore) DeleteNotification(ctx context.Context, id int32) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("error deleting notification: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return Errors.NotFound
	}
	return nil
}

func (s *PostgresStore) CountNotifications(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications`).Scan(&count); err != nil {
		return 0, fmt.Errorf("error counting notifications: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) MaxNotificationID(ctx context.Context) (int32, error) {
	var id int32
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM notifications WHERE id > 0`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("error reading max notification id: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) TrimNotifications(ctx context.Context, keep int) (int64, error) {
	query := `DELETE FROM notifications WHERE id NOT IN (
		SELECT id FROM notifications ORDER BY posted_at DESC LIMIT $1)`
	result, err := s.db.ExecContext(ctx, query, keep)
	if err != nil {
		return 0, fmt.Errorf("error trimming notifications: %w", err)
	}
	return result.RowsAffected()
}

// Preference operations

func (s *PostgresStore) PutPreference(ctx context.Context, key, value string) error {
	query := `INSERT INTO preferences(key, value, updated_at) VALUES($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
	if _, err := s.db.ExecContext(ctx, query, key, value, now()); err != nil {
		return fmt.Errorf("error saving preference %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) GetPreference(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM preferences WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", Errors.NotFound
	}
	if err != nil {
		return "", fmt.Errorf("error reading preference %s: %w", key, err)
	}
	return value, nil
}
