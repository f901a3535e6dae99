package storage

import (
	"context"
	"embed"
	"errors"
	"time"
)

//go:embed migrations
var migrationsFS embed.FS

// TimeLayout is fixed width so stored timestamps sort lexically.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

var Errors = struct {
	NotFound      error
	AlreadyExists error
}{
	NotFound:      errors.New("not found"),
	AlreadyExists: errors.New("already exists"),
}

// Channel is a notification category registered once and reused.
type Channel struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Importance  string `json:"importance"`
	CreatedAt   string `json:"created_at"`
}

// Notification is a posted entry of the tray. Posting with an existing ID
// replaces the previous entry.
type Notification struct {
	ID          int32  `json:"id"`
	ChannelID   string `json:"channel_id"`
	MessageID   string `json:"message_id,omitempty"`
	Type        string `json:"type,omitempty"`
	Title       string `json:"title"`
	Body        string `json:"body"`
	Style       string `json:"style"`
	Summary     string `json:"summary,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	ImageFormat string `json:"image_format,omitempty"`
	ImageWidth  int    `json:"image_width,omitempty"`
	ImageHeight int    `json:"image_height,omitempty"`
	Sound       string `json:"sound"`
	Priority    string `json:"priority"`
	AutoCancel  bool   `json:"auto_cancel"`
	TapScreen   string `json:"tap_screen"`
	TapClearTop bool   `json:"tap_clear_top"`
	PostedAt    string `json:"posted_at"`
}

type Store interface {
	// CreateChannel registers ch unless a channel with the same ID exists.
	// It reports whether a new row was written.
	CreateChannel(ctx context.Context, ch *Channel) (bool, error)
	GetChannel(ctx context.Context, id string) (*Channel, error)
	ListChannels(ctx context.Context) ([]Channel, error)

	PostNotification(ctx context.Context, n *Notification) error
	ListNotifications(ctx context.Context, limit int) ([]Notification, error)
	DeleteNotification(ctx context.Context, id int32) error
	CountNotifications(ctx context.Context) (int, error)
	// MaxNotificationID returns the largest counter id in the tray, or 0.
	// Collapse ids are negative and ignored.
	MaxNotificationID(ctx context.Context) (int32, error)
	// TrimNotifications keeps the newest keep notifications and removes the rest.
	TrimNotifications(ctx context.Context, keep int) (int64, error)

	PutPreference(ctx context.Context, key, value string) error
	GetPreference(ctx context.Context, key string) (string, error)

	Close() error
}

func now() string {
	return time.Now().UTC().Format(TimeLayout)
}
