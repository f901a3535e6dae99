package storage

import (
	"database/sql"
	"fmt"
	"math"
)

const notificationColumns = `id, channel_id, message_id, type, title, body, style, summary,
	image_url, image_format, image_width, image_height, sound, priority, auto_cancel,
	tap_screen, tap_clear_top, posted_at`

func notificationArgs(n *Notification) []any {
	return []any{
		n.ID, n.ChannelID, n.MessageID, n.Type, n.Title, n.Body, n.Style, n.Summary,
		n.ImageURL, n.ImageFormat, n.ImageWidth, n.ImageHeight, n.Sound, n.Priority, n.AutoCancel,
		n.TapScreen, n.TapClearTop, n.PostedAt,
	}
}

func scanNotifications(rows *sql.Rows) ([]Notification, error) {
	notifications := []Notification{}
	for rows.Next() {
		var n Notification
		err := rows.Scan(&n.ID, &n.ChannelID, &n.MessageID, &n.Type, &n.Title, &n.Body, &n.Style, &n.Summary,
			&n.ImageURL, &n.ImageFormat, &n.ImageWidth, &n.ImageHeight, &n.Sound, &n.Priority, &n.AutoCancel,
			&n.TapScreen, &n.TapClearTop, &n.PostedAt)
		if err != nil {
			return nil, fmt.Errorf("error scanning notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

func limitOrAll(limit int) int {
	if limit <= 0 {
		return math.MaxInt32
	}
	return limit
}
