package push

import (
	"time"
)

// Recognized keys of the data payload.
const (
	KeyTitle       = "title"
	KeyBody        = "body"
	KeyMessage     = "message"
	KeyImage       = "image"
	KeyType        = "type"
	KeyBonusAmount = "bonusAmount"
	KeyCollapseID  = "collapse_id"
)

// Message is an inbound push as delivered by the messaging transport.
// Either shape may be missing; both may be present.
type Message struct {
	ID         string    `json:"id,omitempty"`
	ReceivedAt time.Time `json:"received_at,omitempty"`

	// Structured notification payload
	Notification *Notification `json:"notification,omitempty"`

	// Free-form data payload
	Data map[string]string `json:"data,omitempty"`
}

type Notification struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	ImageURL string `json:"image,omitempty"`
}

// Intent is the canonical notification resolved from a Message.
type Intent struct {
	MessageID  string
	Title      string
	Body       string
	ImageURL   string
	Type       string
	CollapseID string

	// Data is the raw data payload, kept for side-effect handlers.
	Data map[string]string
}

// Presentable reports whether the intent carries both a title and a body.
func (i Intent) Presentable() bool {
	return i.Title != "" && i.Body != ""
}

// Value returns a data payload field, or "" when absent.
func (i Intent) Value(key string) string {
	if i.Data == nil {
		return ""
	}
	return i.Data[key]
}
