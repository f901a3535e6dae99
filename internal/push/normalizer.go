package push

import (
	"fmt"
	"strings"
)

// Policy decides which payload shape wins when both are present.
//
// The two message services of the mobile app disagree here: one prefers the
// data payload, the other the structured notification. Which one is right is
// still an open product question, so the choice is configuration.
type Policy string

const (
	// PolicyDataFirst reads title/body/image from the data payload and fills
	// any empty field from the structured notification.
	PolicyDataFirst Policy = "data_first"

	// PolicyNotificationFirst takes title/body from the structured
	// notification whenever one is present, and only reads the data payload
	// when it is absent.
	PolicyNotificationFirst Policy = "notification_first"
)

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyDataFirst, PolicyNotificationFirst:
		return p, nil
	case "":
		return PolicyDataFirst, nil
	default:
		return "", fmt.Errorf("unknown precedence policy %q", s)
	}
}

type Normalizer struct {
	policy Policy
}

func NewNormalizer(policy Policy) *Normalizer {
	if policy == "" {
		policy = PolicyDataFirst
	}
	return &Normalizer{policy: policy}
}

func (n *Normalizer) Policy() Policy {
	return n.policy
}

// Normalize resolves msg into an Intent. Missing fields are left empty; the
// caller decides whether the result is presentable.
func (n *Normalizer) Normalize(msg *Message) Intent {
	if msg == nil {
		return Intent{}
	}

	intent := Intent{
		MessageID:  msg.ID,
		Type:       msg.Data[KeyType],
		CollapseID: msg.Data[KeyCollapseID],
		Data:       msg.Data,
	}

	switch n.policy {
	case PolicyNotificationFirst:
		if msg.Notification != nil {
			intent.Title = msg.Notification.Title
			intent.Body = msg.Notification.Body
		} else {
			intent.Title = msg.Data[KeyTitle]
			intent.Body = firstNonEmpty(msg.Data[KeyMessage], msg.Data[KeyBody])
		}
	default:
		intent.Title = msg.Data[KeyTitle]
		intent.Body = firstNonEmpty(msg.Data[KeyBody], msg.Data[KeyMessage])
		if msg.Notification != nil {
			if intent.Title == "" {
				intent.Title = msg.Notification.Title
			}
			if intent.Body == "" {
				intent.Body = msg.Notification.Body
			}
		}
	}

	intent.ImageURL = msg.Data[KeyImage]
	if intent.ImageURL == "" && msg.Notification != nil {
		intent.ImageURL = msg.Notification.ImageURL
	}

	return intent
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
