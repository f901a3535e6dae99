package sideeffect

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/earnzy/earnzy-push/internal/events"
	"github.com/earnzy/earnzy-push/internal/metrics"
	"github.com/earnzy/earnzy-push/internal/push"
)

const (
	TypeSignupBonus     = "SIGNUP_BONUS"
	TypeReferralSuccess = "REFERRAL_SUCCESS"
)

// Handler runs the extra work attached to a push type before the
// notification is presented.
type Handler interface {
	Handle(ctx context.Context, intent push.Intent) error
}

type HandlerFunc func(ctx context.Context, intent push.Intent) error

func (f HandlerFunc) Handle(ctx context.Context, intent push.Intent) error {
	return f(ctx, intent)
}

// Registry maps push type tags to handlers. Unknown tags are no-ops.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	logger   *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
		logger:   logger.Named("side_effects"),
	}
}

// NewDefaultRegistry registers the bonus handlers shipped with the app.
func NewDefaultRegistry(logger *zap.Logger, pub events.Publisher) *Registry {
	r := NewRegistry(logger)
	r.Register(TypeSignupBonus, NewBonusHandler(TypeSignupBonus, "Signup bonus received", logger, pub))
	r.Register(TypeReferralSuccess, NewBonusHandler(TypeReferralSuccess, "Referral success", logger, pub))
	return r
}

// Register adds or replaces the handler for tag.
func (r *Registry) Register(tag string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[tag] = h
}

func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}

// Dispatch runs the handler registered for the intent's type. It reports
// whether a handler ran; handler errors are logged and swallowed.
func (r *Registry) Dispatch(ctx context.Context, intent push.Intent) bool {
	if intent.Type == "" {
		return false
	}

	r.mu.RLock()
	h, ok := r.handlers[intent.Type]
	r.mu.RUnlock()
	if !ok {
		r.logger.Debug("No handler for push type", zap.String("type", intent.Type))
		return false
	}

	metrics.SideEffects.WithLabelValues(intent.Type).Inc()
	if err := h.Handle(ctx, intent); err != nil {
		r.logger.Error("Side effect failed",
			zap.String("type", intent.Type),
			zap.String("message_id", intent.MessageID),
			zap.Error(err))
	}
	return true
}

type bonusHandler struct {
	tag    string
	label  string
	logger *zap.Logger
	pub    events.Publisher
}

// NewBonusHandler logs the bonusAmount field and, when pub is set, emits a
// UI-update event.
func NewBonusHandler(tag, label string, logger *zap.Logger, pub events.Publisher) Handler {
	return &bonusHandler{
		tag:    tag,
		label:  label,
		logger: logger.Named("bonus"),
		pub:    pub,
	}
}

func (h *bonusHandler) Handle(ctx context.Context, intent push.Intent) error {
	amount := intent.Value(push.KeyBonusAmount)
	h.logger.Info(h.label,
		zap.String("type", h.tag),
		zap.String("bonus_amount", amount),
		zap.String("message_id", intent.MessageID))

	if h.pub != nil {
		h.pub.Publish(events.Event{
			Type:        h.tag,
			Title:       intent.Title,
			BonusAmount: amount,
		})
	}
	return nil
}
