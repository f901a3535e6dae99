package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/earnzy/earnzy-push/internal/metrics"
	"github.com/earnzy/earnzy-push/internal/push"
	"github.com/earnzy/earnzy-push/internal/storage"
)

var ErrEmptyMessage = errors.New("message has neither notification nor data")

type Submitter interface {
	Submit(ctx context.Context, msg *push.Message) error
}

type TokenHandler interface {
	OnNewToken(ctx context.Context, token string) error
}

type PushService struct {
	store  storage.Store
	pool   Submitter
	tokens TokenHandler
}

func NewPushService(s storage.Store, pool Submitter, tokens TokenHandler) *PushService {
	return &PushService{store: s, pool: pool, tokens: tokens}
}

// Ingest stamps msg with an id and receive time and queues it for the
// pipeline. transport labels the source in metrics.
func (s *PushService) Ingest(ctx context.Context, transport string, msg *push.Message) (string, error) {
	if msg == nil || (msg.Notification == nil && len(msg.Data) == 0) {
		metrics.MessagesDropped.WithLabelValues("empty").Inc()
		return "", ErrEmptyMessage
	}

	msg.ID = uuid.New().String()
	msg.ReceivedAt = time.Now().UTC()

	if err := s.pool.Submit(ctx, msg); err != nil {
		metrics.MessagesDropped.WithLabelValues("queue").Inc()
		return "", err
	}

	metrics.MessagesReceived.WithLabelValues(transport).Inc()
	return msg.ID, nil
}

func (s *PushService) ListNotifications(ctx context.Context, limit int) ([]storage.Notification, error) {
	return s.store.ListNotifications(ctx, limit)
}

func (s *PushService) DismissNotification(ctx context.Context, id int32) error {
	return s.store.DeleteNotification(ctx, id)
}

func (s *PushService) ListChannels(ctx context.Context) ([]storage.Channel, error) {
	return s.store.ListChannels(ctx)
}

func (s *PushService) RefreshToken(ctx context.Context, token string) error {
	return s.tokens.OnNewToken(ctx, token)
}
