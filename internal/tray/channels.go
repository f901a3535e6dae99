package tray

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/earnzy/earnzy-push/internal/storage"
)

const ImportanceHigh = "high"

type ChannelStore interface {
	CreateChannel(ctx context.Context, ch *storage.Channel) (bool, error)
}

// ChannelRegistry creates channels on first use. Ensure returns only once
// the channel is registered, so a post that follows it always finds it.
type ChannelRegistry struct {
	store  ChannelStore
	logger *zap.Logger

	mu    sync.Mutex
	known map[string]struct{}
}

func NewChannelRegistry(store ChannelStore, logger *zap.Logger) *ChannelRegistry {
	return &ChannelRegistry{
		store:  store,
		logger: logger.Named("channels"),
		known:  make(map[string]struct{}),
	}
}

func (r *ChannelRegistry) Ensure(ctx context.Context, ch storage.Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.known[ch.ID]; ok {
		return nil
	}

	created, err := r.store.CreateChannel(ctx, &ch)
	if err != nil {
		return err
	}
	r.known[ch.ID] = struct{}{}

	if created {
		r.logger.Info("Notification channel created",
			zap.String("channel_id", ch.ID),
			zap.String("name", ch.Name),
			zap.String("importance", ch.Importance))
	}
	return nil
}
