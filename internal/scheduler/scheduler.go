package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type TrayStore interface {
	CountNotifications(ctx context.Context) (int, error)
	TrimNotifications(ctx context.Context, keep int) (int64, error)
}

// Scheduler periodically caps the tray at maxActive notifications, dropping
// the oldest ones first.
type Scheduler struct {
	store     TrayStore
	maxActive int
	interval  time.Duration
	logger    *zap.Logger

	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func New(store TrayStore, maxActive int, interval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		store:     store,
		maxActive: maxActive,
		interval:  interval,
		logger:    logger.Named("scheduler"),
		stopChan:  make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start is a no-op when sweeping is disabled by a non-positive cap or interval.
func (s *Scheduler) Start() {
	if s.maxActive <= 0 || s.interval <= 0 {
		s.logger.Info("Tray sweeping disabled", zap.Int("max_active", s.maxActive), zap.Duration("interval", s.interval))
		s.stopOnce.Do(func() { close(s.stopChan) })
		close(s.done)
		return
	}
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.Sweep(context.Background())
			case <-s.stopChan:
				return
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	<-s.done
}

// Sweep trims the tray once and returns how many notifications were removed.
func (s *Scheduler) Sweep(ctx context.Context) int64 {
	if s.maxActive <= 0 {
		return 0
	}

	count, err := s.store.CountNotifications(ctx)
	if err != nil {
		s.logger.Error("Error counting tray notifications", zap.Error(err))
		return 0
	}
	if count <= s.maxActive {
		return 0
	}

	removed, err := s.store.TrimNotifications(ctx, s.maxActive)
	if err != nil {
		s.logger.Error("Error trimming tray", zap.Error(err))
		return 0
	}

	s.logger.Info("Trimmed tray", zap.Int64("removed", removed), zap.Int("kept", s.maxActive))
	return removed
}
