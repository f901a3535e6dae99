package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/earnzy/earnzy-push/internal/imagefetch"
	"github.com/earnzy/earnzy-push/internal/metrics"
	"github.com/earnzy/earnzy-push/internal/push"
	"github.com/earnzy/earnzy-push/internal/storage"
)

// Outcome of handling one message.
type Outcome string

const (
	OutcomePosted  Outcome = "posted"
	OutcomeDropped Outcome = "dropped"
	OutcomeFailed  Outcome = "failed"
)

type Result struct {
	Outcome      Outcome
	Intent       push.Intent
	Notification *storage.Notification
	SideEffect   bool
}

type ImageFetcher interface {
	Fetch(ctx context.Context, url string) (*imagefetch.Bitmap, error)
}

type SideEffects interface {
	Dispatch(ctx context.Context, intent push.Intent) bool
}

type Presenter interface {
	Present(ctx context.Context, intent push.Intent, bmp *imagefetch.Bitmap) (*storage.Notification, error)
}

// NotificationPipeline turns one push message into at most one notification.
// It holds no per-message state and is safe for concurrent use.
type NotificationPipeline struct {
	normalizer   *push.Normalizer
	sideEffects  SideEffects
	fetcher      ImageFetcher
	presenter    Presenter
	fetchTimeout time.Duration
	logger       *zap.Logger
}

func NewNotificationPipeline(normalizer *push.Normalizer, sideEffects SideEffects, fetcher ImageFetcher, presenter Presenter, fetchTimeout time.Duration, logger *zap.Logger) *NotificationPipeline {
	return &NotificationPipeline{
		normalizer:   normalizer,
		sideEffects:  sideEffects,
		fetcher:      fetcher,
		presenter:    presenter,
		fetchTimeout: fetchTimeout,
		logger:       logger.Named("pipeline"),
	}
}

func (p *NotificationPipeline) Handle(ctx context.Context, msg *push.Message) Result {
	intent := p.normalizer.Normalize(msg)
	log := p.logger.With(zap.String("message_id", intent.MessageID))

	if !intent.Presentable() {
		log.Warn("Invalid notification payload, dropping",
			zap.String("title", intent.Title),
			zap.String("body", intent.Body),
			zap.String("policy", string(p.normalizer.Policy())))
		metrics.MessagesDropped.WithLabelValues("invalid_payload").Inc()
		ran := p.sideEffects.Dispatch(ctx, intent)
		return Result{Outcome: OutcomeDropped, Intent: intent, SideEffect: ran}
	}

	// The image is fetched while side effects run; its deadline is bounded
	// and derived from this message's context.
	images := p.startFetch(ctx, intent.ImageURL)

	ran := p.sideEffects.Dispatch(ctx, intent)

	var bmp *imagefetch.Bitmap
	if images != nil {
		bmp = <-images
	}

	n, err := p.presenter.Present(ctx, intent, bmp)
	if err != nil {
		log.Error("Error presenting notification", zap.Error(err))
		metrics.MessagesDropped.WithLabelValues("present_failed").Inc()
		return Result{Outcome: OutcomeFailed, Intent: intent, SideEffect: ran}
	}

	metrics.NotificationsPosted.WithLabelValues(n.Style).Inc()
	return Result{Outcome: OutcomePosted, Intent: intent, Notification: n, SideEffect: ran}
}

// startFetch returns nil when there is nothing worth fetching. Otherwise the
// returned channel yields exactly one value, nil on any failure.
func (p *NotificationPipeline) startFetch(ctx context.Context, url string) <-chan *imagefetch.Bitmap {
	if url == "" {
		return nil
	}
	if !imagefetch.Supported(url) {
		p.logger.Debug("Skipping image with unsupported scheme", zap.String("url", url))
		metrics.ImageFetches.WithLabelValues("skipped").Inc()
		return nil
	}

	out := make(chan *imagefetch.Bitmap, 1)
	fetchCtx, cancel := context.WithTimeout(ctx, p.fetchTimeout)

	go func() {
		defer cancel()
		bmp, err := p.fetcher.Fetch(fetchCtx, url)
		if err != nil {
			result := "failed"
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				result = "timeout"
			}
			p.logger.Warn("Failed to get notification image, showing text only",
				zap.String("url", url),
				zap.Error(err))
			metrics.ImageFetches.WithLabelValues(result).Inc()
			out <- nil
			return
		}
		metrics.ImageFetches.WithLabelValues("ok").Inc()
		out <- bmp
	}()

	// Guard against a fetcher that ignores its context.
	guarded := make(chan *imagefetch.Bitmap, 1)
	go func() {
		select {
		case bmp := <-out:
			guarded <- bmp
		case <-fetchCtx.Done():
			select {
			case bmp := <-out:
				guarded <- bmp
			default:
				guarded <- nil
			}
		}
	}()
	return guarded
}
