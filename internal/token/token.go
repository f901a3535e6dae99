package token

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/earnzy/earnzy-push/internal/metrics"
)

// PreferenceKey is where the latest registration token is kept.
const PreferenceKey = "fcm_token"

var (
	ErrEmptyToken    = errors.New("token is required")
	ErrForwardFailed = errors.New("token forwarding failed")
)

type PreferenceStore interface {
	PutPreference(ctx context.Context, key, value string) error
	GetPreference(ctx context.Context, key string) (string, error)
}

// Registrar forwards a registration token somewhere outside the device.
type Registrar interface {
	Name() string
	Register(ctx context.Context, token string) error
}

type Service struct {
	store      PreferenceStore
	registrars []Registrar
	logger     *zap.Logger
}

func NewService(store PreferenceStore, logger *zap.Logger, registrars ...Registrar) *Service {
	return &Service{
		store:      store,
		registrars: registrars,
		logger:     logger.Named("token"),
	}
}

// OnNewToken runs whenever the messaging runtime issues or rotates the
// registration token. The token is stored locally first; forwarding errors
// from every registrar are joined and returned.
func (s *Service) OnNewToken(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		metrics.TokenRefreshes.WithLabelValues("rejected").Inc()
		return ErrEmptyToken
	}

	s.logger.Debug("Refreshed token", zap.Int("length", len(token)))

	if err := s.store.PutPreference(ctx, PreferenceKey, token); err != nil {
		metrics.TokenRefreshes.WithLabelValues("store_failed").Inc()
		return fmt.Errorf("error saving token: %w", err)
	}

	var errs []error
	for _, r := range s.registrars {
		if err := r.Register(ctx, token); err != nil {
			s.logger.Error("Error forwarding token", zap.String("registrar", r.Name()), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", r.Name(), err))
		}
	}

	if len(errs) > 0 {
		metrics.TokenRefreshes.WithLabelValues("forward_failed").Inc()
		return fmt.Errorf("%w: %w", ErrForwardFailed, errors.Join(errs...))
	}

	metrics.TokenRefreshes.WithLabelValues("ok").Inc()
	return nil
}

func (s *Service) Current(ctx context.Context) (string, error) {
	return s.store.GetPreference(ctx, PreferenceKey)
}
