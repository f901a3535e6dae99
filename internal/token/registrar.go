package token

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// httpRegistrar posts the token to the backend device-registration endpoint.
type httpRegistrar struct {
	client HTTPClient
	url    string
	secret  []byte
	timeout time.Duration
	logger  *zap.Logger
}

// NewHTTPRegistrar returns a stub that only logs when baseURL is empty.
// Each registration attempt is bounded by timeout.
func NewHTTPRegistrar(client HTTPClient, baseURL, interServiceSecret string, timeout time.Duration, logger *zap.Logger) Registrar {
	if baseURL == "" {
		logger.Warn("REGISTRATION_URL not set, tokens are stored locally only")
		return &stubRegistrar{logger: logger.Named("stub_registrar")}
	}
	if interServiceSecret == "" {
		logger.Warn("INTER_SERVICE_SECRET not set, token registration requests are unsigned")
	}
	return &httpRegistrar{
		client:  client,
		url:     strings.TrimRight(baseURL, "/") + "/api/devices/token",
		secret:  []byte(interServiceSecret),
		timeout: timeout,
		logger:  logger.Named("http_registrar"),
	}
}

func (r *httpRegistrar) Name() string {
	return "backend"
}

func (r *httpRegistrar) Register(ctx context.Context, token string) error {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	body, err := json.Marshal(map[string]string{
		"token":    token,
		"platform": "android",
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("error creating registration request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if len(r.secret) > 0 {
		signed, err := r.sign()
		if err != nil {
			return fmt.Errorf("error signing registration request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+signed)
	}

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("error sending registration request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("token registration failed: %s", resp.Status)
	}

	r.logger.Info("Token registered with backend", zap.Duration("duration", time.Since(start)))
	return nil
}

func (r *httpRegistrar) sign() (string, error) {
	now := time.Now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": "earnzy-push",
		"iat": now.Unix(),
		"exp": now.Add(5 * time.Minute).Unix(),
	})
	return t.SignedString(r.secret)
}

type stubRegistrar struct {
	logger *zap.Logger
}

func (s *stubRegistrar) Name() string {
	return "stub"
}

func (s *stubRegistrar) Register(ctx context.Context, token string) error {
	s.logger.Debug("Skipping backend token registration")
	return nil
}
