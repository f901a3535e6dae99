package imagefetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	ErrUnsupportedScheme = errors.New("image url must use http or https")
	ErrTooLarge          = errors.New("image exceeds size limit")
)

// Bitmap is a decoded notification image.
type Bitmap struct {
	Format string
	Width  int
	Height int
	Data   []byte
}

// HTTPClient is the subset of *http.Client the fetcher needs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type Fetcher struct {
	client   HTTPClient
	timeout  time.Duration
	maxBytes int64
	logger   *zap.Logger
}

func NewFetcher(client HTTPClient, timeout time.Duration, maxBytes int64, logger *zap.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	if maxBytes <= 0 {
		maxBytes = 5 << 20
	}
	return &Fetcher{
		client:   client,
		timeout:  timeout,
		maxBytes: maxBytes,
		logger:   logger.Named("image_fetcher"),
	}
}

// Supported reports whether raw is an absolute http(s) URL. Anything else is
// never fetched.
func Supported(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// Timeout is the per-fetch deadline applied on top of ctx.
func (f *Fetcher) Timeout() time.Duration {
	return f.timeout
}

// Fetch downloads and decodes the image at raw. It blocks until the image is
// decoded, the timeout elapses or ctx is cancelled.
func (f *Fetcher) Fetch(ctx context.Context, raw string) (*Bitmap, error) {
	if !Supported(raw) {
		return nil, ErrUnsupportedScheme
	}

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSpace(raw), nil)
	if err != nil {
		return nil, fmt.Errorf("error creating image request: %w", err)
	}
	req.Header.Set("Accept", "image/*")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("image fetch failed: %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("error reading image body: %w", err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, ErrTooLarge
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("error decoding image: %w", err)
	}
	if _, _, err := image.Decode(bytes.NewReader(body)); err != nil {
		return nil, fmt.Errorf("error decoding image: %w", err)
	}

	f.logger.Debug("Fetched notification image",
		zap.String("url", raw),
		zap.String("format", format),
		zap.Int("bytes", len(body)),
		zap.Duration("duration", time.Since(start)))

	return &Bitmap{
		Format: format,
		Width:  cfg.Width,
		Height: cfg.Height,
		Data:   body,
	}, nil
}
