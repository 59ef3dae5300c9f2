// Package fetcher performs single HTTP retrievals of binary payloads with a
// size ceiling, truncation detection, and cooperative abort via context.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// DefaultMaxPayloadBytes is the largest payload accepted unless configured otherwise (20 MiB).
const DefaultMaxPayloadBytes int64 = 20 * 1024 * 1024

const defaultRetryDelay = 500 * time.Millisecond

var (
	// ErrTransport covers network failures and non-success HTTP statuses.
	ErrTransport = errors.New("transport failure")
	// ErrOversizedPayload is returned when the declared or observed length exceeds the ceiling.
	ErrOversizedPayload = errors.New("payload exceeds maximum size")
	// ErrTruncatedResponse is returned when fewer bytes arrive than were declared.
	ErrTruncatedResponse = errors.New("truncated response")
	// ErrCancelled is returned when the caller's context ended before the
	// fetch finished. The error also wraps ctx.Err(), so context.Canceled and
	// context.DeadlineExceeded can be told apart.
	ErrCancelled = errors.New("fetch cancelled")
)

// Config holds the fetcher settings.
type Config struct {
	MaxPayloadBytes int64
	UserAgent       string
	// Retries is the number of extra attempts made after a transport failure.
	// Size, truncation and cancellation failures are never retried.
	Retries    int
	RetryDelay time.Duration
}

// Fetcher retrieves payloads with an explicitly owned *http.Client.
type Fetcher struct {
	client *http.Client
	cfg    Config
	logger zerolog.Logger
}

// New creates a Fetcher. The client's lifecycle belongs to the caller.
func New(client *http.Client, cfg Config, logger zerolog.Logger) (*Fetcher, error) {
	if client == nil {
		return nil, errors.New("http client cannot be nil")
	}
	if cfg.MaxPayloadBytes <= 0 {
		cfg.MaxPayloadBytes = DefaultMaxPayloadBytes
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must not be negative, got %d", cfg.Retries)
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	return &Fetcher{
		client: client,
		cfg:    cfg,
		logger: logger.With().Str("component", "Fetcher").Logger(),
	}, nil
}

// MaxPayloadBytes returns the configured ceiling.
func (f *Fetcher) MaxPayloadBytes() int64 {
	return f.cfg.MaxPayloadBytes
}

// Fetch GETs url and returns the body. Cancelling ctx or reaching its
// deadline aborts the request mid-flight and yields ErrCancelled rather than
// ErrTransport.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= f.cfg.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(f.cfg.RetryDelay * time.Duration(attempt)):
			case <-ctx.Done():
				return nil, f.cancelled(ctx, url)
			}
			f.logger.Debug().Str("url", url).Int("attempt", attempt).Msg("Retrying fetch.")
		}

		data, err := f.fetchOnce(ctx, url)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, ErrTransport) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request for %s: %v", ErrTransport, url, err)
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, f.cancelled(ctx, url)
		}
		return nil, fmt.Errorf("%w: get %s: %v", ErrTransport, url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: get %s: unexpected status %d", ErrTransport, url, resp.StatusCode)
	}

	declared := resp.ContentLength
	if declared > f.cfg.MaxPayloadBytes {
		return nil, fmt.Errorf("%w: declared length %d exceeds %d", ErrOversizedPayload, declared, f.cfg.MaxPayloadBytes)
	}

	// Read one byte past the ceiling so an undeclared oversize body is detectable.
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxPayloadBytes+1))
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return nil, f.cancelled(ctx, url)
		case errors.Is(err, io.ErrUnexpectedEOF):
			return nil, fmt.Errorf("%w: read %d of %d bytes from %s", ErrTruncatedResponse, len(data), declared, url)
		default:
			return nil, fmt.Errorf("%w: read body of %s: %v", ErrTransport, url, err)
		}
	}
	if int64(len(data)) > f.cfg.MaxPayloadBytes {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrOversizedPayload, f.cfg.MaxPayloadBytes)
	}
	if declared >= 0 && int64(len(data)) < declared {
		return nil, fmt.Errorf("%w: read %d of %d bytes from %s", ErrTruncatedResponse, len(data), declared, url)
	}

	f.logger.Debug().Str("url", url).Int("bytes", len(data)).Msg("Fetched payload.")
	return data, nil
}

func (f *Fetcher) cancelled(ctx context.Context, url string) error {
	f.logger.Debug().Err(ctx.Err()).Str("url", url).Msg("Fetch aborted.")
	return fmt.Errorf("%w: %s: %w", ErrCancelled, url, ctx.Err())
}
