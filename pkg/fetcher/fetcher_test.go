package fetcher_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/illmade-knight/go-graphicfetch/pkg/fetcher"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFetcher(t *testing.T, cfg fetcher.Config) *fetcher.Fetcher {
	t.Helper()
	f, err := fetcher.New(&http.Client{Timeout: 5 * time.Second}, cfg, zerolog.Nop())
	require.NoError(t, err)
	return f
}

func TestFetcher_Fetch(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		// Arrange
		gotUA := make(chan string, 1)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotUA <- r.UserAgent()
			_, _ = w.Write([]byte("GIF89a-payload"))
		}))
		t.Cleanup(server.Close)
		f := newFetcher(t, fetcher.Config{UserAgent: "graphicfetch-test"})

		// Act
		data, err := f.Fetch(ctx, server.URL)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, []byte("GIF89a-payload"), data)
		assert.Equal(t, "graphicfetch-test", <-gotUA)
	})

	t.Run("Declared length over the ceiling", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Length", "20")
			_, _ = w.Write([]byte(strings.Repeat("x", 20)))
		}))
		t.Cleanup(server.Close)
		f := newFetcher(t, fetcher.Config{MaxPayloadBytes: 10})

		_, err := f.Fetch(ctx, server.URL)

		require.Error(t, err)
		assert.ErrorIs(t, err, fetcher.ErrOversizedPayload)
	})

	t.Run("Undeclared body over the ceiling", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Flushing before writing forces chunked encoding with no Content-Length.
			w.(http.Flusher).Flush()
			_, _ = w.Write([]byte(strings.Repeat("x", 20)))
		}))
		t.Cleanup(server.Close)
		f := newFetcher(t, fetcher.Config{MaxPayloadBytes: 10})

		_, err := f.Fetch(ctx, server.URL)

		require.Error(t, err)
		assert.ErrorIs(t, err, fetcher.ErrOversizedPayload)
	})

	t.Run("Truncated body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			conn, buf, err := w.(http.Hijacker).Hijack()
			if err != nil {
				return
			}
			_, _ = buf.WriteString("HTTP/1.1 200 OK\r\nContent-Length: 100\r\n\r\n0123456789")
			_ = buf.Flush()
			_ = conn.Close()
		}))
		t.Cleanup(server.Close)
		f := newFetcher(t, fetcher.Config{})

		_, err := f.Fetch(ctx, server.URL)

		require.Error(t, err)
		assert.ErrorIs(t, err, fetcher.ErrTruncatedResponse)
	})

	t.Run("Non-success status is a transport failure", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		t.Cleanup(server.Close)
		f := newFetcher(t, fetcher.Config{})

		_, err := f.Fetch(ctx, server.URL)

		require.Error(t, err)
		assert.ErrorIs(t, err, fetcher.ErrTransport)
		assert.Contains(t, err.Error(), "404")
	})

	t.Run("Unreachable host is a transport failure", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		url := server.URL
		server.Close()
		f := newFetcher(t, fetcher.Config{})

		_, err := f.Fetch(ctx, url)

		require.Error(t, err)
		assert.ErrorIs(t, err, fetcher.ErrTransport)
	})

	t.Run("Abort surfaces as cancellation", func(t *testing.T) {
		// Arrange
		started := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			close(started)
			<-r.Context().Done()
		}))
		t.Cleanup(server.Close)
		f := newFetcher(t, fetcher.Config{})
		fetchCtx, cancel := context.WithCancel(ctx)

		// Act
		errs := make(chan error, 1)
		go func() {
			_, err := f.Fetch(fetchCtx, server.URL)
			errs <- err
		}()
		<-started
		cancel()

		// Assert
		select {
		case err := <-errs:
			require.Error(t, err)
			assert.ErrorIs(t, err, fetcher.ErrCancelled)
			assert.ErrorIs(t, err, context.Canceled)
			assert.NotErrorIs(t, err, fetcher.ErrTransport)
		case <-time.After(5 * time.Second):
			t.Fatal("fetch did not return after abort")
		}
	})

	t.Run("Deadline surfaces as cancellation with its cause", func(t *testing.T) {
		// Arrange
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		}))
		t.Cleanup(server.Close)
		f := newFetcher(t, fetcher.Config{Retries: 2})
		fetchCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()

		// Act
		_, err := f.Fetch(fetchCtx, server.URL)

		// Assert
		require.Error(t, err)
		assert.ErrorIs(t, err, fetcher.ErrCancelled)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.NotErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, fetcher.ErrTransport)
	})

	t.Run("Transport failures are retried", func(t *testing.T) {
		// Arrange
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			_, _ = w.Write([]byte("ok"))
		}))
		t.Cleanup(server.Close)
		f := newFetcher(t, fetcher.Config{Retries: 2, RetryDelay: time.Millisecond})

		// Act
		data, err := f.Fetch(ctx, server.URL)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, []byte("ok"), data)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("Size failures are not retried", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.Header().Set("Content-Length", fmt.Sprint(64))
			_, _ = w.Write(make([]byte, 64))
		}))
		t.Cleanup(server.Close)
		f := newFetcher(t, fetcher.Config{MaxPayloadBytes: 8, Retries: 3, RetryDelay: time.Millisecond})

		_, err := f.Fetch(ctx, server.URL)

		assert.ErrorIs(t, err, fetcher.ErrOversizedPayload)
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestNew_Validation(t *testing.T) {
	_, err := fetcher.New(nil, fetcher.Config{}, zerolog.Nop())
	assert.Error(t, err)

	_, err = fetcher.New(http.DefaultClient, fetcher.Config{Retries: -1}, zerolog.Nop())
	assert.Error(t, err)

	f, err := fetcher.New(http.DefaultClient, fetcher.Config{}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, fetcher.DefaultMaxPayloadBytes, f.MaxPayloadBytes())
}

func TestResolveURL(t *testing.T) {
	testCases := []struct {
		name string
		base string
		ref  string
		want string
	}{
		{name: "absolute stays", base: "https://forums.example.com/t/1", ref: "https://i.example.com/a.gif", want: "https://i.example.com/a.gif"},
		{name: "relative path", base: "https://forums.example.com/t/1", ref: "img/a.png", want: "https://forums.example.com/t/img/a.png"},
		{name: "root relative", base: "https://forums.example.com/t/1", ref: "/smilies/wave.gif", want: "https://forums.example.com/smilies/wave.gif"},
		{name: "spaces escaped", base: "", ref: "https://i.example.com/my pic.png", want: "https://i.example.com/my%20pic.png"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := fetcher.ResolveURL(tc.base, tc.ref)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := fetcher.ResolveURL("https://example.com", "  ")
	assert.Error(t, err)
}
