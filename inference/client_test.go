package inference

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, url string, mutate ...func(*Config)) *Client {
	t.Helper()
	cfg := Config{
		Endpoint:         url,
		Model:            "test-model",
		ReadTimeout:      2 * time.Second,
		ProbeTimeout:     time.Second,
		TransientRetries: 0,
		TransientBackoff: time.Millisecond,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	c, err := NewClient(cfg)
	require.NoError(t, err)
	return c
}

func TestClient_Generate_Success(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != GeneratePath || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"model":"test-model","response":"## Summary\nHardcoded key","done":true}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	text, err := c.Generate(context.Background(), "describe the issue")
	require.NoError(t, err)
	require.Equal(t, "## Summary\nHardcoded key", text)

	require.Equal(t, "test-model", got.Model)
	require.Equal(t, "describe the issue", got.Prompt)
	require.False(t, got.Stream)
	require.Equal(t, DefaultMaxTokens, got.Options.NumPredict)
}

func TestClient_Generate_StatusMapping(t *testing.T) {
	cases := []struct {
		code int
		kind Kind
	}{
		{http.StatusTooManyRequests, KindRateLimited},
		{http.StatusServiceUnavailable, KindServiceUnavailable},
		{http.StatusInternalServerError, KindUnknownServer},
		{http.StatusNotFound, KindUnknownServer},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.code)
			_, _ = w.Write([]byte("nope"))
		}))
		c := newTestClient(t, srv.URL)
		_, err := c.Generate(context.Background(), "p")
		srv.Close()

		require.Error(t, err)
		require.Equal(t, tc.kind, KindOf(err), "status %d", tc.code)
		var ie *Error
		require.True(t, errors.As(err, &ie))
		require.Equal(t, tc.code, ie.StatusCode)
	}
}

func TestClient_Generate_EmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":"   ","done":true}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Generate(context.Background(), "p")
	require.ErrorIs(t, err, ErrEmptyResponse)
	require.False(t, IsRetryable(err))
}

func TestClient_Generate_ValidationWithoutNetwork(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"response":"x"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, func(cfg *Config) { cfg.MaxPromptLength = 16 })

	_, err := c.Generate(context.Background(), strings.Repeat("a", 17))
	require.ErrorIs(t, err, ErrValidation)

	_, err = c.Generate(context.Background(), "  \n\t")
	require.ErrorIs(t, err, ErrValidation)

	require.Zero(t, hits.Load(), "validation failures must not reach the backend")
}

func TestClient_Generate_CancelClosesConnection(t *testing.T) {
	released := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			close(released)
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, func(cfg *Config) { cfg.ReadTimeout = 10 * time.Second })
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	start := time.Now()
	_, err := c.Generate(ctx, "slow")
	require.ErrorIs(t, err, ErrCancelled)
	require.Less(t, time.Since(start), 2*time.Second)

	select {
	case <-released:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not observe the client disconnect")
	}
}

func TestClient_Generate_CancelledBeforeSend(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestClient(t, srv.URL).Generate(ctx, "p")
	require.ErrorIs(t, err, ErrCancelled)
	require.Zero(t, hits.Load())
}

func TestClient_Generate_ReadTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, func(cfg *Config) { cfg.ReadTimeout = 100 * time.Millisecond })
	_, err := c.Generate(context.Background(), "p")
	require.ErrorIs(t, err, ErrTimeout)
	require.True(t, IsRetryable(err))
}

func TestClient_Generate_ConnectionRefusedRetriesInternally(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	c := newTestClient(t, "http://"+addr, func(cfg *Config) {
		cfg.TransientRetries = 2
		cfg.TransientBackoff = 10 * time.Millisecond
	})
	start := time.Now()
	_, err = c.Generate(context.Background(), "p")
	require.ErrorIs(t, err, ErrConnection)
	require.True(t, IsRetryable(err))
	// two pauses of 10ms and 20ms between three attempts
	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestClient_Generate_RateLimitNotRetriedInternally(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, func(cfg *Config) { cfg.TransientRetries = 2 })
	_, err := c.Generate(context.Background(), "p")
	require.ErrorIs(t, err, ErrRateLimited)
	require.Equal(t, int32(1), hits.Load())
}

func TestClient_IsAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == TagsPath && r.Method == http.MethodGet {
			_, _ = w.Write([]byte(`{"models":[]}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	c := newTestClient(t, srv.URL)
	require.True(t, c.IsAvailable(context.Background()))

	srv.Close()
	require.False(t, c.IsAvailable(context.Background()))
}

func TestClient_IsAvailable_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	require.False(t, newTestClient(t, srv.URL).IsAvailable(context.Background()))
}

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClient(Config{Endpoint: "http://example.invalid/"})
	require.NoError(t, err)
	cfg := c.Config()
	require.Equal(t, "http://example.invalid", cfg.Endpoint)
	require.Equal(t, DefaultModel, cfg.Model)
	require.Equal(t, DefaultConnectTimeout, cfg.ConnectTimeout)
	require.Equal(t, DefaultReadTimeout, cfg.ReadTimeout)
	require.Equal(t, DefaultMaxPromptLength, cfg.MaxPromptLength)

	require.Zero(t, cfg.Temperature, "zero temperature is a valid setting")
	require.Zero(t, cfg.TransientRetries, "zero disables the internal retry loop")

	c, err = NewClient(DefaultConfig())
	require.NoError(t, err)
	require.Equal(t, DefaultTemperature, c.Config().Temperature)
	require.Equal(t, DefaultTransientRetries, c.Config().TransientRetries)

	_, err = NewClient(Config{Endpoint: "http://x", TransientRetries: -1})
	require.Error(t, err)
}
