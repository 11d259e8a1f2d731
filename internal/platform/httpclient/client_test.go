package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storekeeper/internal/platform/logger"
)

// instant убирает реальное ожидание между попытками.
func instant(c *Client) {
	c.after = func(time.Duration) <-chan time.Time {
		ch := make(chan time.Time, 1)
		ch <- time.Now()
		return ch
	}
}

func post(t *testing.T, c *Client, target, body string) (*http.Response, error) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, target, io.NopCloser(strings.NewReader(body)))
	require.NoError(t, err)
	return c.Do(req)
}

func TestClient_RetriesAndReplaysBody(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		assert.Equal(t, "chat_id=1", string(data), "тело должно повторяться в каждой попытке")
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(WithLogger(logger.Discard()), WithRetries(2, time.Millisecond), instant)
	resp, err := post(t, c, srv.URL+"/bot1:abc/sendMessage", "chat_id=1")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestClient_RetriesExhausted(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(WithLogger(logger.Discard()), WithRetries(1, time.Millisecond), instant)
	_, err := post(t, c, srv.URL+"/bot1:abc/sendMessage", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 502")
	assert.NotContains(t, err.Error(), "1:abc")
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
}

func TestClient_ClientErrorsAreNotRetried(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(WithLogger(logger.Discard()), WithRetries(3, time.Millisecond), instant)
	resp, err := post(t, c, srv.URL, "x")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestClient_ConnectionRefusedIsRetried(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	var waits int32
	c := New(WithLogger(logger.Discard()), WithRetries(2, time.Millisecond))
	c.after = func(time.Duration) <-chan time.Time {
		atomic.AddInt32(&waits, 1)
		ch := make(chan time.Time, 1)
		ch <- time.Now()
		return ch
	}

	_, err := post(t, c, addr, "x")
	require.Error(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&waits))
}

func TestClient_ContextCanceledDuringWait(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := New(WithLogger(logger.Discard()), WithRetries(5, time.Hour))
	c.after = func(time.Duration) <-chan time.Time {
		cancel()
		return make(chan time.Time)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	_, err = c.Do(req)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoff(t *testing.T) {
	c := New(WithRetries(3, 100*time.Millisecond), WithMaxBackoff(time.Second))

	assert.Equal(t, 500*time.Millisecond, c.backoff(1, 500*time.Millisecond), "Retry-After важнее экспоненты")
	assert.Equal(t, time.Second, c.backoff(1, time.Minute))

	w := c.backoff(2, 0)
	assert.GreaterOrEqual(t, w, 200*time.Millisecond)
	assert.Less(t, w, 400*time.Millisecond)
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, 3*time.Second, retryAfter("3"))
	assert.Zero(t, retryAfter("-1"))
	assert.Zero(t, retryAfter("soon"))
	assert.Zero(t, retryAfter(""))
}

func TestRedactBotToken(t *testing.T) {
	u, err := url.Parse("https://api.telegram.org/bot123456:AAH-secret/sendMessage?chat_id=1")
	require.NoError(t, err)
	assert.Equal(t, "https://api.telegram.org/bot[REDACTED]/sendMessage?chat_id=1", RedactBotToken(u))
	assert.Contains(t, u.Path, "AAH-secret", "исходный URL не меняется")
}
