// Package httpclient - исходящий HTTP клиент с ретраями и логированием.
// Реализует интерфейс HttpClient библиотеки go-telegram/bot.
package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	randv2 "math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"
)

// Client wraps http.Client with logging and retries.
type Client struct {
	hc          *http.Client
	log         *slog.Logger
	retries     int
	baseBackoff time.Duration
	maxBackoff  time.Duration
	redact      func(*url.URL) string
	after       func(time.Duration) <-chan time.Time
}

// Option configures Client.
type Option func(*Client)

// WithTimeout sets request timeout.
func WithTimeout(t time.Duration) Option {
	return func(c *Client) { c.hc.Timeout = t }
}

// WithLogger sets logger used by client.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithRetries enables retries with exponential backoff and jitter.
func WithRetries(n int, backoff time.Duration) Option {
	return func(c *Client) {
		c.retries = n
		if backoff > 0 {
			c.baseBackoff = backoff
		}
	}
}

// WithMaxBackoff limits exponential backoff growth and Retry-After waits.
func WithMaxBackoff(d time.Duration) Option {
	return func(c *Client) { c.maxBackoff = d }
}

// WithURLRedactor sets URL redactor for logs.
func WithURLRedactor(f func(*url.URL) string) Option {
	return func(c *Client) { c.redact = f }
}

// WithTransport sets custom transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		if rt != nil {
			c.hc.Transport = rt
		}
	}
}

// New creates configured Client.
func New(opts ...Option) *Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.IdleConnTimeout = 90 * time.Second
	tr.TLSHandshakeTimeout = 10 * time.Second
	tr.ResponseHeaderTimeout = 10 * time.Second

	c := &Client{
		hc:          &http.Client{Timeout: 15 * time.Second, Transport: tr},
		log:         slog.Default(),
		baseBackoff: 200 * time.Millisecond,
		maxBackoff:  10 * time.Second,
		redact:      RedactBotToken,
		after:       time.After,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

var botPathPattern = regexp.MustCompile(`/bot[^/]+/`)

// RedactBotToken hides the Bot API token in "/bot<token>/method" paths.
func RedactBotToken(u *url.URL) string {
	r := *u
	r.Path = botPathPattern.ReplaceAllString(u.Path, "/bot[REDACTED]/")
	r.RawPath = botPathPattern.ReplaceAllString(u.EscapedPath(), "/bot[REDACTED]/")
	return r.Redacted()
}

// Do sends the request with the request context, retrying transport failures,
// 429 and 5xx answers. The body is buffered so it can be replayed.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if err := bufferBody(req); err != nil {
		return nil, err
	}
	u := c.redact(req.URL)

	var lastErr error
	for attempt := 1; attempt <= c.retries+1; attempt++ {
		r := req.Clone(ctx)
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			r.Body = body
		}

		start := time.Now()
		resp, err := c.hc.Do(r)
		dur := time.Since(start)

		delay, retry := retryInfo(resp, err)
		if !retry || attempt > c.retries {
			if err != nil {
				c.log.Warn("http request error", "method", r.Method, "url", u, "attempt", attempt, "error", err)
				return nil, err
			}
			if retry {
				// ретраи исчерпаны, ответ уже прочитан retryInfo
				return nil, fmt.Errorf("%s %s: unexpected status %d after %d attempts", r.Method, u, resp.StatusCode, attempt)
			}
			c.log.Debug("http request", "method", r.Method, "url", u, "status", resp.StatusCode, "dur", dur, "attempt", attempt)
			return resp, nil
		}

		wait := c.backoff(attempt, delay)
		if err != nil {
			lastErr = err
			c.log.Warn("http request error, retrying", "method", r.Method, "url", u, "attempt", attempt, "wait", wait, "error", err)
		} else {
			lastErr = fmt.Errorf("%s %s: unexpected status %d", r.Method, u, resp.StatusCode)
			c.log.Warn("http request status, retrying", "method", r.Method, "url", u, "attempt", attempt, "wait", wait, "status", resp.StatusCode)
		}

		select {
		case <-c.after(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func (c *Client) backoff(attempt int, retryAfter time.Duration) time.Duration {
	wait := retryAfter
	if wait <= 0 {
		wait = c.baseBackoff * time.Duration(1<<uint(attempt-1))
		if wait > 0 {
			wait += time.Duration(randv2.Int64N(int64(wait)))
		}
	}
	if c.maxBackoff > 0 && wait > c.maxBackoff {
		wait = c.maxBackoff
	}
	return wait
}

func bufferBody(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}
	body, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return err
	}
	req.GetBody = func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(body)), nil }
	req.Body, _ = req.GetBody()
	return nil
}

// retryAfter parses Retry-After header value.
func retryAfter(h string) time.Duration {
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(h); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// drainAndClose drains up to 512KB from body and closes it.
func drainAndClose(b io.ReadCloser) {
	if b == nil {
		return
	}
	_, _ = io.CopyN(io.Discard, b, 512<<10)
	_ = b.Close()
}

func isRetryableError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var oe *net.OpError
	if errors.As(err, &oe) && oe.Op == "dial" {
		return true
	}
	return errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// retryInfo determines if request should be retried and returns optional delay.
// A response that will be retried is drained and closed.
func retryInfo(resp *http.Response, err error) (time.Duration, bool) {
	if err != nil {
		return 0, isRetryableError(err)
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		delay := retryAfter(resp.Header.Get("Retry-After"))
		drainAndClose(resp.Body)
		return delay, true
	default:
		return 0, false
	}
}
