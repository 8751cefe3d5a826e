// Package transport wraps network calls to the auth service in a bounded
// retry policy with a typed error taxonomy. The executor is stateless: it
// carries no credential of its own, the caller supplies whatever proof each
// request needs.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"
)

const (
	// maxAttempts is the total attempt budget: one initial call plus two
	// retries for transient conditions.
	maxAttempts = 3
	// maxRetryAfter caps a server-supplied Retry-After wait.
	maxRetryAfter = 30 * time.Second
)

var defaultBackoff = []time.Duration{1 * time.Second, 3 * time.Second}

// Response is a fully read HTTP response body with its status and headers.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// DecodeJSON unmarshals the response body, reporting shape mismatches as
// ErrDecode without leaking parser internals to the user.
func (r *Response) DecodeJSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return nil
}

// Executor issues HTTP requests with bounded retry. Only connection-level
// failures, 429 and 503 are retried; 401 and every other status fail
// immediately so the caller's own recovery budget is not wasted on
// conditions that will not heal by waiting.
type Executor struct {
	client  *http.Client
	logger  *slog.Logger
	backoff []time.Duration

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(client *http.Client) ExecutorOption {
	return func(e *Executor) {
		e.client = client
	}
}

// WithExecutorLogger sets the structured logger for retry events.
func WithExecutorLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithBackoff overrides the default {1s, 3s} backoff schedule.
func WithBackoff(schedule ...time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.backoff = schedule
	}
}

// NewExecutor creates an Executor with the default policy.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		client:  &http.Client{Timeout: 30 * time.Second},
		backoff: defaultBackoff,
		sleep:   sleepCtx,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return e
}

// Do executes the request with the retry policy. build is called once per
// attempt so request bodies are freshly readable on every try.
func (e *Executor) Do(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) (*Response, error) {
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		req, err := build(ctx)
		if err != nil {
			return nil, fmt.Errorf("building request: %w", err)
		}

		var header http.Header
		resp, err := e.attempt(req)
		switch {
		case err != nil:
			// Connection-level failure: transient.
			lastErr = fmt.Errorf("%w: %v", ErrNetwork, err)
		case resp.Status >= 200 && resp.Status < 300:
			return resp, nil
		case resp.Status == http.StatusTooManyRequests || resp.Status == http.StatusServiceUnavailable:
			lastErr = &StatusError{Code: resp.Status}
			header = resp.Header
		default:
			// 401 and every other status: terminal, no retry.
			return nil, &StatusError{Code: resp.Status}
		}

		if attempt == maxAttempts-1 {
			break
		}
		if err := e.wait(ctx, attempt, header); err != nil {
			return nil, err
		}
	}

	return nil, lastErr
}

func (e *Executor) attempt(req *http.Request) (*Response, error) {
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// wait sleeps before the next attempt. header, when present, may carry a
// Retry-After override for this one wait.
func (e *Executor) wait(ctx context.Context, attempt int, header http.Header) error {
	delay := e.backoff[min(attempt, len(e.backoff)-1)]
	if ra, ok := retryAfter(header); ok {
		delay = ra
	}

	e.logger.Debug("retrying after transient failure",
		slog.Int("attempt", attempt+1),
		slog.Duration("delay", delay))

	return e.sleep(ctx, delay)
}

// retryAfter parses a Retry-After header as delta-seconds or an HTTP date,
// capped at maxRetryAfter.
func retryAfter(header http.Header) (time.Duration, bool) {
	if header == nil {
		return 0, false
	}
	raw := header.Get("Retry-After")
	if raw == "" {
		return 0, false
	}

	var delay time.Duration
	if secs, err := strconv.Atoi(raw); err == nil {
		if secs < 0 {
			return 0, false
		}
		delay = time.Duration(secs) * time.Second
	} else if at, err := http.ParseTime(raw); err == nil {
		delay = time.Until(at)
		if delay < 0 {
			delay = 0
		}
	} else {
		return 0, false
	}

	if delay > maxRetryAfter {
		delay = maxRetryAfter
	}
	return delay, true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
