package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestExecutor returns an executor whose backoff waits are recorded
// instead of slept.
func newTestExecutor(t *testing.T) (*Executor, *[]time.Duration) {
	t.Helper()
	var sleeps []time.Duration
	e := NewExecutor()
	e.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return ctx.Err()
	}
	return e, &sleeps
}

func buildGet(url string) func(ctx context.Context) (*http.Request, error) {
	return func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	}
}

func TestExecutor_SuccessFirstAttempt(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	e, sleeps := newTestExecutor(t)
	resp, err := e.Do(t.Context(), buildGet(srv.URL))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, *sleeps)
}

func TestExecutor_RetriesTransientThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.Write([]byte(`{}`))
		}
	}))
	defer srv.Close()

	e, sleeps := newTestExecutor(t)
	resp, err := e.Do(t.Context(), buildGet(srv.URL))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{1 * time.Second, 3 * time.Second}, *sleeps)
}

func TestExecutor_RetryAfterOverridesBackoff(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "5")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	e, sleeps := newTestExecutor(t)
	_, err := e.Do(t.Context(), buildGet(srv.URL))
	require.NoError(t, err)
	require.Len(t, *sleeps, 1)
	assert.Equal(t, 5*time.Second, (*sleeps)[0])
}

func TestExecutor_RetryAfterCapped(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "3600")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	e, sleeps := newTestExecutor(t)
	_, err := e.Do(t.Context(), buildGet(srv.URL))
	require.NoError(t, err)
	require.Len(t, *sleeps, 1)
	assert.Equal(t, 30*time.Second, (*sleeps)[0])
}

func TestExecutor_ExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	e, _ := newTestExecutor(t)
	_, err := e.Do(t.Context(), buildGet(srv.URL))

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.Code)
	assert.Equal(t, int32(3), calls.Load())
}

func TestExecutor_UnauthorizedNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	e, sleeps := newTestExecutor(t)
	_, err := e.Do(t.Context(), buildGet(srv.URL))

	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, *sleeps)
}

func TestExecutor_TerminalStatusesNotRetried(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusInternalServerError} {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(status)
		}))

		e, _ := newTestExecutor(t)
		_, err := e.Do(t.Context(), buildGet(srv.URL))
		srv.Close()

		var se *StatusError
		require.ErrorAs(t, err, &se, "status %d", status)
		assert.Equal(t, status, se.Code)
		assert.Equal(t, int32(1), calls.Load(), "status %d", status)
	}
}

func TestExecutor_BadRequestMatchesInvalidRequest(t *testing.T) {
	err := error(&StatusError{Code: http.StatusBadRequest})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.NotErrorIs(t, err, ErrUnauthorized)
}

func TestExecutor_ConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	e, sleeps := newTestExecutor(t)
	_, err := e.Do(t.Context(), buildGet(url))

	assert.ErrorIs(t, err, ErrNetwork)
	assert.Len(t, *sleeps, 2, "all three attempts made")
}

func TestExecutor_CancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(t.Context())
	e := NewExecutor()
	e.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := e.Do(ctx, buildGet(srv.URL))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResponse_DecodeJSON(t *testing.T) {
	resp := &Response{Body: []byte(`{"token":"abc"}`)}
	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, resp.DecodeJSON(&out))
	assert.Equal(t, "abc", out.Token)

	bad := &Response{Body: []byte(`<html>not json</html>`)}
	err := bad.DecodeJSON(&out)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestRetryAfter_HTTPDate(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", time.Now().Add(10*time.Second).UTC().Format(http.TimeFormat))

	d, ok := retryAfter(h)
	require.True(t, ok)
	assert.Greater(t, d, 5*time.Second)
	assert.LessOrEqual(t, d, 10*time.Second)
}

func TestRetryAfter_Garbage(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "soon")
	_, ok := retryAfter(h)
	assert.False(t, ok)
}
