package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/quoteboard/internal/auth"
	"github.com/sakif/quoteboard/internal/metrics"
	"github.com/sakif/quoteboard/internal/model"
	"github.com/sakif/quoteboard/internal/permission"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestFrom(addr string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = addr
	return req
}

func TestRateLimit_BlocksAfterBurst(t *testing.T) {
	rl := NewRateLimiter(1, 2, discardLogger())
	h := rl.Limit(okHandler())
	before := testutil.ToFloat64(metrics.RateLimitedTotal)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, requestFrom("10.0.0.1:1234"))
		assert.Equal(t, http.StatusOK, rec.Code, "request %d within burst", i)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, requestFrom("10.0.0.1:5678"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RateLimitedTotal)-before)

	// Another client has its own bucket.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, requestFrom("10.0.0.2:1234"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit_ProgrammaticGetsJSON(t *testing.T) {
	rl := NewRateLimiter(1, 1, discardLogger())
	h := rl.Limit(okHandler())

	h.ServeHTTP(httptest.NewRecorder(), requestFrom("10.0.0.1:1"))

	req := requestFrom("10.0.0.1:1")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"RATE_LIMITED","message":"Too many requests. Slow down and try again shortly."}`, rec.Body.String())
}

func TestRateLimit_KeysLoggedInUsersByAccount(t *testing.T) {
	rl := NewRateLimiter(1, 1, discardLogger())
	h := rl.Limit(okHandler())

	sess := auth.Start(&model.User{ID: 1, Name: "alice", Flags: permission.Default}, time.Now())
	for _, addr := range []string{"10.0.0.1:1", "10.0.0.2:1"} {
		req := requestFrom(addr)
		req = req.WithContext(auth.WithSession(req.Context(), sess))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if addr == "10.0.0.1:1" {
			assert.Equal(t, http.StatusOK, rec.Code)
		} else {
			assert.Equal(t, http.StatusTooManyRequests, rec.Code, "same account from a new IP shares the bucket")
		}
	}
}

func TestRateLimiter_PrunesIdleKeys(t *testing.T) {
	rl := NewRateLimiter(10, 10, discardLogger())
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.limiter("ip:a")
	rl.limiter("ip:b")
	require.Equal(t, 2, rl.Len())

	now = now.Add(idleAfter + time.Second)
	rl.limiter("ip:c")
	assert.Equal(t, 1, rl.Len())
}
