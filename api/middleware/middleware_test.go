package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/pagewalk/config"
)

func init() { gin.SetMode(gin.TestMode) }

// newEngine serves /x, answering with the key fingerprint Auth stored.
func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(KeyIDContext)) })
	return r
}

func get(r http.Handler, remote string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if remote != "" {
		req.RemoteAddr = remote
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth(t *testing.T) {
	t.Parallel()

	r := newEngine(Auth([]string{" alpha ", "", "beta"}))
	tests := []struct {
		name    string
		headers map[string]string
		status  int
		message string
	}{
		{"no key", nil, http.StatusUnauthorized, ErrMissingAPIKey.Error()},
		{"wrong key", map[string]string{"X-API-Key": "gamma"}, http.StatusUnauthorized, ErrInvalidAPIKey.Error()},
		{"basic scheme", map[string]string{"Authorization": "Basic alpha"}, http.StatusUnauthorized, ErrMissingAPIKey.Error()},
		{"x-api-key", map[string]string{"X-API-Key": "alpha"}, http.StatusOK, ""},
		{"bearer", map[string]string{"Authorization": "Bearer beta"}, http.StatusOK, ""},
		{"lower-case bearer", map[string]string{"Authorization": "bearer beta"}, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w := get(r, "", tt.headers)
			require.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusUnauthorized {
				require.Equal(t, `Bearer realm="pagewalk"`, w.Header().Get("WWW-Authenticate"))
				require.Contains(t, w.Body.String(), tt.message)
				require.Contains(t, w.Body.String(), `"UNAUTHORIZED"`)
				return
			}
			require.Len(t, w.Body.String(), 12)
			require.NotContains(t, w.Body.String(), "alpha")
		})
	}
}

func TestAuthKeyIDIsStablePerKey(t *testing.T) {
	t.Parallel()

	r := newEngine(Auth([]string{"alpha", "beta"}))
	a1 := get(r, "", map[string]string{"X-API-Key": "alpha"}).Body.String()
	a2 := get(r, "", map[string]string{"Authorization": "Bearer alpha"}).Body.String()
	b := get(r, "", map[string]string{"X-API-Key": "beta"}).Body.String()
	require.Equal(t, a1, a2)
	require.NotEqual(t, a1, b)
}

func TestAuthWithoutKeysIsOpen(t *testing.T) {
	t.Parallel()

	w := get(newEngine(Auth([]string{"", "  "})), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, w.Body.String())
}

func TestLimiterRejectsOverBurst(t *testing.T) {
	t.Parallel()

	l := NewLimiter(config.RateLimitConfig{RequestsPerSecond: 0.5, Burst: 2})
	t.Cleanup(l.Close)
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }
	r := newEngine(l.Handler())

	require.Equal(t, http.StatusOK, get(r, "192.0.2.1:1000", nil).Code)
	require.Equal(t, http.StatusOK, get(r, "192.0.2.1:1001", nil).Code)

	w := get(r, "192.0.2.1:1002", nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "2", w.Header().Get("Retry-After"))
	require.Contains(t, w.Body.String(), `"RATE_LIMITED"`)

	require.Equal(t, http.StatusOK, get(r, "192.0.2.2:1000", nil).Code, "other clients have their own bucket")

	now = now.Add(2 * time.Second)
	require.Equal(t, http.StatusOK, get(r, "192.0.2.1:1003", nil).Code)
}

func TestLimiterKeysByAuthIdentity(t *testing.T) {
	t.Parallel()

	l := NewLimiter(config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1})
	t.Cleanup(l.Close)
	r := newEngine(Auth([]string{"alpha", "beta"}), l.Handler())

	require.Equal(t, http.StatusOK, get(r, "192.0.2.1:1", map[string]string{"X-API-Key": "alpha"}).Code)
	require.Equal(t, http.StatusTooManyRequests, get(r, "192.0.2.9:1", map[string]string{"X-API-Key": "alpha"}).Code)
	require.Equal(t, http.StatusOK, get(r, "192.0.2.1:2", map[string]string{"X-API-Key": "beta"}).Code)
}

func TestLimiterDisabled(t *testing.T) {
	t.Parallel()

	l := NewLimiter(config.RateLimitConfig{})
	t.Cleanup(l.Close)
	r := newEngine(l.Handler())
	for range 5 {
		require.Equal(t, http.StatusOK, get(r, "", nil).Code)
	}
}

func TestLimiterSweepAndClose(t *testing.T) {
	t.Parallel()

	l := NewLimiter(config.RateLimitConfig{RequestsPerSecond: 1, Burst: 1})
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }
	l.bucketFor("old", now)
	l.bucketFor("fresh", now.Add(59*time.Minute))

	now = now.Add(bucketIdleAfter + time.Minute)
	l.sweep()
	require.Len(t, l.buckets, 1)
	require.Contains(t, l.buckets, "fresh")

	l.Close()
	l.Close()
	select {
	case <-l.stop:
	default:
		t.Fatal("sweeper still running after Close")
	}
}
