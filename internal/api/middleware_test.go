package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func okHandler(status int, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	})
}

func serve(h http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestLoggingMiddleware_PassesThrough(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"ok", http.StatusOK, "ok"},
		{"not found", http.StatusNotFound, "not found"},
		{"server error", http.StatusServiceUnavailable, "down"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(LoggingMiddleware(okHandler(tt.status, tt.body)), "/api/summary")
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.body, w.Body.String())
		})
	}
}

func TestRecoveryMiddleware_NoPanic(t *testing.T) {
	w := serve(RecoveryMiddleware(okHandler(http.StatusOK, "ok")), "/vman")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestRecoveryMiddleware_Panic(t *testing.T) {
	for name, value := range map[string]any{"string": "boom", "error": assert.AnError} {
		t.Run(name, func(t *testing.T) {
			h := RecoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				panic(value)
			}))
			w := serve(h, "/panic")
			assert.Equal(t, http.StatusInternalServerError, w.Code)
			assert.Contains(t, w.Body.String(), "Internal Server Error")
		})
	}
}

func TestStatusWriter(t *testing.T) {
	w := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
	assert.Equal(t, http.StatusOK, sw.status)

	sw.WriteHeader(http.StatusCreated)
	assert.Equal(t, http.StatusCreated, sw.status)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Same(t, w, sw.Unwrap())
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	w := serve(SecurityHeadersMiddleware(okHandler(http.StatusOK, "ok")), "/scada")

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))

	csp := w.Header().Get("Content-Security-Policy")
	assert.Contains(t, csp, "default-src 'self'")
	assert.Contains(t, csp, "https://cdn.jsdelivr.net")
	assert.NotContains(t, csp, "'unsafe-eval'")
}

func TestSecurityHeadersMiddleware_SwaggerExempt(t *testing.T) {
	w := serve(SecurityHeadersMiddleware(okHandler(http.StatusOK, "ok")), "/swagger/index.html")
	assert.Empty(t, w.Header().Get("Content-Security-Policy"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestMiddlewareChain(t *testing.T) {
	h := SecurityHeadersMiddleware(RecoveryMiddleware(LoggingMiddleware(okHandler(http.StatusAccepted, "accepted"))))
	w := serve(h, "/chained")

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "accepted", w.Body.String())
	assert.NotEmpty(t, w.Header().Get("Content-Security-Policy"))
}
