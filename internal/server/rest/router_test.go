package rest

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func newAuthRouter(t *testing.T, opts ...ServerOption) (http.Handler, string) {
	t.Helper()
	priv, pub := generateTestKey(t)
	eng, _ := newTestEngine(t)
	opts = append([]ServerOption{WithLogger(quietLogger())}, opts...)
	h := NewRouter(NewServer(eng, opts...), &JWTConfig{PublicKey: pub, Logger: quietLogger()})
	return h, "Bearer " + signToken(t, priv, validClaims())
}

// TestRouter_HealthzNoAuth verifies /healthz is accessible without a JWT.
func TestRouter_HealthzNoAuth(t *testing.T) {
	h, _ := newAuthRouter(t)
	expectCode(t, do(t, h, http.MethodGet, "/healthz", ""), http.StatusOK)
}

// TestRouter_APIRoutesRequireJWT verifies that /api/v1 routes return 401
// when no Authorization header is present.
func TestRouter_APIRoutesRequireJWT(t *testing.T) {
	h, _ := newAuthRouter(t)

	routes := []struct{ method, path string }{
		{http.MethodGet, "/api/v1/view"},
		{http.MethodPost, "/api/v1/notifications"},
		{http.MethodGet, "/api/v1/preferences"},
		{http.MethodGet, "/api/v1/mutes"},
		{http.MethodPost, "/api/v1/cursor/down"},
		{http.MethodGet, "/api/v1/connection"},
	}
	for _, route := range routes {
		rec := do(t, h, route.method, route.path, "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: expected 401 without JWT, got %d", route.method, route.path, rec.Code)
		}
	}
}

// TestRouter_APIRoutesAccessibleWithJWT verifies that a valid JWT passes the
// middleware and reaches the handler.
func TestRouter_APIRoutesAccessibleWithJWT(t *testing.T) {
	h, bearer := newAuthRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/view", nil)
	req.Header.Set("Authorization", bearer)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with valid JWT, got %d; body: %s", rec.Code, rec.Body)
	}
}

func TestRouter_StreamMountedBehindAuth(t *testing.T) {
	reached := false
	stream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusTeapot)
	})
	h, bearer := newAuthRouter(t, WithStream(stream))

	expectCode(t, do(t, h, http.MethodGet, "/ws/notifications", ""), http.StatusUnauthorized)
	if reached {
		t.Fatal("stream reached without a token")
	}

	req := httptest.NewRequest(http.MethodGet, "/ws/notifications", nil)
	req.Header.Set("Authorization", bearer)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTeapot || !reached {
		t.Fatalf("expected the stream handler, got %d", rec.Code)
	}
}

func TestRouter_NoStreamConfigured(t *testing.T) {
	h := newTestServer(t)
	expectCode(t, do(t, h, http.MethodGet, "/ws/notifications", ""), http.StatusNotFound)
}
