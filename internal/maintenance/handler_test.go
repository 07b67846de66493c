package maintenance

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"auth-service/internal/observability"
)

func newRequest(secret string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/internal/maintenance/cleanup", nil)
	if secret != "" {
		r.Header.Set("Authorization", "Bearer "+secret)
	}
	return r
}

func TestCleanup_RunsAllSweeps(t *testing.T) {
	t.Parallel()

	handler := NewHandler("s3cret", []Sweep{
		{Name: "refresh_tokens", Run: func(context.Context) (int64, error) { return 3, nil }},
		{Name: "blacklist", Run: func(context.Context) (int64, error) { return 0, nil }},
	}, observability.NewLogger())

	w := httptest.NewRecorder()
	handler.Cleanup(w, newRequest("s3cret"))

	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", w.Code, w.Body.String())
	}
	var body struct {
		Success bool             `json:"success"`
		Deleted map[string]int64 `json:"deleted"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !body.Success || body.Deleted["refresh_tokens"] != 3 {
		t.Fatalf("unexpected response: %+v", body)
	}
}

func TestCleanup_FailingSweepDoesNotStopOthers(t *testing.T) {
	t.Parallel()

	ran := false
	handler := NewHandler("s3cret", []Sweep{
		{Name: "broken", Run: func(context.Context) (int64, error) { return 0, errors.New("boom") }},
		{Name: "healthy", Run: func(context.Context) (int64, error) { ran = true; return 1, nil }},
	}, observability.NewLogger())

	w := httptest.NewRecorder()
	handler.Cleanup(w, newRequest("s3cret"))

	if !ran {
		t.Fatalf("later sweeps must still run after a failure")
	}
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("want 500 when any sweep fails, got %d", w.Code)
	}
}

func TestCleanup_RejectsBadSecret(t *testing.T) {
	t.Parallel()

	called := false
	handler := NewHandler("s3cret", []Sweep{
		{Name: "x", Run: func(context.Context) (int64, error) { called = true; return 0, nil }},
	}, observability.NewLogger())

	for _, secret := range []string{"", "wrong"} {
		w := httptest.NewRecorder()
		handler.Cleanup(w, newRequest(secret))
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("secret %q: want 401, got %d", secret, w.Code)
		}
	}
	if called {
		t.Fatalf("sweeps must not run without authorization")
	}
}

func TestCleanup_DisabledWithoutConfiguredSecret(t *testing.T) {
	t.Parallel()

	handler := NewHandler("", nil, observability.NewLogger())
	w := httptest.NewRecorder()
	handler.Cleanup(w, newRequest(""))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unconfigured route must reject everything, got %d", w.Code)
	}
}
