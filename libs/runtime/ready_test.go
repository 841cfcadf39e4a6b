package runtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestReadyz(t *testing.T) {
	mux := NewBaseMuxWithReady(
		ReadyCheck{Name: "db", Check: func(context.Context) error { return nil }},
		ReadyCheck{Name: "kafka", Check: func(context.Context) error { return errors.New("down") }},
	)

	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rw.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rw.Code)
	}
	if body := rw.Body.String(); !strings.Contains(body, "kafka: down") || strings.Contains(body, "db") {
		t.Fatalf("unexpected body %q", body)
	}

	rwHealth := httptest.NewRecorder()
	mux.ServeHTTP(rwHealth, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rwHealth.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rwHealth.Code)
	}
}

func TestRunChecksSkipsNil(t *testing.T) {
	failures := RunChecks(context.Background(), []ReadyCheck{
		{Name: "noop"},
		{Check: func(context.Context) error { return errors.New("boom") }},
	})
	if len(failures) != 1 || failures[0] != "dependency: boom" {
		t.Fatalf("unexpected failures %v", failures)
	}
}

func TestParseLevel(t *testing.T) {
	if parseLevel("DEBUG") != slog.LevelDebug {
		t.Fatal("expected debug level")
	}
	if parseLevel("nonsense") != slog.LevelInfo {
		t.Fatal("expected info fallback")
	}
}
