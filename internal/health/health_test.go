package health

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dexkeep/keeperbot/internal/logger"
)

func newTestServer() *Server {
	return NewServer(0, "test", logger.New(io.Discard, logger.LevelInfo, "health_test", nil))
}

func TestHealthReportsFailingCheck(t *testing.T) {
	s := newTestServer()
	s.RegisterCheck("node_synced", func(ctx context.Context) (bool, string) { return true, "" })
	s.RegisterCheck("loop_alive", func(ctx context.Context) (bool, string) { return false, "last cycle 90s ago" })

	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	var status Status
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if status.Status != "degraded" {
		t.Errorf("status = %q, want degraded", status.Status)
	}
	if c := status.Checks["loop_alive"]; c.Healthy || c.Message != "last cycle 90s ago" {
		t.Errorf("loop_alive = %+v", c)
	}
	if c := status.Checks["node_synced"]; !c.Healthy {
		t.Errorf("node_synced = %+v", c)
	}
}

func TestHealthAllPassing(t *testing.T) {
	s := newTestServer()
	s.RegisterCheck("node_synced", func(ctx context.Context) (bool, string) { return true, "" })

	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}
}

func TestReadyFailsWhenAnyCheckFails(t *testing.T) {
	s := newTestServer()
	s.RegisterCheck("a", func(ctx context.Context) (bool, string) { return true, "" })
	s.RegisterCheck("b", func(ctx context.Context) (bool, string) { return false, "syncing" })

	rec := httptest.NewRecorder()
	s.handleReady(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestLiveIgnoresChecks(t *testing.T) {
	s := newTestServer()
	s.RegisterCheck("down", func(ctx context.Context) (bool, string) { return false, "down" })

	rec := httptest.NewRecorder()
	s.handleLive(rec, httptest.NewRequest(http.MethodGet, "/live", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}
