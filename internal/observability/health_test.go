package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// stubChecker returns a fixed error from HealthCheck.
type stubChecker struct {
	err error
}

func (s stubChecker) HealthCheck(context.Context) error { return s.err }

func TestHandleHealth_returnsOK(t *testing.T) {
	// Set build-time variables for test.
	origVersion, origCommit := Version, Commit
	Version = "1.2.3"
	Commit = "abc1234"
	t.Cleanup(func() {
		Version = origVersion
		Commit = origCommit
	})

	handler := HandleHealth()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %q, want ok", resp.Status)
	}
	if resp.Version != "1.2.3" {
		t.Errorf("version = %q, want 1.2.3", resp.Version)
	}
	if resp.Commit != "abc1234" {
		t.Errorf("commit = %q, want abc1234", resp.Commit)
	}
}

func TestHandleHealth_defaultValues(t *testing.T) {
	handler := HandleHealth()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	var resp HealthResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Version == "" {
		t.Error("version should have a default value")
	}
}

func TestHandleReady_allHealthy(t *testing.T) {
	checks := ReadinessChecks{
		DefinitionsLoaded: func() bool { return true },
		InstanceStore:     stubChecker{},
		HistoryStore:      stubChecker{},
		EventBridge:       stubChecker{},
	}

	handler := HandleReady(checks)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp ReadinessResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Status != "ready" {
		t.Errorf("status = %q, want ready", resp.Status)
	}
	for _, name := range []string{"definitions", "instance_store", "history_store", "event_bridge"} {
		if resp.Checks[name].Status != "ok" {
			t.Errorf("%s = %q, want ok", name, resp.Checks[name].Status)
		}
	}
}

func TestHandleReady_noDefinitions(t *testing.T) {
	checks := ReadinessChecks{
		DefinitionsLoaded: func() bool { return false },
	}

	handler := HandleReady(checks)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	var resp ReadinessResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Status != "not_ready" {
		t.Errorf("status = %q, want not_ready", resp.Status)
	}
	if resp.Checks["definitions"].Error != "no definitions loaded" {
		t.Errorf("definitions error = %q", resp.Checks["definitions"].Error)
	}
}

func TestHandleReady_failingDependency(t *testing.T) {
	checks := ReadinessChecks{
		DefinitionsLoaded: func() bool { return true },
		InstanceStore:     stubChecker{},
		EventBridge:       stubChecker{err: errors.New("connection refused")},
	}

	handler := HandleReady(checks)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	var resp ReadinessResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Status != "not_ready" {
		t.Errorf("status = %q, want not_ready", resp.Status)
	}
	if resp.Checks["instance_store"].Status != "ok" {
		t.Errorf("instance_store = %q, want ok", resp.Checks["instance_store"].Status)
	}
	if resp.Checks["event_bridge"].Status != "error" {
		t.Errorf("event_bridge = %q, want error", resp.Checks["event_bridge"].Status)
	}
	if resp.Checks["event_bridge"].Error != "connection refused" {
		t.Errorf("event_bridge error = %q", resp.Checks["event_bridge"].Error)
	}
}

func TestHandleReady_skipsNilCheckers(t *testing.T) {
	checks := ReadinessChecks{
		DefinitionsLoaded: func() bool { return true },
	}

	handler := HandleReady(checks)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	var resp ReadinessResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if len(resp.Checks) != 1 {
		t.Errorf("checks = %d, want 1 (definitions only)", len(resp.Checks))
	}
}
