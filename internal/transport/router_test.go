package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/venlo/procflow/internal/bus"
	"github.com/venlo/procflow/internal/catalog"
	"github.com/venlo/procflow/internal/config"
	"github.com/venlo/procflow/internal/engine"
	"github.com/venlo/procflow/internal/history"
	"github.com/venlo/procflow/internal/observability"
	"github.com/venlo/procflow/internal/stats"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	cfg := config.Defaults()
	cfg.Observability.Metrics.Enabled = false
	logger := zap.NewNop()

	eventBus := bus.New(logger)
	t.Cleanup(eventBus.Close)
	ledger := history.NewLedger(history.NewMemoryStore())

	var eng *engine.Engine
	cat := catalog.New(catalog.NewMemoryStore(), func(ctx context.Context, id string) (bool, error) {
		if eng == nil {
			return false, nil
		}
		return eng.ExistsForDefinition(ctx, id)
	})
	stepStore := engine.NewMemoryStepStore()
	eng = engine.NewEngine(
		engine.NewMemoryInstanceStore(),
		stepStore,
		ledger,
		eventBus,
		cat,
		engine.NewNumberGenerator("WF"),
		logger,
	)
	tracker := engine.NewTracker(eng, stepStore, ledger, eventBus, logger, 3)

	router := NewRouter(Dependencies{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.InitMetrics(prometheus.NewRegistry()),
		Catalog: cat,
		Engine:  eng,
		Tracker: tracker,
		Ledger:  ledger,
		Stats:   stats.NewProvider(cat, eng),
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, srv *httptest.Server, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-Id", "user-test")

	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var parsed map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, parsed
}

func createDefinitionHTTP(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp, body := doJSON(t, srv, http.MethodPost, "/v1/definitions", map[string]any{
		"name": "order-fulfillment",
		"type": "order_fulfillment",
		"steps": []map[string]any{
			{"id": "reserve", "name": "Reserve Stock", "kind": "action"},
			{"id": "ship", "name": "Ship", "kind": "integration"},
		},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create definition: status %d, body %v", resp.StatusCode, body)
	}
	return body["id"].(string)
}

func TestRouter_DefinitionCRUD(t *testing.T) {
	srv := newTestServer(t)
	id := createDefinitionHTTP(t, srv)

	resp, body := doJSON(t, srv, http.MethodGet, "/v1/definitions/"+id, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: status %d", resp.StatusCode)
	}
	if body["status"] != "draft" {
		t.Errorf("status = %v, want draft", body["status"])
	}
	if body["version"] != float64(1) {
		t.Errorf("version = %v, want 1", body["version"])
	}

	resp, _ = doJSON(t, srv, http.MethodPost, "/v1/definitions/"+id+"/activate", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("activate: status %d", resp.StatusCode)
	}

	resp, list := doJSON(t, srv, http.MethodGet, "/v1/definitions?status=active", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: status %d", resp.StatusCode)
	}
	if list["count"] != float64(1) {
		t.Errorf("count = %v, want 1", list["count"])
	}
}

func TestRouter_ErrorEnvelopeShapes(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, srv, http.MethodGet, "/v1/definitions/no-such-id", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	envelope, ok := body["error"].(map[string]any)
	if !ok {
		t.Fatalf("body = %v, want error envelope", body)
	}
	if envelope["code"] != "NOT_FOUND" {
		t.Errorf("code = %v, want NOT_FOUND", envelope["code"])
	}

	resp, body = doJSON(t, srv, http.MethodPost, "/v1/definitions", map[string]any{})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
	envelope = body["error"].(map[string]any)
	if envelope["code"] != "VALIDATION_ERROR" {
		t.Errorf("code = %v, want VALIDATION_ERROR", envelope["code"])
	}

	id := createDefinitionHTTP(t, srv)
	resp, body = doJSON(t, srv, http.MethodPost, "/v1/definitions/"+id+"/deactivate", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409 for draft deactivate", resp.StatusCode)
	}
	envelope = body["error"].(map[string]any)
	if envelope["code"] != "INVALID_STATE" {
		t.Errorf("code = %v, want INVALID_STATE", envelope["code"])
	}
}

func TestRouter_InstanceLifecycle(t *testing.T) {
	srv := newTestServer(t)
	defID := createDefinitionHTTP(t, srv)
	if resp, _ := doJSON(t, srv, http.MethodPost, "/v1/definitions/"+defID+"/activate", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("activate failed")
	}

	resp, inst := doJSON(t, srv, http.MethodPost, "/v1/instances", map[string]any{
		"definition_id": defID,
		"source_type":   "sales_order",
		"source_id":     "ord-77",
		"source_number": "SO-077",
		"context":       map[string]any{"customer": "acme"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create instance: status %d, body %v", resp.StatusCode, inst)
	}
	instID := inst["id"].(string)
	if inst["status"] != "pending" {
		t.Errorf("status = %v, want pending", inst["status"])
	}
	if inst["total_steps"] != float64(2) {
		t.Errorf("total_steps = %v, want 2", inst["total_steps"])
	}

	resp, started := doJSON(t, srv, http.MethodPost, "/v1/instances/"+instID+"/start", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start: status %d", resp.StatusCode)
	}
	if started["status"] != "running" {
		t.Errorf("status = %v, want running", started["status"])
	}

	// Starting twice is an invalid transition.
	resp, _ = doJSON(t, srv, http.MethodPost, "/v1/instances/"+instID+"/start", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("double start: status = %d, want 409", resp.StatusCode)
	}

	resp, patched := doJSON(t, srv, http.MethodPatch, "/v1/instances/"+instID+"/context", map[string]any{
		"context": map[string]any{"carrier": "dhl"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("context patch: status %d", resp.StatusCode)
	}
	mergedCtx := patched["context"].(map[string]any)
	if mergedCtx["carrier"] != "dhl" || mergedCtx["customer"] != "acme" {
		t.Errorf("context = %v, want merged keys", mergedCtx)
	}

	resp, done := doJSON(t, srv, http.MethodPost, "/v1/instances/"+instID+"/complete", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("complete: status %d", resp.StatusCode)
	}
	if done["progress"] != float64(100) {
		t.Errorf("progress = %v, want 100", done["progress"])
	}

	resp, hist := doJSON(t, srv, http.MethodGet, "/v1/instances/"+instID+"/history", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history: status %d", resp.StatusCode)
	}
	if hist["count"].(float64) < 3 {
		t.Errorf("history count = %v, want at least created/started/completed", hist["count"])
	}
}

func TestRouter_InstanceLookupsAndSteps(t *testing.T) {
	srv := newTestServer(t)

	resp, inst := doJSON(t, srv, http.MethodPost, "/v1/instances", map[string]any{
		"source_type":   "sales_order",
		"source_id":     "ord-5",
		"source_number": "SO-005",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: status %d", resp.StatusCode)
	}
	instID := inst["id"].(string)
	number := inst["number"].(string)

	resp, byNumber := doJSON(t, srv, http.MethodGet, "/v1/instances/by-number/"+number, nil)
	if resp.StatusCode != http.StatusOK || byNumber["id"] != instID {
		t.Errorf("by-number: status %d, id %v", resp.StatusCode, byNumber["id"])
	}

	resp, bySource := doJSON(t, srv, http.MethodGet, "/v1/instances/by-source/sales_order/ord-5", nil)
	if resp.StatusCode != http.StatusOK || bySource["count"] != float64(1) {
		t.Errorf("by-source: status %d, count %v", resp.StatusCode, bySource["count"])
	}

	if resp, _ := doJSON(t, srv, http.MethodPost, "/v1/instances/"+instID+"/start", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("start failed")
	}

	resp, step := doJSON(t, srv, http.MethodPost, fmt.Sprintf("/v1/instances/%s/steps", instID), map[string]any{
		"name": "Reserve Stock",
		"kind": "action",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create step: status %d, body %v", resp.StatusCode, step)
	}
	stepID := step["id"].(string)

	resp, _ = doJSON(t, srv, http.MethodPost, "/v1/steps/"+stepID+"/start", map[string]any{"job_ref": "job-9"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start step: status %d", resp.StatusCode)
	}
	resp, completed := doJSON(t, srv, http.MethodPost, "/v1/steps/"+stepID+"/complete", map[string]any{
		"output": map[string]any{"reserved": true},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("complete step: status %d", resp.StatusCode)
	}
	if completed["status"] != "completed" {
		t.Errorf("step status = %v, want completed", completed["status"])
	}

	resp, got := doJSON(t, srv, http.MethodGet, "/v1/instances/"+instID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get instance: status %d", resp.StatusCode)
	}
	if got["completed_steps"] != float64(1) || got["progress"] != float64(100) {
		t.Errorf("rollup = %v/%v, want 1 step at 100%%", got["completed_steps"], got["progress"])
	}
}

func TestRouter_Stats(t *testing.T) {
	srv := newTestServer(t)
	createDefinitionHTTP(t, srv)

	resp, body := doJSON(t, srv, http.MethodGet, "/v1/stats", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stats: status %d", resp.StatusCode)
	}
	if body["total_definitions"] != float64(1) {
		t.Errorf("total_definitions = %v, want 1", body["total_definitions"])
	}
	if body["total_instances"] != float64(0) {
		t.Errorf("total_instances = %v, want 0", body["total_instances"])
	}
}

func TestRouter_CorrelationIDEcho(t *testing.T) {
	srv := newTestServer(t)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	req.Header.Set("X-Correlation-Id", "corr-123")
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("X-Correlation-Id"); got != "corr-123" {
		t.Errorf("X-Correlation-Id = %q, want echoed corr-123", got)
	}

	// Without a client-supplied ID one is generated.
	resp2, err := srv.Client().Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.Header.Get("X-Correlation-Id") == "" {
		t.Error("expected a generated correlation ID")
	}
}
