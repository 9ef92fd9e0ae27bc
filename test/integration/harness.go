// Package integration provides a reusable test harness for end-to-end
// testing of the procflow server. It starts a full HTTP server with
// in-memory stores, the event bus fan-out, and optionally a miniredis
// backed event bridge.
package integration

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/venlo/procflow/internal/bus"
	"github.com/venlo/procflow/internal/catalog"
	"github.com/venlo/procflow/internal/config"
	"github.com/venlo/procflow/internal/dispatch"
	"github.com/venlo/procflow/internal/engine"
	"github.com/venlo/procflow/internal/history"
	"github.com/venlo/procflow/internal/observability"
	"github.com/venlo/procflow/internal/stats"
	"github.com/venlo/procflow/internal/transport"
)

// TestHarness encapsulates a fully wired procflow instance for integration
// testing.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server

	// Internal components exposed for advanced test scenarios.
	Catalog *catalog.Catalog
	Engine  *engine.Engine
	Tracker *engine.Tracker
	Ledger  *history.Ledger
	Bus     *bus.Bus

	// RedisAddr is set when the harness runs with an event bridge.
	RedisAddr string

	cfg *config.Config
}

// HarnessOption configures the test harness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	definitionDirs []string
	numberPrefix   string
	maxRetries     int
	bridgeEnabled  bool
}

// WithDefinitions sets the definition seed directories to load. Relative
// paths are resolved from the testdata directory.
func WithDefinitions(dirs ...string) HarnessOption {
	return func(c *harnessConfig) {
		c.definitionDirs = dirs
	}
}

// WithNumberPrefix overrides the instance number prefix.
func WithNumberPrefix(prefix string) HarnessOption {
	return func(c *harnessConfig) {
		c.numberPrefix = prefix
	}
}

// WithMaxRetries overrides the default step retry budget.
func WithMaxRetries(n int) HarnessOption {
	return func(c *harnessConfig) {
		c.maxRetries = n
	}
}

// WithEventBridge runs a miniredis server and forwards every domain event
// through the Redis bridge.
func WithEventBridge() HarnessOption {
	return func(c *harnessConfig) {
		c.bridgeEnabled = true
	}
}

// NewTestHarness wires the full stack on in-memory stores and starts an
// HTTP test server. Resources are released via t.Cleanup.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	hc := harnessConfig{
		numberPrefix: "WF",
		maxRetries:   3,
	}
	for _, opt := range opts {
		opt(&hc)
	}

	h := &TestHarness{t: t}
	logger := zap.NewNop()
	metrics := observability.InitMetrics(prometheus.NewRegistry())

	h.Bus = bus.New(logger)
	t.Cleanup(h.Bus.Close)

	ledger := history.NewLedger(history.NewMemoryStore())
	ledger.OnAppend(dispatch.LedgerHook(metrics))
	h.Ledger = ledger

	var eng *engine.Engine
	h.Catalog = catalog.New(catalog.NewMemoryStore(), func(ctx context.Context, id string) (bool, error) {
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
		h.Bus,
		h.Catalog,
		engine.NewNumberGenerator(hc.numberPrefix),
		logger,
	)
	h.Engine = eng
	h.Tracker = engine.NewTracker(eng, stepStore, ledger, h.Bus, logger, hc.maxRetries)

	var bridge *bus.RedisBridge
	if hc.bridgeEnabled {
		srv := miniredis.RunT(t)
		h.RedisAddr = srv.Addr()
		client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
		t.Cleanup(func() { client.Close() })
		bridge = bus.NewRedisBridge(client, "procflow")
	}
	dispatch.Register(h.Bus, logger, metrics, bridge)

	if len(hc.definitionDirs) > 0 {
		dirs := make([]string, len(hc.definitionDirs))
		for i, dir := range hc.definitionDirs {
			dirs[i] = resolveTestdata(t, dir)
		}
		loader := catalog.NewLoader(h.Catalog)
		if _, err := loader.LoadAll(context.Background(), dirs); err != nil {
			t.Fatalf("loading definitions: %v", err)
		}
	}

	h.cfg = config.Defaults()
	h.cfg.Engine.InstanceNumberPrefix = hc.numberPrefix
	h.cfg.Engine.DefaultMaxRetries = hc.maxRetries
	h.cfg.Observability.Metrics.Enabled = false

	ready := observability.HandleReady(observability.ReadinessChecks{
		DefinitionsLoaded: func() bool {
			total, _, err := h.Catalog.Counts(context.Background())
			return err == nil && (len(hc.definitionDirs) == 0 || total > 0)
		},
		EventBridge: bridge,
	})

	router := transport.NewRouter(transport.Dependencies{
		Config:  h.cfg,
		Logger:  logger,
		Metrics: metrics,
		Ready:   ready,
		Catalog: h.Catalog,
		Engine:  h.Engine,
		Tracker: h.Tracker,
		Ledger:  h.Ledger,
		Stats:   stats.NewProvider(h.Catalog, h.Engine),
	})

	h.server = httptest.NewServer(router)
	t.Cleanup(h.server.Close)
	return h
}

// BaseURL returns the test server's base URL.
func (h *TestHarness) BaseURL() string {
	return h.server.URL
}

// GET performs a GET request.
func (h *TestHarness) GET(path string) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodGet, path, nil, nil)
}

// POST performs a POST request with a JSON body.
func (h *TestHarness) POST(path string, body any) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodPost, path, body, nil)
}

// PATCH performs a PATCH request with a JSON body.
func (h *TestHarness) PATCH(path string, body any) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodPatch, path, body, nil)
}

// POSTWithHeaders performs a POST request with additional headers.
func (h *TestHarness) POSTWithHeaders(path string, body any, headers map[string]string) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodPost, path, body, headers)
}

func (h *TestHarness) doRequest(method, path string, body any, headers map[string]string) *http.Response {
	h.t.Helper()

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
		bodyReader = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(context.Background(), method, h.server.URL+path, bodyReader)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Actor-Id", "user-integration")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

// ParseJSON reads the response body and unmarshals it into the target.
func (h *TestHarness) ParseJSON(resp *http.Response, target any) {
	h.t.Helper()
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		h.t.Fatalf("unmarshal response body: %v\nbody: %s", err, string(data))
	}
}

// AssertStatus checks that the response has the expected status code.
func (h *TestHarness) AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Errorf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
}

// AssertJSON checks that the response has the expected status and parses
// the body.
func (h *TestHarness) AssertJSON(t *testing.T, resp *http.Response, expected int, target any) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
	h.ParseJSON(resp, target)
}

// resolveTestdata resolves a path relative to the testdata directory next
// to this file.
func resolveTestdata(t *testing.T, path string) string {
	t.Helper()
	if filepath.IsAbs(path) {
		return path
	}
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("resolving caller path")
	}
	return filepath.Join(filepath.Dir(thisFile), "testdata", path)
}
