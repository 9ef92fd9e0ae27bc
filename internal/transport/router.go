package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/venlo/procflow/internal/catalog"
	"github.com/venlo/procflow/internal/config"
	"github.com/venlo/procflow/internal/engine"
	"github.com/venlo/procflow/internal/history"
	"github.com/venlo/procflow/internal/observability"
	"github.com/venlo/procflow/internal/stats"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics
	Ready   http.HandlerFunc

	Catalog *catalog.Catalog
	Engine  *engine.Engine
	Tracker *engine.Tracker
	Ledger  *history.Ledger
	Stats   *stats.Provider
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints bypass the
// request logging and instrumentation middleware.
func NewRouter(deps Dependencies) chi.Router {
	r := chi.NewRouter()

	r.Use(Recovery(deps.Logger))
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)

	r.Get("/healthz", observability.HandleHealth())
	if deps.Ready != nil {
		r.Get("/readyz", deps.Ready)
	}
	if deps.Config.Observability.Metrics.Enabled {
		r.Handle(deps.Config.Observability.Metrics.Path, observability.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(RequestLogging(deps.Logger))
		r.Use(MetricsRecording(deps.Metrics))

		r.Route("/definitions", func(r chi.Router) {
			r.Post("/", handleDefinitionCreate(deps.Catalog))
			r.Get("/", handleDefinitionList(deps.Catalog))
			r.Route("/{definitionID}", func(r chi.Router) {
				r.Get("/", handleDefinitionGet(deps.Catalog))
				r.Patch("/", handleDefinitionUpdate(deps.Catalog))
				r.Post("/activate", handleDefinitionTransition(deps.Catalog.Activate))
				r.Post("/deactivate", handleDefinitionTransition(deps.Catalog.Deactivate))
				r.Post("/archive", handleDefinitionTransition(deps.Catalog.Archive))
			})
		})

		r.Route("/instances", func(r chi.Router) {
			r.Post("/", handleInstanceCreate(deps.Engine))
			r.Get("/", handleInstanceList(deps.Engine))
			r.Get("/by-number/{number}", handleInstanceGetByNumber(deps.Engine))
			r.Get("/by-source/{sourceType}/{sourceID}", handleInstanceGetBySource(deps.Engine))
			r.Route("/{instanceID}", func(r chi.Router) {
				r.Get("/", handleInstanceGet(deps.Engine))
				r.Post("/start", handleInstanceTransition(deps.Engine.Start))
				r.Post("/pause", handleInstanceTransition(deps.Engine.Pause))
				r.Post("/resume", handleInstanceTransition(deps.Engine.Resume))
				r.Post("/complete", handleInstanceTransition(deps.Engine.Complete))
				r.Post("/fail", handleInstanceFail(deps.Engine))
				r.Post("/cancel", handleInstanceCancel(deps.Engine))
				r.Patch("/context", handleInstanceContext(deps.Engine))
				r.Get("/history", handleInstanceHistory(deps.Ledger))
				r.Post("/steps", handleStepCreate(deps.Tracker))
				r.Get("/steps", handleStepList(deps.Tracker))
			})
		})

		r.Route("/steps/{stepID}", func(r chi.Router) {
			r.Get("/", handleStepGet(deps.Tracker))
			r.Post("/start", handleStepStart(deps.Tracker))
			r.Post("/complete", handleStepComplete(deps.Tracker))
			r.Post("/fail", handleStepFail(deps.Tracker))
			r.Post("/retry", handleStepTransition(deps.Tracker.Retry))
			r.Post("/skip", handleStepTransition(deps.Tracker.Skip))
			r.Post("/wait", handleStepTransition(deps.Tracker.MarkWaiting))
		})

		r.Get("/history", handleHistoryFeed(deps.Ledger))
		r.Get("/stats", handleStats(deps.Stats))
	})

	return r
}

// actorFrom reads the acting user from the X-Actor-Id request header.
func actorFrom(r *http.Request) string {
	return r.Header.Get("X-Actor-Id")
}
