package transport

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/venlo/procflow/internal/history"
	"github.com/venlo/procflow/internal/stats"
	"github.com/venlo/procflow/model"
)

func handleInstanceHistory(ledger *history.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := ledger.ByInstance(r.Context(),
			chi.URLParam(r, "instanceID"), queryInt(r, "limit", 0))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"data":  entries,
			"count": len(entries),
		})
	}
}

// handleHistoryFeed serves the global feed. With an event_type query it
// filters by type and optional from/to dates.
func handleHistoryFeed(ledger *history.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit := queryInt(r, "limit", 0)

		var entries []model.HistoryEntry
		var err error
		if eventType := q.Get("event_type"); eventType != "" {
			filters := model.HistoryFilters{
				Type:  model.EventType(eventType),
				Limit: limit,
			}
			if filters.FromDate, err = queryTime(q.Get("from")); err != nil {
				WriteError(w, model.NewValidationError(model.FieldError{
					Field: "from", Code: "invalid", Message: "from must be RFC 3339",
				}))
				return
			}
			if filters.ToDate, err = queryTime(q.Get("to")); err != nil {
				WriteError(w, model.NewValidationError(model.FieldError{
					Field: "to", Code: "invalid", Message: "to must be RFC 3339",
				}))
				return
			}
			entries, err = ledger.ByEventType(r.Context(), filters)
		} else {
			entries, err = ledger.Recent(r.Context(), limit)
		}
		if err != nil {
			WriteError(w, err)
			return
		}

		WriteJSON(w, http.StatusOK, map[string]any{
			"data":  entries,
			"count": len(entries),
		})
	}
}

func handleStats(provider *stats.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		overview, err := provider.Overview(r.Context())
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, overview)
	}
}

func queryTime(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
