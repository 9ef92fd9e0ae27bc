package transport

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/venlo/procflow/internal/engine"
	"github.com/venlo/procflow/model"
)

func handleInstanceCreate(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			DefinitionID string         `json:"definition_id"`
			SourceType   string         `json:"source_type"`
			SourceID     string         `json:"source_id"`
			SourceNumber string         `json:"source_number"`
			Context      map[string]any `json:"context"`
			Priority     model.Priority `json:"priority"`
			DueAt        *time.Time     `json:"due_at"`
		}
		if err := decodeBody(r, &body); err != nil {
			WriteBadBody(w)
			return
		}

		inst, err := eng.Create(r.Context(), engine.CreateInstanceInput{
			DefinitionID: body.DefinitionID,
			SourceType:   body.SourceType,
			SourceID:     body.SourceID,
			SourceNumber: body.SourceNumber,
			Context:      body.Context,
			Priority:     body.Priority,
			DueAt:        body.DueAt,
			ActorID:      actorFrom(r),
		})
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, inst)
	}
}

func handleInstanceGet(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		inst, err := eng.Get(r.Context(), chi.URLParam(r, "instanceID"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, inst)
	}
}

func handleInstanceGetByNumber(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		inst, err := eng.GetByNumber(r.Context(), chi.URLParam(r, "number"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, inst)
	}
}

func handleInstanceGetBySource(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		instances, err := eng.GetBySource(r.Context(),
			chi.URLParam(r, "sourceType"), chi.URLParam(r, "sourceID"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"data":  instances,
			"count": len(instances),
		})
	}
}

func handleInstanceList(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filters := model.InstanceFilters{
			Status:     model.InstanceStatus(r.URL.Query().Get("status")),
			Priority:   model.Priority(r.URL.Query().Get("priority")),
			SourceType: r.URL.Query().Get("source_type"),
			Limit:      queryInt(r, "limit", 50),
			Offset:     queryInt(r, "offset", 0),
		}

		instances, err := eng.List(r.Context(), filters)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"data":   instances,
			"count":  len(instances),
			"limit":  filters.Limit,
			"offset": filters.Offset,
		})
	}
}

func handleInstanceTransition(op func(ctx context.Context, id, actorID string) (model.Instance, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		inst, err := op(r.Context(), chi.URLParam(r, "instanceID"), actorFrom(r))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, inst)
	}
}

func handleInstanceFail(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Error        string         `json:"error"`
			ErrorDetails map[string]any `json:"error_details"`
		}
		if err := decodeBody(r, &body); err != nil {
			WriteBadBody(w)
			return
		}

		inst, err := eng.Fail(r.Context(), chi.URLParam(r, "instanceID"),
			body.Error, body.ErrorDetails, actorFrom(r))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, inst)
	}
}

func handleInstanceCancel(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Reason string `json:"reason"`
		}
		if err := decodeBody(r, &body); err != nil {
			WriteBadBody(w)
			return
		}

		inst, err := eng.Cancel(r.Context(), chi.URLParam(r, "instanceID"),
			body.Reason, actorFrom(r))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, inst)
	}
}

func handleInstanceContext(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Context map[string]any `json:"context"`
		}
		if err := decodeBody(r, &body); err != nil {
			WriteBadBody(w)
			return
		}

		inst, err := eng.UpdateContext(r.Context(), chi.URLParam(r, "instanceID"),
			body.Context, actorFrom(r))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, inst)
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
