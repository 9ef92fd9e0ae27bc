package transport

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/venlo/procflow/internal/engine"
	"github.com/venlo/procflow/model"
)

func handleStepCreate(tracker *engine.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			TemplateID string         `json:"template_id"`
			Name       string         `json:"name"`
			Kind       model.StepKind `json:"kind"`
			Order      int            `json:"order"`
			Input      map[string]any `json:"input"`
			MaxRetries int            `json:"max_retries"`
		}
		if err := decodeBody(r, &body); err != nil {
			WriteBadBody(w)
			return
		}

		step, err := tracker.Create(r.Context(), engine.CreateStepInput{
			InstanceID: chi.URLParam(r, "instanceID"),
			TemplateID: body.TemplateID,
			Name:       body.Name,
			Kind:       body.Kind,
			Order:      body.Order,
			Input:      body.Input,
			MaxRetries: body.MaxRetries,
			ActorID:    actorFrom(r),
		})
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, step)
	}
}

func handleStepList(tracker *engine.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		steps, err := tracker.ListByInstance(r.Context(), chi.URLParam(r, "instanceID"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"data":  steps,
			"count": len(steps),
		})
	}
}

func handleStepGet(tracker *engine.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		step, err := tracker.Get(r.Context(), chi.URLParam(r, "stepID"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, step)
	}
}

func handleStepStart(tracker *engine.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			JobRef string `json:"job_ref"`
		}
		if err := decodeBody(r, &body); err != nil {
			WriteBadBody(w)
			return
		}

		step, err := tracker.Start(r.Context(), chi.URLParam(r, "stepID"),
			body.JobRef, actorFrom(r))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, step)
	}
}

func handleStepComplete(tracker *engine.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Output map[string]any `json:"output"`
		}
		if err := decodeBody(r, &body); err != nil {
			WriteBadBody(w)
			return
		}

		step, err := tracker.Complete(r.Context(), chi.URLParam(r, "stepID"),
			body.Output, actorFrom(r))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, step)
	}
}

func handleStepFail(tracker *engine.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Error        string         `json:"error"`
			ErrorDetails map[string]any `json:"error_details"`
		}
		if err := decodeBody(r, &body); err != nil {
			WriteBadBody(w)
			return
		}

		step, err := tracker.Fail(r.Context(), chi.URLParam(r, "stepID"),
			body.Error, body.ErrorDetails, actorFrom(r))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, step)
	}
}

func handleStepTransition(op func(ctx context.Context, id, actorID string) (model.Step, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		step, err := op(r.Context(), chi.URLParam(r, "stepID"), actorFrom(r))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, step)
	}
}
