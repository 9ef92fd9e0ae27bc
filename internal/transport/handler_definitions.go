package transport

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/venlo/procflow/internal/catalog"
	"github.com/venlo/procflow/model"
)

func handleDefinitionCreate(cat *catalog.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var def model.Definition
		if err := decodeBody(r, &def); err != nil {
			WriteBadBody(w)
			return
		}

		created, err := cat.Create(r.Context(), def)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, created)
	}
}

func handleDefinitionGet(cat *catalog.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		def, err := cat.Get(r.Context(), chi.URLParam(r, "definitionID"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, def)
	}
}

func handleDefinitionList(cat *catalog.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filters := model.DefinitionFilters{
			Type:   model.ProcessType(r.URL.Query().Get("type")),
			Status: model.DefinitionStatus(r.URL.Query().Get("status")),
		}

		defs, err := cat.List(r.Context(), filters)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"data":  defs,
			"count": len(defs),
		})
	}
}

func handleDefinitionUpdate(cat *catalog.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch model.DefinitionPatch
		if err := decodeBody(r, &patch); err != nil {
			WriteBadBody(w)
			return
		}

		def, err := cat.Update(r.Context(), chi.URLParam(r, "definitionID"), patch)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, def)
	}
}

func handleDefinitionTransition(op func(ctx context.Context, id string) (model.Definition, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		def, err := op(r.Context(), chi.URLParam(r, "definitionID"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, def)
	}
}
