package catalog

import (
	"context"
	"testing"

	"github.com/venlo/procflow/model"
)

func newTestCatalog(referenced bool) *Catalog {
	return New(NewMemoryStore(), func(_ context.Context, _ string) (bool, error) {
		return referenced, nil
	})
}

func mustCreate(t *testing.T, cat *Catalog, name string, typ model.ProcessType) model.Definition {
	t.Helper()
	def, err := cat.Create(context.Background(), model.Definition{
		Name: name,
		Type: typ,
		Steps: []model.StepTemplate{
			{ID: "receive", Name: "Receive", Kind: model.StepKindAction},
			{ID: "inspect", Name: "Inspect", Kind: model.StepKindApproval},
		},
	})
	if err != nil {
		t.Fatalf("Create(%s): %v", name, err)
	}
	return def
}

func TestCatalog_CreateDefaults(t *testing.T) {
	cat := newTestCatalog(false)

	def := mustCreate(t, cat, "order-fulfillment", model.ProcessOrderFulfillment)
	if def.ID == "" {
		t.Error("expected generated ID")
	}
	if def.Status != model.DefinitionDraft {
		t.Errorf("Status = %s, want draft", def.Status)
	}
	if def.Version != 1 {
		t.Errorf("Version = %d, want 1", def.Version)
	}

	// Type defaults to custom when omitted.
	def2, err := cat.Create(context.Background(), model.Definition{Name: "ad-hoc"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if def2.Type != model.ProcessCustom {
		t.Errorf("Type = %s, want custom", def2.Type)
	}
}

func TestCatalog_CreateValidation(t *testing.T) {
	cat := newTestCatalog(false)

	_, err := cat.Create(context.Background(), model.Definition{})
	if !model.IsCode(err, model.ErrValidation) {
		t.Fatalf("err = %v, want VALIDATION_ERROR", err)
	}

	_, err = cat.Create(context.Background(), model.Definition{Name: "x", Type: "bogus"})
	if !model.IsCode(err, model.ErrValidation) {
		t.Fatalf("err = %v, want VALIDATION_ERROR for unknown type", err)
	}
}

func TestCatalog_CreateDuplicateName(t *testing.T) {
	cat := newTestCatalog(false)
	mustCreate(t, cat, "procurement", model.ProcessProcurement)

	_, err := cat.Create(context.Background(), model.Definition{Name: "procurement"})
	if !model.IsCode(err, model.ErrConflict) {
		t.Fatalf("err = %v, want CONFLICT", err)
	}
}

func TestCatalog_StatusTransitions(t *testing.T) {
	cat := newTestCatalog(false)
	ctx := context.Background()
	def := mustCreate(t, cat, "inspection", model.ProcessQualityInspection)

	def, err := cat.Activate(ctx, def.ID)
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if def.Status != model.DefinitionActive {
		t.Errorf("Status = %s, want active", def.Status)
	}

	// Active definitions cannot be activated again or archived directly.
	if _, err := cat.Activate(ctx, def.ID); !model.IsCode(err, model.ErrInvalidState) {
		t.Errorf("Activate(active) err = %v, want INVALID_STATE", err)
	}
	if _, err := cat.Archive(ctx, def.ID); !model.IsCode(err, model.ErrInvalidState) {
		t.Errorf("Archive(active) err = %v, want INVALID_STATE", err)
	}

	def, err = cat.Deactivate(ctx, def.ID)
	if err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if def.Status != model.DefinitionInactive {
		t.Errorf("Status = %s, want inactive", def.Status)
	}

	def, err = cat.Archive(ctx, def.ID)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if def.Status != model.DefinitionArchived {
		t.Errorf("Status = %s, want archived", def.Status)
	}

	// Archived is terminal for the catalog.
	if _, err := cat.Activate(ctx, def.ID); !model.IsCode(err, model.ErrInvalidState) {
		t.Errorf("Activate(archived) err = %v, want INVALID_STATE", err)
	}
}

func TestCatalog_UpdateStructuralBumpsVersionWhenReferenced(t *testing.T) {
	cat := newTestCatalog(true)
	ctx := context.Background()
	def := mustCreate(t, cat, "fulfillment", model.ProcessOrderFulfillment)

	updated, err := cat.Update(ctx, def.ID, model.DefinitionPatch{
		Steps: []model.StepTemplate{
			{ID: "receive", Name: "Receive", Kind: model.StepKindAction},
		},
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Version != 2 {
		t.Errorf("Version = %d, want 2 after structural change", updated.Version)
	}
	if len(updated.Steps) != 1 {
		t.Errorf("len(Steps) = %d, want 1", len(updated.Steps))
	}
}

func TestCatalog_UpdateNonStructuralKeepsVersion(t *testing.T) {
	cat := newTestCatalog(true)
	ctx := context.Background()
	def := mustCreate(t, cat, "fulfillment", model.ProcessOrderFulfillment)

	name := "fulfillment-v2"
	updated, err := cat.Update(ctx, def.ID, model.DefinitionPatch{
		Name:     &name,
		Metadata: map[string]any{"owner": "ops"},
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Version != 1 {
		t.Errorf("Version = %d, want 1 for metadata-only change", updated.Version)
	}
	if updated.Name != "fulfillment-v2" {
		t.Errorf("Name = %q", updated.Name)
	}
}

func TestCatalog_UpdateStructuralUnreferencedKeepsVersion(t *testing.T) {
	cat := newTestCatalog(false)
	ctx := context.Background()
	def := mustCreate(t, cat, "fulfillment", model.ProcessOrderFulfillment)

	updated, err := cat.Update(ctx, def.ID, model.DefinitionPatch{
		Triggers: []model.Trigger{{Event: "order.confirmed", Conditions: map[string]string{"status": "confirmed"}}},
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Version != 1 {
		t.Errorf("Version = %d, want 1 when nothing references the definition", updated.Version)
	}
}

func TestCatalog_ListAndCounts(t *testing.T) {
	cat := newTestCatalog(false)
	ctx := context.Background()

	a := mustCreate(t, cat, "a", model.ProcessOrderFulfillment)
	mustCreate(t, cat, "b", model.ProcessProcurement)
	if _, err := cat.Activate(ctx, a.ID); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	active, err := cat.List(ctx, model.DefinitionFilters{Status: model.DefinitionActive})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(active) != 1 {
		t.Errorf("active definitions = %d, want 1", len(active))
	}

	byType, err := cat.List(ctx, model.DefinitionFilters{Type: model.ProcessProcurement})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(byType) != 1 {
		t.Errorf("procurement definitions = %d, want 1", len(byType))
	}

	total, activeCount, err := cat.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if total != 2 || activeCount != 1 {
		t.Errorf("Counts = (%d, %d), want (2, 1)", total, activeCount)
	}
}

func TestCatalog_GetNotFound(t *testing.T) {
	cat := newTestCatalog(false)
	_, err := cat.Get(context.Background(), "no-such-id")
	if !model.IsCode(err, model.ErrNotFound) {
		t.Fatalf("err = %v, want NOT_FOUND", err)
	}
}
