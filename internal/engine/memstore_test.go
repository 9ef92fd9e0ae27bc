package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/venlo/procflow/model"
)

func seedInstance(t *testing.T, store *MemoryInstanceStore, n int, status model.InstanceStatus) model.Instance {
	t.Helper()
	inst := model.Instance{
		ID:       fmt.Sprintf("inst-%d", n),
		Number:   fmt.Sprintf("WF-20250829-%06d", n),
		Status:   status,
		Priority: model.PriorityNormal,
		Source: model.SourceRef{
			Type:   "sales_order",
			ID:     fmt.Sprintf("ord-%d", n),
			Number: fmt.Sprintf("SO-%03d", n),
		},
		Version:   1,
		CreatedAt: time.Date(2025, 8, 29, 10, 0, n, 0, time.UTC),
	}
	if err := store.Create(context.Background(), inst); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return inst
}

func TestMemoryInstanceStore_DuplicateNumberRejected(t *testing.T) {
	store := NewMemoryInstanceStore()
	ctx := context.Background()
	seedInstance(t, store, 1, model.InstancePending)

	dup := model.Instance{ID: "other", Number: "WF-20250829-000001", Version: 1}
	if err := store.Create(ctx, dup); !model.IsCode(err, model.ErrConflict) {
		t.Errorf("err = %v, want CONFLICT on duplicate number", err)
	}
}

func TestMemoryInstanceStore_OptimisticLocking(t *testing.T) {
	store := NewMemoryInstanceStore()
	ctx := context.Background()
	inst := seedInstance(t, store, 1, model.InstancePending)

	inst.Status = model.InstanceRunning
	if err := store.Update(ctx, inst); err != nil {
		t.Fatalf("Update: %v", err)
	}

	// The first writer bumped the stored version; a stale copy must lose.
	stale := inst
	stale.Status = model.InstancePaused
	if err := store.Update(ctx, stale); !model.IsCode(err, model.ErrConflict) {
		t.Errorf("err = %v, want CONFLICT on stale version", err)
	}

	got, err := store.Get(ctx, inst.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Version != 2 {
		t.Errorf("Version = %d, want 2 after one update", got.Version)
	}
	if got.Status != model.InstanceRunning {
		t.Errorf("Status = %s, want the first writer's state", got.Status)
	}
}

func TestMemoryInstanceStore_ListFilters(t *testing.T) {
	store := NewMemoryInstanceStore()
	ctx := context.Background()
	seedInstance(t, store, 1, model.InstancePending)
	seedInstance(t, store, 2, model.InstanceRunning)
	seedInstance(t, store, 3, model.InstanceRunning)
	seedInstance(t, store, 4, model.InstanceCompleted)

	running, err := store.List(ctx, model.InstanceFilters{Status: model.InstanceRunning})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(running) != 2 {
		t.Fatalf("len = %d, want 2 running", len(running))
	}
	if running[0].ID != "inst-3" || running[1].ID != "inst-2" {
		t.Errorf("order = %s, %s, want newest first", running[0].ID, running[1].ID)
	}

	none, err := store.List(ctx, model.InstanceFilters{SourceType: "invoice"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("len = %d, want 0 for unmatched source type", len(none))
	}
}

func TestMemoryInstanceStore_ListPagination(t *testing.T) {
	store := NewMemoryInstanceStore()
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		seedInstance(t, store, i, model.InstancePending)
	}

	page, err := store.List(ctx, model.InstanceFilters{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("len = %d, want 2", len(page))
	}
	if page[0].ID != "inst-4" || page[1].ID != "inst-3" {
		t.Errorf("page = %s, %s, want inst-4, inst-3", page[0].ID, page[1].ID)
	}

	empty, err := store.List(ctx, model.InstanceFilters{Offset: 10})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("len = %d, want 0 past the end", len(empty))
	}
}

func TestMemoryInstanceStore_CountAndExists(t *testing.T) {
	store := NewMemoryInstanceStore()
	ctx := context.Background()
	first := model.Instance{
		ID:           "inst-1",
		Number:       "WF-20250829-000001",
		DefinitionID: "def-a",
		Status:       model.InstanceRunning,
		Version:      1,
	}
	if err := store.Create(ctx, first); err != nil {
		t.Fatalf("Create: %v", err)
	}
	seedInstance(t, store, 2, model.InstanceRunning)

	count, err := store.CountByStatus(ctx, model.InstanceRunning)
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}

	exists, err := store.ExistsForDefinition(ctx, "def-a")
	if err != nil {
		t.Fatalf("ExistsForDefinition: %v", err)
	}
	if !exists {
		t.Error("expected def-a to be referenced")
	}
	exists, err = store.ExistsForDefinition(ctx, "def-b")
	if err != nil {
		t.Fatalf("ExistsForDefinition: %v", err)
	}
	if exists {
		t.Error("expected def-b to be unreferenced")
	}
}
