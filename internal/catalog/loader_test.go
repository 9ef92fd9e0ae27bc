package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/venlo/procflow/model"
)

const fulfillmentSeed = `
name: order-fulfillment
type: order_fulfillment
activate: true
triggers:
  - event: order.confirmed
steps:
  - id: reserve-stock
    name: Reserve Stock
    kind: action
  - id: pick-pack
    name: Pick and Pack
    kind: action
  - id: quality-check
    name: Quality Check
    kind: approval
    max_retries: 1
metadata:
  owner: fulfillment-team
`

const draftSeed = `
name: procurement-draft
type: procurement
steps:
  - id: raise-po
    name: Raise Purchase Order
    kind: action
`

func writeSeed(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
}

func TestLoader_LoadAll(t *testing.T) {
	dir := t.TempDir()
	writeSeed(t, dir, "fulfillment.yaml", fulfillmentSeed)
	writeSeed(t, dir, "procurement.yml", draftSeed)
	writeSeed(t, dir, "notes.txt", "not a seed")

	cat := newTestCatalog(false)
	loader := NewLoader(cat)

	created, err := loader.LoadAll(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("created = %d, want 2", len(created))
	}

	defs, err := cat.List(context.Background(), model.DefinitionFilters{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("definitions = %d, want 2", len(defs))
	}
}

func TestLoader_ActivateFlag(t *testing.T) {
	dir := t.TempDir()
	writeSeed(t, dir, "fulfillment.yaml", fulfillmentSeed)
	writeSeed(t, dir, "procurement.yaml", draftSeed)

	cat := newTestCatalog(false)
	if _, err := NewLoader(cat).LoadAll(context.Background(), []string{dir}); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}

	active, err := cat.List(context.Background(), model.DefinitionFilters{Status: model.DefinitionActive})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(active) != 1 || active[0].Name != "order-fulfillment" {
		t.Fatalf("active = %v, want only order-fulfillment", active)
	}
	if len(active) == 1 && len(active[0].Steps) != 3 {
		t.Errorf("steps = %d, want 3", len(active[0].Steps))
	}
}

func TestLoader_SkipsExistingNames(t *testing.T) {
	dir := t.TempDir()
	writeSeed(t, dir, "fulfillment.yaml", fulfillmentSeed)

	cat := newTestCatalog(false)
	loader := NewLoader(cat)
	ctx := context.Background()

	if _, err := loader.LoadAll(ctx, []string{dir}); err != nil {
		t.Fatalf("first LoadAll: %v", err)
	}

	// A second pass over the same directory must not duplicate or fail.
	created, err := loader.LoadAll(ctx, []string{dir})
	if err != nil {
		t.Fatalf("second LoadAll: %v", err)
	}
	if len(created) != 0 {
		t.Errorf("created on rerun = %d, want 0", len(created))
	}

	total, _, err := cat.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if total != 1 {
		t.Errorf("total = %d, want 1", total)
	}
}
