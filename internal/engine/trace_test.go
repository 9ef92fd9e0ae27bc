package engine

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/venlo/procflow/model"
)

func setupSpanExporter(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
	})
	return exporter
}

func TestEngine_OperationsEmitSpans(t *testing.T) {
	exporter := setupSpanExporter(t)
	rig := newTestRig(t)
	ctx := context.Background()

	inst := createInstance(t, rig)
	if _, err := rig.engine.Start(ctx, inst.ID, "user-clerk"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	step, err := rig.tracker.Create(ctx, CreateStepInput{
		InstanceID: inst.ID,
		Name:       "Reserve Stock",
		ActorID:    "user-clerk",
	})
	if err != nil {
		t.Fatalf("Create step: %v", err)
	}
	if _, err := rig.tracker.Start(ctx, step.ID, "", "user-clerk"); err != nil {
		t.Fatalf("Start step: %v", err)
	}
	if _, err := rig.tracker.Complete(ctx, step.ID, nil, "user-clerk"); err != nil {
		t.Fatalf("Complete step: %v", err)
	}

	byName := map[string]tracetest.SpanStub{}
	for _, s := range exporter.GetSpans() {
		byName[s.Name] = s
	}
	for _, name := range []string{
		"engine.create_instance",
		"engine.instance_started",
		"tracker.create_step",
		"tracker.start_step",
		"tracker.complete_step",
	} {
		if _, ok := byName[name]; !ok {
			t.Errorf("missing span %q", name)
		}
	}

	attrs := stubAttrMap(byName["engine.create_instance"])
	if attrs["procflow.definition_id"] != "def-fulfillment" {
		t.Errorf("procflow.definition_id = %q, want def-fulfillment", attrs["procflow.definition_id"])
	}
	if attrs["procflow.source_type"] != "sales_order" {
		t.Errorf("procflow.source_type = %q, want sales_order", attrs["procflow.source_type"])
	}
	if attrs["procflow.instance_id"] != inst.ID {
		t.Errorf("procflow.instance_id = %q, want %q", attrs["procflow.instance_id"], inst.ID)
	}

	attrs = stubAttrMap(byName["tracker.complete_step"])
	if attrs["procflow.step_id"] != step.ID {
		t.Errorf("procflow.step_id = %q, want %q", attrs["procflow.step_id"], step.ID)
	}
	if attrs["procflow.instance_id"] != inst.ID {
		t.Errorf("procflow.instance_id = %q, want %q", attrs["procflow.instance_id"], inst.ID)
	}
}

func TestTracker_InvalidTransitionRecordsErrorSpan(t *testing.T) {
	exporter := setupSpanExporter(t)
	rig := newTestRig(t)
	ctx := context.Background()

	inst := createInstance(t, rig)
	if _, err := rig.engine.Start(ctx, inst.ID, "user-clerk"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	step, err := rig.tracker.Create(ctx, CreateStepInput{
		InstanceID: inst.ID,
		Name:       "Reserve Stock",
		ActorID:    "user-clerk",
	})
	if err != nil {
		t.Fatalf("Create step: %v", err)
	}

	// Completing a step that never started is an invalid transition.
	if _, err := rig.tracker.Complete(ctx, step.ID, nil, "user-clerk"); err == nil {
		t.Fatal("expected error completing a pending step")
	} else if !model.IsCode(err, model.ErrInvalidState) {
		t.Fatalf("error = %v, want %s", err, model.ErrInvalidState)
	}

	var found bool
	for _, s := range exporter.GetSpans() {
		if s.Name == "tracker.complete_step" {
			found = true
			if s.Status.Code != codes.Error {
				t.Errorf("status code = %v, want Error", s.Status.Code)
			}
		}
	}
	if !found {
		t.Fatal("missing tracker.complete_step span")
	}
}

func stubAttrMap(s tracetest.SpanStub) map[string]string {
	m := make(map[string]string)
	for _, a := range s.Attributes {
		m[string(a.Key)] = a.Value.Emit()
	}
	return m
}
