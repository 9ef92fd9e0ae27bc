// Package stats computes the read-side rollup over catalog and engine
// state. It has no side effects.
package stats

import (
	"context"

	"github.com/venlo/procflow/model"
)

// DefinitionCounter exposes definition counts; the catalog satisfies it.
type DefinitionCounter interface {
	Counts(ctx context.Context) (total, active int, err error)
}

// InstanceCounter exposes instance counts; the engine satisfies it.
type InstanceCounter interface {
	CountByStatus(ctx context.Context, status model.InstanceStatus) (int, error)
}

// Overview is the aggregate snapshot returned to callers.
type Overview struct {
	TotalDefinitions   int `json:"total_definitions"`
	ActiveDefinitions  int `json:"active_definitions"`
	TotalInstances     int `json:"total_instances"`
	RunningInstances   int `json:"running_instances"`
	CompletedInstances int `json:"completed_instances"`
	FailedInstances    int `json:"failed_instances"`
}

// Provider computes overviews on demand.
type Provider struct {
	definitions DefinitionCounter
	instances   InstanceCounter
}

// NewProvider creates a stats provider.
func NewProvider(definitions DefinitionCounter, instances InstanceCounter) *Provider {
	return &Provider{definitions: definitions, instances: instances}
}

// Overview returns the current aggregate counts.
func (p *Provider) Overview(ctx context.Context) (Overview, error) {
	var o Overview
	var err error

	if o.TotalDefinitions, o.ActiveDefinitions, err = p.definitions.Counts(ctx); err != nil {
		return Overview{}, err
	}
	if o.TotalInstances, err = p.instances.CountByStatus(ctx, ""); err != nil {
		return Overview{}, err
	}
	if o.RunningInstances, err = p.instances.CountByStatus(ctx, model.InstanceRunning); err != nil {
		return Overview{}, err
	}
	if o.CompletedInstances, err = p.instances.CountByStatus(ctx, model.InstanceCompleted); err != nil {
		return Overview{}, err
	}
	if o.FailedInstances, err = p.instances.CountByStatus(ctx, model.InstanceFailed); err != nil {
		return Overview{}, err
	}
	return o, nil
}
