package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/venlo/procflow/model"
)

// seedFile is the YAML shape of a definition seed file. Seed files carry the
// business process templates (sales-to-production, procurement, quality
// inspection) consumed by the core as configuration data.
type seedFile struct {
	Name     string               `yaml:"name"`
	Type     model.ProcessType    `yaml:"type"`
	Activate bool                 `yaml:"activate"`
	Triggers []model.Trigger      `yaml:"triggers"`
	Steps    []model.StepTemplate `yaml:"steps"`
	Metadata map[string]any       `yaml:"metadata"`
}

// Loader scans directories for YAML seed files and registers them through
// the catalog at boot. A seed whose name already exists is skipped; seeds
// never mutate existing definitions.
type Loader struct {
	catalog *Catalog
}

// NewLoader creates a seed loader writing through the given catalog.
func NewLoader(catalog *Catalog) *Loader {
	return &Loader{catalog: catalog}
}

// LoadAll recursively scans directories for *.yaml and *.yml files and
// registers each as a definition. It returns the definitions created in
// this pass.
func (l *Loader) LoadAll(ctx context.Context, directories []string) ([]model.Definition, error) {
	var created []model.Definition

	for _, dir := range directories {
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			ext := strings.ToLower(filepath.Ext(path))
			if ext != ".yaml" && ext != ".yml" {
				return nil
			}

			def, loaded, err := l.LoadFile(ctx, path)
			if err != nil {
				return fmt.Errorf("loading %s: %w", path, err)
			}
			if loaded {
				created = append(created, def)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scanning directory %s: %w", dir, err)
		}
	}

	return created, nil
}

// LoadFile parses a single YAML seed file and registers it. The second
// return value is false when a definition with the same name already exists.
func (l *Loader) LoadFile(ctx context.Context, path string) (model.Definition, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Definition{}, false, fmt.Errorf("reading %s: %w", path, err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return model.Definition{}, false, fmt.Errorf("parsing %s: %w", path, err)
	}

	def, err := l.catalog.Create(ctx, model.Definition{
		Name:     seed.Name,
		Type:     seed.Type,
		Triggers: seed.Triggers,
		Steps:    seed.Steps,
		Metadata: seed.Metadata,
	})
	if err != nil {
		if model.IsCode(err, model.ErrConflict) {
			return model.Definition{}, false, nil
		}
		return model.Definition{}, false, err
	}

	if seed.Activate {
		def, err = l.catalog.Activate(ctx, def.ID)
		if err != nil {
			return model.Definition{}, false, err
		}
	}

	return def, true, nil
}
