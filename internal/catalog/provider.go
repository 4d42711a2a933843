// Package catalog loads the static task, achievement and rank definitions.
package catalog

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"github.com/benvon/questlog/internal/engine"
	"github.com/benvon/questlog/internal/models"
	"github.com/benvon/questlog/internal/validation"
	"gopkg.in/yaml.v3"
)

//go:embed default_catalog.yaml
var defaultCatalog []byte

// Provider loads a catalog
type Provider interface {
	Load(ctx context.Context) (*models.Catalog, error)
}

// FileProvider reads a YAML catalog from disk, or the built-in catalog when Path is empty
type FileProvider struct {
	Path string
}

// NewFileProvider creates a provider for path
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{Path: path}
}

func (p *FileProvider) Load(ctx context.Context) (*models.Catalog, error) {
	data := defaultCatalog
	if p.Path != "" {
		raw, err := os.ReadFile(p.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog file: %w", err)
		}
		data = raw
	}
	return Parse(data)
}

// Default returns the built-in catalog
func Default() (*models.Catalog, error) {
	return Parse(defaultCatalog)
}

// Parse decodes and validates a YAML catalog
func Parse(data []byte) (*models.Catalog, error) {
	var c models.Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if err := Validate(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks field constraints and cross references. Failures wrap engine.ErrValidation.
func Validate(c *models.Catalog) error {
	if err := validation.Validate.Struct(c); err != nil {
		return fmt.Errorf("%w: invalid catalog: %v", engine.ErrValidation, err)
	}

	ids := make(map[string]bool, len(c.Tasks))
	for _, t := range c.Tasks {
		if ids[t.ID] {
			return fmt.Errorf("%w: duplicate task id %q", engine.ErrValidation, t.ID)
		}
		ids[t.ID] = true
	}
	for _, a := range c.Achievements {
		if !ids[a.TaskID] {
			return fmt.Errorf("%w: achievement %q references unknown task %q", engine.ErrValidation, a.ID, a.TaskID)
		}
	}

	levels := make(map[int]bool, len(c.Ranks))
	for _, r := range c.Ranks {
		if r.Level < 1 || levels[r.Level] {
			return fmt.Errorf("%w: invalid or duplicate rank level %d", engine.ErrValidation, r.Level)
		}
		levels[r.Level] = true
	}

	ranked := make(map[string]bool, len(c.RankedTasks))
	for _, r := range c.RankedTasks {
		if ranked[r.ID] {
			return fmt.Errorf("%w: duplicate ranked task id %q", engine.ErrValidation, r.ID)
		}
		ranked[r.ID] = true
	}
	return nil
}

var _ Provider = (*FileProvider)(nil)
