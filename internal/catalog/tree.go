package catalog

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/benvon/questlog/internal/models"
	"github.com/benvon/questlog/internal/store"
)

// TreeProvider reads task templates from the shared tree under tasks/.
// Achievements, ranks and ranked tasks come from Base since they are not edited remotely.
type TreeProvider struct {
	tree store.Tree
	base Provider
}

// NewTreeProvider creates a provider over tree with base supplying everything except tasks
func NewTreeProvider(tree store.Tree, base Provider) *TreeProvider {
	return &TreeProvider{tree: tree, base: base}
}

func (p *TreeProvider) Load(ctx context.Context) (*models.Catalog, error) {
	c, err := p.base.Load(ctx)
	if err != nil {
		return nil, err
	}

	var byID map[string]models.TaskTemplate
	found, err := store.Decode(ctx, p.tree, store.CatalogRoot, &byID)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog tasks: %w", err)
	}
	if !found {
		return c, nil
	}

	out := *c
	out.Tasks = make([]models.TaskTemplate, 0, len(byID))
	for id, tpl := range byID {
		if tpl.ID == "" {
			tpl.ID = id
		}
		out.Tasks = append(out.Tasks, tpl)
	}
	sortTemplates(out.Tasks)
	if err := Validate(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Watch calls fn after every write under tasks/ until ctx is done
func (p *TreeProvider) Watch(ctx context.Context, fn func()) error {
	return p.tree.Subscribe(ctx, store.CatalogRoot, func(string) { fn() })
}

// Seed replaces the tasks/ subtree with the catalog's templates in one update
func Seed(ctx context.Context, tree store.Tree, c *models.Catalog) error {
	if err := Validate(c); err != nil {
		return err
	}
	byID := make(map[string]models.TaskTemplate, len(c.Tasks))
	for _, t := range c.Tasks {
		byID[t.ID] = t
	}
	if err := tree.Update(ctx, map[string]any{store.CatalogRoot: byID}); err != nil {
		return fmt.Errorf("failed to seed catalog: %w", err)
	}
	return nil
}

// PutTask writes a single template to tasks/{id}
func PutTask(ctx context.Context, tree store.Tree, t models.TaskTemplate) error {
	if err := Validate(&models.Catalog{Tasks: []models.TaskTemplate{t}}); err != nil {
		return err
	}
	return tree.Update(ctx, map[string]any{store.CatalogTaskPath(t.ID): t})
}

var _ Provider = (*TreeProvider)(nil)

func sortTemplates(tasks []models.TaskTemplate) {
	sort.SliceStable(tasks, func(i, j int) bool {
		ai, aErr := strconv.Atoi(tasks[i].ID)
		bi, bErr := strconv.Atoi(tasks[j].ID)
		if aErr == nil && bErr == nil {
			return ai < bi
		}
		if (aErr == nil) != (bErr == nil) {
			return aErr == nil
		}
		return tasks[i].ID < tasks[j].ID
	})
}
