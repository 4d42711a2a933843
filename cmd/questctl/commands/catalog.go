package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/benvon/questlog/internal/app"
	"github.com/benvon/questlog/internal/catalog"
	"github.com/spf13/cobra"
)

// NewCatalogCmd creates the catalog command
func NewCatalogCmd(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect and seed the task catalog",
	}
	cmd.AddCommand(newCatalogListCmd(open))
	cmd.AddCommand(newCatalogSeedCmd(open))
	return cmd
}

func newCatalogListCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the task templates of the active catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, open, func(ctx context.Context, rt *app.Runtime) error {
				c := rt.Manager.Engine().Catalog()
				out := cmd.OutOrStdout()
				if len(c.Tasks) == 0 {
					fmt.Fprintln(out, "No tasks in catalog")
					return nil
				}

				w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tCATEGORY\tNAME\tPOINTS\tLIMIT\tDAILY")
				for _, t := range c.Tasks {
					daily := "-"
					if t.HasDailyCap() {
						daily = fmt.Sprintf("%d", t.DailyLimit)
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%g\t%d\t%s\n", t.ID, t.Category, t.Name, t.PointValue, t.NumberLimit, daily)
				}
				if err := w.Flush(); err != nil {
					return fmt.Errorf("failed to write catalog: %w", err)
				}
				fmt.Fprintf(out, "\n%d achievements, %d ranks, %d ranked tasks\n", len(c.Achievements), len(c.Ranks), len(c.RankedTasks))
				return nil
			})
		},
	}
}

func newCatalogSeedCmd(open Opener) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Write a catalog file into the progress store",
		Long:  "Replace the store's task templates with those of a YAML catalog file, or the built-in catalog when --file is not set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, open, func(ctx context.Context, rt *app.Runtime) error {
				c, err := catalog.NewFileProvider(file).Load(ctx)
				if err != nil {
					return fmt.Errorf("failed to load catalog: %w", err)
				}
				if err := catalog.Seed(ctx, rt.Tree, c); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d task templates\n", len(c.Tasks))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML catalog file (defaults to the built-in catalog)")
	return cmd
}
