package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/benvon/questlog/internal/app"
	"github.com/benvon/questlog/internal/tracker"
	"github.com/spf13/cobra"
)

// NewShowCmd creates the show command
func NewShowCmd(open Opener) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show USER_ID",
		Short: "Show a user's progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			return withRuntime(cmd, open, func(ctx context.Context, rt *app.Runtime) error {
				session, err := rt.Manager.Session(ctx, userID)
				if err != nil {
					return fmt.Errorf("failed to load progress: %w", err)
				}
				st := session.Snapshot()
				out := cmd.OutOrStdout()

				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(st)
				}

				fmt.Fprintf(out, "User: %s\n", st.UserID)
				fmt.Fprintf(out, "Week: %d\n", st.WeekCount)
				fmt.Fprintf(out, "Points: %g / %g\n", st.Points.Current, st.Points.Total)
				fmt.Fprintf(out, "Monthly points: %g / %g\n", st.MonthlyPoints.Current, st.MonthlyPoints.Total)
				fmt.Fprintf(out, "Level: %d (%g xp)\n", st.XP.Level, st.XP.Current)
				fmt.Fprintf(out, "Achievements: %d\n", len(st.Achievements))
				for _, wt := range st.Tasks {
					fmt.Fprintf(out, "  - %s: %d/%d (%s)\n", wt.Template.Name, wt.Progress.CompletionCount, wt.Template.NumberLimit, wt.Progress.SelectedMode)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full progress state as JSON")
	return cmd
}

// promptConfirmer asks on in and accepts y or yes
func promptConfirmer(in io.Reader, out io.Writer) tracker.ConfirmFunc {
	return func(ctx context.Context, message string) bool {
		fmt.Fprintf(out, "%s [y/N]: ", message)
		answer, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && answer == "" {
			return false
		}
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
			return true
		default:
			return false
		}
	}
}

// NewResetCountCmd creates the reset-count command
func NewResetCountCmd(open Opener) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset-count USER_ID TASK_ID",
		Short: "Zero a task's completion count for the current period",
		Long:  "Zero a task's completion and daily counters and clear its bonus flag. Points already earned are kept.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			confirmer := promptConfirmer(cmd.InOrStdin(), cmd.OutOrStdout())
			if yes {
				confirmer = func(context.Context, string) bool { return true }
			}
			return withRuntime(cmd, open, func(ctx context.Context, rt *app.Runtime) error {
				session, err := rt.Manager.Session(ctx, userID)
				if err != nil {
					return fmt.Errorf("failed to load progress: %w", err)
				}
				outcome, err := session.ResetCount(tracker.WithConfirmer(ctx, confirmer), args[1])
				return finish(ctx, cmd, session, outcome, err)
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

// NewBoundaryCmd creates the boundary command
func NewBoundaryCmd(open Opener) *cobra.Command {
	boundaries := map[string]func(*tracker.Session, context.Context) (*tracker.Outcome, error){
		"daily":   (*tracker.Session).DailyBoundary,
		"weekly":  (*tracker.Session).WeeklyBoundary,
		"monthly": (*tracker.Session).MonthlyBoundary,
	}
	return &cobra.Command{
		Use:       "boundary daily|weekly|monthly USER_ID",
		Short:     "Run a period boundary for a user now",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"daily", "weekly", "monthly"},
		RunE: func(cmd *cobra.Command, args []string) error {
			run, ok := boundaries[args[0]]
			if !ok {
				return fmt.Errorf("unknown period %q: expected daily, weekly or monthly", args[0])
			}
			userID, err := parseUserID(args[1])
			if err != nil {
				return err
			}
			return withRuntime(cmd, open, func(ctx context.Context, rt *app.Runtime) error {
				session, err := rt.Manager.Session(ctx, userID)
				if err != nil {
					return fmt.Errorf("failed to load progress: %w", err)
				}
				outcome, err := run(session, ctx)
				return finish(ctx, cmd, session, outcome, err)
			})
		},
	}
}

// NewSyncCmd creates the sync command
func NewSyncCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "sync USER_ID...",
		Short: "Reconcile users' local progress with the remote store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, open, func(ctx context.Context, rt *app.Runtime) error {
				for _, arg := range args {
					userID, err := parseUserID(arg)
					if err != nil {
						return err
					}
					session, err := rt.Manager.Session(ctx, userID)
					if err != nil {
						return fmt.Errorf("failed to load progress for %s: %w", userID, err)
					}
					outcome, err := session.Sync(ctx)
					if err != nil {
						return fmt.Errorf("failed to sync %s: %w", userID, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", userID, outcome.Message)
				}
				return nil
			})
		},
	}
}

// finish prints an outcome and pushes it to the remote store before the process
// exits. A state that only reached the local store is a warning, but a week
// archive that could not be written is an error since it is held in memory.
func finish(ctx context.Context, cmd *cobra.Command, session *tracker.Session, outcome *tracker.Outcome, err error) error {
	if err != nil && outcome == nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), outcome.Message)
	if outcome.Synced {
		return nil
	}
	if _, err := session.Sync(ctx); err != nil {
		if n := session.PendingArchives(); n > 0 {
			return fmt.Errorf("failed to write %d week archive(s): %w", n, err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: saved locally, not yet synced: %v\n", err)
	}
	return nil
}
