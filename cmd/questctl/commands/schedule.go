package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/questlog/internal/app"
	"github.com/benvon/questlog/internal/workers"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewScheduleCmd creates the schedule command
func NewScheduleCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Enqueue the next daily, weekly and monthly boundary jobs for every user",
		Long:  "Run one scheduling pass of the worker's boundary scheduler. Requires RABBITMQ_URL.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, open, func(ctx context.Context, rt *app.Runtime) error {
				cfg := rt.Config
				if cfg.RabbitMQURL == "" {
					return errors.New("RABBITMQ_URL is required to schedule boundary jobs")
				}
				loc, err := cfg.Location()
				if err != nil {
					return err
				}

				jobQueue, err := app.ConnectQueue(ctx, cfg.RabbitMQURL, zap.NewNop())
				if err != nil {
					return err
				}
				defer func() {
					_ = jobQueue.Close()
				}()

				var users workers.UserLister = workers.NewTreeUsers(rt.Tree)
				if activityRepo := rt.Activity(); activityRepo != nil {
					users = activityRepo
				}
				scheduler := workers.NewBoundaryScheduler(jobQueue, users,
					workers.Calendar{Location: loc, WeekStart: cfg.WeekStart},
					zap.NewNop(),
					workers.WithMaxRetries(cfg.JobMaxRetries),
				)

				n, err := scheduler.ScheduleBoundaryJobs(ctx, time.Now())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Enqueued %d boundary jobs\n", n)
				return nil
			})
		},
	}
}
