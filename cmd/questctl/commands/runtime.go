// Package commands implements the questctl subcommands.
package commands

import (
	"context"
	"fmt"

	"github.com/benvon/questlog/internal/app"
	"github.com/benvon/questlog/internal/config"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Opener opens the backends a command runs against and returns a func that releases them
type Opener func(ctx context.Context) (*app.Runtime, func() error, error)

// DefaultOpener loads configuration from the environment and opens every configured backend
func DefaultOpener(ctx context.Context) (*app.Runtime, func() error, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	rt, err := app.Open(ctx, cfg, zap.NewNop())
	if err != nil {
		return nil, nil, err
	}
	return rt, rt.Close, nil
}

func withRuntime(cmd *cobra.Command, open Opener, fn func(ctx context.Context, rt *app.Runtime) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, release, err := open(ctx)
	if err != nil {
		return fmt.Errorf("failed to open backends: %w", err)
	}
	defer func() {
		if err := release(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: failed to close backends: %v\n", err)
		}
	}()
	return fn(ctx, rt)
}

func parseUserID(arg string) (uuid.UUID, error) {
	id, err := uuid.Parse(arg)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid user id %q: %w", arg, err)
	}
	return id, nil
}
