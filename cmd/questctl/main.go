package main

import (
	"fmt"
	"os"

	"github.com/benvon/questlog/cmd/questctl/commands"
	"github.com/spf13/cobra"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "questctl",
		Short: "Operations tool for the QuestLog progress engine",
		Long:  "CLI tool for managing the task catalog, running period boundaries and syncing user progress",
	}

	open := commands.DefaultOpener
	rootCmd.AddCommand(commands.NewCatalogCmd(open))
	rootCmd.AddCommand(commands.NewShowCmd(open))
	rootCmd.AddCommand(commands.NewResetCountCmd(open))
	rootCmd.AddCommand(commands.NewBoundaryCmd(open))
	rootCmd.AddCommand(commands.NewSyncCmd(open))
	rootCmd.AddCommand(commands.NewScheduleCmd(open))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
