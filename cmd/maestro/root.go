package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "maestro",
	Short: "Durable task orchestration engine",
	Long: `Maestro accepts free-text tasks, classifies their complexity,
decomposes them into capability-scoped subtasks, assigns subtasks to
agents, and executes them in dependency-ordered waves.

Execution state is checkpointed to SQLite after every transition, so
tasks can be paused, resumed, and inspected across restarts.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(capabilitiesCmd)
	rootCmd.AddCommand(versionCmd)
}
