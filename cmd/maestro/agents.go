package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List the agent roster",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := buildOrchestrator()
		if err != nil {
			return err
		}
		defer b.close()

		for _, agent := range b.orch.ListAgents() {
			fmt.Printf("%s  %-12s  %s\n",
				color.CyanString("%-14s", agent.ID),
				agent.Role,
				strings.Join(agent.Specialties, ", "))
		}
		return nil
	},
}

var capabilitiesCmd = &cobra.Command{
	Use:   "capabilities",
	Short: "List the registered capabilities",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := buildOrchestrator()
		if err != nil {
			return err
		}
		defer b.close()

		for _, cap := range b.orch.ListCapabilities() {
			fmt.Printf("%s  %s\n", color.CyanString("%-12s", cap.Name), cap.Description)
		}
		return nil
	},
}
