package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ferrule/maestro/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the maestro version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("maestro %s\n", version.Get())
	},
}
