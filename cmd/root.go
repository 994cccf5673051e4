package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/landfill/clairkeys/server"
)

var rootCmd = &cobra.Command{
	Use:   "clairkeys",
	Short: "ClairKeys turns sheet music into animated piano playback.",
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
