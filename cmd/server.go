package cmd

import (
	"github.com/spf13/cobra"

	"github.com/landfill/clairkeys/server"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the ClairKeys API server",
	Long:  `Start the HTTP server serving the sheet music API and playback WebSocket.`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
