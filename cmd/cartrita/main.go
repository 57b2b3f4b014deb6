// Cartrita — multi-tenant AI assistant and workflow automation backend.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "cartrita",
	Short: "Cartrita — AI assistant and workflow automation backend.",
	Long: `Cartrita is a multi-tenant backend for AI-assisted workflow automation.
It serves the V2 HTTP API and agent dashboard, fires scheduled workflows,
manages external service integrations, and runs nightly maintenance over
the PostgreSQL store.`,
	RunE:          runServer, // Default to server mode.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serverCmd, maintenanceCmd, versionCmd)
	_ = godotenv.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
