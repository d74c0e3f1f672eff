// Package main is the entry point for portalscan: the HTTP control surface,
// the scheduled scanner and the operator commands.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/narworks/muhasebe-asistani-sub000/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "portalscan",
	Short: "Bulk notification retrieval for government portal accounts",
	Long: `portalscan logs in to a government portal on behalf of every active entity,
solves the login CAPTCHA, extracts the notification listing and stores the
records. Scans can be started by hand or scheduled to finish by a time of day.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logging.SetDefault()
	},
}

func main() {
	// LOG_LEVEL and LOG_FORMAT may come from .env.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
