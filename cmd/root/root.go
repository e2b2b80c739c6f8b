// Package root contains the root command for the application
package root

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"fjacquet/invoice-import/internal/config"
)

var (
	// Log is the shared logger instance for commands
	Log = logrus.New()

	// Cmd is the root command
	Cmd = &cobra.Command{
		Use:   "invoice-import",
		Short: "Credit-card invoice import and merchant categorization pipeline.",
		Long: `invoice-import ingests uploaded statement documents, merges their
lines into per-card monthly invoices, and categorizes merchants from
confirmed rules. Run "serve" to start the HTTP service or "import" for a
one-shot import from the command line.`,
		Run: func(cmd *cobra.Command, args []string) {
			Log.Info("Welcome to invoice-import!")
			Log.Info("Use --help to see available commands")
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			config.LoadEnv()
			Log = config.ConfigureLogging()
		},
	}
)
