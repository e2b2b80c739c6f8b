// Package importcmd contains the import command, which runs a single
// statement import from the command line without the HTTP service.
package importcmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"fjacquet/invoice-import/cmd/root"
	"fjacquet/invoice-import/internal/categorizer"
	"fjacquet/invoice-import/internal/config"
	"fjacquet/invoice-import/internal/csvparser"
	"fjacquet/invoice-import/internal/filestore"
	"fjacquet/invoice-import/internal/gate"
	"fjacquet/invoice-import/internal/importer"
	"fjacquet/invoice-import/internal/logging"
	"fjacquet/invoice-import/internal/models"
	"fjacquet/invoice-import/internal/reconciler"
	"fjacquet/invoice-import/internal/store"
)

var (
	inputFile string
	userID    uint
	cardID    uint
)

// Cmd is the import command
var Cmd = &cobra.Command{
	Use:   "import",
	Short: "Import a single statement file for a card.",
	Long: `Import one statement document through the full pipeline: parse,
merge into the card's billing period, and categorize merchants. Waits for
the import to finish and prints the outcome.`,
	RunE: run,
}

func init() {
	Cmd.Flags().StringVarP(&inputFile, "file", "f", "", "Statement file to import")
	Cmd.Flags().UintVarP(&userID, "user", "u", 0, "Owning user ID")
	Cmd.Flags().UintVarP(&cardID, "card", "c", 0, "Card ID the statement belongs to")
	_ = Cmd.MarkFlagRequired("file")
	_ = Cmd.MarkFlagRequired("user")
	_ = Cmd.MarkFlagRequired("card")
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.InitializeConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logging.NewLogrusAdapterFromLogger(root.Log)

	data, err := os.ReadFile(inputFile)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", inputFile, err)
	}

	if cfg.Database.URL == "" {
		return fmt.Errorf("database URL is not configured (set INVOICE_DATABASE_URL)")
	}
	st, err := store.Open(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	files, err := filestore.New(cfg.Import.UploadDirectory)
	if err != nil {
		return fmt.Errorf("failed to prepare upload directory: %w", err)
	}

	rec := reconciler.New(st, log)
	cat := categorizer.New(st, log, cfg.Categorization.AutoApplyThreshold, nil)
	g := gate.New(cfg.Import.ConfidenceThreshold)

	orch := importer.New(st, files, csvparser.New(log), rec, cat, g, log, importer.Options{
		Workers:       1,
		QueueCapacity: 1,
	})

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	orch.Start(ctx)
	defer orch.Stop()

	job, err := orch.Submit(ctx, userID, cardID, filepath.Base(inputFile), data)
	if err != nil {
		return fmt.Errorf("failed to submit import: %w", err)
	}
	log.Info("Import submitted", logging.F(logging.FieldJobID, job.ID))

	deadline := time.After(2 * time.Minute)
	for !job.Status.IsTerminal() {
		select {
		case <-deadline:
			return fmt.Errorf("import %s did not finish in time", job.ID)
		case <-time.After(200 * time.Millisecond):
		}
		job, err = orch.Progress(ctx, userID, job.ID)
		if err != nil {
			return fmt.Errorf("failed to query import progress: %w", err)
		}
	}

	fmt.Println(job.StatusMessage())
	switch job.Status {
	case models.StatusCompleted:
		if job.TotalAmount != nil {
			fmt.Printf("Statement total: %s\n", job.TotalAmount.StringFixed(2))
		}
		if job.YearMonth != nil {
			fmt.Printf("Billing period: %s\n", *job.YearMonth)
		}
	case models.StatusFailed:
		return fmt.Errorf("import failed")
	case models.StatusManualReview:
		fmt.Printf("Resolve with: invoice-import via POST /imports/%s/resolve\n", job.ID)
	}
	return nil
}
