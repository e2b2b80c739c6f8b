// Package serve contains the serve command, which runs the HTTP import
// service.
package serve

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"fjacquet/invoice-import/cmd/root"
	"fjacquet/invoice-import/internal/api"
	"fjacquet/invoice-import/internal/categorizer"
	"fjacquet/invoice-import/internal/config"
	"fjacquet/invoice-import/internal/csvparser"
	"fjacquet/invoice-import/internal/filestore"
	"fjacquet/invoice-import/internal/gate"
	"fjacquet/invoice-import/internal/importer"
	"fjacquet/invoice-import/internal/logging"
	"fjacquet/invoice-import/internal/reconciler"
	"fjacquet/invoice-import/internal/store"
)

// Cmd is the serve command
var Cmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the invoice import HTTP service.",
	Long: `Start the HTTP service that accepts statement uploads, processes them
asynchronously, and serves import progress and merchant rule endpoints.`,
	RunE: run,
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.InitializeConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logging.NewLogrusAdapterFromLogger(root.Log)

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

	var suggester categorizer.Suggester
	if cfg.AI.Enabled {
		if cfg.AI.APIKey == "" {
			log.Warn("AI suggestions enabled but no API key configured, disabling")
		} else {
			gemini, err := categorizer.NewGeminiSuggester(cmd.Context(), cfg.AI.APIKey, cfg.AI.Model, log)
			if err != nil {
				return fmt.Errorf("failed to initialize AI suggester: %w", err)
			}
			defer func() {
				if err := gemini.Close(); err != nil {
					log.WithError(err).Warn("Failed to close AI suggester")
				}
			}()
			suggester = gemini
			log.Info("AI category suggestions enabled", logging.F("model", cfg.AI.Model))
		}
	}

	rec := reconciler.New(st, log)
	cat := categorizer.New(st, log, cfg.Categorization.AutoApplyThreshold, suggester)
	g := gate.New(cfg.Import.ConfidenceThreshold)

	orch := importer.New(st, files, csvparser.New(log), rec, cat, g, log, importer.Options{
		Workers:       cfg.Import.Workers,
		QueueCapacity: cfg.Import.QueueCapacity,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	orch.Start(ctx)
	defer orch.Stop()

	server := &http.Server{
		Addr:    cfg.HTTP.ListenAddr,
		Handler: api.NewServer(orch, cat, log).Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP service listening", logging.F("addr", cfg.HTTP.ListenAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server error: %w", err)
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown: %w", err)
	}
	return nil
}
