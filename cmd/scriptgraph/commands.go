package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	internal "github.com/scriptsmith/scriptgraph/scriptgraph"
	"github.com/scriptsmith/scriptgraph/scriptgraph/config"
	"github.com/scriptsmith/scriptgraph/scriptgraph/db"
	"github.com/scriptsmith/scriptgraph/scriptgraph/ingest"
	"github.com/scriptsmith/scriptgraph/scriptgraph/script"
)

var (
	configPath string

	rootCmd = &cobra.Command{
		Use:   "scriptgraph",
		Short: "Branch-aware version control for conversational scripts",
		Long: `scriptgraph keeps every revision of a conversational script in an
append-only turn graph and resolves the current gold path on demand.`,
	}

	importCmd = &cobra.Command{
		Use:   "import <Program>/<Module##>/<Day##>/<persona>.json",
		Short: "Import a Google-Docs-exported script file",
		Args:  cobra.ExactArgs(1),
		RunE:  runImport,
	}

	exportCmd = &cobra.Command{
		Use:   "export",
		Short: "Export accepted script content as JSON",
	}
	exportPersonaCmd = &cobra.Command{
		Use:   "persona <persona-id>",
		Short: "Export one persona's accepted turns",
		Args:  cobra.ExactArgs(1),
		RunE:  runExportPersona,
	}
	exportDayCmd = &cobra.Command{
		Use:   "day <day-id>",
		Short: "Export every persona of a day",
		Args:  cobra.ExactArgs(1),
		RunE:  runExportDay,
	}
	exportModuleCmd = &cobra.Command{
		Use:   "module <module-id>",
		Short: "Export every day of a module",
		Args:  cobra.ExactArgs(1),
		RunE:  runExportModule,
	}

	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Watch the drop directory and import scripts as they appear",
		Args:  cobra.NoArgs,
		RunE:  runWatch,
	}

	reviseText    string
	reviseMessage string
	reviseAuthor  string

	reviseCmd = &cobra.Command{
		Use:   "revise <parent-turn-id>",
		Short: "Record an edit of a turn as a new revision",
		Args:  cobra.ExactArgs(1),
		RunE:  runRevise,
	}
)

// openStore connects to the configured embedded database, running any
// pending migrations, and wraps it in the graph store. The DSN wins when
// set; otherwise the database file lives under the data directory.
func openStore() (*script.SQLStore, error) {
	cfg := config.AppConfig.Script.Database
	path := strings.TrimPrefix(cfg.DSN, "file:")
	if path == "" {
		path = filepath.Join(cfg.LibSQLDataDir, internal.DefaultAppName+".db")
	}
	conn, err := db.ConnectToDB(path)
	if err != nil {
		return nil, err
	}
	return script.NewSQLStore(conn), nil
}

func runImport(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	importer, err := ingest.NewImporter(store, log.Logger)
	if err != nil {
		return err
	}
	jobID, err := importer.ImportFile(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported script successfully. Job-ID: %s\n", jobID)
	return nil
}

func runExportPersona(cmd *cobra.Command, args []string) error {
	return runExport(cmd, func(ctx context.Context, exporter *script.Exporter) (any, error) {
		return exporter.ExportPersona(ctx, args[0])
	})
}

func runExportDay(cmd *cobra.Command, args []string) error {
	return runExport(cmd, func(ctx context.Context, exporter *script.Exporter) (any, error) {
		return exporter.ExportDay(ctx, args[0])
	})
}

func runExportModule(cmd *cobra.Command, args []string) error {
	return runExport(cmd, func(ctx context.Context, exporter *script.Exporter) (any, error) {
		return exporter.ExportModule(ctx, args[0])
	})
}

func runExport(cmd *cobra.Command, fetch func(ctx context.Context, exporter *script.Exporter) (any, error)) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	out, err := fetch(cmd.Context(), script.NewExporter(store))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func runWatch(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	importer, err := ingest.NewImporter(store, log.Logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher := ingest.NewWatcher(importer, config.AppConfig.Import.WatchDir, log.Logger)
	if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func runRevise(cmd *cobra.Command, args []string) error {
	parentID, err := script.ParseTurnID(args[0])
	if err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	logNotifier := script.NewLogNotifier(log.Logger)

	var notifier script.Notifier = logNotifier
	var bus *script.StreamBus
	workerDone := make(chan struct{})
	if config.AppConfig.Diff.Enabled {
		bus = script.NewStreamBus(config.AppConfig.Notifier.BufferSize, log.Logger)
		notifier = script.NewMultiNotifier(logNotifier, bus)
		worker := script.NewDiffWorker(store, bus, logNotifier, config.AppConfig.Diff.Concurrency, log.Logger)
		go func() {
			defer close(workerDone)
			if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("diff worker stopped")
			}
		}()
	}

	repo := script.NewRepository(store, notifier, config.AppConfig.Script.AutoAcceptOnEdit, log.Logger)
	newID, err := repo.CreateRevision(ctx, script.CreateRevisionRequest{
		ParentID:      parentID,
		Text:          reviseText,
		CommitMessage: reviseMessage,
		Author:        script.Author{ID: reviseAuthor, Name: reviseAuthor},
	})
	if bus != nil {
		// Closing the bus lets the diff worker drain and exit.
		bus.Close()
		<-workerDone
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created revision %s\n", newID)
	return nil
}
