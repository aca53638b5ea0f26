// Command syncd runs the synchronization engine headless: it watches a local
// entity directory stand-in, syncs it against the configured remote, and
// prints status transitions. Intended for development and manual testing of
// provider configurations.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mkravets/notesync/internal/config"
	"github.com/mkravets/notesync/internal/engine"
	"github.com/mkravets/notesync/internal/logger"
	"github.com/mkravets/notesync/internal/store"
	"github.com/mkravets/notesync/models"
)

var (
	buildVersion string
	buildDate    string
	buildCommit  string
)

func main() {
	printBuildInfo()

	cfg, err := config.GetConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error getting configs: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger("syncd")
	if cfg.Log.File != "" {
		log = logger.NewFileLogger("syncd", cfg.Log.File)
	}

	log.Debug().Any("config", cfg).Msg("received configs")

	storages, err := store.NewStorages(cfg.Storage, log)
	if err != nil {
		log.Fatal().Err(err).Msg("error creating storages")
	}

	entityDir := filepath.Join(filepath.Dir(cfg.Storage.DB.Path), "entities")
	entities := newDirEntityStore(entityDir)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := engine.New(ctx, cfg.Sync, storages, entities, log)
	if err != nil {
		log.Fatal().Err(err).Msg("error creating sync engine")
	}

	eng.Subscribe(func(st models.SyncStatus) {
		log.Info().
			Str("phase", string(st.Phase)).
			Int("pending", st.PendingChanges).
			Int("conflicts", st.Conflicts).
			Str("error", st.Error).
			Msg("status")
	})

	eng.Start(ctx)
	log.Info().Msg("syncd running, press Ctrl+C to stop")

	<-ctx.Done()
	eng.Stop()
	log.Info().Msg("syncd stopped")
}

func printBuildInfo() {
	if buildVersion == "" {
		buildVersion = "N/A"
	}
	if buildDate == "" {
		buildDate = "N/A"
	}
	if buildCommit == "" {
		buildCommit = "N/A"
	}

	fmt.Printf("Build version: %s\n", buildVersion)
	fmt.Printf("Build date: %s\n", buildDate)
	fmt.Printf("Build commit: %s\n", buildCommit)
}
