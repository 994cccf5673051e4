package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/landfill/clairkeys/config"
	"github.com/landfill/clairkeys/core/importer"
	"github.com/landfill/clairkeys/db"
	"github.com/landfill/clairkeys/logger"
	"github.com/landfill/clairkeys/repository"
	"github.com/landfill/clairkeys/storage"
)

var importDir string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Watch a directory and ingest animation JSON files",
	Long: `Run the standalone import watcher. Animation JSON files dropped into the
watched directory are validated, uploaded to object storage and registered
as public sheets. Without --dir the configured IMPORT_WATCH_DIR is used.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		logger.InitLogger(logger.Config{
			Level:      logger.LogLevel(cfg.LogLevel),
			OutputPath: cfg.LogPath,
			MaxSize:    cfg.LogMaxMB,
			MaxAge:     cfg.LogMaxAge,
		})

		dir := importDir
		if dir == "" {
			dir = cfg.ImportWatchDir
		}
		if dir == "" {
			log.Fatal("no import directory: pass --dir or set IMPORT_WATCH_DIR")
		}

		if err := storage.InitMinio(cfg); err != nil {
			log.Fatalf("cannot connect to MinIO: %v", err)
		}
		if err := db.ConnectGormDB(cfg); err != nil {
			log.Fatalf("cannot connect to database: %v", err)
		}
		defer db.CloseGormDB()

		watcher, err := importer.NewWatcher(dir, repository.NewGormSheetRepository(db.GormDB))
		if err != nil {
			log.Fatalf("cannot watch %s: %v", dir, err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-stop
			cancel()
		}()

		if err := watcher.Run(ctx); err != nil && err != context.Canceled {
			log.Fatalf("watcher stopped: %v", err)
		}
	},
}

func init() {
	importCmd.Flags().StringVarP(&importDir, "dir", "d", "", "directory to watch")
	rootCmd.AddCommand(importCmd)
}
