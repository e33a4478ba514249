package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/signals"
	"github.com/shishobooks/bookdrop/pkg/catalog"
	"github.com/shishobooks/bookdrop/pkg/config"
	"github.com/shishobooks/bookdrop/pkg/epub"
	"github.com/shishobooks/bookdrop/pkg/history"
	"github.com/shishobooks/bookdrop/pkg/mediafile"
	"github.com/shishobooks/bookdrop/pkg/pdf"
	"github.com/shishobooks/bookdrop/pkg/processor"
	"github.com/shishobooks/bookdrop/pkg/server"
	"github.com/shishobooks/bookdrop/pkg/tracker"
	"github.com/shishobooks/bookdrop/pkg/version"
	"github.com/shishobooks/bookdrop/pkg/watcher"
)

func main() {
	ctx := context.Background()
	log := logger.New()

	log.Info("starting bookdrop", logger.Data{"version": version.Version})

	cfg, err := config.New()
	if err != nil {
		log.Err(err).Fatal("config error")
	}

	destDir := filepath.Join(cfg.WatchDirectory, cfg.DestinationDirName)
	if err := initDirs(cfg.WatchDirectory, destDir); err != nil {
		log.Err(err).Fatal("watch directory error")
	}
	log.Info("watch directory initialized", logger.Data{"path": cfg.WatchDirectory, "destination": destDir})

	db, err := history.Open(ctx, history.Config{
		FilePath:          cfg.DatabaseFilePath,
		Debug:             cfg.DatabaseDebug,
		ConnectRetryCount: cfg.DatabaseConnectRetryCount,
		ConnectRetryDelay: cfg.DatabaseConnectRetryDelay,
		BusyTimeout:       cfg.DatabaseBusyTimeout,
	})
	if err != nil {
		log.Err(err).Fatal("history database error")
	}
	historyService := history.NewService(db)

	pdfPool, err := pdf.NewPool(cfg.PDFWorkers)
	if err != nil {
		log.Err(err).Fatal("pdf runtime error")
	}

	registry := mediafile.NewRegistry(pdfPool.Format(), epub.Format())

	catalogClient := catalog.NewClient(cfg.CatalogEndpoint, catalog.WithAPIKey(cfg.CatalogAPIKey))
	store := tracker.New()
	proc := processor.New(registry, catalogClient, store, destDir,
		processor.WithRecorder(historyService),
		processor.WithLogger(log),
	)

	source, err := watcher.NewSource(cfg.WatchDirectory)
	if err != nil {
		log.Err(err).Fatal("watch error")
	}
	w := watcher.New(source, registry, proc, cfg.WatchDirectory, cfg.DebounceInterval, watcher.WithLogger(log))

	srv, err := server.New(cfg, store, proc, historyService)
	if err != nil {
		log.Err(err).Fatal("server error")
	}

	graceful := signals.Setup()

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort)
		lc := net.ListenConfig{}
		listener, err := lc.Listen(ctx, "tcp", addr)
		if err != nil {
			log.Err(err).Fatal("failed to bind port")
		}

		actualPort := listener.Addr().(*net.TCPAddr).Port
		log.Info("server started", logger.Data{"port": actualPort})

		err = srv.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Err(err).Fatal("server stopped")
		}
		log.Info("server stopped")
	}()

	w.Start()
	log.Info("watcher started")

	<-graceful
	log.Info("starting graceful shutdown")

	err = srv.Shutdown(ctx)
	if err != nil {
		log.Err(err).Error("server shutdown error")
	}
	log.Info("server shutdown")

	w.Stop()
	log.Info("watcher stopped")

	// Let already-admitted files finish before tearing down the PDF runtime.
	proc.Wait()
	log.Info("processor drained")

	if err := pdfPool.Close(); err != nil {
		log.Err(err).Error("pdf runtime close error")
	}

	err = db.Close()
	if err != nil {
		log.Err(err).Error("database close error")
	}
	log.Info("database closed")
}

// initDirs creates the watch and destination directories and verifies the
// watch directory is writable.
func initDirs(watchDir, destDir string) error {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return errors.Wrapf(err, "failed to create destination directory: %s", destDir)
	}

	testFile := filepath.Join(watchDir, ".write_test")
	f, err := os.Create(testFile)
	if err != nil {
		return errors.Wrapf(err, "watch directory is not writable: %s", watchDir)
	}
	f.Close()

	if err := os.Remove(testFile); err != nil {
		return errors.Wrapf(err, "failed to clean up write test file: %s", testFile)
	}

	return nil
}
