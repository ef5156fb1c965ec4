package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/time/rate"
	"gopkg.in/natefinch/lumberjack.v2"

	"mangavault/api"
	"mangavault/config"
	"mangavault/handlers"
	"mangavault/internal/database"
	"mangavault/services/download"
	"mangavault/services/library"
	"mangavault/services/prefetch"
	"mangavault/services/source"
	"mangavault/services/thumbnail"
	"mangavault/services/updater"
	"mangavault/utils"
)

func main() {
	dataDir := config.DataDir()
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	configManager := config.NewManager(filepath.Join(dataDir, "settings.json"))
	settings, err := configManager.Load()
	if err != nil {
		log.Fatalf("Failed to load settings: %v", err)
	}

	setupLogging(settings.LogPath)

	db, err := database.NewDB(database.Config{DatabasePath: settings.DatabasePath})
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	fs := afero.NewOsFs()
	sources := source.NewRegistry()

	dirs := library.NewDirs(fs, settings.TitlesDir)
	libraryService := library.NewService(db.Store, sources, dirs)

	imageCache := thumbnail.NewImageCache(fs)
	thumbnailService := thumbnail.NewService(db.Store, sources, libraryService, imageCache,
		settings.TempThumbnailCacheDir, settings.ThumbnailDownloadsDir)
	libraryService.SetThumbnailInvalidator(thumbnailService)

	downloadQueue := download.NewQueue(db.Store)
	scheduler := prefetch.NewScheduler(db.Store, downloadQueue, func() int {
		s, err := configManager.Load()
		if err != nil {
			log.Printf("[main] Failed to reload settings: %v", err)
			return 0
		}
		return s.DownloadAheadLimit
	})

	updaterService := updater.NewService(configManager, libraryService, db.Store)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := updaterService.Start(ctx); err != nil {
		log.Fatalf("Failed to start library updater: %v", err)
	}

	limiter := api.NewIPRateLimiter(rate.Limit(settings.APIRateLimitPerSecond), settings.APIRateLimitBurst)
	handler := handlers.NewLibraryHandler(libraryService, thumbnailService, scheduler)
	router := utils.NewRouter(handler, limiter)

	server := &http.Server{
		Addr:         settings.ListenAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		log.Printf("[main] Listening on %s", settings.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("[main] Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := updaterService.Stop(shutdownCtx); err != nil {
		log.Printf("[main] Updater stop: %v", err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[main] Server shutdown: %v", err)
	}
}

// setupLogging sends log output to both stdout and a rotating file.
func setupLogging(path string) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		log.Printf("[main] Failed to create log directory: %v", err)
		return
	}
	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    20, // megabytes
		MaxBackups: 3,
		MaxAge:     14, // days
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stdout, rotator))
}
