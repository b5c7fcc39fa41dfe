package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/hashtags/hashtag-timeline/internal/config"
	"github.com/hashtags/hashtag-timeline/internal/credentials"
	"github.com/hashtags/hashtag-timeline/internal/mediacache"
	"github.com/hashtags/hashtag-timeline/internal/metrics"
	"github.com/hashtags/hashtag-timeline/internal/models"
	"github.com/hashtags/hashtag-timeline/internal/monitoring"
	"github.com/hashtags/hashtag-timeline/internal/notifications"
	"github.com/hashtags/hashtag-timeline/internal/retry"
	"github.com/hashtags/hashtag-timeline/internal/scheduler"
	"github.com/hashtags/hashtag-timeline/internal/storage"
	"github.com/hashtags/hashtag-timeline/internal/timeline"
	"github.com/hashtags/hashtag-timeline/internal/twitter"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load environment variables from .env file if it exists
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	// Initialize configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cfg.SearchQuery = twitter.MakeHashtag(cfg.SearchQuery)

	// Set up logging
	logrus.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})

	logrus.Infof("Starting Hashtag Timeline for %s", cfg.SearchQuery)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	storageClient, err := openStorage(ctx, cfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize storage: %v", err)
	}

	clock := clockwork.NewRealClock()
	registry := metrics.NewRegistry()

	// Twitter access
	credentialStore := credentials.NewStore(storageClient)
	authority := twitter.NewAuthority(cfg.Credentials(), credentialStore, cfg.APIBaseURL, cfg.RequestTimeout)
	searchClient := twitter.NewClient(authority, cfg.APIBaseURL, cfg.RequestTimeout)

	// Presentation
	mediaCache := mediacache.New(
		mediacache.NewHTTPFetcher(cfg.RequestTimeout, clock),
		mediacache.Options{
			FetchRPS:     cfg.MediaFetchRPS,
			FetchBurst:   cfg.MediaFetchBurst,
			FetchTimeout: cfg.RequestTimeout,
		},
		metrics.NewMediaCacheMetrics(registry),
	)
	tl := timeline.New(cfg.TimelineCapacity, mediaCache)

	// Ingestion
	ingestion := monitoring.NewService(monitoring.Options{
		Query:        cfg.SearchQuery,
		ResultType:   cfg.ResultType(),
		Count:        cfg.SearchCount,
		PollInterval: cfg.PollInterval,
		EmitDelay:    cfg.EmitDelay,
		AuthPolicy: retry.Policy{
			MaxAttempts:      cfg.AuthMaxAttempts,
			InitialBackoff:   cfg.AuthInitialBackoff,
			RateLimitBackoff: time.Minute,
		},
	}, authority, searchClient, tl, clock, metrics.NewIngestionMetrics(registry))
	tl.OnEvict(ingestion.Forget)

	// Initialize notification services
	notificationService := notifications.NewService(cfg)

	// Initialize scheduler
	schedulerService := scheduler.NewService(scheduler.Schedules{
		Archive: cfg.ArchiveSchedule,
		Digest:  cfg.DigestSchedule,
	}, cfg.SearchQuery, tl, storageClient, notificationService, clock)

	if err := schedulerService.Start(); err != nil {
		logrus.Fatalf("Failed to start scheduler: %v", err)
	}
	defer schedulerService.Stop()

	// Set up HTTP server for health, status and the timeline
	api := &api{
		timeline:  tl,
		media:     mediaCache,
		ingestion: ingestion,
		clock:     clock,
	}
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      api.routes(registry),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start HTTP server in a goroutine
	go func() {
		logrus.Infof("HTTP server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Run ingestion until a signal arrives
	loopDone := make(chan error, 1)
	go func() { loopDone <- ingestion.Run(ctx) }()

	select {
	case <-ctx.Done():
		<-loopDone
	case err := <-loopDone:
		if err != nil {
			logrus.Errorf("Timeline ingestion failed: %v", err)
			alertBootstrapFailure(notificationService, err)
		}
	}

	logrus.Info("Shutting down server...")

	// Create a deadline for shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server exited")
}

func openStorage(ctx context.Context, cfg *config.Config) (storage.StorageInterface, error) {
	switch cfg.StorageBackend {
	case config.StorageAzure:
		return storage.NewAzureStorage(ctx, cfg.StorageAccount, cfg.StorageContainer)
	case config.StorageRedis:
		return storage.NewRedisStorage(ctx, cfg.RedisURL, cfg.RedisKeyPrefix)
	default:
		return storage.NewFileStorage(cfg.StoragePath)
	}
}

func alertBootstrapFailure(notifier notifications.NotificationInterface, err error) {
	alert := &models.Alert{
		ID:        uuid.NewString(),
		Type:      "critical",
		Title:     "Hashtag Timeline could not authorize with Twitter",
		Message:   err.Error(),
		CreatedAt: time.Now().UTC(),
	}
	if sendErr := notifier.SendAlert(alert); sendErr != nil {
		logrus.Errorf("Failed to send bootstrap alert: %v", sendErr)
	}
}
