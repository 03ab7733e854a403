package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/BrianStatesThat/thepepassport/internal/api"
	"github.com/BrianStatesThat/thepepassport/internal/cache"
	"github.com/BrianStatesThat/thepepassport/internal/captcha"
	"github.com/BrianStatesThat/thepepassport/internal/config"
	"github.com/BrianStatesThat/thepepassport/internal/db"
	"github.com/BrianStatesThat/thepepassport/internal/email"
	"github.com/BrianStatesThat/thepepassport/internal/logger"
	"github.com/BrianStatesThat/thepepassport/internal/storage"
	"github.com/BrianStatesThat/thepepassport/internal/tasks"
)

var runMode = flag.String("m", "all", "Run mode: 'api', 'bg' (background tasks), 'all' (default)")

func fatal(msg string, args ...any) {
	slog.Error(msg, args...)
	os.Exit(1)
}

// openRowStore connects the configured backend.
func openRowStore(cfg *config.Config) (db.RowStore, error) {
	switch cfg.RowStore {
	case config.RowStoreMongo:
		client, database, err := db.ConnectMongo(cfg.MongoURI, cfg.MongoDbName)
		if err != nil {
			return nil, err
		}
		return db.NewMongoStore(client, database), nil
	case config.RowStoreMemory:
		store, err := db.LoadMemoryFixture(cfg.MemoryFixture)
		if err != nil {
			return nil, err
		}
		store.Unique("enquiries", "reference")
		return store, nil
	default:
		return db.ConnectPostgres(cfg.DatabaseURL, cfg.DatabaseApplyCredentials)
	}
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*runMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, App: "thepepassport"})
	slog.SetDefault(log)

	store, err := openRowStore(cfg)
	if err != nil {
		fatal("failed to open row store", "backend", cfg.RowStore, "err", err)
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			log.Error("error closing row store", "err", err)
		}
	}()

	redisClient, err := cache.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		fatal("failed to connect to redis", "err", err)
	}
	defer func() {
		if err := cache.DisconnectRedis(redisClient); err != nil {
			log.Error("error disconnecting from redis", "err", err)
		}
	}()

	// Email sender
	var primaryEmailSender email.Sender
	if os.Getenv("MOCK_SERVICES") == "true" {
		log.Info("MOCK_SERVICES enabled, using redis email sender")
		primaryEmailSender = email.NewRedisSender(redisClient, cfg)
	} else {
		primaryEmailSender = email.NewSMTPSender(cfg)
	}
	compositeSender := email.NewCompositeEmailSender(primaryEmailSender)
	if logEmailsPath := os.Getenv("LOG_EMAILS"); logEmailsPath != "" {
		fileSender, err := email.NewFileEmailSender(logEmailsPath)
		if err != nil {
			log.Warn("file email logger disabled", "path", logEmailsPath, "err", err)
		} else {
			compositeSender.AddSender(fileSender)
		}
	}

	taskClient := tasks.NewClient(cfg)
	defer taskClient.Close()

	svc, err := api.NewServices(cfg, store, tasks.NewEnquiryNotifier(taskClient), log)
	if err != nil {
		fatal("failed to initialize services", "err", err)
	}

	var wg sync.WaitGroup
	shutdownChan := make(chan struct{}, 1)

	// Service API (always runs)
	serviceSrv := &http.Server{
		Addr:    ":" + cfg.ServiceApiPort,
		Handler: api.SetupServiceRouter(cfg, redisClient, taskClient, shutdownChan),
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("service API listening", "port", cfg.ServiceApiPort)
		if err := serviceSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("service API ListenAndServe error", "err", err)
		}
	}()

	var mainApiSrv *http.Server
	var backgroundTaskSrv *asynq.Server
	var scheduler *asynq.Scheduler

	log.Info("starting application", "mode", cfg.RunMode, "row_store", cfg.RowStore)

	apiMode := func() {
		var responseCache cache.Store
		if cfg.GetCacheTTL > 0 {
			responseCache = cache.NewRedisStore(redisClient, "getcache:")
		}
		router := api.SetupRouter(cfg, svc, captcha.NewTurnstileVerifier(cfg), responseCache, log)
		mainApiSrv = &http.Server{
			Addr:    ":" + cfg.ApiPort,
			Handler: router,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info("main API listening", "port", cfg.ApiPort)
			if err := mainApiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				fatal("main API ListenAndServe error", "err", err)
			}
		}()
	}

	bgMode := func() {
		var objectStore storage.IS3Storage
		s3Client, err := storage.NewS3Client(context.Background(), cfg)
		if err != nil {
			log.Warn("S3 client unavailable, sitemap publishing disabled", "err", err)
		} else {
			objectStore = storage.NewS3Storage(s3Client, cfg.AwsS3Bucket, cfg.AwsRegion)
		}
		processor := tasks.NewTaskProcessor(cfg, compositeSender, objectStore, svc.Sitemap, log)

		backgroundTaskSrv = tasks.SetupServer(cfg, log)
		if err := backgroundTaskSrv.Start(processor.Mux()); err != nil {
			fatal("background task server error", "err", err)
		}

		if objectStore != nil {
			scheduler, err = tasks.SetupScheduler(cfg)
			if err != nil {
				fatal("failed to set up scheduler", "err", err)
			}
			if scheduler != nil {
				if err := scheduler.Start(); err != nil {
					fatal("scheduler start error", "err", err)
				}
				log.Info("sitemap publish scheduled", "cron", cfg.SitemapPublishCron)
			}
		}
	}

	switch cfg.RunMode {
	case "api":
		apiMode()
	case "bg":
		bgMode()
	case "all":
		apiMode()
		bgMode()
	default:
		fatal("invalid run mode", "mode", cfg.RunMode)
	}

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info("shutting down", "signal", sig.String())
	case <-shutdownChan:
		log.Info("shutdown requested via service API")
	}

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	if err := serviceSrv.Shutdown(ctxShutdown); err != nil {
		log.Error("service API shutdown error", "err", err)
	}
	if mainApiSrv != nil {
		if err := mainApiSrv.Shutdown(ctxShutdown); err != nil {
			log.Error("main API shutdown error", "err", err)
		}
	}
	if scheduler != nil {
		scheduler.Shutdown()
	}
	if backgroundTaskSrv != nil {
		backgroundTaskSrv.Shutdown()
	}

	wg.Wait()
	log.Info("server gracefully stopped")
}
