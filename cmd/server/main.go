package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"log/slog"

	"github.com/mrolabs/growthwatch/internal/api"
	"github.com/mrolabs/growthwatch/internal/auth"
	"github.com/mrolabs/growthwatch/internal/config"
	"github.com/mrolabs/growthwatch/internal/database"
	"github.com/mrolabs/growthwatch/internal/logging"
	"github.com/mrolabs/growthwatch/internal/metrics"
	"github.com/mrolabs/growthwatch/internal/poller"
	"github.com/mrolabs/growthwatch/internal/scheduler"
	"github.com/mrolabs/growthwatch/internal/server"
	"github.com/mrolabs/growthwatch/internal/social"
	"github.com/mrolabs/growthwatch/internal/syncqueue"
	"github.com/mrolabs/growthwatch/internal/welcome"
)

func main() {
	hashPassword := flag.String("hash-password", "", "print a bcrypt hash of the given password for ADMIN_PASSWORD and exit")
	flag.Parse()

	if *hashPassword != "" {
		hash, err := auth.HashPassword(*hashPassword)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to init logger", "error", err)
		os.Exit(1)
	}

	logger.Info("starting growthwatch")

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbConfig := database.DefaultConfig()
	dbConfig.URL = cfg.Database.URL

	logger.Info("connecting to database")
	db, err := database.Connect(rootCtx, dbConfig)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("database connected")

	// Run pending migrations (non-fatal to allow app to start even if migrations fail)
	if err := database.RunMigrations(db, cfg.Database.MigrationsDir, logger); err != nil {
		logger.Warn("failed to run migrations, continuing anyway", "error", err)
	}

	// Repositories
	accountRepo := database.NewPostgresTrackedAccountRepository(db)
	ledgerRepo := database.NewPostgresKnownFollowerRepository(db)
	profileRepo := database.NewPostgresSyncedProfileRepository(db)

	// Metrics
	collector, err := metrics.NewCollector()
	if err != nil {
		logger.Error("failed to init metrics", "error", err)
		os.Exit(1)
	}

	// Upstream clients
	prober := social.NewGraphCountClient(cfg.Graph, logger)
	scraper := social.NewFollowerScraper(cfg.Scraper, logger)
	resolver := social.NewGraphIDResolver(cfg.Graph, logger)
	profileFetcher := social.NewWebProfileFetcher(cfg.Scraper, logger)

	// Welcome dispatch: OpenAI-composed messages when a key is set,
	// fixed template otherwise
	var composer welcome.Composer
	if cfg.Welcome.Enabled {
		composer = welcome.NewOpenAIComposer(cfg.Welcome, logger)
		logger.Info("welcome composer using openai", "model", cfg.Welcome.OpenAIModel)
	} else {
		composer = welcome.StaticComposer{}
		logger.Info("OPENAI_API_KEY not set, using static welcome messages")
	}
	notifier := &welcome.LogNotifier{Logger: logger}
	dispatcher := welcome.NewDispatcher(composer, notifier, ledgerRepo, collector, logger)

	// Polling orchestrator
	reconciler := poller.NewReconciler(ledgerRepo, resolver, dispatcher, logger, cfg.Poller.ReconcileBatch)
	pollEngine := poller.New(accountRepo, ledgerRepo, prober, scraper, reconciler, collector, logger, cfg.Poller)

	// Sync queue
	delay := syncqueue.RandomDelay{Min: cfg.Sync.MinDelay, Max: cfg.Sync.MaxDelay}
	syncManager := syncqueue.NewManager(profileRepo, profileFetcher, delay, collector, logger)

	// HTTP surface
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := database.HealthCheck(r.Context(), db); err != nil {
			logger.Error("health check failed", "error", err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unhealthy"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	mux.HandleFunc("/api/info", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"service":"growthwatch","status":"ready","version":"0.1.0"}`))
	})

	mux.Handle("/metrics", collector.Handler())

	authConfig := auth.LoadConfigFromEnv()
	logger.Info("auth configured", "jwt_secret_set", authConfig.JWTSecret != "change-this-secret")

	api.SetupRoutes(mux, pollEngine, syncManager, rootCtx, authConfig, logger)

	// Background check cycles for active accounts
	pollScheduler := scheduler.NewPollScheduler(accountRepo, pollEngine, cfg.Poller.CheckInterval, logger)
	go pollScheduler.Start(rootCtx)

	srv := server.New(cfg.Server, logger, collector.InstrumentHandler(mux))

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig.String())
	}

	pollScheduler.Stop()
	cancel()

	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}

	logger.Info("growthwatch stopped")
}
