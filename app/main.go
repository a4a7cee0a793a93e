package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/channel-comb/app/api"
	"github.com/lysyi3m/channel-comb/app/cfg"
	"github.com/lysyi3m/channel-comb/app/database"
	"github.com/lysyi3m/channel-comb/app/rotation"
	"github.com/lysyi3m/channel-comb/app/tasks"
	"github.com/lysyi3m/channel-comb/app/telegram"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	appCfg, err := cfg.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}

	logLevel := slog.LevelInfo
	if appCfg.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	log.Printf("Starting Channel Comb %s...", appCfg.Version)

	// Database connection
	log.Printf("Opening database at %s...", appCfg.DBPath)
	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		log.Fatal("Failed to open database:", err)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		log.Fatal("Failed to run migrations:", err)
	}
	log.Printf("Database ready (schema version %d, dirty: %v)", version, dirty)

	// Load route configurations
	log.Printf("Loading route configurations from %s...", appCfg.RoutesDir)
	configCache := rotation.NewConfigCache(appCfg.RoutesDir)
	if err := configCache.Run(); err != nil {
		log.Fatal("Failed to load route configurations:", err)
	}
	log.Printf("Loaded %d route configurations", configCache.GetConfigCount())

	// Initialize repositories
	routeRepo := database.NewRouteRepository(db)
	itemRepo := database.NewItemRepository(db)
	ledgerRepo := database.NewLedgerRepository(db)

	// Telegram client
	tgClient := telegram.NewClient(appCfg.BotToken, nil)
	httpClient := &http.Client{Timeout: 30 * time.Second}

	// Build one rotator per configured route
	rotators := rotation.NewRotatorSet()
	for name, routeConfig := range configCache.GetConfigs() {
		source, err := buildSource(routeConfig, itemRepo, httpClient, appCfg.UserAgent)
		if err != nil {
			log.Fatalf("Failed to build candidate source for route %s: %v", name, err)
		}

		ledger := database.NewRouteLedger(ledgerRepo, name)
		publisher := telegram.NewPublisher(tgClient, routeConfig.SourceChatID, routeConfig.TargetChatID)

		rotator, err := rotation.NewRotator(routeConfig, source, ledger, publisher)
		if err != nil {
			log.Fatalf("Failed to build rotator for route %s: %v", name, err)
		}
		rotators.Add(name, rotator)
		log.Printf("Route registered: %s (mode: %s, window: %02d:00-%02d:00, quota: %d)",
			name, routeConfig.Settings.Mode, routeConfig.Settings.StartHour,
			routeConfig.Settings.EndHour, routeConfig.Settings.QuotaPerTick)
	}

	// Initialize and start scheduler
	log.Printf("Starting background scheduler with %d workers...", appCfg.WorkerCount)
	taskScheduler := tasks.NewScheduler(configCache, rotators, routeRepo)
	taskScheduler.Start()
	defer taskScheduler.Stop()

	// Telegram poller: pool ingestion and operator commands
	commandHandler := telegram.NewCommandHandler(tgClient, rotators, itemRepo, ledgerRepo)
	poller := telegram.NewPoller(tgClient, configCache, itemRepo, commandHandler, appCfg.PollTimeout)

	pollerCtx, pollerCancel := context.WithCancel(context.Background())
	defer pollerCancel()
	go poller.Run(pollerCtx)

	// Initialize HTTP server
	log.Println("Initializing HTTP server...")
	apiHandler := api.NewHandler(configCache, rotators, routeRepo, itemRepo, ledgerRepo)
	server := api.NewServer(apiHandler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		log.Printf("Starting HTTP server on port %s", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Wait for interrupt signal or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	log.Println("Channel Comb started successfully!")

	select {
	case sig := <-sigChan:
		log.Printf("Received signal: %v", sig)
	case err := <-serverErrChan:
		log.Printf("Server error: %v", err)
	}

	// Graceful shutdown
	log.Println("Shutting down gracefully...")

	pollerCancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	} else {
		log.Println("HTTP server stopped")
	}

	// Scheduler is stopped via defer
	log.Println("Channel Comb shutdown complete")
}

// buildSource constructs the candidate source matching the route's mode.
func buildSource(routeConfig *rotation.Config, itemRepo database.ItemRepository,
	httpClient *http.Client, userAgent string) (rotation.CandidateSource, error) {
	switch routeConfig.Settings.Mode {
	case rotation.ModeWindow:
		return database.NewWindowSource(itemRepo, routeConfig.Name, routeConfig.Lookback()), nil
	case rotation.ModePoll:
		return database.NewPollSource(itemRepo, routeConfig.Name, routeConfig.Settings.BatchSize), nil
	case rotation.ModeRSS:
		var extractor *rotation.Extractor
		if routeConfig.Settings.ExtractContent {
			extractor = rotation.NewExtractor()
		}
		return rotation.NewFeedSource(routeConfig.Settings.FeedURL, routeConfig.Lookback(),
			httpClient, extractor, userAgent), nil
	default:
		return nil, fmt.Errorf("unknown mode: %s", routeConfig.Settings.Mode)
	}
}
