package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fx-backoffice/config"
	"fx-backoffice/internal/api"
	"fx-backoffice/internal/audit"
	"fx-backoffice/internal/auth"
	"fx-backoffice/internal/cache"
	"fx-backoffice/internal/events"
	"fx-backoffice/internal/ledger"
	"fx-backoffice/internal/logging"
	"fx-backoffice/internal/notification"
	"fx-backoffice/internal/platform"
	"fx-backoffice/internal/remote"
	"fx-backoffice/internal/store"
	"fx-backoffice/internal/vault"
	"fx-backoffice/internal/verify"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "generate-config" {
		if err := config.GenerateSampleConfig("config.json"); err != nil {
			log.Fatalf("Failed to generate config: %v", err)
		}
		log.Println("Wrote config.json")
		return
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(logging.Config{
		Level:  cfg.LoggingConfig.Level,
		Output: cfg.LoggingConfig.Output,
		Pretty: cfg.LoggingConfig.Pretty,
	})
	logger.Info().Msg("structured logging initialized")

	ctx := context.Background()

	// Resolve secrets from Vault when enabled; config values act as fallback
	secrets := vault.Secrets{
		JWTSecret:     cfg.AuthConfig.JWTSecret,
		PlatformToken: cfg.PlatformConfig.ServiceToken,
	}
	if cfg.VaultConfig.Enabled {
		vaultClient, err := vault.NewClient(cfg.VaultConfig)
		if err != nil {
			log.Fatalf("Failed to initialize vault client: %v", err)
		}
		loadCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		secrets, err = vaultClient.Load(loadCtx, secrets)
		cancel()
		if err != nil {
			log.Fatalf("Failed to load secrets from vault: %v", err)
		}
		logger.Info().Msg("secrets loaded from vault")
	}
	if secrets.JWTSecret == "" {
		log.Fatalf("JWT secret is required (JWT_SECRET or vault)")
	}
	if secrets.PlatformToken == "" {
		log.Fatalf("Platform service token is required (PLATFORM_SERVICE_TOKEN or vault)")
	}

	// Initialize event bus
	eventBus := events.NewEventBus()

	// Initialize ops notifications
	if cfg.NotificationConfig.Enabled {
		notifyManager := notification.NewManager()

		if cfg.NotificationConfig.Telegram.Enabled {
			notifyManager.AddNotifier(notification.NewTelegramNotifier(notification.TelegramConfig{
				BotToken: cfg.NotificationConfig.Telegram.BotToken,
				ChatID:   cfg.NotificationConfig.Telegram.ChatID,
				Enabled:  cfg.NotificationConfig.Telegram.Enabled,
			}))
			logger.Info().Msg("telegram notifications enabled")
		}

		if cfg.NotificationConfig.Discord.Enabled {
			notifyManager.AddNotifier(notification.NewDiscordNotifier(notification.DiscordConfig{
				WebhookURL: cfg.NotificationConfig.Discord.WebhookURL,
				Enabled:    cfg.NotificationConfig.Discord.Enabled,
			}))
			logger.Info().Msg("discord notifications enabled")
		}

		notification.Bridge(eventBus, notifyManager, cfg.WorkflowConfig.AlertAboveAmount, logger)
	}

	// Initialize the audit database
	db, err := audit.NewDB(cfg.DatabaseConfig)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.RunMigrations(ctx); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	repo := audit.NewRepository(db)

	// Initialize the snapshot cache (degrades to no-op without Redis)
	snapshots := cache.New(cfg.RedisConfig, time.Duration(cfg.WorkflowConfig.SnapshotTTLMinutes)*time.Minute, logger)
	defer snapshots.Close()

	// Platform client and retry controller
	platformClient := platform.NewClient(cfg.PlatformConfig.BaseURL, cfg.PlatformConfig.RequestTimeout)
	controller := remote.NewController(cfg.RetryConfig, snapshots, eventBus, logger)

	// Workflow core
	requestStore := store.NewRequestStore(platformClient, controller, eventBus, logger)
	balanceLedger := ledger.New(platformClient, controller, snapshots, logger)
	engine := verify.NewEngine(
		requestStore,
		balanceLedger,
		platformClient,
		controller,
		repo,
		eventBus,
		verify.Policy{AllowOverdraw: cfg.WorkflowConfig.AllowOverdraw},
		logger,
	)

	// Operator authentication
	jwtManager := auth.NewJWTManager(secrets.JWTSecret, cfg.AuthConfig.AccessTokenDuration)
	passwordManager := auth.NewPasswordManager(cfg.AuthConfig.BcryptCost, cfg.AuthConfig.MinPasswordLength)
	authService := auth.NewService(repo, jwtManager, passwordManager, logger)

	// Admin API server
	server := api.NewServer(
		cfg.ServerConfig,
		engine,
		requestStore,
		balanceLedger,
		repo,
		authService,
		jwtManager,
		eventBus,
		secrets.PlatformToken,
		logger,
	)

	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("API server failed")
		}
	}()

	logger.Info().
		Str("platform", cfg.PlatformConfig.BaseURL).
		Bool("allow_overdraw", cfg.WorkflowConfig.AllowOverdraw).
		Bool("cache", snapshots.Healthy()).
		Msg("backoffice started")

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info().Str("signal", sig.String()).Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}

	logger.Info().Msg("backoffice stopped")
}
