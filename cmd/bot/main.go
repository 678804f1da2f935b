package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"marzban-vpn-bot/internal/config"
	"marzban-vpn-bot/internal/entitlement"
	"marzban-vpn-bot/internal/handlers"
	"marzban-vpn-bot/internal/kvstore"
	"marzban-vpn-bot/internal/permissions"
	"marzban-vpn-bot/internal/resolver"
	"marzban-vpn-bot/internal/services"
	"marzban-vpn-bot/internal/storage"
	"marzban-vpn-bot/internal/webhook"
	"marzban-vpn-bot/pkg/marzban"
	"marzban-vpn-bot/pkg/telegrambot"
	"marzban-vpn-bot/pkg/yookassa"
)

func main() {
	// Setup logger
	logger := setupLogger()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration:", err)
	}

	// Initialize persistence
	store, err := kvstore.New(cfg.DataDir, logger)
	if err != nil {
		logger.Fatal("Failed to open data directory:", err)
	}
	storageService := storage.NewService(store, logger)

	// Initialize clients
	panelClient := marzban.NewClient(cfg.Panel, logger)
	paymentClient := yookassa.NewClient(cfg.Payments, logger)

	// Initialize core services
	accountResolver := resolver.NewService(panelClient, storageService, cfg.Panel, logger)
	entitlements := entitlement.NewService(panelClient, paymentClient, storageService, cfg.Plans, logger)
	screens := services.NewScreenStateService(logger)
	qrService := services.NewQRService(logger)

	// Setup permission controller
	permController := permissions.NewController(cfg.Telegram.AdminIDs, storageService, cfg.Panel.AutoProvision, logger)

	// Initialize bot
	factory := handlers.NewHandlerFactory(accountResolver, entitlements, panelClient, storageService, screens, qrService, cfg, logger)
	bot, err := telegrambot.NewBot(cfg, factory, permController, logger)
	if err != nil {
		logger.Fatal("Failed to create bot:", err)
	}

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		logger.Info("Received shutdown signal")
		cancel()
	}()

	// Start payment notification server
	notifications := webhook.NewServer(cfg.Webhook, entitlements, logger)
	go func() {
		if err := notifications.Run(ctx); err != nil {
			logger.Errorf("Webhook server failed: %v", err)
			cancel()
		}
	}()

	// Start bot
	logger.Info("Starting Marzban VPN bot")
	if err := bot.Start(ctx); err != nil {
		logger.Fatal("Bot failed:", err)
	}
}

// setupLogger sets up the logger
func setupLogger() *logrus.Logger {
	logger := logrus.New()

	// Set log level from environment variable or default to info
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		log.Printf("Invalid log level %s, defaulting to info", logLevel)
		level = logrus.InfoLevel
	}

	logger.SetLevel(level)

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	return logger
}
