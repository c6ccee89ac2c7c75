package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shopbot/internal/catalog"
	"shopbot/internal/config"
	"shopbot/internal/convo"
	"shopbot/internal/httpserver"
	"shopbot/internal/keylock"
	"shopbot/internal/ledger"
	"shopbot/internal/logging"
	"shopbot/internal/metrics"
	"shopbot/internal/store"
	"shopbot/internal/telegram"
	"shopbot/internal/vault"
	"shopbot/migrations"

	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting shop bot", "env", cfg.AppEnv, "store", cfg.StoreDriver, "telegram_mode", cfg.TelegramMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricRegistry := metrics.Registry(cfg.MetricsNamespace)

	rawStore, err := store.Open(ctx, cfg.Store(), migrations.Files, logger)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer func() {
		if err := rawStore.Close(); err != nil {
			logger.Warn("failed closing store", "error", err)
		}
	}()
	records := store.Instrument(rawStore, cfg.StoreDriver, metricRegistry)
	logger.Info("store ready", "driver", cfg.StoreDriver)

	titlePolicy, err := catalog.ParseTitlePolicy(cfg.CatalogDuplicateTitles)
	if err != nil {
		return fmt.Errorf("catalog config: %w", err)
	}

	locks := keylock.New()
	coinLedger := ledger.New(records, locks, logger, metricRegistry)
	productCatalog := catalog.New(records, locks, logger, catalog.Config{DuplicateTitles: titlePolicy})
	codeVault := vault.New(records, coinLedger, logger)

	paymentLinks := make([]convo.PaymentLink, 0, len(config.PayPacks))
	for _, coins := range config.PayPacks {
		paymentLinks = append(paymentLinks, convo.PaymentLink{Coins: coins, URL: cfg.PaymentURLs[coins]})
	}

	engine := convo.New(records, coinLedger, productCatalog, codeVault, locks, metricRegistry, logger, convo.EngineConfig{
		AdminIDs:      cfg.AdminIDs,
		BotName:       cfg.BotName,
		SupportHandle: cfg.SupportHandle,
		ReferralBonus: cfg.ReferralBonus,
		StepTTL:       cfg.StepTTL,
		PaymentLinks:  paymentLinks,
	})

	tgClient, err := telegram.New(telegram.Config{
		Token: cfg.BotToken,
		Debug: cfg.LogLevel == "debug",
	}, logger, metricRegistry)
	if err != nil {
		return err
	}
	tgClient.SetProcessor(engine)

	handlers := httpserver.Handlers{}
	errCh := make(chan error, 2)
	switch cfg.TelegramMode {
	case config.ModeWebhook:
		handlers.TelegramWebhook = telegram.NewWebhookHandler(logger, metricRegistry, cfg.TelegramWebhookSecret, tgClient)
		if cfg.TelegramWebhookSecret == "" {
			logger.Warn("telegram webhook secret not set, accepting unauthenticated updates")
		}
	case config.ModePolling:
		go func() {
			if err := tgClient.Poll(ctx); err != nil {
				errCh <- fmt.Errorf("telegram polling: %w", err)
			}
		}()
	}

	httpSrv := httpserver.New(cfg.HTTPListenAddr, logger, handlers, httpserver.Dependencies{
		Store: records,
	}, cfg.PublicBasePath)

	go func() {
		if err := httpSrv.Start(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	return nil
}
