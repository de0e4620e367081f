package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/user/priceharvest/internal/api"
	"github.com/user/priceharvest/internal/browser"
	"github.com/user/priceharvest/internal/config"
	"github.com/user/priceharvest/internal/domain"
	"github.com/user/priceharvest/internal/harvest"
	"github.com/user/priceharvest/internal/monitoring"
	"github.com/user/priceharvest/internal/notify"
	"github.com/user/priceharvest/internal/paginate"
	"github.com/user/priceharvest/internal/storage"
)

const usage = `priceharvest - retail catalog price scraper

Usage:
  scraper [command]

Commands:
  scrape        Run one full harvest-then-persist cycle (default)
  check-db      Validate the database connection
  check-notify  Send a test notification
`

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("could not load config", zap.Error(err))
	}

	cmd := "scrape"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	switch cmd {
	case "scrape":
		runScrape(cfg, logger)
	case "check-db":
		checkDB(cfg, logger)
	case "check-notify":
		checkNotify(cfg, logger)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

func runScrape(cfg *config.Config, logger *zap.Logger) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.PostgresURL == "" {
		logger.Fatal("POSTGRES_URL is required for scrape")
	}
	pgStore, err := storage.NewPostgresStore(ctx, cfg.PostgresURL, logger)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pgStore.Close()

	var redisStore *storage.RedisStore
	if cfg.RedisAddr != "" {
		redisStore = storage.NewRedisStore(cfg.RedisAddr, cfg.RedisDB)
		defer redisStore.Close()
	}

	notifier := notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID, logger)
	if !notifier.Enabled() {
		logger.Warn("telegram credentials not configured, notifications disabled")
	}

	metrics := monitoring.NewMetrics()
	chrome := browser.NewChrome(browser.Options{
		Headless:        cfg.Headless,
		NavTimeout:      cfg.PageLoadTimeout(),
		SelectorTimeout: cfg.SelectorTimeout(),
	}, logger)
	defer chrome.Close()

	paginator := paginate.New(chrome, logger, metrics)
	fetcher := harvest.NewProductFetcher(chrome, logger, metrics)
	harvester := harvest.New(harvest.Config{
		Categories:          cfg.Categories(),
		MaxWorkers:          cfg.MaxWorkers,
		RetryWorkers:        cfg.RetryWorkers,
		MaxWaves:            cfg.MaxWaves,
		DiscoveryAttempts:   cfg.DiscoveryAttempts,
		DiscoveryRetryDelay: cfg.DiscoveryRetryDelay(),
		RetryCooldown:       cfg.RetryCooldown(),
		JitterMin:           cfg.JitterMin(),
		JitterMax:           cfg.JitterMax(),
		FailedPreview:       cfg.FailedPreview,
	}, paginator, fetcher, logger, metrics)

	// Observability server for the duration of the run.
	server := api.NewServer(cfg.ServerPort, pgStore, redisStore, metrics, harvester.Progress, logger)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("status server failed", zap.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	notifier.SendMessage(ctx, "📤 <b>Notification</b>\n\nStarting harvest run!")

	result, err := harvester.Run(ctx)
	if err != nil {
		logger.Error("harvest aborted", zap.Error(err))
		notifier.SendFailure(context.Background(), err)
		os.Exit(1)
	}

	saved, err := pgStore.SaveHarvest(ctx, result.Products)
	if err != nil {
		logger.Error("persisting harvest failed", zap.Error(err))
		notifier.SendFailure(context.Background(), err)
		os.Exit(1)
	}
	logger.Info("price records saved", zap.Int("saved", saved))

	if redisStore != nil {
		summary := domain.RunSummary{
			FinishedAt:   time.Now().UTC(),
			Products:     len(result.Products),
			Attempted:    result.Attempted,
			Waves:        result.Waves,
			SuccessRatio: result.SuccessRatio,
		}
		for _, pu := range result.FailedURLs {
			summary.FailedURLs = append(summary.FailedURLs, pu.URL)
		}
		if err := redisStore.RecordRun(ctx, summary); err != nil {
			logger.Warn("failed to record run summary", zap.Error(err))
		}
	}

	if result.SuccessRatio >= 1.0 {
		notifier.SendSuccess(ctx, len(result.Products))
	} else {
		notifier.SendPartialSuccess(ctx, len(result.Products), result.SuccessRatio)
	}
}

func checkDB(cfg *config.Config, logger *zap.Logger) {
	if cfg.PostgresURL == "" {
		logger.Fatal("POSTGRES_URL is not configured")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := storage.NewPostgresStore(ctx, cfg.PostgresURL, logger)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer store.Close()

	if err := store.Ping(ctx); err != nil {
		logger.Fatal("database ping failed", zap.Error(err))
	}
	fmt.Println("database connection successful")
}

func checkNotify(cfg *config.Config, logger *zap.Logger) {
	notifier := notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID, logger)
	if !notifier.Enabled() {
		logger.Fatal("telegram not configured, set TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if !notifier.SendMessage(ctx, "🧪 <b>Test notification</b>\n\nYour price harvester bot is working!") {
		logger.Fatal("failed to send test notification")
	}
	fmt.Println("test notification sent")
}
