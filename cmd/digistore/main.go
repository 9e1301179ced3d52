// Package main запускает Telegram-бот магазина Digi Store.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/swordsar/digistore-bot/internal/bot"
	"github.com/swordsar/digistore-bot/internal/config"
	"github.com/swordsar/digistore-bot/internal/cryptopay"
	"github.com/swordsar/digistore-bot/internal/repository"
	"github.com/swordsar/digistore-bot/internal/service"
	"github.com/swordsar/digistore-bot/internal/session"
	"github.com/swordsar/digistore-bot/internal/web"
)

func main() {
	// .env необязателен: в проде конфигурация приходит из окружения.
	_ = godotenv.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		sugar.Fatalw("telegram api initialization error", "error", err.Error())
	}
	sugar.Infow("authorized on telegram", "account", api.Self.UserName)

	var gateway service.Gateway
	if cfg.CryptoBotToken != "" {
		gateway = cryptopay.NewClient(cfg.CryptoBotToken, cfg.USDRate)
	} else {
		sugar.Info("CryptoBot token is not set, crypto payments disabled")
	}

	catalog := service.Catalog{
		StarRate:       cfg.StarRate,
		USDRate:        cfg.USDRate,
		MinExchangeRUB: cfg.MinExchangeRUB,
		PremiumTiers:   make(map[string]service.PremiumTier, len(cfg.PremiumTiers)),
	}
	for period, tier := range cfg.PremiumTiers {
		catalog.PremiumTiers[period] = service.PremiumTier{Name: tier.Name, PriceRUB: tier.PriceRUB}
	}

	svc := service.NewService(repo, gateway, bot.NewNotifier(api), catalog, cfg.AdminList(), logger)
	defer svc.Close()

	b := bot.New(api, svc, session.NewManager(), cfg, logger)

	opsServer := &http.Server{
		Addr:    cfg.OpsAddress,
		Handler: web.NewServer(repo, svc, logger).SetupRouter(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Цикл обновлений Telegram
	g.Go(func() error {
		sugar.Info("starting telegram update loop")
		return b.Run(ctx)
	})

	// Служебный HTTP-сервер
	g.Go(func() error {
		sugar.Infow("starting ops server", "addr", cfg.OpsAddress)
		if err := opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("ops server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := opsServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("ops server shutdown error: %w", err)
		}
		sugar.Info("stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
