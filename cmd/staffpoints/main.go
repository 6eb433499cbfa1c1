// Package main запускает чат-бота учёта баллов и служебный HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/staffpoints/internal/assets"
	"github.com/mmeshcher/staffpoints/internal/bot"
	"github.com/mmeshcher/staffpoints/internal/config"
	"github.com/mmeshcher/staffpoints/internal/handler"
	"github.com/mmeshcher/staffpoints/internal/middleware"
	"github.com/mmeshcher/staffpoints/internal/repository"
	"github.com/mmeshcher/staffpoints/internal/service"
	"github.com/mmeshcher/staffpoints/internal/telegram"
)

func main() {
	// .env необязателен: в проде переменные приходят из окружения.
	_ = godotenv.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI, cfg.DateCapacity)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	store := assets.NewStore(cfg.PriceText, cfg.RulesText)

	svc := service.NewService(repo, cfg, logger)
	defer svc.Close()

	machine := bot.NewMachine(svc, store, logger)

	tg, err := telegram.New(cfg.BotToken, machine, logger)
	if err != nil {
		sugar.Fatalw("telegram initialization error", "error", err.Error())
	}
	svc.SetNotifier(tg)

	authMiddleware := middleware.NewAuthMiddleware(cfg.OpsToken)
	h := handler.NewHandler(svc, logger)

	server := &http.Server{
		Addr:    cfg.OpsAddress,
		Handler: h.SetupRouter(authMiddleware),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sugar.Infow("starting telegram bot")
		if err := tg.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("telegram bot error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		sugar.Infow("starting ops server", "addr", cfg.OpsAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
