// Package main запускает HTTP-сервер сервиса школьной библиотеки.
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
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/bibliohispa-system/internal/config"
	"github.com/mmeshcher/bibliohispa-system/internal/covers"
	"github.com/mmeshcher/bibliohispa-system/internal/engine"
	"github.com/mmeshcher/bibliohispa-system/internal/handler"
	"github.com/mmeshcher/bibliohispa-system/internal/store"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	st, err := store.Open(cfg.DatabaseFile)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	var coversClient *covers.Client
	if cfg.CoversServiceAddress != "" {
		coversClient = covers.NewClient(cfg.CoversServiceAddress)
	}

	eng := engine.NewEngine(st, coversClient, cfg.BackupDir, cfg.BackupInterval)
	defer eng.Close()

	h := handler.NewHandler(eng, logger)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск фонового процесса резервного копирования
	g.Go(func() error {
		eng.StartBackups(ctx)
		return nil
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting bibliohispa server", "addr", cfg.RunAddress, "database", cfg.DatabaseFile)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
