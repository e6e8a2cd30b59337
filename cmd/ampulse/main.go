// Package main starts the HTTP server of the reservation service.
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

	"github.com/newage31/Ampulse-sub004/internal/availability"
	"github.com/newage31/Ampulse-sub004/internal/config"
	"github.com/newage31/Ampulse-sub004/internal/handler"
	"github.com/newage31/Ampulse-sub004/internal/middleware"
	"github.com/newage31/Ampulse-sub004/internal/pricing"
	"github.com/newage31/Ampulse-sub004/internal/repository"
	"github.com/newage31/Ampulse-sub004/internal/service"
)

func main() {
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

	index := availability.NewIndex()
	resolver := pricing.NewResolver(repo)

	svc := service.NewService(repo, index, resolver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The in-memory index must reflect all active reservations before
	// the server starts accepting bookings.
	if err := svc.LoadAvailability(ctx); err != nil {
		sugar.Fatalw("availability index load error", "error", err.Error())
	}

	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	h := handler.NewHandler(svc, logger, authMiddleware)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	g, ctx := errgroup.WithContext(ctx)

	// Background sweep marking overdue CONFIRMED reservations as NO_SHOW
	g.Go(func() error {
		svc.StartNoShowSweep(ctx, cfg.NoShowSweepInterval)
		return nil
	})

	// HTTP server
	g.Go(func() error {
		sugar.Infow("starting reservation server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown on context cancellation (signal or error in another goroutine)
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
