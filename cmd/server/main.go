package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/civicgrid/dispatch/internal/classifier"
	"github.com/civicgrid/dispatch/internal/clock"
	"github.com/civicgrid/dispatch/internal/config"
	"github.com/civicgrid/dispatch/internal/domain"
	"github.com/civicgrid/dispatch/internal/handler"
	"github.com/civicgrid/dispatch/internal/notify"
	"github.com/civicgrid/dispatch/internal/repository/postgres"
	"github.com/civicgrid/dispatch/internal/service"
	"github.com/civicgrid/dispatch/internal/storage"
)

func main() {
	if err := run(); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	setupLogger(cfg.Env)

	db, err := postgres.Connect(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := storage.EnsureSchema(context.Background(), db); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	slog.Info("database connected")

	issueRepo := postgres.NewIssueRepository(db)
	workerRepo := postgres.NewWorkerRepository(db)
	assignmentRepo := postgres.NewAssignmentRepository(db)
	verificationRepo := postgres.NewVerificationRepository(db)
	escalationRepo := postgres.NewEscalationRepository(db)

	var notifier notify.Notifier = notify.LogNotifier{}
	if cfg.WebhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.WebhookURL)
	}

	clk := clock.System()

	issueSvc := service.NewIssueService(
		issueRepo, escalationRepo,
		classifier.NewHTTPClassifier(cfg.ClassifierURL, cfg.ClassifierTimeout),
		notifier, clk, cfg.ClassifierTimeout,
	)
	dispatchSvc := service.NewDispatchService(
		issueRepo, workerRepo, assignmentRepo,
		notifier, clk, cfg.CooldownWindow,
		func(priority domain.Priority) time.Duration {
			return cfg.SLAFor(string(priority))
		},
	)
	verificationSvc := service.NewVerificationService(
		issueRepo, assignmentRepo, verificationRepo,
		notifier, clk,
	)
	monitor := service.NewSLAMonitor(issueRepo, notifier, clk, cfg.SLASweepInterval)

	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	defer stopMonitor()
	go monitor.Run(monitorCtx)

	router := handler.NewRouter(handler.RouterConfig{
		Issues:      handler.NewIssueHandler(issueSvc),
		Dispatch:    handler.NewDispatchHandler(dispatchSvc),
		Reviews:     handler.NewReviewHandler(verificationSvc),
		SLA:         handler.NewSLAHandler(monitor),
		FrontendURL: cfg.FrontendURL,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("shutdown signal received", "signal", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	}

	stopMonitor()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

func setupLogger(env string) {
	var h slog.Handler
	if env == "prod" {
		h = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		h = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	slog.SetDefault(slog.New(h))
}
