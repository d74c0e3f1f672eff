package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/narworks/muhasebe-asistani-sub000/internal/events"
	"github.com/narworks/muhasebe-asistani-sub000/internal/http/handlers"
	"github.com/narworks/muhasebe-asistani-sub000/internal/http/mw"
	"github.com/narworks/muhasebe-asistani-sub000/internal/http/routes"
	"github.com/narworks/muhasebe-asistani-sub000/internal/orchestrator"
	"github.com/narworks/muhasebe-asistani-sub000/internal/scheduler"
	"github.com/narworks/muhasebe-asistani-sub000/internal/version"
	"github.com/narworks/muhasebe-asistani-sub000/internal/worker"
)

const shutdownTimeout = 30 * time.Second

var (
	servePort   int
	serveWarmup bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP control surface and the scheduler",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (defaults to PORT)")
	serveCmd.Flags().BoolVar(&serveWarmup, "warmup", true, "Fetch Chromium before accepting requests")
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	cfg, logger := a.cfg, a.logger
	if servePort > 0 {
		cfg.Port = servePort
	}

	v := version.Get()
	logger.Info("starting portalscan",
		"version", v.Version,
		"commit", v.Commit,
		"built", v.Date,
		"go_version", v.GoVersion,
	)

	orch, err := a.newOrchestrator(ctx)
	if err != nil {
		return err
	}
	broker := events.NewBroker(cfg.EventBuffer, logger)

	sched := scheduler.New(a.repos.Settings, a.repos.Entity, scheduler.PacingFromConfig(cfg),
		func(ctx context.Context) {
			res := orch.Start(ctx, orchestrator.Request{Trigger: orchestrator.TriggerSchedule})
			if !res.Started {
				logger.Warn("scheduled scan skipped", "reason", res.Message)
			}
		}, cfg.Location(), logger)
	if err := sched.Load(ctx); err != nil {
		return err
	}

	watcher := worker.New(a.repos.Entity, sched, worker.Config{PollInterval: cfg.PopulationPollInterval}, logger)

	h := &routes.Handlers{
		Scans:    orch,
		Readyz:   handlers.NewReadyzHandler(a.db),
		Scan:     handlers.NewScanHandler(orch, a.repos.ScanRun, logger),
		Events:   handlers.NewEventsHandler(broker, logger),
		Schedule: handlers.NewScheduleHandler(sched, logger),
		Entity:   handlers.NewEntityHandler(a.repos.Entity, a.repos.Record, a.entities, sched, logger),
		Credit:   handlers.NewCreditHandler(a.credits, cfg.CreditGateEnabled, logger),
	}
	router, _ := routes.NewRouter(routes.RouterConfig{
		BaseURL:      cfg.BaseURL,
		CORSOrigins:  cfg.CORSOrigins,
		RateLimitRPM: cfg.RateLimitRPM,
		Auth: mw.AuthConfig{
			APISecret:            cfg.APISecret,
			JWTSecret:            cfg.JWTSecret,
			AllowUnauthenticated: cfg.AllowUnauthenticated,
			Logger:               logger,
		},
		Logger: logger,
	}, h)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	// The broker outlives gctx: a cancelled scan still emits its final events.
	brokerCtx, stopBroker := context.WithCancel(context.Background())
	defer stopBroker()
	g.Go(func() error {
		broker.Run(brokerCtx, orch.Events())
		return nil
	})

	if serveWarmup {
		g.Go(func() error {
			if err := a.launcher().Warmup(); err != nil {
				logger.Warn("browser warmup failed", "error", err)
			}
			return nil
		})
	}

	sched.Start()
	watcher.Start(gctx)

	g.Go(func() error {
		logger.Info("server listening", "port", cfg.Port, "base_url", cfg.BaseURL)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// The scheduler first, so nothing starts a scan behind the cancel.
		sched.Stop(shutdownCtx)
		watcher.Stop()
		if orch.Cancel() {
			if err := orch.Wait(shutdownCtx); err != nil {
				logger.Warn("scan did not stop in time", "error", err)
			}
		}

		stopBroker()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
