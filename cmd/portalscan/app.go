package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/narworks/muhasebe-asistani-sub000/internal/browser"
	"github.com/narworks/muhasebe-asistani-sub000/internal/config"
	"github.com/narworks/muhasebe-asistani-sub000/internal/credit"
	"github.com/narworks/muhasebe-asistani-sub000/internal/crypto"
	"github.com/narworks/muhasebe-asistani-sub000/internal/database"
	"github.com/narworks/muhasebe-asistani-sub000/internal/notify"
	"github.com/narworks/muhasebe-asistani-sub000/internal/orchestrator"
	"github.com/narworks/muhasebe-asistani-sub000/internal/processor"
	"github.com/narworks/muhasebe-asistani-sub000/internal/repository"
	"github.com/narworks/muhasebe-asistani-sub000/internal/scheduler"
	"github.com/narworks/muhasebe-asistani-sub000/internal/solver"
	"github.com/narworks/muhasebe-asistani-sub000/internal/storage"
)

// app holds the storage layer every command needs.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *sql.DB
	repos    *repository.Repositories
	entities *repository.EntityStore
	credits  *credit.Gate

	closers []func() error
}

// openApp loads configuration and opens the database.
func openApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := slog.Default()

	db, err := database.OpenAndMigrate(cfg.DatabasePath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	enc, err := crypto.NewEncryptor(cfg.EncryptionKey)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create encryptor: %w", err)
	}

	repos := repository.NewRepositories(db)
	return &app{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		repos:    repos,
		entities: repository.NewEntityStore(repos.Entity, repos.Record, enc),
		credits:  credit.NewGate(repos.Credit, logger),
		closers:  []func() error{db.Close},
	}, nil
}

// Close releases everything opened by the app, newest first.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("failed to close resource", "error", err)
		}
	}
}

// newSolver builds the CAPTCHA solver chain: Gemini first, 2Captcha as the
// fallback.
func (a *app) newSolver(ctx context.Context) solver.Solver {
	var solvers []solver.Solver

	if a.cfg.GeminiAPIKey != "" {
		g, err := solver.NewGemini(ctx, a.cfg.GeminiAPIKey, a.cfg.GeminiModel)
		if err != nil {
			a.logger.Warn("Gemini solver disabled", "error", err)
		} else {
			a.logger.Info("Gemini solver enabled", "model", a.cfg.GeminiModel)
			solvers = append(solvers, g)
			a.closers = append(a.closers, g.Close)
		}
	}
	if a.cfg.TwoCaptchaAPIKey != "" {
		a.logger.Info("2Captcha solver enabled")
		solvers = append(solvers, solver.NewTwoCaptcha(a.cfg.TwoCaptchaAPIKey))
	}
	if len(solvers) == 0 {
		a.logger.Warn("no CAPTCHA solver configured; every login will fail")
	}
	return solver.NewChain(solvers...)
}

func (a *app) launcher() *browser.Launcher {
	return browser.NewLauncher(browser.OptionsFromConfig(a.cfg), a.logger)
}

// newOrchestrator wires the browser, solvers, document storage and processor
// into a scan orchestrator.
func (a *app) newOrchestrator(ctx context.Context) (*orchestrator.Orchestrator, error) {
	docs, err := storage.New(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create document storage: %w", err)
	}

	proc := processor.New(processor.ConfigFromConfig(a.cfg), a.newSolver(ctx), a.entities, docs, a.logger)

	deps := orchestrator.Deps{
		Entities:  a.entities,
		Processor: proc,
		Drivers:   a.launcher(),
		Runs:      a.repos.ScanRun,
	}
	if a.cfg.CreditGateEnabled {
		deps.Credits = a.credits
	}
	if a.cfg.WebhookURL != "" {
		deps.Notifier = notify.NewWebhook(a.cfg.WebhookURL, a.cfg.APISecret, a.logger)
		a.logger.Info("webhook notifications enabled", "url", a.cfg.WebhookURL)
	}

	return orchestrator.New(deps, orchestrator.ConfigFromConfig(a.cfg), a.logger), nil
}

// newScheduler returns a scheduler over the persisted settings that never
// triggers a scan. Commands use it to validate and store the schedule.
func (a *app) newScheduler() *scheduler.Scheduler {
	return scheduler.New(a.repos.Settings, a.repos.Entity, scheduler.PacingFromConfig(a.cfg), nil, a.cfg.Location(), a.logger)
}
