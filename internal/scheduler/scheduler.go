// Package scheduler arms a recurring scan trigger so that a scan finishes by
// a configured time of day. The start time is derived from an estimate of
// the scan duration and recomputed whenever the entity population changes.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/narworks/muhasebe-asistani-sub000/internal/models"
)

// SettingsKey is where the schedule is persisted.
const SettingsKey = "schedule"

// SettingsStore persists the schedule configuration.
type SettingsStore interface {
	Get(ctx context.Context, key string, v any) (bool, error)
	Put(ctx context.Context, key string, v any) error
}

// Population reports the number of active entities.
type Population interface {
	CountActive(ctx context.Context) (int, error)
}

// TriggerFunc starts a scheduled scan. It must not block on the scan.
type TriggerFunc func(ctx context.Context)

// ConfigureRequest is the user-facing part of the schedule.
type ConfigureRequest struct {
	Enabled    bool             `json:"enabled"`
	FinishBy   string           `json:"finish_by" validate:"required"`
	Frequency  models.Frequency `json:"frequency" validate:"required,oneof=daily weekdays weekends custom"`
	CustomDays []int            `json:"custom_days" validate:"dive,min=0,max=6"`
}

// Validate checks the request the same way the trigger would be compiled.
func (r ConfigureRequest) Validate() error {
	if _, err := ParseClock(r.FinishBy); err != nil {
		return err
	}
	_, err := AllowedDays(r.Frequency, r.CustomDays)
	return err
}

// Scheduler owns the cron trigger and the persisted ScheduleConfig.
type Scheduler struct {
	settings   SettingsStore
	population Population
	pacing     Pacing
	trigger    TriggerFunc
	loc        *time.Location
	logger     *slog.Logger

	// applyMu serializes Configure, Rearm and fire; mu guards the fields below.
	applyMu sync.Mutex
	mu      sync.Mutex
	cron    *cron.Cron
	entry   cron.EntryID
	cfg     models.ScheduleConfig
	active  int
	reason  string
	started bool

	now func() time.Time
}

// New creates a Scheduler. Triggers fire in loc.
func New(settings SettingsStore, population Population, pacing Pacing, trigger TriggerFunc, loc *time.Location, logger *slog.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	logger = logger.With("component", "scheduler")
	cl := cronLogger{logger}
	return &Scheduler{
		settings:   settings,
		population: population,
		pacing:     pacing,
		trigger:    trigger,
		loc:        loc,
		logger:     logger,
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		cfg: models.DefaultScheduleConfig(),
		now: time.Now,
	}
}

// Load reads the persisted schedule and arms it when enabled.
func (s *Scheduler) Load(ctx context.Context) error {
	cfg := models.DefaultScheduleConfig()
	if _, err := s.settings.Get(ctx, SettingsKey, &cfg); err != nil {
		return fmt.Errorf("failed to load schedule: %w", err)
	}
	if cfg.CustomDays == nil {
		cfg.CustomDays = []int{}
	}

	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()

	if !cfg.Enabled {
		return nil
	}
	_, err := s.Rearm(ctx)
	return err
}

// Start runs the cron loop.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.cron.Start()
	s.logger.Info("scheduler started")
}

// Stop halts the cron loop and waits for a firing trigger to return.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	done := s.cron.Stop()
	s.mu.Unlock()

	select {
	case <-done.Done():
	case <-ctx.Done():
	}
	s.logger.Info("scheduler stopped")
}

// Configure validates, persists and applies the user schedule. Disabling
// removes the trigger and clears the derived instants. A failed request
// leaves the live and persisted schedule untouched.
func (s *Scheduler) Configure(ctx context.Context, req ConfigureRequest) (models.ScheduleStatus, error) {
	if err := req.Validate(); err != nil {
		return models.ScheduleStatus{}, err
	}
	clock, _ := ParseClock(req.FinishBy)

	return s.apply(ctx, func(cfg *models.ScheduleConfig) {
		cfg.Enabled = req.Enabled
		cfg.FinishBy = clock.String()
		cfg.Frequency = req.Frequency
		cfg.CustomDays = append([]int{}, req.CustomDays...)
	})
}

// Status returns the persisted configuration plus the live trigger state.
func (s *Scheduler) Status() models.ScheduleStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Scheduler) statusLocked() models.ScheduleStatus {
	cfg := s.cfg
	cfg.CustomDays = append([]int{}, s.cfg.CustomDays...)
	return models.ScheduleStatus{
		ScheduleConfig: cfg,
		Armed:          s.entry != 0,
		Reason:         s.reason,
		ActiveEntities: s.active,
	}
}

// Rearm re-estimates the scan duration from the current population,
// recomputes the next start and finish instants and replaces the trigger.
// Zero active entities leave the schedule enabled but unarmed.
func (s *Scheduler) Rearm(ctx context.Context) (models.ScheduleStatus, error) {
	return s.apply(ctx, nil)
}

// armPlan is a fully computed schedule waiting to be installed.
type armPlan struct {
	cfg      models.ScheduleConfig
	schedule cron.Schedule // nil leaves the schedule unarmed
	reason   string
}

// apply computes the next schedule from a copy of the current one, persists
// it and only then swaps it in together with its trigger.
func (s *Scheduler) apply(ctx context.Context, change func(*models.ScheduleConfig)) (models.ScheduleStatus, error) {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	s.mu.Lock()
	next := s.cfg
	next.CustomDays = append([]int{}, s.cfg.CustomDays...)
	s.mu.Unlock()
	if change != nil {
		change(&next)
	}

	count, err := s.population.CountActive(ctx)
	if err != nil {
		return models.ScheduleStatus{}, fmt.Errorf("failed to count active entities: %w", err)
	}

	p, err := s.plan(next, count)
	if err != nil {
		return models.ScheduleStatus{}, err
	}
	if err := s.settings.Put(ctx, SettingsKey, p.cfg); err != nil {
		return models.ScheduleStatus{}, fmt.Errorf("failed to save schedule: %w", err)
	}

	s.mu.Lock()
	if s.entry != 0 {
		s.cron.Remove(s.entry)
		s.entry = 0
	}
	if p.schedule != nil {
		s.entry = s.cron.Schedule(p.schedule, cron.FuncJob(s.fire))
	}
	s.cfg = p.cfg
	s.reason = p.reason
	s.active = count
	status := s.statusLocked()
	s.mu.Unlock()

	switch {
	case status.Armed:
		s.logger.Info("schedule armed",
			"active_entities", count,
			"estimated_minutes", p.cfg.EstimatedMinutes,
			"next_start", p.cfg.NextStartAt.Format(time.RFC3339),
			"finish_by", p.cfg.NextFinishAt.Format(time.RFC3339),
			"cron", p.cfg.CronExpression,
		)
	default:
		s.logger.Info("schedule not armed", "reason", p.reason)
	}
	return status, nil
}

// plan derives the trigger for cfg without touching the scheduler.
func (s *Scheduler) plan(cfg models.ScheduleConfig, count int) (armPlan, error) {
	cfg.NextStartAt = nil
	cfg.NextFinishAt = nil
	cfg.CronExpression = ""

	if !cfg.Enabled {
		return armPlan{cfg: cfg, reason: "schedule disabled"}, nil
	}

	minutes := EstimateDuration(count, s.pacing)
	cfg.EstimatedMinutes = minutes
	if minutes == 0 {
		return armPlan{cfg: cfg, reason: ErrNothingToSchedule.Error()}, nil
	}

	clock, err := ParseClock(cfg.FinishBy)
	if err != nil {
		return armPlan{}, err
	}
	start, finish, err := ComputeStartTime(s.now().In(s.loc), clock, minutes, cfg.Frequency, cfg.CustomDays)
	if err != nil {
		return armPlan{}, err
	}
	expr, err := BuildCronExpression(start, finish, cfg.Frequency, cfg.CustomDays)
	if err != nil {
		return armPlan{}, err
	}
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return armPlan{}, fmt.Errorf("failed to arm trigger: %w", err)
	}

	cfg.NextStartAt = &start
	cfg.NextFinishAt = &finish
	cfg.CronExpression = expr
	return armPlan{cfg: cfg, schedule: sched}, nil
}

// fire runs on the cron goroutine.
func (s *Scheduler) fire() {
	ctx := context.Background()
	now := s.now().In(s.loc)

	s.applyMu.Lock()
	s.mu.Lock()
	s.cfg.LastTriggeredAt = &now
	s.mu.Unlock()
	s.applyMu.Unlock()

	s.logger.Info("scheduled scan triggered")
	if s.trigger != nil {
		s.trigger(ctx)
	}

	if _, err := s.Rearm(ctx); err != nil {
		s.logger.Error("failed to re-arm schedule after trigger", "error", err)
	}
}

// cronLogger adapts slog to the cron logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
