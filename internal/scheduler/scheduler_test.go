package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/narworks/muhasebe-asistani-sub000/internal/models"
)

type memSettings struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memSettings) Get(ctx context.Context, key string, v any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, v)
}

func (m *memSettings) Put(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string][]byte)
	}
	m.data[key] = raw
	return nil
}

func (m *memSettings) schedule(t *testing.T) models.ScheduleConfig {
	t.Helper()
	var cfg models.ScheduleConfig
	ok, err := m.Get(context.Background(), SettingsKey, &cfg)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("schedule was never persisted")
	}
	return cfg
}

type fixedPopulation struct {
	mu    sync.Mutex
	count int
	err   error
}

func (p *fixedPopulation) CountActive(ctx context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count, p.err
}

func (p *fixedPopulation) set(n int) {
	p.mu.Lock()
	p.count = n
	p.mu.Unlock()
}

func (p *fixedPopulation) fail(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

type schedHarness struct {
	s        *Scheduler
	settings *memSettings
	pop      *fixedPopulation
	triggers int
}

func newSchedHarness(t *testing.T, count int) *schedHarness {
	t.Helper()
	h := &schedHarness{settings: &memSettings{}, pop: &fixedPopulation{count: count}}
	h.s = New(h.settings, h.pop, testPacing(), func(ctx context.Context) { h.triggers++ },
		istanbul, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h.s.now = func() time.Time { return at(2026, time.October, 17, 10, 0) } // Saturday
	return h
}

func mustConfigure(t *testing.T, s *Scheduler, req ConfigureRequest) models.ScheduleStatus {
	t.Helper()
	status, err := s.Configure(context.Background(), req)
	if err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	return status
}

func TestScheduler_ConfigureArmsTrigger(t *testing.T) {
	// 60 entities: 2700s + 59*10s + 5*90s = 3740s -> 63 min -> 76
	h := newSchedHarness(t, 60)

	status := mustConfigure(t, h.s, ConfigureRequest{
		Enabled:   true,
		FinishBy:  "08:00",
		Frequency: models.FrequencyWeekdays,
	})

	if !status.Armed {
		t.Error("Armed = false, want true")
	}
	if status.Reason != "" {
		t.Errorf("Reason = %q, want empty", status.Reason)
	}
	if status.ActiveEntities != 60 {
		t.Errorf("ActiveEntities = %d, want 60", status.ActiveEntities)
	}
	if status.EstimatedMinutes != 76 {
		t.Errorf("EstimatedMinutes = %d, want 76", status.EstimatedMinutes)
	}
	if status.NextFinishAt == nil || status.NextStartAt == nil {
		t.Fatal("next start/finish not set")
	}
	if want := at(2026, time.October, 19, 8, 0); !status.NextFinishAt.Equal(want) {
		t.Errorf("NextFinishAt = %v, want %v", *status.NextFinishAt, want)
	}
	if want := at(2026, time.October, 19, 6, 44); !status.NextStartAt.Equal(want) {
		t.Errorf("NextStartAt = %v, want %v", *status.NextStartAt, want)
	}
	if status.CronExpression != "44 6 * * 1-5" {
		t.Errorf("CronExpression = %q, want %q", status.CronExpression, "44 6 * * 1-5")
	}

	saved := h.settings.schedule(t)
	if !saved.Enabled {
		t.Error("saved Enabled = false, want true")
	}
	if saved.CronExpression != "44 6 * * 1-5" {
		t.Errorf("saved CronExpression = %q, want %q", saved.CronExpression, "44 6 * * 1-5")
	}
	if saved.EstimatedMinutes != 76 {
		t.Errorf("saved EstimatedMinutes = %d, want 76", saved.EstimatedMinutes)
	}
}

func TestScheduler_ZeroEntitiesRefusesToArm(t *testing.T) {
	h := newSchedHarness(t, 0)

	status := mustConfigure(t, h.s, ConfigureRequest{
		Enabled:   true,
		FinishBy:  "08:00",
		Frequency: models.FrequencyDaily,
	})

	if !status.Enabled {
		t.Error("Enabled = false, want true")
	}
	if status.Armed {
		t.Error("Armed = true, want false")
	}
	if status.Reason != ErrNothingToSchedule.Error() {
		t.Errorf("Reason = %q, want %q", status.Reason, ErrNothingToSchedule.Error())
	}
	if status.NextStartAt != nil {
		t.Errorf("NextStartAt = %v, want nil", *status.NextStartAt)
	}
	if status.EstimatedMinutes != 0 {
		t.Errorf("EstimatedMinutes = %d, want 0", status.EstimatedMinutes)
	}
}

func TestScheduler_RearmFollowsPopulation(t *testing.T) {
	h := newSchedHarness(t, 0)
	ctx := context.Background()

	mustConfigure(t, h.s, ConfigureRequest{Enabled: true, FinishBy: "08:00", Frequency: models.FrequencyDaily})
	if h.s.Status().Armed {
		t.Fatal("armed with no entities")
	}

	h.pop.set(10)
	status, err := h.s.Rearm(ctx)
	if err != nil {
		t.Fatalf("Rearm() error = %v", err)
	}
	if !status.Armed {
		t.Error("Armed = false, want true")
	}
	if status.EstimatedMinutes != 11 {
		t.Errorf("EstimatedMinutes = %d, want 11", status.EstimatedMinutes)
	}
	first := *status.NextStartAt

	h.pop.set(100)
	status, err = h.s.Rearm(ctx)
	if err != nil {
		t.Fatalf("Rearm() error = %v", err)
	}
	if status.EstimatedMinutes != 126 {
		t.Errorf("EstimatedMinutes = %d, want 126", status.EstimatedMinutes)
	}
	if !status.NextStartAt.Before(first) {
		t.Errorf("NextStartAt = %v, want before %v", *status.NextStartAt, first)
	}
	if status.FinishBy != "08:00" {
		t.Errorf("FinishBy = %q, want 08:00", status.FinishBy)
	}

	h.pop.set(0)
	status, err = h.s.Rearm(ctx)
	if err != nil {
		t.Fatalf("Rearm() error = %v", err)
	}
	if status.Armed {
		t.Error("Armed = true with no entities")
	}
}

func TestScheduler_Disable(t *testing.T) {
	h := newSchedHarness(t, 5)
	ctx := context.Background()

	mustConfigure(t, h.s, ConfigureRequest{Enabled: true, FinishBy: "08:00", Frequency: models.FrequencyDaily})

	status := mustConfigure(t, h.s, ConfigureRequest{Enabled: false, FinishBy: "09:30", Frequency: models.FrequencyDaily})
	if status.Enabled || status.Armed {
		t.Errorf("Enabled = %v, Armed = %v, want both false", status.Enabled, status.Armed)
	}
	if status.NextStartAt != nil || status.NextFinishAt != nil {
		t.Error("next start/finish not cleared")
	}
	if status.CronExpression != "" {
		t.Errorf("CronExpression = %q, want empty", status.CronExpression)
	}
	if status.FinishBy != "09:30" {
		t.Errorf("FinishBy = %q, want 09:30", status.FinishBy)
	}

	saved := h.settings.schedule(t)
	if saved.Enabled {
		t.Error("saved Enabled = true")
	}
	if saved.NextStartAt != nil {
		t.Error("saved NextStartAt not cleared")
	}

	// rearming a disabled schedule does nothing
	status, err := h.s.Rearm(ctx)
	if err != nil {
		t.Fatalf("Rearm() error = %v", err)
	}
	if status.Armed {
		t.Error("disabled schedule was armed")
	}
}

func TestScheduler_ConfigureValidation(t *testing.T) {
	h := newSchedHarness(t, 5)
	ctx := context.Background()

	tests := []struct {
		name string
		req  ConfigureRequest
		want error
	}{
		{"bad clock", ConfigureRequest{Enabled: true, FinishBy: "25:00", Frequency: models.FrequencyDaily}, ErrInvalidClock},
		{"bad frequency", ConfigureRequest{Enabled: true, FinishBy: "08:00", Frequency: "hourly"}, ErrInvalidFrequency},
		{"empty custom", ConfigureRequest{Enabled: true, FinishBy: "08:00", Frequency: models.FrequencyCustom}, ErrNoDays},
		{"disabled still validated", ConfigureRequest{FinishBy: "8", Frequency: models.FrequencyDaily}, ErrInvalidClock},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.s.Configure(ctx, tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("Configure() error = %v, want %v", err, tt.want)
			}
		})
	}

	if got, want := h.s.Status().FinishBy, models.DefaultScheduleConfig().FinishBy; got != want {
		t.Errorf("FinishBy = %q after rejected requests, want %q", got, want)
	}
}

func TestScheduler_FailedConfigureKeepsPreviousSchedule(t *testing.T) {
	h := newSchedHarness(t, 10)
	ctx := context.Background()

	before := mustConfigure(t, h.s, ConfigureRequest{Enabled: true, FinishBy: "08:00", Frequency: models.FrequencyDaily})
	if !before.Armed {
		t.Fatal("initial schedule not armed")
	}
	entry := h.s.entry

	dbDown := errors.New("db down")
	h.pop.fail(dbDown)

	_, err := h.s.Configure(ctx, ConfigureRequest{Enabled: true, FinishBy: "22:00", Frequency: models.FrequencyWeekends})
	if !errors.Is(err, dbDown) {
		t.Fatalf("Configure() error = %v, want %v", err, dbDown)
	}

	status := h.s.Status()
	if status.FinishBy != "08:00" || status.Frequency != models.FrequencyDaily {
		t.Errorf("live schedule = %s %s, want 08:00 daily", status.FinishBy, status.Frequency)
	}
	if !status.Armed || h.s.entry != entry {
		t.Errorf("trigger replaced: armed = %v, entry = %d, want %d", status.Armed, h.s.entry, entry)
	}
	if status.CronExpression != before.CronExpression {
		t.Errorf("CronExpression = %q, want %q", status.CronExpression, before.CronExpression)
	}

	saved := h.settings.schedule(t)
	if saved.FinishBy != "08:00" || saved.Frequency != models.FrequencyDaily {
		t.Errorf("persisted schedule = %s %s, want 08:00 daily", saved.FinishBy, saved.Frequency)
	}

	// the failed count leaves the entity figure alone too
	if status.ActiveEntities != 10 {
		t.Errorf("ActiveEntities = %d, want 10", status.ActiveEntities)
	}

	h.pop.fail(nil)
	after := mustConfigure(t, h.s, ConfigureRequest{Enabled: true, FinishBy: "22:00", Frequency: models.FrequencyWeekends})
	if after.FinishBy != "22:00" || after.Frequency != models.FrequencyWeekends {
		t.Errorf("schedule after recovery = %s %s, want 22:00 weekends", after.FinishBy, after.Frequency)
	}
}

func TestScheduler_FailedRearmKeepsTrigger(t *testing.T) {
	h := newSchedHarness(t, 10)
	before := mustConfigure(t, h.s, ConfigureRequest{Enabled: true, FinishBy: "08:00", Frequency: models.FrequencyDaily})

	h.pop.fail(errors.New("db down"))
	if _, err := h.s.Rearm(context.Background()); err == nil {
		t.Fatal("Rearm() error = nil, want count failure")
	}

	status := h.s.Status()
	if !status.Armed {
		t.Error("trigger dropped after failed rearm")
	}
	if !status.NextStartAt.Equal(*before.NextStartAt) {
		t.Errorf("NextStartAt = %v, want %v", *status.NextStartAt, *before.NextStartAt)
	}
}

func TestScheduler_FireTriggersAndRearms(t *testing.T) {
	h := newSchedHarness(t, 10)

	mustConfigure(t, h.s, ConfigureRequest{Enabled: true, FinishBy: "08:00", Frequency: models.FrequencyDaily})

	h.s.now = func() time.Time { return at(2026, time.October, 18, 7, 49) }
	h.s.fire()

	if h.triggers != 1 {
		t.Errorf("triggers = %d, want 1", h.triggers)
	}
	status := h.s.Status()
	if status.LastTriggeredAt == nil {
		t.Fatal("LastTriggeredAt not set")
	}
	if want := at(2026, time.October, 18, 7, 49); !status.LastTriggeredAt.Equal(want) {
		t.Errorf("LastTriggeredAt = %v, want %v", *status.LastTriggeredAt, want)
	}
	if want := at(2026, time.October, 19, 7, 49); !status.NextStartAt.Equal(want) {
		t.Errorf("NextStartAt = %v, want %v", *status.NextStartAt, want)
	}
	if h.settings.schedule(t).LastTriggeredAt == nil {
		t.Error("LastTriggeredAt not persisted")
	}
}

func TestScheduler_LoadRestoresPersistedSchedule(t *testing.T) {
	h := newSchedHarness(t, 10)
	ctx := context.Background()

	cfg := models.DefaultScheduleConfig()
	cfg.Enabled = true
	cfg.FinishBy = "06:00"
	cfg.Frequency = models.FrequencyWeekends
	if err := h.settings.Put(ctx, SettingsKey, cfg); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	if err := h.s.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	status := h.s.Status()
	if !status.Armed {
		t.Error("Armed = false, want true")
	}
	if want := at(2026, time.October, 18, 6, 0); status.NextFinishAt == nil || !status.NextFinishAt.Equal(want) {
		t.Errorf("NextFinishAt = %v, want %v", status.NextFinishAt, want)
	}

	h.s.Start()
	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	h.s.Stop(stopCtx)
}

func TestScheduler_LoadDefaultsWhenNothingSaved(t *testing.T) {
	h := newSchedHarness(t, 10)
	if err := h.s.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	status := h.s.Status()
	if status.Enabled || status.Armed {
		t.Errorf("Enabled = %v, Armed = %v, want both false", status.Enabled, status.Armed)
	}
	if status.FinishBy != "08:00" {
		t.Errorf("FinishBy = %q, want 08:00", status.FinishBy)
	}
	if status.CustomDays == nil {
		t.Error("CustomDays = nil, want empty slice")
	}
}
