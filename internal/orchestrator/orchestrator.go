// Package orchestrator sequences the per-entity processor over the active
// entity population, with politeness delays, batch pauses, a credit gate,
// cancellation and resume.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/narworks/muhasebe-asistani-sub000/internal/config"
	"github.com/narworks/muhasebe-asistani-sub000/internal/credit"
	"github.com/narworks/muhasebe-asistani-sub000/internal/logging"
	"github.com/narworks/muhasebe-asistani-sub000/internal/models"
	"github.com/narworks/muhasebe-asistani-sub000/internal/pagedriver"
	"github.com/narworks/muhasebe-asistani-sub000/internal/processor"
)

// Trigger sources recorded with each run.
const (
	TriggerManual   = "manual"
	TriggerSchedule = "schedule"
	TriggerCLI      = "cli"
)

// EntitySource supplies the active population and credentials.
type EntitySource interface {
	ListActiveEntities(ctx context.Context) ([]*models.Entity, error)
	ResolveCredential(ctx context.Context, entityID string) (*models.Credential, error)
}

// EntityProcessor runs one entity against an open browser.
type EntityProcessor interface {
	Process(ctx context.Context, drv pagedriver.Driver, entity *models.Entity, cred *models.Credential) (*processor.Result, error)
}

// DriverFactory starts the browser for one scan.
type DriverFactory interface {
	Launch(ctx context.Context) (pagedriver.Driver, error)
}

// CreditGate may deny continuation before each entity.
type CreditGate interface {
	TryConsume(ctx context.Context) (credit.Result, error)
	Refund(ctx context.Context) error
}

// RunRecorder keeps scan history.
type RunRecorder interface {
	Save(ctx context.Context, snap models.ScanSnapshot, trigger string) error
}

// Notifier is told about every run that reaches a terminal state.
type Notifier interface {
	NotifyScan(ctx context.Context, snap models.ScanSnapshot) error
}

// Deps are the collaborators of the orchestrator. Credits, Runs and Notifier
// are optional.
type Deps struct {
	Entities  EntitySource
	Processor EntityProcessor
	Drivers   DriverFactory
	Credits   CreditGate
	Runs      RunRecorder
	Notifier  Notifier
}

// Config holds the pacing of a scan.
type Config struct {
	DelayMin      time.Duration
	DelayMax      time.Duration
	BatchSize     int
	BatchPauseMin time.Duration
	BatchPauseMax time.Duration
	EventBuffer   int
}

// ConfigFromConfig builds the pacing from the service configuration.
func ConfigFromConfig(cfg *config.Config) Config {
	return Config{
		DelayMin:      cfg.DelayMin,
		DelayMax:      cfg.DelayMax,
		BatchSize:     cfg.BatchSize,
		BatchPauseMin: cfg.BatchPauseMin,
		BatchPauseMax: cfg.BatchPauseMax,
		EventBuffer:   cfg.EventBuffer,
	}
}

// Request selects a fresh run or a resume.
type Request struct {
	Resume  bool
	Trigger string
}

// StartResult is the informational answer to a start request.
type StartResult struct {
	Started bool                `json:"started"`
	Resumed bool                `json:"resumed"`
	Message string              `json:"message"`
	State   models.ScanSnapshot `json:"state"`
}

var (
	// ErrAlreadyRunning is returned by Run when a scan is in progress.
	ErrAlreadyRunning = errors.New("a scan is already running")
	// ErrNothingToResume is returned by Run when the last scan is not resumable.
	ErrNothingToResume = errors.New("there is no interrupted scan to resume")
)

// runState is the bookkeeping of one scan lifecycle. It is only written by
// the goroutine executing the run, under Orchestrator.mu.
type runState struct {
	scanID       string
	trigger      string
	state        models.ScanState
	resumed      bool
	total        int
	processed    map[string]bool
	order        []string
	success      int
	errors       int
	insufficient bool
	lastErr      string
	summary      string
	startedAt    time.Time
	finishedAt   *time.Time
}

func (r *runState) snapshot() models.ScanSnapshot {
	started := r.startedAt
	snap := models.ScanSnapshot{
		ScanID:              r.scanID,
		State:               r.state,
		Resumed:             r.resumed,
		Total:               r.total,
		Processed:           len(r.order),
		Remaining:           max(r.total-len(r.order), 0),
		SuccessCount:        r.success,
		ErrorCount:          r.errors,
		Cancelled:           r.state == models.ScanStateCancelled,
		Errored:             r.state == models.ScanStateErrored,
		InsufficientCredits: r.insufficient,
		CanResume:           models.CanResume(r.state, len(r.order), r.total),
		LastError:           r.lastErr,
		Summary:             r.summary,
		ProcessedIDs:        append([]string(nil), r.order...),
		StartedAt:           &started,
	}
	if r.finishedAt != nil {
		f := *r.finishedAt
		snap.FinishedAt = &f
	}
	return snap
}

func (r *runState) markProcessed(id string) {
	if !r.processed[id] {
		r.processed[id] = true
		r.order = append(r.order, id)
	}
}

// Orchestrator runs at most one scan at a time.
type Orchestrator struct {
	deps   Deps
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	run     *runState

	events chan models.Event
	seq    atomic.Uint64

	sleep        func(ctx context.Context, d time.Duration) error
	randDuration func(lo, hi time.Duration) time.Duration
	now          func() time.Time
}

// New creates an Orchestrator.
func New(deps Deps, cfg Config, logger *slog.Logger) *Orchestrator {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.EventBuffer < 1 {
		cfg.EventBuffer = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		deps:         deps,
		cfg:          cfg,
		logger:       logger.With("component", "orchestrator"),
		events:       make(chan models.Event, cfg.EventBuffer),
		sleep:        sleepCtx,
		randDuration: uniform,
		now:          time.Now,
	}
}

// Events returns the ordered status stream. It must be drained: a full buffer
// holds the scan back until the consumer catches up.
func (o *Orchestrator) Events() <-chan models.Event {
	return o.events
}

// State returns a snapshot of the current or most recent run.
func (o *Orchestrator) State() models.ScanSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.run == nil {
		return models.ScanSnapshot{State: models.ScanStateIdle}
	}
	return o.run.snapshot()
}

// Running reports whether a scan is in progress.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// Start begins a scan in the background. It never blocks on the scan and
// never fails: a refused request is reported in the result.
func (o *Orchestrator) Start(ctx context.Context, req Request) StartResult {
	runCtx, run, err := o.begin(context.WithoutCancel(ctx), req)
	if err != nil {
		return StartResult{Message: refusal(err), State: o.State()}
	}

	o.mu.Lock()
	done := o.done
	snap := run.snapshot()
	o.mu.Unlock()

	go func() {
		defer close(done)
		o.execute(runCtx, run)
	}()

	msg := "Scan started"
	if req.Resume {
		msg = "Scan resumed"
	}
	return StartResult{Started: true, Resumed: req.Resume, Message: msg, State: snap}
}

// Run executes a scan and blocks until it reaches a terminal state.
func (o *Orchestrator) Run(ctx context.Context, req Request) (models.ScanSnapshot, error) {
	runCtx, run, err := o.begin(ctx, req)
	if err != nil {
		return o.State(), err
	}

	o.mu.Lock()
	done := o.done
	o.mu.Unlock()
	defer close(done)

	o.execute(runCtx, run)
	return o.State(), nil
}

// Cancel requests the running scan to stop. It reports whether a scan was
// running.
func (o *Orchestrator) Cancel() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.running || o.cancel == nil {
		return false
	}
	o.logger.Info("scan cancellation requested", "scan_id", o.run.scanID)
	o.cancel()
	return true
}

// Wait blocks until the current scan, if any, has finished or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context) error {
	o.mu.Lock()
	done := o.done
	o.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func refusal(err error) string {
	switch {
	case errors.Is(err, ErrAlreadyRunning):
		return "A scan is already running"
	case errors.Is(err, ErrNothingToResume):
		return "There is no interrupted scan to resume"
	}
	return err.Error()
}

// begin takes the running latch and prepares the run state: fresh, or the
// carried-over state of the last interrupted run.
func (o *Orchestrator) begin(parent context.Context, req Request) (context.Context, *runState, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		return nil, nil, ErrAlreadyRunning
	}

	trigger := req.Trigger
	if trigger == "" {
		trigger = TriggerManual
	}

	var run *runState
	if req.Resume {
		last := o.run
		if last == nil || !models.CanResume(last.state, len(last.order), last.total) {
			return nil, nil, ErrNothingToResume
		}
		run = last
		run.resumed = true
		run.trigger = trigger
		run.insufficient = false
		run.lastErr = ""
		run.summary = ""
		run.finishedAt = nil
	} else {
		run = &runState{
			scanID:    ulid.Make().String(),
			trigger:   trigger,
			processed: make(map[string]bool),
			startedAt: o.now().UTC(),
		}
	}
	run.state = models.ScanStateRunning

	ctx, cancel := context.WithCancel(parent)
	o.running = true
	o.cancel = cancel
	o.done = make(chan struct{})
	o.run = run

	ctx = logging.WithScanID(ctx, run.scanID)
	return ctx, run, nil
}

// execute runs the loop and always finishes the run, recovering panics as a
// run-level error.
func (o *Orchestrator) execute(ctx context.Context, run *runState) {
	logger := logging.FromContext(ctx, o.logger)

	o.save(ctx, run)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("scan panicked", "panic", r, "stack", string(debug.Stack()))
			o.setError(run, fmt.Errorf("panic: %v", r))
		}
		o.finish(ctx, run, logger)
	}()

	o.loop(ctx, run, logger)
}

func (o *Orchestrator) loop(ctx context.Context, run *runState, logger *slog.Logger) {
	entities, err := o.deps.Entities.ListActiveEntities(ctx)
	if err != nil {
		o.stopOrFail(ctx, run, fmt.Errorf("failed to list entities: %w", err))
		return
	}

	work := o.plan(run, entities)
	o.mu.Lock()
	total, done := run.total, len(run.order)
	o.mu.Unlock()

	if run.resumed {
		o.emit(models.EventInfo, fmt.Sprintf("Resuming scan: %d of %d entities remaining", len(work), total-done), "")
	} else {
		o.emit(models.EventInfo, fmt.Sprintf("Scan started: %d entities", total), "")
	}
	logger.Info("scan started", "total", total, "remaining", len(work), "resumed", run.resumed)

	if len(work) == 0 {
		return
	}

	drv, err := o.deps.Drivers.Launch(ctx)
	if err != nil {
		o.stopOrFail(ctx, run, fmt.Errorf("failed to launch browser: %w", err))
		return
	}
	defer func() {
		if err := drv.Close(); err != nil {
			logger.Warn("failed to close browser", "error", err)
		}
	}()

	for i, entity := range work {
		if o.cancelled(ctx, run) {
			return
		}

		if o.deps.Credits != nil {
			res, err := o.deps.Credits.TryConsume(ctx)
			if err != nil {
				o.stopOrFail(ctx, run, err)
				return
			}
			if !res.Success {
				o.mu.Lock()
				run.insufficient = true
				run.state = models.ScanStateErrored
				run.lastErr = "insufficient credits"
				o.mu.Unlock()
				o.emit(models.EventError, "Insufficient credits, scan stopped", "")
				logger.Warn("scan stopped: insufficient credits", "processed", len(run.order))
				return
			}
		}

		ectx := logging.WithEntityID(ctx, entity.ID)

		cred, err := o.deps.Entities.ResolveCredential(ectx, entity.ID)
		if err != nil {
			o.refund(logger, entity)
			if o.cancelled(ctx, run) {
				return
			}
			logger.Warn("no usable credential", "entity_id", entity.ID, "error", err)
			o.entityDone(run, entity, false)
			o.emit(models.EventError, fmt.Sprintf("%s: no usable credential", entity.DisplayName()), entity.ID)
			o.emitProgress(run, entity)
			continue
		}

		// The batch cadence counts every entity of the run, so a resumed
		// scan keeps pausing where the interrupted one would have.
		o.mu.Lock()
		done := len(run.order)
		o.mu.Unlock()
		if i > 0 && done > 0 && done%o.cfg.BatchSize == 0 {
			pause := o.randDuration(o.cfg.BatchPauseMin, o.cfg.BatchPauseMax)
			o.emit(models.EventInfo, fmt.Sprintf("Batch pause: %s", pause.Round(time.Second)), "")
			if !o.pause(ctx, run, pause) {
				o.refund(logger, entity)
				return
			}
		}

		if i > 0 {
			delay := o.randDuration(o.cfg.DelayMin, o.cfg.DelayMax)
			logger.Debug("waiting before next entity", "delay", delay)
			if !o.pause(ctx, run, delay) {
				o.refund(logger, entity)
				return
			}
		}

		o.emit(models.EventProcess, fmt.Sprintf("Processing %s", entity.DisplayName()), entity.ID)

		res, err := o.deps.Processor.Process(ectx, drv, entity, cred)
		switch {
		case err == nil:
			o.entityDone(run, entity, true)
			o.emit(models.EventSuccess, fmt.Sprintf("%s: %d records (%d new), %d documents",
				entity.DisplayName(), len(res.Records), res.Inserted, res.DocumentsDownloaded), entity.ID)
		case ctx.Err() != nil:
			o.refund(logger, entity)
			o.cancelled(ctx, run)
			return
		case processor.IsEntityError(err):
			o.entityDone(run, entity, false)
			o.emit(models.EventError, fmt.Sprintf("%s: %v", entity.DisplayName(), err), entity.ID)
		default:
			o.refund(logger, entity)
			o.setError(run, fmt.Errorf("%s: %w", entity.DisplayName(), err))
			return
		}

		o.emitProgress(run, entity)
	}

	o.mu.Lock()
	if run.state == models.ScanStateRunning {
		run.state = models.ScanStateCompleted
	}
	o.mu.Unlock()
}

// refund returns the credit of an entity left unprocessed, so a resumed run
// charges it once. The scan context may already be cancelled.
func (o *Orchestrator) refund(logger *slog.Logger, entity *models.Entity) {
	if o.deps.Credits == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.deps.Credits.Refund(ctx); err != nil {
		logger.Error("failed to refund credit", "entity_id", entity.ID, "error", err)
	}
}

// plan filters already-processed entities out of the work list. The total
// stays anchored to the original run unless new entities appeared since.
func (o *Orchestrator) plan(run *runState, entities []*models.Entity) []*models.Entity {
	o.mu.Lock()
	defer o.mu.Unlock()

	work := make([]*models.Entity, 0, len(entities))
	for _, e := range entities {
		if !run.processed[e.ID] {
			work = append(work, e)
		}
	}

	if !run.resumed {
		run.total = len(entities)
	} else if n := len(run.order) + len(work); n > run.total {
		run.total = n
	}
	return work
}

// cancelled reports whether ctx is done and, if so, marks the run cancelled.
func (o *Orchestrator) cancelled(ctx context.Context, run *runState) bool {
	if ctx.Err() == nil {
		return false
	}
	o.markCancelled(run)
	return true
}

func (o *Orchestrator) markCancelled(run *runState) {
	o.mu.Lock()
	if run.state == models.ScanStateRunning {
		run.state = models.ScanStateCancelled
	}
	o.mu.Unlock()
}

// pause sleeps for d and reports whether the run may continue.
func (o *Orchestrator) pause(ctx context.Context, run *runState, d time.Duration) bool {
	if err := o.sleep(ctx, d); err != nil || ctx.Err() != nil {
		o.markCancelled(run)
		return false
	}
	return true
}

func (o *Orchestrator) stopOrFail(ctx context.Context, run *runState, err error) {
	if o.cancelled(ctx, run) {
		return
	}
	o.setError(run, err)
}

func (o *Orchestrator) setError(run *runState, err error) {
	o.mu.Lock()
	run.state = models.ScanStateErrored
	run.lastErr = err.Error()
	o.mu.Unlock()
}

func (o *Orchestrator) entityDone(run *runState, entity *models.Entity, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	run.markProcessed(entity.ID)
	if ok {
		run.success++
	} else {
		run.errors++
	}
}

func (o *Orchestrator) emitProgress(run *runState, entity *models.Entity) {
	o.mu.Lock()
	p := &models.Progress{
		Current:           len(run.order),
		Total:             run.total,
		CurrentEntityName: entity.DisplayName(),
		ErrorCount:        run.errors,
		SuccessCount:      run.success,
	}
	o.mu.Unlock()
	o.emitEvent(models.Event{Type: models.EventProgress, EntityID: entity.ID, Progress: p})
}

// finish stamps the terminal state, publishes the final events, records the
// run and releases the running latch.
func (o *Orchestrator) finish(ctx context.Context, run *runState, logger *slog.Logger) {
	o.mu.Lock()
	if !run.state.Terminal() {
		run.state = models.ScanStateCompleted
	}
	finished := o.now().UTC()
	run.finishedAt = &finished
	run.summary = summarize(run)
	snap := run.snapshot()
	o.mu.Unlock()

	o.emitEvent(models.Event{Type: models.EventProgress, Progress: &models.Progress{
		Current:             snap.Processed,
		Total:               snap.Total,
		ErrorCount:          snap.ErrorCount,
		SuccessCount:        snap.SuccessCount,
		InsufficientCredits: snap.InsufficientCredits,
		Completed:           snap.Processed >= snap.Total,
	}})
	kind := models.EventSuccess
	if snap.State != models.ScanStateCompleted || snap.ErrorCount > 0 {
		kind = models.EventError
	}
	if snap.State == models.ScanStateCancelled {
		kind = models.EventInfo
	}
	o.emit(kind, snap.Summary, "")
	o.emitEvent(models.Event{Type: models.EventScanState, ScanState: &snap})

	logger.Info("scan finished",
		"state", snap.State,
		"processed", snap.Processed,
		"total", snap.Total,
		"success", snap.SuccessCount,
		"errors", snap.ErrorCount,
		"can_resume", snap.CanResume,
	)

	o.save(ctx, run)
	if o.deps.Notifier != nil {
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Minute)
		if err := o.deps.Notifier.NotifyScan(nctx, snap); err != nil {
			logger.Warn("failed to deliver scan notification", "error", err)
		}
		cancel()
	}

	o.mu.Lock()
	o.running = false
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.mu.Unlock()
}

func (o *Orchestrator) save(ctx context.Context, run *runState) {
	if o.deps.Runs == nil {
		return
	}
	o.mu.Lock()
	snap, trigger := run.snapshot(), run.trigger
	o.mu.Unlock()

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := o.deps.Runs.Save(sctx, snap, trigger); err != nil {
		o.logger.Warn("failed to record scan run", "scan_id", snap.ScanID, "error", err)
	}
}

func (o *Orchestrator) emit(t models.EventType, msg, entityID string) {
	o.emitEvent(models.Event{Type: t, Message: msg, EntityID: entityID})
}

// emitEvent is only called from the goroutine executing the run, so sequence
// numbers follow channel order.
func (o *Orchestrator) emitEvent(ev models.Event) {
	ev.Seq = o.seq.Add(1)
	ev.Time = o.now().UTC()
	o.events <- ev
}

func summarize(run *runState) string {
	processed := len(run.order)
	remaining := max(run.total-processed, 0)
	counts := fmt.Sprintf("%d succeeded, %d failed, %d remaining", run.success, run.errors, remaining)

	switch {
	case run.insufficient:
		return fmt.Sprintf("Scan stopped, insufficient credits: %s", counts)
	case run.state == models.ScanStateCancelled:
		return fmt.Sprintf("Scan cancelled: %s", counts)
	case run.state == models.ScanStateErrored:
		return fmt.Sprintf("Scan failed (%s): %s", run.lastErr, counts)
	case run.total == 0:
		return "Scan completed: no active entities"
	}
	return fmt.Sprintf("Scan completed: %s", counts)
}

func uniform(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo+1)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
