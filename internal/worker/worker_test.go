package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/narworks/muhasebe-asistani-sub000/internal/models"
)

type fakeSource struct {
	mu  sync.Mutex
	fp  string
	err error
}

func (f *fakeSource) Fingerprint(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fp, f.err
}

func (f *fakeSource) set(fp string, err error) {
	f.mu.Lock()
	f.fp, f.err = fp, err
	f.mu.Unlock()
}

type fakeRearmer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeRearmer) Rearm(ctx context.Context) (models.ScheduleStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return models.ScheduleStatus{ActiveEntities: 1}, f.err
}

func (f *fakeRearmer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCheck(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{fp: "3:a"}
	re := &fakeRearmer{}
	w := New(src, re, Config{}, testLogger())
	w.setLast("3:a")

	if w.Check(ctx) {
		t.Error("Check() with unchanged fingerprint = true, want false")
	}

	src.set("4:b", nil)
	if !w.Check(ctx) {
		t.Error("Check() after change = false, want true")
	}
	if w.Check(ctx) {
		t.Error("second Check() = true, want false")
	}
	if got := re.count(); got != 1 {
		t.Errorf("Rearm calls = %d, want 1", got)
	}
}

func TestCheck_RetriesFailedRearm(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{fp: "new"}
	re := &fakeRearmer{err: errors.New("db locked")}
	w := New(src, re, Config{}, testLogger())
	w.setLast("old")

	if w.Check(ctx) {
		t.Fatal("Check() with failing rearm = true, want false")
	}

	re.mu.Lock()
	re.err = nil
	re.mu.Unlock()

	if !w.Check(ctx) {
		t.Error("Check() after rearm recovered = false, want true")
	}
	if got := re.count(); got != 2 {
		t.Errorf("Rearm calls = %d, want 2", got)
	}
}

func TestCheck_FingerprintError(t *testing.T) {
	src := &fakeSource{err: errors.New("closed")}
	re := &fakeRearmer{}
	w := New(src, re, Config{}, testLogger())

	if w.Check(context.Background()) {
		t.Error("Check() with fingerprint error = true, want false")
	}
	if got := re.count(); got != 0 {
		t.Errorf("Rearm calls = %d, want 0", got)
	}
}

func TestStartStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &fakeSource{fp: "1"}
	re := &fakeRearmer{}
	w := New(src, re, Config{PollInterval: 5 * time.Millisecond}, testLogger())
	w.Start(ctx)

	src.set("2", nil)
	deadline := time.Now().Add(2 * time.Second)
	for re.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	w.Stop()
	w.Stop()

	if got := re.count(); got != 1 {
		t.Errorf("Rearm calls = %d, want 1", got)
	}
}

func TestNew_Defaults(t *testing.T) {
	w := New(&fakeSource{}, &fakeRearmer{}, Config{}, nil)
	if w.pollInterval != time.Minute {
		t.Errorf("pollInterval = %v, want %v", w.pollInterval, time.Minute)
	}
}
