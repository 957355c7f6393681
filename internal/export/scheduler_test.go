package export

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// mockDestination records calls to Write.
type mockDestination struct {
	writes atomic.Int64
	last   atomic.Value // []byte
	err    error
}

func (d *mockDestination) Write(_ context.Context, data []byte) error {
	d.writes.Add(1)
	cp := make([]byte, len(data))
	copy(cp, data)
	d.last.Store(cp)
	return d.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestExport_AllDestinationsAttempted(t *testing.T) {
	failing := &mockDestination{err: errors.New("disk full")}
	ok := &mockDestination{}

	n, err := Export(context.Background(), seededStore(), t0, failing, ok)
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("err = %v, want the destination error", err)
	}
	if ok.writes.Load() != 1 || failing.writes.Load() != 1 {
		t.Fatalf("writes: failing=%d ok=%d", failing.writes.Load(), ok.writes.Load())
	}
	data := ok.last.Load().([]byte)
	if n != len(data) {
		t.Fatalf("n = %d, want %d", n, len(data))
	}
	if lines := nonEmptyLines(string(data)); len(lines) != 6 {
		t.Fatalf("expected 6 lines, got %d", len(lines))
	}
}

func TestSchedulerStartStop(t *testing.T) {
	dest := &mockDestination{}
	sched := NewScheduler(seededStore(), []Destination{dest}, 20*time.Millisecond, testLogger())
	sched.Start()

	deadline := time.Now().Add(2 * time.Second)
	for dest.writes.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("expected at least 2 writes, got %d", dest.writes.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}

	before := dest.writes.Load()
	sched.Stop()
	// Stop writes a final export.
	if after := dest.writes.Load(); after < before+1 {
		t.Fatalf("writes after Stop = %d, want > %d", after, before)
	}

	data, ok := dest.last.Load().([]byte)
	if !ok || len(nonEmptyLines(string(data))) != 6 {
		t.Fatalf("unexpected last export:\n%s", data)
	}
}

func TestSchedulerStop_NoStart(t *testing.T) {
	dest := &mockDestination{}
	sched := NewScheduler(seededStore(), []Destination{dest}, time.Minute, testLogger())
	// Stop without Start should not panic or export.
	sched.Stop()
	if dest.writes.Load() != 0 {
		t.Fatalf("writes = %d, want 0", dest.writes.Load())
	}
}

func TestSchedulerMultipleDestinations(t *testing.T) {
	dest1 := &mockDestination{}
	dest2 := &mockDestination{err: errors.New("unreachable")}

	sched := NewScheduler(seededStore(), []Destination{dest1, dest2}, time.Hour, testLogger())
	sched.Start()
	sched.Stop()

	if dest1.writes.Load() < 1 {
		t.Fatal("dest1 expected at least 1 write")
	}
	if dest2.writes.Load() < 1 {
		t.Fatal("dest2 expected at least 1 write")
	}
}
