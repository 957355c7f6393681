package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/spamwatch/internal/view"
)

// Destination is an export target (file, S3).
type Destination interface {
	// Write sends the JSONL payload to the destination.
	Write(ctx context.Context, data []byte) error
}

// Export builds a snapshot of src at now and writes it to every
// destination. All destinations are attempted; failures are joined.
func Export(ctx context.Context, src view.Dashboard, now time.Time, dests ...Destination) (int, error) {
	var buf bytes.Buffer
	if err := WriteJSONL(&buf, view.Build(src, now)); err != nil {
		return 0, err
	}
	data := buf.Bytes()

	var errs []error
	for _, d := range dests {
		if err := d.Write(ctx, data); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name(d), err))
		}
	}
	return len(data), errors.Join(errs...)
}

func name(d Destination) string {
	if s, ok := d.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", d)
}

// Scheduler runs periodic exports to one or more destinations.
type Scheduler struct {
	src          view.Dashboard
	destinations []Destination
	interval     time.Duration
	logger       *slog.Logger
	now          func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler that exports src to the given
// destinations at the specified interval.
func NewScheduler(src view.Dashboard, destinations []Destination, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		src:          src,
		destinations: destinations,
		interval:     interval,
		logger:       logger,
		now:          time.Now,
	}
}

// Start begins periodic export. It runs once immediately, then on each
// tick, until Stop is called.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the scheduler and waits for the current export (if any) to
// finish. It also writes one final export so the destinations hold the
// state at shutdown.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.cancel = nil

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.exportOnce(ctx)
}

func (s *Scheduler) run(ctx context.Context) {
	s.exportOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.exportOnce(ctx)
		}
	}
}

func (s *Scheduler) exportOnce(ctx context.Context) {
	n, err := Export(ctx, s.src, s.now(), s.destinations...)
	if err != nil {
		s.logger.Error("export failed", "err", err)
		return
	}
	s.logger.Info("export completed", "destinations", len(s.destinations), "bytes", n)
}
