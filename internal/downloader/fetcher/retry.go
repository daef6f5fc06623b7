package fetcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/wmitsuda/akula/internal/core/domain"
	"github.com/wmitsuda/akula/internal/downloader/metrics"
	"github.com/wmitsuda/akula/internal/downloader/slices"
)

// RetryStage returns Waiting slices whose request went unanswered for
// too long to Empty, so the request stage re-issues them.
type RetryStage struct {
	store    *slices.Store
	timeout  time.Duration
	interval time.Duration
	log      *slog.Logger
	// now is swappable in tests
	now func() time.Time
}

// NewRetryStage creates the stage. timeout is how long a request may
// stay unanswered; interval is how often the window is checked.
func NewRetryStage(store *slices.Store, timeout, interval time.Duration) *RetryStage {
	return &RetryStage{
		store:    store,
		timeout:  timeout,
		interval: interval,
		log:      slog.With("stage", "retry"),
		now:      time.Now,
	}
}

// Name identifies the stage in scheduler logs.
func (s *RetryStage) Name() string { return "retry" }

// Execute sleeps one interval, then re-queues every timed-out Waiting
// slice.
func (s *RetryStage) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.interval):
	}

	deadline := s.now().Add(-s.timeout)
	retried := 0

	err := s.store.ForEach(func(sl *slices.Slice) error {
		if sl.Status != domain.SliceStatusWaiting {
			return nil
		}
		if sl.RequestTime.After(deadline) {
			return nil
		}
		sl.RequestTime = time.Time{}
		sl.Headers = nil
		s.store.SetStatus(sl, domain.SliceStatusEmpty)
		retried++
		return nil
	})
	if err != nil {
		return err
	}

	if retried > 0 {
		s.log.Debug("Re-queued timed out slices", "count", retried)
		metrics.SlicesRetried.Add(float64(retried))
	}
	return nil
}
