package fetcher

import (
	"context"
	"testing"
	"time"

	"github.com/wmitsuda/akula/internal/core/domain"
	"github.com/wmitsuda/akula/internal/downloader/slices"
)

func TestRetryRequeuesTimedOutSlices(t *testing.T) {
	store := slices.NewStore(0, 3, 0)

	now := time.Now()
	// Slice 0: timed out. Slice 1: still fresh. Slice 2: untouched.
	err := store.ForEach(func(sl *slices.Slice) error {
		switch sl.StartBlockNum {
		case 0:
			sl.RequestTime = now.Add(-time.Minute)
			store.SetStatus(sl, domain.SliceStatusWaiting)
		case slices.SliceCapacity:
			sl.RequestTime = now
			store.SetStatus(sl, domain.SliceStatusWaiting)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	stage := NewRetryStage(store, 30*time.Second, time.Millisecond)
	stage.now = func() time.Time { return now }

	if err := stage.Execute(context.Background()); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	statuses := sliceStatuses(store)
	want := []domain.SliceStatus{
		domain.SliceStatusEmpty,
		domain.SliceStatusWaiting,
		domain.SliceStatusEmpty,
	}
	for i, status := range statuses {
		if status != want[i] {
			t.Errorf("slice %d status = %s, want %s", i, status, want[i])
		}
	}

	// The re-queued slice is clean for the next request.
	_ = store.ForEach(func(sl *slices.Slice) error {
		if sl.StartBlockNum == 0 && !sl.RequestTime.IsZero() {
			t.Error("re-queued slice kept its request time")
		}
		return slices.ErrStopScan
	})
}

func TestRetryHonorsContext(t *testing.T) {
	store := slices.NewStore(0, 1, 0)
	stage := NewRetryStage(store, time.Minute, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := stage.Execute(ctx); err != context.Canceled {
		t.Fatalf("Execute error = %v, want context.Canceled", err)
	}
}
