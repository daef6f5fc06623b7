// Package verify checks that downloaded header slices form a
// consistent chain before they are archived.
package verify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wmitsuda/akula/internal/core/domain"
	"github.com/wmitsuda/akula/internal/downloader/slices"
)

// Stage moves Downloaded slices to Verified, or back to Empty when the
// headers do not chain.
type Stage struct {
	store *slices.Store
	watch *slices.StatusWatch
	log   *slog.Logger
}

// New creates the verify stage.
func New(store *slices.Store) *Stage {
	return &Stage{
		store: store,
		watch: store.WatchStatusChanges(domain.SliceStatusDownloaded),
		log:   slog.With("stage", "verify"),
	}
}

// Name identifies the stage in scheduler logs.
func (s *Stage) Name() string { return "verify" }

// Execute waits for at least one Downloaded slice, then verifies every
// Downloaded slice in the window.
func (s *Stage) Execute(ctx context.Context) error {
	if s.store.CountInStatus(domain.SliceStatusDownloaded) == 0 {
		if err := s.wait(ctx); err != nil {
			return err
		}
	}

	return s.store.ForEach(func(sl *slices.Slice) error {
		if sl.Status != domain.SliceStatusDownloaded {
			return nil
		}
		if err := checkSlice(sl); err != nil {
			s.log.Warn("Discarding corrupt header slice",
				"start_block", sl.StartBlockNum, "error", err)
			sl.Headers = nil
			sl.RequestTime = time.Time{}
			s.store.SetStatus(sl, domain.SliceStatusEmpty)
			return nil
		}
		s.store.SetStatus(sl, domain.SliceStatusVerified)
		return nil
	})
}

func (s *Stage) wait(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case count, ok := <-s.watch.C:
			if !ok {
				return fmt.Errorf("wait for downloaded slices: %w", slices.ErrClosed)
			}
			if count > 0 {
				return nil
			}
		}
	}
}

// checkSlice verifies that the slice holds a full run of headers
// starting at the slice's first block, with consecutive numbers and
// matching parent hashes. The extra linkage header, when present, is
// covered by the same walk.
func checkSlice(sl *slices.Slice) error {
	if len(sl.Headers) < slices.SliceCapacity {
		return fmt.Errorf("short slice: %d of %d headers", len(sl.Headers), slices.SliceCapacity)
	}
	if sl.Headers[0].Number != sl.StartBlockNum {
		return fmt.Errorf("first header at %d, slice starts at %d", sl.Headers[0].Number, sl.StartBlockNum)
	}
	for i := 1; i < len(sl.Headers); i++ {
		prev, cur := sl.Headers[i-1], sl.Headers[i]
		if cur.Number != prev.Number+1 {
			return fmt.Errorf("gap after block %d", prev.Number)
		}
		if cur.ParentHash != prev.Hash {
			return fmt.Errorf("broken parent link at block %d", cur.Number)
		}
	}
	return nil
}
