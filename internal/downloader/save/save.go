// Package save archives verified header slices in window order and
// advances the slice window past them.
package save

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wmitsuda/akula/internal/core/domain"
	"github.com/wmitsuda/akula/internal/downloader/metrics"
	"github.com/wmitsuda/akula/internal/downloader/slices"
	"github.com/wmitsuda/akula/internal/infra/storage"
)

// Stage persists Verified slices through the header repository. Only
// the leading contiguous run of the window is saved so the archive
// never has gaps.
type Stage struct {
	store *slices.Store
	repo  storage.HeaderRepository
	watch *slices.StatusWatch
	log   *slog.Logger
}

// New creates the save stage.
func New(store *slices.Store, repo storage.HeaderRepository) *Stage {
	return &Stage{
		store: store,
		repo:  repo,
		watch: store.WatchStatusChanges(domain.SliceStatusVerified),
		log:   slog.With("stage", "save"),
	}
}

// Name identifies the stage in scheduler logs.
func (s *Stage) Name() string { return "save" }

// Execute waits for at least one Verified slice, persists the leading
// Verified run, marks it Saved, and advances the window. The database
// write happens with no slice lock held; statuses are flipped in a
// second scan only after the write succeeded.
func (s *Stage) Execute(ctx context.Context) error {
	if s.store.CountInStatus(domain.SliceStatusVerified) == 0 {
		if err := s.wait(ctx); err != nil {
			return err
		}
	}

	batch, starts := s.collect()
	if len(batch) == 0 {
		// A Verified slice exists but sits behind unfinished ones.
		return nil
	}

	if err := s.repo.SaveBatch(ctx, batch); err != nil {
		return fmt.Errorf("archive headers: %w", err)
	}

	if err := s.markSaved(starts); err != nil {
		return err
	}

	tip := batch[len(batch)-1].Number
	metrics.HeadersSaved.Add(float64(len(batch)))
	metrics.ArchiveTip.Set(float64(tip))
	s.log.Info("Archived header slices", "slices", len(starts), "tip", tip)

	s.store.Advance()
	return nil
}

func (s *Stage) wait(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case count, ok := <-s.watch.C:
			if !ok {
				return fmt.Errorf("wait for verified slices: %w", slices.ErrClosed)
			}
			if count > 0 {
				return nil
			}
		}
	}
}

// collect walks the window from the front and gathers the headers of
// the leading contiguous Verified run, skipping already Saved slices.
// The extra linkage header of each slice belongs to the next slice and
// is not archived.
func (s *Stage) collect() ([]domain.Header, []domain.BlockNumber) {
	var batch []domain.Header
	var starts []domain.BlockNumber

	_ = s.store.ForEach(func(sl *slices.Slice) error {
		switch sl.Status {
		case domain.SliceStatusSaved:
			return nil
		case domain.SliceStatusVerified:
			headers := sl.Headers
			if len(headers) > slices.SliceCapacity {
				headers = headers[:slices.SliceCapacity]
			}
			batch = append(batch, headers...)
			starts = append(starts, sl.StartBlockNum)
			return nil
		default:
			return slices.ErrStopScan
		}
	})
	return batch, starts
}

// markSaved flips the collected slices to Saved. Statuses only move
// Verified -> Saved here, so the two-scan split cannot race with other
// stages.
func (s *Stage) markSaved(starts []domain.BlockNumber) error {
	saved := make(map[domain.BlockNumber]bool, len(starts))
	for _, start := range starts {
		saved[start] = true
	}
	return s.store.ForEach(func(sl *slices.Slice) error {
		if sl.Status == domain.SliceStatusVerified && saved[sl.StartBlockNum] {
			sl.Headers = nil
			s.store.SetStatus(sl, domain.SliceStatusSaved)
		}
		return nil
	})
}
