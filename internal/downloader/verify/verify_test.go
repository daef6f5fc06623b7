package verify

import (
	"context"
	"fmt"
	"testing"

	"github.com/wmitsuda/akula/internal/core/domain"
	"github.com/wmitsuda/akula/internal/downloader/slices"
)

// chainedHeaders builds a run of n properly linked headers.
func chainedHeaders(start domain.BlockNumber, n int) []domain.Header {
	headers := make([]domain.Header, 0, n)
	for i := 0; i < n; i++ {
		num := start + domain.BlockNumber(i)
		headers = append(headers, domain.Header{
			Number:     num,
			Hash:       fmt.Sprintf("0x%016x", uint64(num)),
			ParentHash: fmt.Sprintf("0x%016x", uint64(num)-1),
			Timestamp:  uint64(num) * 12,
		})
	}
	return headers
}

func setDownloaded(t *testing.T, store *slices.Store, start domain.BlockNumber, headers []domain.Header) {
	t.Helper()
	err := store.ForEach(func(sl *slices.Slice) error {
		if sl.StartBlockNum != start {
			return nil
		}
		sl.Headers = headers
		store.SetStatus(sl, domain.SliceStatusDownloaded)
		return slices.ErrStopScan
	})
	if err != nil {
		t.Fatalf("set downloaded: %v", err)
	}
}

func statusOf(t *testing.T, store *slices.Store, start domain.BlockNumber) domain.SliceStatus {
	t.Helper()
	var status domain.SliceStatus
	_ = store.ForEach(func(sl *slices.Slice) error {
		if sl.StartBlockNum != start {
			return nil
		}
		status = sl.Status
		return slices.ErrStopScan
	})
	return status
}

func TestExecuteVerifiesChainedSlice(t *testing.T) {
	store := slices.NewStore(0, 2, 0)
	setDownloaded(t, store, 0, chainedHeaders(0, slices.SliceCapacity+1))

	stage := New(store)
	if err := stage.Execute(context.Background()); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if got := statusOf(t, store, 0); got != domain.SliceStatusVerified {
		t.Fatalf("status = %s, want verified", got)
	}
}

func TestExecuteDiscardsCorruptSlices(t *testing.T) {
	broken := chainedHeaders(0, slices.SliceCapacity)
	broken[10].ParentHash = "0xdeadbeef"

	gap := chainedHeaders(0, slices.SliceCapacity)
	gap[20].Number += 5

	misplaced := chainedHeaders(7, slices.SliceCapacity)

	tests := []struct {
		name    string
		headers []domain.Header
	}{
		{name: "broken parent link", headers: broken},
		{name: "number gap", headers: gap},
		{name: "short slice", headers: chainedHeaders(0, 10)},
		{name: "wrong start block", headers: misplaced},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := slices.NewStore(0, 1, 0)
			setDownloaded(t, store, 0, tt.headers)

			stage := New(store)
			if err := stage.Execute(context.Background()); err != nil {
				t.Fatalf("Execute failed: %v", err)
			}

			if got := statusOf(t, store, 0); got != domain.SliceStatusEmpty {
				t.Fatalf("status = %s, want empty for refetch", got)
			}
			_ = store.ForEach(func(sl *slices.Slice) error {
				if len(sl.Headers) != 0 {
					t.Error("discarded slice kept its headers")
				}
				return slices.ErrStopScan
			})
		})
	}
}

func TestExecuteLeavesOtherStatusesAlone(t *testing.T) {
	store := slices.NewStore(0, 2, 0)
	setDownloaded(t, store, slices.SliceCapacity, chainedHeaders(slices.SliceCapacity, slices.SliceCapacity))

	stage := New(store)
	if err := stage.Execute(context.Background()); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if got := statusOf(t, store, 0); got != domain.SliceStatusEmpty {
		t.Errorf("empty slice status = %s, want empty", got)
	}
	if got := statusOf(t, store, slices.SliceCapacity); got != domain.SliceStatusVerified {
		t.Errorf("downloaded slice status = %s, want verified", got)
	}
}
