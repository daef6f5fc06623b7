// Package slices tracks the window of contiguous header ranges the
// downloader is working on. Each slice carries its own lock so that the
// pipeline stages can touch unrelated slices concurrently.
package slices

import (
	"errors"
	"sync"
	"time"

	"github.com/wmitsuda/akula/internal/core/domain"
	"github.com/wmitsuda/akula/internal/downloader/metrics"
)

// SliceCapacity is the nominal number of headers in one slice. Requests
// ask for one extra header so the verify stage can check linkage to the
// next slice.
const SliceCapacity = 192

var (
	// ErrStopScan short-circuits a ForEach scan without reporting an error.
	ErrStopScan = errors.New("stop scan")

	// ErrClosed reports that the store was shut down.
	ErrClosed = errors.New("slice store closed")
)

// Slice is a contiguous range of SliceCapacity block heights awaiting
// download. Fields must only be touched inside a ForEach visitor, which
// holds the per-slice lock.
type Slice struct {
	mu sync.Mutex

	StartBlockNum domain.BlockNumber
	Status        domain.SliceStatus
	// RequestTime is set when a fetch request for the slice is accepted
	// by the gateway. Zero while the slice is Empty.
	RequestTime time.Time
	// Headers holds the downloaded headers, possibly including one extra
	// linkage header beyond SliceCapacity.
	Headers []domain.Header
}

// StatusWatch delivers the current count of slices in one status every
// time that count changes. The channel is closed when the store shuts
// down; that is the terminal condition, not a value.
type StatusWatch struct {
	C <-chan int
	c chan int
}

// Store owns the slice window, the per-status aggregate counts, and the
// status change watches. All status mutations go through SetStatus so
// counts and watches stay consistent with the slices themselves.
type Store struct {
	mu        sync.RWMutex // guards window and next
	window    []*Slice
	maxSlices int
	next      domain.BlockNumber
	target    domain.BlockNumber // exclusive upper bound, 0 = unbounded

	countMu sync.Mutex
	counts  map[domain.SliceStatus]int

	watchMu  sync.Mutex
	watchers map[domain.SliceStatus][]*StatusWatch
	closed   bool
}

// NewStore creates a store whose window starts at the given block and
// holds up to maxSlices slices. target, when non-zero, is the first
// block number the window never reaches.
func NewStore(start domain.BlockNumber, maxSlices int, target domain.BlockNumber) *Store {
	s := &Store{
		maxSlices: maxSlices,
		next:      start,
		target:    target,
		counts:    make(map[domain.SliceStatus]int),
		watchers:  make(map[domain.SliceStatus][]*StatusWatch),
	}
	s.mu.Lock()
	s.fillTail()
	s.mu.Unlock()
	return s
}

// fillTail appends Empty slices until the window is full or the target
// height is reached. Caller holds s.mu.
func (s *Store) fillTail() {
	for len(s.window) < s.maxSlices && (s.target == 0 || s.next < s.target) {
		s.window = append(s.window, &Slice{
			StartBlockNum: s.next,
			Status:        domain.SliceStatusEmpty,
		})
		s.next += SliceCapacity
		s.adjustCount(domain.SliceStatusEmpty, +1)
	}
}

// Len returns the number of slices currently in the window. A bounded
// download is complete when the window drains to zero.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.window)
}

// CountInStatus returns the number of slices currently in the status.
func (s *Store) CountInStatus(status domain.SliceStatus) int {
	s.countMu.Lock()
	defer s.countMu.Unlock()
	return s.counts[status]
}

// ForEach visits every slice in window order with the slice's lock
// held. A visitor returning ErrStopScan stops the scan and ForEach
// returns nil; any other non-nil error stops the scan and is returned.
func (s *Store) ForEach(visit func(sl *Slice) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sl := range s.window {
		sl.mu.Lock()
		err := visit(sl)
		sl.mu.Unlock()

		if err != nil {
			if errors.Is(err, ErrStopScan) {
				return nil
			}
			return err
		}
	}
	return nil
}

// SetStatus transitions a slice to a new status and keeps the aggregate
// counts and watches consistent. Must be called with the slice lock
// held, i.e. from inside a ForEach visitor.
func (s *Store) SetStatus(sl *Slice, status domain.SliceStatus) {
	old := sl.Status
	if old == status {
		return
	}
	sl.Status = status
	s.adjustCount(old, -1)
	s.adjustCount(status, +1)
}

// WatchStatusChanges subscribes to count changes for one status. The
// watch is primed with the current count.
func (s *Store) WatchStatusChanges(status domain.SliceStatus) *StatusWatch {
	ch := make(chan int, 1)
	w := &StatusWatch{C: ch, c: ch}

	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.closed {
		close(ch)
		return w
	}
	ch <- s.CountInStatus(status)
	s.watchers[status] = append(s.watchers[status], w)
	return w
}

// Advance retires contiguous Saved slices from the front of the window
// and refills the tail with Empty slices. It returns the number of
// retired slices.
func (s *Store) Advance() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	retired := 0
	for len(s.window) > 0 {
		sl := s.window[0]
		sl.mu.Lock()
		saved := sl.Status == domain.SliceStatusSaved
		sl.mu.Unlock()
		if !saved {
			break
		}
		s.window = s.window[1:]
		s.adjustCount(domain.SliceStatusSaved, -1)
		retired++
	}
	s.fillTail()
	return retired
}

// Close shuts the store down and closes every watch channel. Waiters
// observe the closed channel as a terminal condition.
func (s *Store) Close() {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for _, ws := range s.watchers {
		for _, w := range ws {
			close(w.c)
		}
	}
	s.watchers = make(map[domain.SliceStatus][]*StatusWatch)
}

// adjustCount applies a count delta for a status, updates the gauge and
// notifies watchers of the new value.
func (s *Store) adjustCount(status domain.SliceStatus, delta int) {
	s.countMu.Lock()
	s.counts[status] += delta
	count := s.counts[status]
	s.countMu.Unlock()

	metrics.SlicesByStatus.WithLabelValues(string(status)).Set(float64(count))
	s.notify(status, count)
}

// notify pushes the latest count to every watcher of the status. The
// watch channel is last-value-wins: a stale unread value is replaced.
func (s *Store) notify(status domain.SliceStatus, count int) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.closed {
		return
	}
	for _, w := range s.watchers[status] {
		select {
		case w.c <- count:
		default:
			select {
			case <-w.c:
			default:
			}
			select {
			case w.c <- count:
			default:
			}
		}
	}
}
