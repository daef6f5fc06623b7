package fetcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang/protobuf/proto"

	"github.com/wmitsuda/akula/internal/core/domain"
	"github.com/wmitsuda/akula/internal/downloader/slices"
	"github.com/wmitsuda/akula/internal/infra/sentry"
	"github.com/wmitsuda/akula/internal/infra/sentry/sentrypb"
)

// fakeGateway records sends and can be programmed to fail from a given
// attempt on. The capacity channel, when set, is handed out verbatim by
// ReserveCapacity so tests control when it resolves.
type fakeGateway struct {
	mu       sync.Mutex
	sent     []*sentrypb.OutboundMessageData
	filters  []domain.PeerFilter
	attempts int
	failFrom int // 1-based attempt number, 0 = never
	failErr  error
	capacity chan error
}

func (g *fakeGateway) TrySend(msg *sentrypb.OutboundMessageData, filter domain.PeerFilter) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.attempts++
	if g.failFrom != 0 && g.attempts >= g.failFrom {
		return g.failErr
	}
	g.sent = append(g.sent, msg)
	g.filters = append(g.filters, filter)
	return nil
}

func (g *fakeGateway) ReserveCapacity() <-chan error {
	if g.capacity != nil {
		return g.capacity
	}
	ch := make(chan error, 1)
	ch <- nil
	return ch
}

func (g *fakeGateway) sentPackets(t *testing.T) []*sentrypb.GetBlockHeadersPacket {
	t.Helper()
	g.mu.Lock()
	defer g.mu.Unlock()
	pkts := make([]*sentrypb.GetBlockHeadersPacket, 0, len(g.sent))
	for _, msg := range g.sent {
		if msg.Id != sentrypb.MessageId_GET_BLOCK_HEADERS {
			t.Fatalf("unexpected message id %v", msg.Id)
		}
		var pkt sentrypb.GetBlockHeadersPacket
		if err := proto.Unmarshal(msg.Data, &pkt); err != nil {
			t.Fatalf("decode sent packet: %v", err)
		}
		pkts = append(pkts, &pkt)
	}
	return pkts
}

func sliceStatuses(store *slices.Store) []domain.SliceStatus {
	var statuses []domain.SliceStatus
	_ = store.ForEach(func(sl *slices.Slice) error {
		statuses = append(statuses, sl.Status)
		return nil
	})
	return statuses
}

func setSliceStatus(t *testing.T, store *slices.Store, start domain.BlockNumber, status domain.SliceStatus) {
	t.Helper()
	err := store.ForEach(func(sl *slices.Slice) error {
		if sl.StartBlockNum != start {
			return nil
		}
		store.SetStatus(sl, status)
		return slices.ErrStopScan
	})
	if err != nil {
		t.Fatalf("set status: %v", err)
	}
}

func TestExecuteRequestsEveryEmptySlice(t *testing.T) {
	store := slices.NewStore(1000, 5, 0)
	gw := &fakeGateway{}
	stage := NewRequestStage(store, gw)

	if err := stage.Execute(context.Background()); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	for i, status := range sliceStatuses(store) {
		if status != domain.SliceStatusWaiting {
			t.Errorf("slice %d status = %s, want waiting", i, status)
		}
	}

	// Every requested slice got a request time.
	_ = store.ForEach(func(sl *slices.Slice) error {
		if sl.RequestTime.IsZero() {
			t.Errorf("slice %d has no request time", sl.StartBlockNum)
		}
		return nil
	})

	// Request ids are unique and strictly increasing in issuance order.
	pkts := gw.sentPackets(t)
	if len(pkts) != 5 {
		t.Fatalf("sent %d requests, want 5", len(pkts))
	}
	for i, pkt := range pkts {
		if pkt.RequestId != uint64(i) {
			t.Errorf("request %d has id %d, want %d", i, pkt.RequestId, i)
		}
	}

	// Peer policy is one random peer per request.
	for i, f := range gw.filters {
		if f.MaxPeers != 1 || f.PeerID != "" {
			t.Errorf("request %d peer filter = %+v, want 1 random peer", i, f)
		}
	}
}

func TestExecuteRequestParameters(t *testing.T) {
	store := slices.NewStore(100, 3, 0)
	gw := &fakeGateway{}
	stage := NewRequestStage(store, gw)

	if err := stage.Execute(context.Background()); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	wantStarts := map[uint64]bool{
		100:                      true,
		100 + slices.SliceCapacity:   true,
		100 + 2*slices.SliceCapacity: true,
	}
	for _, pkt := range gw.sentPackets(t) {
		if pkt.Limit != slices.SliceCapacity+1 {
			t.Errorf("limit = %d, want %d", pkt.Limit, slices.SliceCapacity+1)
		}
		if pkt.Skip != 0 {
			t.Errorf("skip = %d, want 0", pkt.Skip)
		}
		if pkt.Reverse {
			t.Error("reverse = true, want false (ascending)")
		}
		if !wantStarts[pkt.StartBlock] {
			t.Errorf("unexpected start block %d", pkt.StartBlock)
		}
		delete(wantStarts, pkt.StartBlock)
	}
	if len(wantStarts) != 0 {
		t.Errorf("unrequested start blocks: %v", wantStarts)
	}
}

func TestExecuteSkipsNonEmptySlices(t *testing.T) {
	store := slices.NewStore(0, 3, 0)
	setSliceStatus(t, store, slices.SliceCapacity, domain.SliceStatusDownloaded)

	gw := &fakeGateway{}
	stage := NewRequestStage(store, gw)

	if err := stage.Execute(context.Background()); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if got := len(gw.sentPackets(t)); got != 2 {
		t.Fatalf("sent %d requests, want 2", got)
	}
	statuses := sliceStatuses(store)
	if statuses[1] != domain.SliceStatusDownloaded {
		t.Errorf("downloaded slice was touched, status = %s", statuses[1])
	}
}

func TestRequestIDsIncreaseAcrossCalls(t *testing.T) {
	store := slices.NewStore(0, 2, 0)
	gw := &fakeGateway{}
	stage := NewRequestStage(store, gw)

	if err := stage.Execute(context.Background()); err != nil {
		t.Fatalf("first Execute failed: %v", err)
	}

	// Simulate the retry stage re-queueing both slices.
	setSliceStatus(t, store, 0, domain.SliceStatusEmpty)
	setSliceStatus(t, store, slices.SliceCapacity, domain.SliceStatusEmpty)

	if err := stage.Execute(context.Background()); err != nil {
		t.Fatalf("second Execute failed: %v", err)
	}

	pkts := gw.sentPackets(t)
	if len(pkts) != 4 {
		t.Fatalf("sent %d requests, want 4", len(pkts))
	}
	seen := make(map[uint64]bool)
	var last uint64
	for i, pkt := range pkts {
		if seen[pkt.RequestId] {
			t.Fatalf("request id %d reused", pkt.RequestId)
		}
		seen[pkt.RequestId] = true
		if i > 0 && pkt.RequestId <= last {
			t.Fatalf("request id %d not greater than %d", pkt.RequestId, last)
		}
		last = pkt.RequestId
	}
}

func TestExecuteBackpressure(t *testing.T) {
	store := slices.NewStore(0, 5, 0)
	capacity := make(chan error)
	gw := &fakeGateway{
		failFrom: 3,
		failErr:  sentry.ErrQueueFull,
		capacity: capacity,
	}
	stage := NewRequestStage(store, gw)

	done := make(chan error, 1)
	go func() {
		done <- stage.Execute(context.Background())
	}()

	// Execute must not return before capacity is available again.
	select {
	case err := <-done:
		t.Fatalf("Execute returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	capacity <- nil

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("queue-full is not an error, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Execute did not return after capacity resolved")
	}

	statuses := sliceStatuses(store)
	waiting, empty := 0, 0
	for _, status := range statuses {
		switch status {
		case domain.SliceStatusWaiting:
			waiting++
		case domain.SliceStatusEmpty:
			empty++
		}
	}
	if waiting != 2 || empty != 3 {
		t.Errorf("waiting = %d, empty = %d, want 2 and 3", waiting, empty)
	}
}

func TestExecuteFatalOnStoppedGateway(t *testing.T) {
	store := slices.NewStore(0, 4, 0)
	gw := &fakeGateway{failFrom: 2, failErr: sentry.ErrStopped}
	stage := NewRequestStage(store, gw)

	err := stage.Execute(context.Background())
	if err == nil {
		t.Fatal("expected an error from a stopped gateway")
	}
	if !errors.Is(err, sentry.ErrStopped) {
		t.Fatalf("error = %v, want wrapped ErrStopped", err)
	}

	// No slice after the failure point was mutated.
	statuses := sliceStatuses(store)
	if statuses[0] != domain.SliceStatusWaiting {
		t.Errorf("first slice status = %s, want waiting", statuses[0])
	}
	for i := 1; i < len(statuses); i++ {
		if statuses[i] != domain.SliceStatusEmpty {
			t.Errorf("slice %d status = %s, want empty", i, statuses[i])
		}
	}
}

func TestExecuteSuspendsUntilWork(t *testing.T) {
	store := slices.NewStore(0, 1, 0)
	setSliceStatus(t, store, 0, domain.SliceStatusWaiting)

	gw := &fakeGateway{}
	stage := NewRequestStage(store, gw)

	done := make(chan error, 1)
	go func() {
		done <- stage.Execute(context.Background())
	}()

	select {
	case err := <-done:
		t.Fatalf("Execute returned with no pending work: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	// An external stage returns the slice to Empty.
	setSliceStatus(t, store, 0, domain.SliceStatusEmpty)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Execute did not wake on new work")
	}

	if got := len(gw.sentPackets(t)); got != 1 {
		t.Errorf("sent %d requests, want 1", got)
	}
}

func TestExecuteFatalOnClosedStore(t *testing.T) {
	store := slices.NewStore(0, 1, 0)
	setSliceStatus(t, store, 0, domain.SliceStatusWaiting)

	gw := &fakeGateway{}
	stage := NewRequestStage(store, gw)

	done := make(chan error, 1)
	go func() {
		done <- stage.Execute(context.Background())
	}()

	store.Close()

	select {
	case err := <-done:
		if !errors.Is(err, slices.ErrClosed) {
			t.Fatalf("error = %v, want wrapped ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Execute did not observe the closed store")
	}
}

func TestExecuteHonorsContextWhileWaiting(t *testing.T) {
	store := slices.NewStore(0, 1, 0)
	setSliceStatus(t, store, 0, domain.SliceStatusWaiting)

	gw := &fakeGateway{}
	stage := NewRequestStage(store, gw)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- stage.Execute(ctx)
	}()

	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Execute did not observe cancellation")
	}
}
