// Package fetcher issues header fetch requests for the slices awaiting
// download and re-queues slices whose requests timed out.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/golang/protobuf/proto"

	"github.com/wmitsuda/akula/internal/core/domain"
	"github.com/wmitsuda/akula/internal/downloader/metrics"
	"github.com/wmitsuda/akula/internal/downloader/slices"
	"github.com/wmitsuda/akula/internal/infra/sentry"
	"github.com/wmitsuda/akula/internal/infra/sentry/sentrypb"
)

// Gateway is the outbound side of the sentry as consumed by the request
// stage.
type Gateway interface {
	TrySend(msg *sentrypb.OutboundMessageData, filter domain.PeerFilter) error
	ReserveCapacity() <-chan error
}

// RequestStage sends fetch requests to peers for every Empty slice.
// Requested slices become Waiting.
type RequestStage struct {
	store         *slices.Store
	gateway       Gateway
	lastRequestID atomic.Uint64
	pendingWatch  *slices.StatusWatch
	log           *slog.Logger
}

// NewRequestStage creates the stage and subscribes it to Empty count
// changes.
func NewRequestStage(store *slices.Store, gateway Gateway) *RequestStage {
	return &RequestStage{
		store:        store,
		gateway:      gateway,
		pendingWatch: store.WatchStatusChanges(domain.SliceStatusEmpty),
		log:          slog.With("stage", "request"),
	}
}

// Name identifies the stage in scheduler logs.
func (s *RequestStage) Name() string { return "request" }

func (s *RequestStage) pendingCount() int {
	return s.store.CountInStatus(domain.SliceStatusEmpty)
}

// Execute waits until at least one Empty slice exists, issues a fetch
// request for every Empty slice, and, if the send queue filled up
// mid-scan, waits for renewed capacity before returning. A full queue
// is not an error; a stopped gateway or a closed store is.
func (s *RequestStage) Execute(ctx context.Context) error {
	if s.pendingCount() == 0 {
		if err := s.waitPending(ctx); err != nil {
			return err
		}
	}

	s.log.Debug("Requesting header slices", "pending", s.pendingCount())
	if err := s.requestPending(); err != nil {
		return err
	}

	// Slices left Empty mean the scan stopped on a full queue. Await
	// capacity to pace the next invocation; no retry within this call.
	if s.pendingCount() > 0 {
		ready := s.gateway.ReserveCapacity()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-ready:
			if err != nil {
				return fmt.Errorf("wait for send queue capacity: %w", err)
			}
		}
	}
	return nil
}

// waitPending blocks until the Empty count is observed above zero,
// re-checking the predicate on every wake. A closed watch means the
// store shut down and is fatal.
func (s *RequestStage) waitPending(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case count, ok := <-s.pendingWatch.C:
			if !ok {
				return fmt.Errorf("wait for empty slices: %w", slices.ErrClosed)
			}
			if count > 0 {
				return nil
			}
		}
	}
}

// requestPending scans the window once. Per Empty slice: draw the next
// request id, hand the request to the gateway, and on success flip the
// slice to Waiting under the same held lock so no concurrent scanner
// can double-request it.
func (s *RequestStage) requestPending() error {
	return s.store.ForEach(func(sl *slices.Slice) error {
		if sl.Status != domain.SliceStatusEmpty {
			return nil
		}

		requestID := s.lastRequestID.Add(1) - 1
		msg, err := buildHeadersRequest(requestID, sl.StartBlockNum)
		if err != nil {
			return err
		}

		err = s.gateway.TrySend(msg, domain.RandomPeers(1))
		switch {
		case errors.Is(err, sentry.ErrQueueFull):
			s.log.Debug("Send queue full, pausing header requests")
			metrics.SendQueueFull.Inc()
			return slices.ErrStopScan
		case err != nil:
			return fmt.Errorf("send header request %d: %w", requestID, err)
		}

		sl.RequestTime = time.Now()
		s.store.SetStatus(sl, domain.SliceStatusWaiting)
		metrics.HeaderRequestsSent.Inc()
		return nil
	})
}

// buildHeadersRequest encodes a GetBlockHeaders message asking for one
// header beyond the slice capacity so the verify stage can check
// linkage to the next slice.
func buildHeadersRequest(requestID uint64, start domain.BlockNumber) (*sentrypb.OutboundMessageData, error) {
	pkt := &sentrypb.GetBlockHeadersPacket{
		RequestId:  requestID,
		StartBlock: uint64(start),
		Limit:      slices.SliceCapacity + 1,
		Skip:       0,
		Reverse:    false,
	}
	data, err := proto.Marshal(pkt)
	if err != nil {
		return nil, fmt.Errorf("encode header request %d: %w", requestID, err)
	}
	return &sentrypb.OutboundMessageData{
		Id:   sentrypb.MessageId_GET_BLOCK_HEADERS,
		Data: data,
	}, nil
}
