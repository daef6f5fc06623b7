package sentry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/golang/protobuf/proto"

	"github.com/wmitsuda/akula/internal/core/domain"
	"github.com/wmitsuda/akula/internal/downloader/metrics"
	"github.com/wmitsuda/akula/internal/infra/sentry/sentrypb"
)

var (
	// ErrQueueFull reports that the outbound send queue is momentarily
	// full. Transient: callers should pause via ReserveCapacity.
	ErrQueueFull = errors.New("sentry: send queue full")

	// ErrStopped reports that the gateway shut down. Fatal: no further
	// sends will ever succeed.
	ErrStopped = errors.New("sentry: gateway stopped")

	// ErrBadPacket reports an inbound payload that failed to decode.
	ErrBadPacket = errors.New("sentry: malformed packet")
)

// MessageSender dispatches one outbound message to peers. Implemented
// by Client and by test fakes.
type MessageSender interface {
	SendToRandomPeers(ctx context.Context, msg *sentrypb.OutboundMessageData, maxPeers int) error
}

type queued struct {
	msg    *sentrypb.OutboundMessageData
	filter domain.PeerFilter
}

// Gateway owns the bounded outbound message queue in front of the
// sentry. It exposes only a non-blocking send and an async capacity
// wait; queue occupancy stays internal.
type Gateway struct {
	sender MessageSender
	queue  chan queued

	mu      sync.Mutex
	waiters []chan error
	stopped bool
}

// NewGateway creates a gateway with the given send queue capacity.
func NewGateway(sender MessageSender, capacity int) *Gateway {
	return &Gateway{
		sender: sender,
		queue:  make(chan queued, capacity),
	}
}

// TrySend enqueues a message without blocking. It returns ErrQueueFull
// when the queue has no room and ErrStopped after the gateway shut
// down.
func (g *Gateway) TrySend(msg *sentrypb.OutboundMessageData, filter domain.PeerFilter) error {
	g.mu.Lock()
	stopped := g.stopped
	g.mu.Unlock()
	if stopped {
		return ErrStopped
	}

	select {
	case g.queue <- queued{msg: msg, filter: filter}:
		metrics.SendQueueOccupancy.Set(float64(len(g.queue)))
		return nil
	default:
		return ErrQueueFull
	}
}

// ReserveCapacity returns a channel that yields nil once the send queue
// has room, or ErrStopped if the gateway shuts down first. The result
// is registered synchronously; the caller holds no gateway lock while
// awaiting it.
func (g *Gateway) ReserveCapacity() <-chan error {
	ch := make(chan error, 1)

	g.mu.Lock()
	defer g.mu.Unlock()
	switch {
	case g.stopped:
		ch <- ErrStopped
	case len(g.queue) < cap(g.queue):
		ch <- nil
	default:
		g.waiters = append(g.waiters, ch)
	}
	return ch
}

// Occupancy reports how many messages currently sit in the send queue.
// For health reporting only; senders observe capacity through TrySend
// and ReserveCapacity.
func (g *Gateway) Occupancy() int {
	return len(g.queue)
}

// Run drains the queue into the sender until ctx is cancelled or a
// dispatch fails. A dispatch failure stops the gateway permanently.
func (g *Gateway) Run(ctx context.Context) error {
	for {
		// Cancellation wins over queued work.
		select {
		case <-ctx.Done():
			g.shutdown()
			return nil
		default:
		}

		select {
		case <-ctx.Done():
			g.shutdown()
			return nil
		case q := <-g.queue:
			metrics.SendQueueOccupancy.Set(float64(len(g.queue)))
			if err := g.sender.SendToRandomPeers(ctx, q.msg, q.filter.MaxPeers); err != nil {
				g.shutdown()
				return fmt.Errorf("dispatch outbound message: %w", err)
			}
			g.signalCapacity()
		}
	}
}

// signalCapacity resolves every registered capacity waiter. Waiters
// re-check capacity through their next TrySend, so resolving all of
// them on one free slot is safe.
func (g *Gateway) signalCapacity() {
	g.mu.Lock()
	waiters := g.waiters
	g.waiters = nil
	g.mu.Unlock()

	for _, ch := range waiters {
		ch <- nil
	}
}

// shutdown marks the gateway stopped and fails all capacity waiters.
func (g *Gateway) shutdown() {
	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		return
	}
	g.stopped = true
	waiters := g.waiters
	g.waiters = nil
	g.mu.Unlock()

	slog.Debug("Sentry gateway stopped")
	for _, ch := range waiters {
		ch <- ErrStopped
	}
}

// decodePacket unmarshals an inbound payload, wrapping failures in
// ErrBadPacket so callers can tell peer garbage from stream loss.
func decodePacket(data []byte, pkt *sentrypb.BlockHeadersPacket) error {
	if err := proto.Unmarshal(data, pkt); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPacket, err)
	}
	return nil
}
