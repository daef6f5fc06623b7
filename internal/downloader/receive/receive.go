// Package receive delivers inbound header packets from the sentry into
// the slice window. Matched slices become Downloaded.
package receive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wmitsuda/akula/internal/core/domain"
	"github.com/wmitsuda/akula/internal/downloader/metrics"
	"github.com/wmitsuda/akula/internal/downloader/slices"
	"github.com/wmitsuda/akula/internal/infra/sentry"
	"github.com/wmitsuda/akula/internal/infra/sentry/sentrypb"
)

// PacketSource yields decoded header packets. Implemented by
// sentry.HeaderStream and by test fakes.
type PacketSource interface {
	Recv() (*sentrypb.BlockHeadersPacket, string, error)
}

// PeerPenalizer reports misbehaving peers back to the sentry.
type PeerPenalizer interface {
	Penalize(ctx context.Context, peerID string) error
}

// Stage consumes one inbound header packet per invocation and attaches
// it to the Waiting slice whose start block matches.
type Stage struct {
	store     *slices.Store
	source    PacketSource
	penalizer PeerPenalizer
	log       *slog.Logger
}

// New creates the receive stage. penalizer may be nil.
func New(store *slices.Store, source PacketSource, penalizer PeerPenalizer) *Stage {
	return &Stage{
		store:     store,
		source:    source,
		penalizer: penalizer,
		log:       slog.With("stage", "receive"),
	}
}

// Name identifies the stage in scheduler logs.
func (s *Stage) Name() string { return "receive" }

// Execute blocks on the next packet. A packet that matches a Waiting
// slice moves it to Downloaded; anything else is dropped. Malformed
// payloads penalize the sender; stream loss is fatal.
func (s *Stage) Execute(ctx context.Context) error {
	pkt, peer, err := s.source.Recv()
	if err != nil {
		if errors.Is(err, sentry.ErrBadPacket) {
			s.log.Debug("Dropping malformed packet", "peer", peer, "error", err)
			metrics.PacketsDiscarded.Inc()
			s.penalize(ctx, peer)
			return nil
		}
		return fmt.Errorf("receive header packet: %w", err)
	}

	if len(pkt.Headers) == 0 {
		s.log.Debug("Dropping empty header packet", "peer", peer, "request_id", pkt.RequestId)
		metrics.PacketsDiscarded.Inc()
		return nil
	}

	start := domain.BlockNumber(pkt.Headers[0].Number)
	matched := false

	err = s.store.ForEach(func(sl *slices.Slice) error {
		if sl.Status != domain.SliceStatusWaiting || sl.StartBlockNum != start {
			return nil
		}
		sl.Headers = convertHeaders(pkt.Headers)
		s.store.SetStatus(sl, domain.SliceStatusDownloaded)
		matched = true
		return slices.ErrStopScan
	})
	if err != nil {
		return err
	}

	if !matched {
		s.log.Debug("Dropping unmatched header packet",
			"peer", peer, "start_block", start, "request_id", pkt.RequestId)
		metrics.PacketsDiscarded.Inc()
		return nil
	}

	metrics.HeadersReceived.Add(float64(len(pkt.Headers)))
	s.log.Debug("Received header slice",
		"start_block", start, "count", len(pkt.Headers), "request_id", pkt.RequestId, "peer", peer)
	return nil
}

func (s *Stage) penalize(ctx context.Context, peerID string) {
	if s.penalizer == nil || peerID == "" {
		return
	}
	if err := s.penalizer.Penalize(ctx, peerID); err != nil {
		s.log.Warn("Failed to penalize peer", "peer", peerID, "error", err)
	}
}

func convertHeaders(in []*sentrypb.BlockHeader) []domain.Header {
	out := make([]domain.Header, 0, len(in))
	for _, h := range in {
		out = append(out, domain.Header{
			Number:     domain.BlockNumber(h.Number),
			Hash:       h.Hash,
			ParentHash: h.ParentHash,
			Timestamp:  h.Timestamp,
		})
	}
	return out
}
