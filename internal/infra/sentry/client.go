package sentry

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/wmitsuda/akula/internal/downloader/metrics"
	"github.com/wmitsuda/akula/internal/infra/sentry/sentrypb"
)

// Client wraps the gRPC connection to a sentry process. It implements
// MessageSender for the gateway and opens the inbound message stream
// for the receive stage.
type Client struct {
	connID   string
	endpoint string
	conn     *grpc.ClientConn
	sentry   sentrypb.SentryClient
}

// Dial connects to a sentry endpoint. TLS is inferred from the scheme,
// and the dial blocks until the connection is established or the
// timeout elapses.
func Dial(ctx context.Context, endpoint string) (*Client, error) {
	target := endpoint
	var opts []grpc.DialOption

	if strings.HasPrefix(endpoint, "https://") || strings.HasSuffix(endpoint, ":443") {
		creds := credentials.NewTLS(&tls.Config{})
		opts = append(opts, grpc.WithTransportCredentials(creds))
		target = strings.TrimPrefix(target, "https://")
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
		target = strings.TrimPrefix(target, "http://")
	}

	opts = append(opts, grpc.WithBlock())

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, err := grpc.DialContext(dialCtx, target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial sentry endpoint %s: %w", target, err)
	}

	c := &Client{
		connID:   uuid.NewString(),
		endpoint: endpoint,
		conn:     conn,
		sentry:   sentrypb.NewSentryClient(conn),
	}
	slog.Info("Connected to sentry", "endpoint", endpoint, "conn_id", c.connID)
	return c, nil
}

// Close tears the connection down.
func (c *Client) Close() error {
	return c.conn.Close()
}

// SendToRandomPeers delivers one outbound message to a random sample of
// peers.
func (c *Client) SendToRandomPeers(ctx context.Context, msg *sentrypb.OutboundMessageData, maxPeers int) error {
	sent, err := c.sentry.SendMessageToRandomPeers(ctx, &sentrypb.SendMessageToRandomPeersRequest{
		Data:     msg,
		MaxPeers: uint64(maxPeers),
	})
	if err != nil {
		metrics.SendErrors.WithLabelValues(status.Code(err).String()).Inc()
		return fmt.Errorf("send %s to random peers: %w", msg.Id, err)
	}
	slog.Debug("Sent message", "id", msg.Id.String(), "peers", len(sent.Peers), "conn_id", c.connID)
	return nil
}

// Penalize reports a misbehaving peer to the sentry.
func (c *Client) Penalize(ctx context.Context, peerID string) error {
	if _, err := c.sentry.PenalizePeer(ctx, &sentrypb.PenalizePeerRequest{PeerId: peerID}); err != nil {
		return fmt.Errorf("penalize peer %s: %w", peerID, err)
	}
	return nil
}

// OpenHeaderStream subscribes to inbound block header packets. The
// stream lives until ctx is cancelled or the sentry goes away.
func (c *Client) OpenHeaderStream(ctx context.Context) (*HeaderStream, error) {
	stream, err := c.sentry.Messages(ctx, &sentrypb.MessagesRequest{
		Ids: []sentrypb.MessageId{sentrypb.MessageId_BLOCK_HEADERS},
	})
	if err != nil {
		return nil, fmt.Errorf("open sentry message stream: %w", err)
	}
	return &HeaderStream{stream: stream}, nil
}

// HeaderStream decodes block header packets out of the sentry's inbound
// message stream.
type HeaderStream struct {
	stream sentrypb.Sentry_MessagesClient
}

// Recv blocks until the next header packet arrives and returns it
// together with the delivering peer's id. Messages of other types are
// skipped; payloads that fail to decode are surfaced so the caller can
// penalize the peer.
func (s *HeaderStream) Recv() (*sentrypb.BlockHeadersPacket, string, error) {
	for {
		msg, err := s.stream.Recv()
		if err != nil {
			return nil, "", fmt.Errorf("receive from sentry: %w", err)
		}
		if msg.Id != sentrypb.MessageId_BLOCK_HEADERS {
			continue
		}
		var pkt sentrypb.BlockHeadersPacket
		if err := decodePacket(msg.Data, &pkt); err != nil {
			return nil, msg.PeerId, err
		}
		return &pkt, msg.PeerId, nil
	}
}
