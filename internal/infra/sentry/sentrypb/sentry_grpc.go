package sentrypb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
)

// SentryClient is the client API for the Sentry service.
type SentryClient interface {
	SendMessageToRandomPeers(ctx context.Context, in *SendMessageToRandomPeersRequest, opts ...grpc.CallOption) (*SentPeers, error)
	SendMessageById(ctx context.Context, in *SendMessageByIdRequest, opts ...grpc.CallOption) (*SentPeers, error)
	PenalizePeer(ctx context.Context, in *PenalizePeerRequest, opts ...grpc.CallOption) (*emptypb.Empty, error)
	Messages(ctx context.Context, in *MessagesRequest, opts ...grpc.CallOption) (Sentry_MessagesClient, error)
}

type sentryClient struct {
	cc *grpc.ClientConn
}

// NewSentryClient creates a Sentry client over an established
// connection.
func NewSentryClient(cc *grpc.ClientConn) SentryClient {
	return &sentryClient{cc}
}

func (c *sentryClient) SendMessageToRandomPeers(ctx context.Context, in *SendMessageToRandomPeersRequest, opts ...grpc.CallOption) (*SentPeers, error) {
	out := new(SentPeers)
	if err := c.cc.Invoke(ctx, "/sentry.Sentry/SendMessageToRandomPeers", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *sentryClient) SendMessageById(ctx context.Context, in *SendMessageByIdRequest, opts ...grpc.CallOption) (*SentPeers, error) {
	out := new(SentPeers)
	if err := c.cc.Invoke(ctx, "/sentry.Sentry/SendMessageById", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *sentryClient) PenalizePeer(ctx context.Context, in *PenalizePeerRequest, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, "/sentry.Sentry/PenalizePeer", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

var messagesStreamDesc = grpc.StreamDesc{
	StreamName:    "Messages",
	ServerStreams: true,
}

func (c *sentryClient) Messages(ctx context.Context, in *MessagesRequest, opts ...grpc.CallOption) (Sentry_MessagesClient, error) {
	stream, err := c.cc.NewStream(ctx, &messagesStreamDesc, "/sentry.Sentry/Messages", opts...)
	if err != nil {
		return nil, err
	}
	x := &sentryMessagesClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

// Sentry_MessagesClient is the client side of the inbound message
// stream.
type Sentry_MessagesClient interface {
	Recv() (*InboundMessage, error)
	grpc.ClientStream
}

type sentryMessagesClient struct {
	grpc.ClientStream
}

func (x *sentryMessagesClient) Recv() (*InboundMessage, error) {
	m := new(InboundMessage)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
