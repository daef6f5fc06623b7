// Package sentrypb holds the wire types for the sentry gRPC service
// declared in sentry.proto. The messages use proto struct tags and the
// stubs are maintained by hand alongside the schema.
package sentrypb

import (
	proto "github.com/golang/protobuf/proto"
)

// MessageId identifies the payload type carried by an outbound or
// inbound message envelope.
type MessageId int32

const (
	MessageId_GET_BLOCK_HEADERS MessageId = 0
	MessageId_BLOCK_HEADERS     MessageId = 1
)

var messageIdNames = map[MessageId]string{
	MessageId_GET_BLOCK_HEADERS: "GET_BLOCK_HEADERS",
	MessageId_BLOCK_HEADERS:     "BLOCK_HEADERS",
}

func (x MessageId) String() string {
	if name, ok := messageIdNames[x]; ok {
		return name
	}
	return "UNKNOWN"
}

// OutboundMessageData is the envelope for a message sent to peers.
type OutboundMessageData struct {
	Id   MessageId `protobuf:"varint,1,opt,name=id,proto3,enum=sentry.MessageId" json:"id,omitempty"`
	Data []byte    `protobuf:"bytes,2,opt,name=data,proto3" json:"data,omitempty"`
}

func (m *OutboundMessageData) Reset()         { *m = OutboundMessageData{} }
func (m *OutboundMessageData) String() string { return proto.CompactTextString(m) }
func (*OutboundMessageData) ProtoMessage()    {}

// SendMessageToRandomPeersRequest asks the sentry to deliver a message
// to a random sample of connected peers.
type SendMessageToRandomPeersRequest struct {
	Data     *OutboundMessageData `protobuf:"bytes,1,opt,name=data,proto3" json:"data,omitempty"`
	MaxPeers uint64               `protobuf:"varint,2,opt,name=max_peers,json=maxPeers,proto3" json:"max_peers,omitempty"`
}

func (m *SendMessageToRandomPeersRequest) Reset()         { *m = SendMessageToRandomPeersRequest{} }
func (m *SendMessageToRandomPeersRequest) String() string { return proto.CompactTextString(m) }
func (*SendMessageToRandomPeersRequest) ProtoMessage()    {}

// SendMessageByIdRequest asks the sentry to deliver a message to one
// specific peer.
type SendMessageByIdRequest struct {
	Data   *OutboundMessageData `protobuf:"bytes,1,opt,name=data,proto3" json:"data,omitempty"`
	PeerId string               `protobuf:"bytes,2,opt,name=peer_id,json=peerId,proto3" json:"peer_id,omitempty"`
}

func (m *SendMessageByIdRequest) Reset()         { *m = SendMessageByIdRequest{} }
func (m *SendMessageByIdRequest) String() string { return proto.CompactTextString(m) }
func (*SendMessageByIdRequest) ProtoMessage()    {}

// SentPeers reports which peers a message was delivered to.
type SentPeers struct {
	Peers []string `protobuf:"bytes,1,rep,name=peers,proto3" json:"peers,omitempty"`
}

func (m *SentPeers) Reset()         { *m = SentPeers{} }
func (m *SentPeers) String() string { return proto.CompactTextString(m) }
func (*SentPeers) ProtoMessage()    {}

// PenalizePeerRequest reports a misbehaving peer to the sentry.
type PenalizePeerRequest struct {
	PeerId string `protobuf:"bytes,1,opt,name=peer_id,json=peerId,proto3" json:"peer_id,omitempty"`
}

func (m *PenalizePeerRequest) Reset()         { *m = PenalizePeerRequest{} }
func (m *PenalizePeerRequest) String() string { return proto.CompactTextString(m) }
func (*PenalizePeerRequest) ProtoMessage()    {}

// MessagesRequest subscribes to inbound messages with the given ids.
type MessagesRequest struct {
	Ids []MessageId `protobuf:"varint,1,rep,packed,name=ids,proto3,enum=sentry.MessageId" json:"ids,omitempty"`
}

func (m *MessagesRequest) Reset()         { *m = MessagesRequest{} }
func (m *MessagesRequest) String() string { return proto.CompactTextString(m) }
func (*MessagesRequest) ProtoMessage()    {}

// InboundMessage is the envelope for a message received from a peer.
type InboundMessage struct {
	Id     MessageId `protobuf:"varint,1,opt,name=id,proto3,enum=sentry.MessageId" json:"id,omitempty"`
	Data   []byte    `protobuf:"bytes,2,opt,name=data,proto3" json:"data,omitempty"`
	PeerId string    `protobuf:"bytes,3,opt,name=peer_id,json=peerId,proto3" json:"peer_id,omitempty"`
}

func (m *InboundMessage) Reset()         { *m = InboundMessage{} }
func (m *InboundMessage) String() string { return proto.CompactTextString(m) }
func (*InboundMessage) ProtoMessage()    {}

// GetBlockHeadersPacket requests a run of headers starting at a block
// number.
type GetBlockHeadersPacket struct {
	RequestId  uint64 `protobuf:"varint,1,opt,name=request_id,json=requestId,proto3" json:"request_id,omitempty"`
	StartBlock uint64 `protobuf:"varint,2,opt,name=start_block,json=startBlock,proto3" json:"start_block,omitempty"`
	Limit      uint64 `protobuf:"varint,3,opt,name=limit,proto3" json:"limit,omitempty"`
	Skip       uint64 `protobuf:"varint,4,opt,name=skip,proto3" json:"skip,omitempty"`
	Reverse    bool   `protobuf:"varint,5,opt,name=reverse,proto3" json:"reverse,omitempty"`
}

func (m *GetBlockHeadersPacket) Reset()         { *m = GetBlockHeadersPacket{} }
func (m *GetBlockHeadersPacket) String() string { return proto.CompactTextString(m) }
func (*GetBlockHeadersPacket) ProtoMessage()    {}

// BlockHeader is one header as carried on the wire.
type BlockHeader struct {
	Number     uint64 `protobuf:"varint,1,opt,name=number,proto3" json:"number,omitempty"`
	Hash       string `protobuf:"bytes,2,opt,name=hash,proto3" json:"hash,omitempty"`
	ParentHash string `protobuf:"bytes,3,opt,name=parent_hash,json=parentHash,proto3" json:"parent_hash,omitempty"`
	Timestamp  uint64 `protobuf:"varint,4,opt,name=timestamp,proto3" json:"timestamp,omitempty"`
}

func (m *BlockHeader) Reset()         { *m = BlockHeader{} }
func (m *BlockHeader) String() string { return proto.CompactTextString(m) }
func (*BlockHeader) ProtoMessage()    {}

// BlockHeadersPacket is a peer's response to GetBlockHeadersPacket.
type BlockHeadersPacket struct {
	RequestId uint64         `protobuf:"varint,1,opt,name=request_id,json=requestId,proto3" json:"request_id,omitempty"`
	Headers   []*BlockHeader `protobuf:"bytes,2,rep,name=headers,proto3" json:"headers,omitempty"`
}

func (m *BlockHeadersPacket) Reset()         { *m = BlockHeadersPacket{} }
func (m *BlockHeadersPacket) String() string { return proto.CompactTextString(m) }
func (*BlockHeadersPacket) ProtoMessage()    {}
