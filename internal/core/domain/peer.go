package domain

// PeerFilter selects which peers receive an outbound message.
type PeerFilter struct {
	// MaxPeers is the number of randomly sampled recipients. 0 means all peers.
	MaxPeers int
	// PeerID, when set, targets a single peer and MaxPeers is ignored.
	PeerID string
}

// RandomPeers returns a filter sampling n random peers.
func RandomPeers(n int) PeerFilter {
	return PeerFilter{MaxPeers: n}
}
