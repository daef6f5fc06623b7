package domain

// BlockNumber is a block height on the chain.
type BlockNumber uint64

// Header is a downloaded block header, reduced to the fields the sync
// pipeline needs for linkage verification and archiving.
type Header struct {
	Number     BlockNumber
	Hash       string
	ParentHash string
	Timestamp  uint64
}
