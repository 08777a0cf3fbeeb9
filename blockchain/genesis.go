package blockchain

// NewGenesisBlock builds the sentinel first block. Only the timestamp varies
// between nodes; genesis is never checked against a predecessor.
func NewGenesisBlock(timestamp float64) Block {
	return Block{
		Index:        GenesisIndex,
		Timestamp:    timestamp,
		Transactions: []Transaction{},
		Proof:        GenesisProof,
		PreviousHash: GenesisPrevHash,
	}
}

// IsGenesis reports whether b carries the genesis sentinel values.
func IsGenesis(b *Block) bool {
	return b.Index == GenesisIndex &&
		b.Proof == GenesisProof &&
		b.PreviousHash == GenesisPrevHash &&
		len(b.Transactions) == 0
}
