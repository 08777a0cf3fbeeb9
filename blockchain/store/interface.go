package store

import (
	"errors"

	"powchain/blockchain"
)

var ErrClosed = errors.New("chain store is closed")

// ChainStore persists the ledger's chain. Validation is the caller's job.
type ChainStore interface {
	// LoadChain returns the persisted chain, or an empty chain if nothing
	// has been stored yet.
	LoadChain() (blockchain.Chain, error)

	AppendBlock(block blockchain.Block) error

	// SaveChain replaces everything stored with chain.
	SaveChain(chain blockchain.Chain) error

	Close() error
}
