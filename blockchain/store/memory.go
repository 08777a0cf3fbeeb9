package store

import (
	"sync"

	"powchain/blockchain"
)

type MemoryChainStore struct {
	chain  blockchain.Chain
	closed bool
	mu     sync.RWMutex
}

func NewMemoryChainStore() *MemoryChainStore {
	return &MemoryChainStore{
		chain: make(blockchain.Chain, 0),
	}
}

func (m *MemoryChainStore) LoadChain() (blockchain.Chain, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	return m.chain.Clone(), nil
}

func (m *MemoryChainStore) AppendBlock(block blockchain.Block) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.chain = append(m.chain, block.Clone())
	return nil
}

// SaveChain atomically replaces the entire chain
func (m *MemoryChainStore) SaveChain(chain blockchain.Chain) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.chain = chain.Clone()
	if m.chain == nil {
		m.chain = make(blockchain.Chain, 0)
	}
	return nil
}

func (m *MemoryChainStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
