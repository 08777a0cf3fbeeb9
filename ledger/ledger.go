// Package ledger owns a node's chain and pending-transaction pool.
//
// The chain is guarded by a single RWMutex: sealing and replacement take it
// exclusively, reads that hash or validate take it shared. The pending pool has
// its own mutex so transaction admission never waits on chain writers longer
// than a length read. Lock order is always chain, then pending.
package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"powchain/blockchain"
	"powchain/blockchain/store"
	"powchain/metrics"
)

var (
	ErrEmptyChain = errors.New("chain is empty")
	// ErrStaleHead means the chain moved between reading the head and sealing.
	ErrStaleHead = errors.New("chain head changed")
	ErrNotLonger = errors.New("replacement chain is not longer than the local chain")
)

// Head is a view of the chain tip. Changed is closed the next time the chain
// is modified, letting a miner abandon work on a stale tip.
type Head struct {
	Block   blockchain.Block
	Version uint64
	Changed <-chan struct{}
}

type Ledger struct {
	mu      sync.RWMutex
	chain   blockchain.Chain
	version uint64
	changed chan struct{}

	pendingMu sync.Mutex
	pending   []blockchain.Transaction

	store   store.ChainStore
	now     func() time.Time
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

type Option func(*Ledger)

func WithStore(s store.ChainStore) Option {
	return func(l *Ledger) { l.store = s }
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

// New returns a ledger holding the chain found in its store, or a fresh
// genesis block when the store is empty. A persisted chain that fails
// structural validation is an error.
func New(opts ...Option) (*Ledger, error) {
	l := &Ledger{
		changed: make(chan struct{}),
		pending: make([]blockchain.Transaction, 0),
		now:     time.Now,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.store == nil {
		l.store = store.NewMemoryChainStore()
	}
	if l.metrics == nil {
		l.metrics = metrics.New(nil)
	}

	persisted, err := l.store.LoadChain()
	if err != nil {
		return nil, fmt.Errorf("load chain: %w", err)
	}

	if len(persisted) == 0 {
		genesis := blockchain.NewGenesisBlock(blockchain.Timestamp(l.now()))
		if err := l.store.AppendBlock(genesis); err != nil {
			return nil, fmt.Errorf("persist genesis block: %w", err)
		}
		l.chain = blockchain.Chain{genesis}
		l.logger.Info().Msg("Ledger initialized with genesis block")
	} else {
		if err := blockchain.ValidateChain(persisted); err != nil {
			return nil, fmt.Errorf("persisted chain is invalid: %w", err)
		}
		l.chain = persisted
		l.logger.Info().Int("length", len(persisted)).Msg("Ledger restored from store")
	}

	l.metrics.ChainLength.Set(float64(len(l.chain)))
	return l, nil
}

// NewTransaction queues a transaction and returns the index of the block that
// will carry it. Field contents are not checked.
func (l *Ledger) NewTransaction(sender, recipient string, amount float64) int64 {
	l.mu.RLock()
	next := int64(len(l.chain)) + 1
	l.pendingMu.Lock()
	l.pending = append(l.pending, blockchain.Transaction{
		Sender:    sender,
		Recipient: recipient,
		Amount:    amount,
	})
	pending := len(l.pending)
	l.pendingMu.Unlock()
	l.mu.RUnlock()

	l.metrics.TransactionsSubmitted.Inc()
	l.metrics.PendingTransactions.Set(float64(pending))
	return next
}

// SealBlock appends a block holding every pending transaction and clears the pool.
func (l *Ledger) SealBlock(proof int64, previousHash string) (blockchain.Block, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sealLocked(proof, previousHash, nil)
}

// SealOnto seals like SealBlock but only if the chain is still at version,
// appending extra to the pool first. ErrStaleHead is returned, with the pool
// untouched, when the chain has moved.
func (l *Ledger) SealOnto(version uint64, proof int64, previousHash string, extra ...blockchain.Transaction) (blockchain.Block, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if version != l.version {
		return blockchain.Block{}, ErrStaleHead
	}
	return l.sealLocked(proof, previousHash, extra)
}

// sealLocked must be called with mu held for writing.
func (l *Ledger) sealLocked(proof int64, previousHash string, extra []blockchain.Transaction) (blockchain.Block, error) {
	l.pendingMu.Lock()
	defer l.pendingMu.Unlock()

	txs := make([]blockchain.Transaction, 0, len(l.pending)+len(extra))
	txs = append(txs, l.pending...)
	txs = append(txs, extra...)

	block := blockchain.NewBlock(blockchain.BlockCreationParams{
		Index:        int64(len(l.chain)) + 1,
		Timestamp:    blockchain.Timestamp(l.now()),
		Transactions: txs,
		Proof:        proof,
		PreviousHash: previousHash,
	})

	if err := l.store.AppendBlock(block); err != nil {
		return blockchain.Block{}, fmt.Errorf("persist block %d: %w", block.Index, err)
	}

	l.pending = make([]blockchain.Transaction, 0)
	l.chain = append(l.chain, block)
	l.bumpLocked()

	l.metrics.PendingTransactions.Set(0)
	l.logger.Info().Int64("index", block.Index).Int("transactions", len(block.Transactions)).Msg("Block sealed")
	return block.Clone(), nil
}

// LastBlock returns the chain head. An empty chain is a broken invariant and panics.
func (l *Ledger) LastBlock() blockchain.Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastLocked().Clone()
}

func (l *Ledger) lastLocked() blockchain.Block {
	if len(l.chain) == 0 {
		panic("ledger: " + ErrEmptyChain.Error())
	}
	return l.chain.Head()
}

// Head returns the chain tip together with its version and change signal.
func (l *Ledger) Head() Head {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Head{
		Block:   l.lastLocked().Clone(),
		Version: l.version,
		Changed: l.changed,
	}
}

// Snapshot returns a copy of the chain and its length.
func (l *Ledger) Snapshot() (blockchain.Chain, int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.chain.Clone(), len(l.chain)
}

func (l *Ledger) Length() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.chain)
}

// Pending returns a copy of the transactions waiting for the next block.
func (l *Ledger) Pending() []blockchain.Transaction {
	l.pendingMu.Lock()
	defer l.pendingMu.Unlock()
	out := make([]blockchain.Transaction, len(l.pending))
	copy(out, l.pending)
	return out
}

// ReplaceChain swaps the whole chain for newChain. Callers validate first.
func (l *Ledger) ReplaceChain(newChain blockchain.Chain) error {
	if len(newChain) == 0 {
		return ErrEmptyChain
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.replaceLocked(newChain)
}

// ReplaceIfLonger swaps in newChain only if it is still longer than the local
// chain once the write lock is held. It returns ErrNotLonger otherwise.
func (l *Ledger) ReplaceIfLonger(newChain blockchain.Chain) error {
	if len(newChain) == 0 {
		return ErrEmptyChain
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(newChain) <= len(l.chain) {
		return ErrNotLonger
	}
	return l.replaceLocked(newChain)
}

func (l *Ledger) replaceLocked(newChain blockchain.Chain) error {
	// Clone also turns null transaction lists from peers into empty ones.
	chain := newChain.Clone()
	if err := l.store.SaveChain(chain); err != nil {
		return fmt.Errorf("persist replacement chain: %w", err)
	}

	old := len(l.chain)
	l.chain = chain
	l.bumpLocked()

	l.metrics.ChainReplacements.Inc()
	l.logger.Info().Int("old_length", old).Int("new_length", len(chain)).Msg("Chain replaced")
	return nil
}

// bumpLocked advances the version and wakes anyone waiting on the old head.
func (l *Ledger) bumpLocked() {
	l.version++
	close(l.changed)
	l.changed = make(chan struct{})
	l.metrics.ChainLength.Set(float64(len(l.chain)))
}

// IsStructurallyValid checks chain links and proofs from the second block on.
func IsStructurallyValid(chain blockchain.Chain) bool {
	return blockchain.IsValidChain(chain)
}
