package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"powchain/blockchain"
)

var headKey = []byte("chain/head")

// Blocks live under a generation so a replacement tail can be written in
// several batches without touching the live chain. Only the head record
// decides which generation serves which indices.
func blockKey(gen uint64, index int64) []byte {
	return []byte(fmt.Sprintf("block/%010d/%020d", gen, index))
}

// segment maps the indices [From, To] to the blocks written under Gen.
type segment struct {
	Gen  uint64 `json:"gen"`
	From int64  `json:"from"`
	To   int64  `json:"to"`
}

type chainHead struct {
	Segments []segment `json:"segments"`
	NextGen  uint64    `json:"next_gen"`
}

func (h *chainHead) height() int64 {
	if len(h.Segments) == 0 {
		return 0
	}
	return h.Segments[len(h.Segments)-1].To
}

func (h *chainHead) genFor(index int64) (uint64, bool) {
	for _, seg := range h.Segments {
		if index >= seg.From && index <= seg.To {
			return seg.Gen, true
		}
	}
	return 0, false
}

// truncate keeps indices up to n and returns the ranges that were cut off.
func (h *chainHead) truncate(n int64) []segment {
	var kept, dropped []segment
	for _, seg := range h.Segments {
		switch {
		case seg.To <= n:
			kept = append(kept, seg)
		case seg.From > n:
			dropped = append(dropped, seg)
		default:
			dropped = append(dropped, segment{Gen: seg.Gen, From: n + 1, To: seg.To})
			seg.To = n
			kept = append(kept, seg)
		}
	}
	h.Segments = kept
	return dropped
}

// BadgerChainStore keeps one key per block plus a small head record.
type BadgerChainStore struct {
	db     *badger.DB
	logger zerolog.Logger
	mu     sync.RWMutex
	closed bool
}

// OpenBadgerChainStore opens (or creates) a store under dir. An empty dir
// opens an in-memory database.
func OpenBadgerChainStore(dir string, logger zerolog.Logger) (*BadgerChainStore, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("open badger: create %q: %w", dir, err)
		}
		opts = badger.DefaultOptions(dir)
	}
	logger = logger.With().Str("module", "badger").Logger()
	opts = opts.WithLogger(badgerLogger{logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerChainStore{db: db, logger: logger}, nil
}

func (s *BadgerChainStore) LoadChain() (blockchain.Chain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	chain := make(blockchain.Chain, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		head, err := readHead(txn)
		if err != nil {
			return err
		}
		for _, seg := range head.Segments {
			for i := seg.From; i <= seg.To; i++ {
				block, err := getBlock(txn, seg.Gen, i)
				if err != nil {
					return err
				}
				chain = append(chain, block)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chain, nil
}

func (s *BadgerChainStore) AppendBlock(block blockchain.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	return s.db.Update(func(txn *badger.Txn) error {
		head, err := readHead(txn)
		if err != nil {
			return err
		}
		height := head.height()
		if block.Index != height+1 {
			return fmt.Errorf("append block %d: store height is %d", block.Index, height)
		}

		if len(head.Segments) == 0 {
			head.Segments = []segment{{Gen: head.NextGen, From: block.Index, To: block.Index}}
			head.NextGen++
		} else {
			head.Segments[len(head.Segments)-1].To = block.Index
		}
		if err := putBlock(txn, head.Segments[len(head.Segments)-1].Gen, block); err != nil {
			return err
		}
		return writeHead(txn, head)
	})
}

// SaveChain replaces the stored chain. Blocks shared with the stored chain are
// kept; the differing tail is written in batches under a fresh generation and
// becomes visible only when the head record is swapped in one small
// transaction. Blocks cut off by the swap are deleted afterwards.
func (s *BadgerChainStore) SaveChain(chain blockchain.Chain) error {
	for i := range chain {
		if chain[i].Index != int64(i+1) {
			return fmt.Errorf("save chain: block at position %d has index %d", i+1, chain[i].Index)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	var (
		head   chainHead
		shared int64
	)
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		head, err = readHead(txn)
		if err != nil {
			return err
		}
		shared, err = commonPrefix(txn, &head, chain)
		return err
	})
	if err != nil {
		return err
	}

	dropped := head.truncate(shared)
	if n := int64(len(chain)); n > shared {
		gen := head.NextGen
		if err := s.writeBlocks(gen, chain[shared:]); err != nil {
			return err
		}
		head.Segments = append(head.Segments, segment{Gen: gen, From: shared + 1, To: n})
		head.NextGen = gen + 1
	}

	if err := s.db.Update(func(txn *badger.Txn) error {
		return writeHead(txn, head)
	}); err != nil {
		return err
	}

	if err := s.deleteBlocks(dropped); err != nil {
		// unreachable keys only cost space; the next append or save reuses
		// or overwrites them
		s.logger.Warn().Err(err).Msg("Failed to delete replaced blocks")
	}
	return nil
}

// commonPrefix counts the leading blocks of chain already stored.
func commonPrefix(txn *badger.Txn, head *chainHead, chain blockchain.Chain) (int64, error) {
	limit := head.height()
	if n := int64(len(chain)); n < limit {
		limit = n
	}
	for i := int64(1); i <= limit; i++ {
		gen, _ := head.genFor(i)
		stored, err := getBlock(txn, gen, i)
		if err != nil {
			return 0, err
		}
		if blockchain.HashBlock(&stored) != blockchain.HashBlock(&chain[i-1]) {
			return i - 1, nil
		}
	}
	return limit, nil
}

func (s *BadgerChainStore) writeBlocks(gen uint64, blocks []blockchain.Block) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, block := range blocks {
		data, err := json.Marshal(block)
		if err != nil {
			return fmt.Errorf("encode block %d: %w", block.Index, err)
		}
		if err := wb.Set(blockKey(gen, block.Index), data); err != nil {
			return fmt.Errorf("write block %d: %w", block.Index, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("write blocks: %w", err)
	}
	return nil
}

func (s *BadgerChainStore) deleteBlocks(segments []segment) error {
	if len(segments) == 0 {
		return nil
	}
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, seg := range segments {
		for i := seg.From; i <= seg.To; i++ {
			if err := wb.Delete(blockKey(seg.Gen, i)); err != nil {
				return fmt.Errorf("delete block %d: %w", i, err)
			}
		}
	}
	return wb.Flush()
}

func (s *BadgerChainStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func readHead(txn *badger.Txn) (chainHead, error) {
	var head chainHead
	item, err := txn.Get(headKey)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return head, nil
	}
	if err != nil {
		return head, fmt.Errorf("read chain head: %w", err)
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &head)
	})
	if err != nil {
		return head, fmt.Errorf("decode chain head: %w", err)
	}
	return head, nil
}

func writeHead(txn *badger.Txn, head chainHead) error {
	data, err := json.Marshal(head)
	if err != nil {
		return fmt.Errorf("encode chain head: %w", err)
	}
	return txn.Set(headKey, data)
}

func getBlock(txn *badger.Txn, gen uint64, index int64) (blockchain.Block, error) {
	var block blockchain.Block
	item, err := txn.Get(blockKey(gen, index))
	if err != nil {
		return block, fmt.Errorf("load block %d: %w", index, err)
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &block)
	})
	if err != nil {
		return block, fmt.Errorf("decode block %d: %w", index, err)
	}
	if block.Transactions == nil {
		block.Transactions = []blockchain.Transaction{}
	}
	return block, nil
}

func putBlock(txn *badger.Txn, gen uint64, block blockchain.Block) error {
	data, err := json.Marshal(block)
	if err != nil {
		return fmt.Errorf("encode block %d: %w", block.Index, err)
	}
	if err := txn.Set(blockKey(gen, block.Index), data); err != nil {
		return fmt.Errorf("write block %d: %w", block.Index, err)
	}
	return nil
}

type badgerLogger struct {
	zerolog.Logger
}

func (l badgerLogger) format(format string, args ...interface{}) string {
	return strings.TrimRight(fmt.Sprintf(format, args...), "\n")
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.Logger.Error().Msg(l.format(format, args...))
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.Logger.Warn().Msg(l.format(format, args...))
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.Logger.Debug().Msg(l.format(format, args...))
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.Logger.Trace().Msg(l.format(format, args...))
}
