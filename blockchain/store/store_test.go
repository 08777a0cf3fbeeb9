package store_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"powchain/blockchain"
	"powchain/blockchain/store"
)

func blocks(n int, tag string) blockchain.Chain {
	chain := make(blockchain.Chain, 0, n)
	for i := 1; i <= n; i++ {
		chain = append(chain, blockchain.Block{
			Index:        int64(i),
			Timestamp:    float64(i),
			Transactions: []blockchain.Transaction{{Sender: tag, Recipient: "r", Amount: float64(i)}},
			Proof:        int64(i * 10),
			PreviousHash: tag,
		})
	}
	return chain
}

func openStores(t *testing.T) map[string]store.ChainStore {
	t.Helper()

	badgerMem, err := store.OpenBadgerChainStore("", zerolog.Nop())
	require.NoError(t, err)
	badgerDisk, err := store.OpenBadgerChainStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	stores := map[string]store.ChainStore{
		"memory":      store.NewMemoryChainStore(),
		"badger mem":  badgerMem,
		"badger disk": badgerDisk,
	}
	t.Cleanup(func() {
		for _, s := range stores {
			_ = s.Close()
		}
	})
	return stores
}

func TestChainStore(t *testing.T) {
	for name, s := range openStores(t) {
		s := s
		t.Run(name, func(t *testing.T) {
			chain, err := s.LoadChain()
			require.NoError(t, err)
			assert.Empty(t, chain)

			for _, b := range blocks(3, "a") {
				require.NoError(t, s.AppendBlock(b))
			}
			chain, err = s.LoadChain()
			require.NoError(t, err)
			assert.Equal(t, blocks(3, "a"), chain)

			// replace with a longer chain
			require.NoError(t, s.SaveChain(blocks(5, "b")))
			chain, err = s.LoadChain()
			require.NoError(t, err)
			assert.Equal(t, blocks(5, "b"), chain)

			// replace with a shorter chain drops the tail
			require.NoError(t, s.SaveChain(blocks(2, "c")))
			chain, err = s.LoadChain()
			require.NoError(t, err)
			assert.Equal(t, blocks(2, "c"), chain)

			// appends continue after the replaced chain
			require.NoError(t, s.AppendBlock(blocks(3, "c")[2]))
			chain, err = s.LoadChain()
			require.NoError(t, err)
			assert.Equal(t, blocks(3, "c"), chain)
		})
	}
}

func TestChainStoreIsolation(t *testing.T) {
	for name, s := range openStores(t) {
		s := s
		t.Run(name, func(t *testing.T) {
			chain := blocks(2, "a")
			require.NoError(t, s.SaveChain(chain))

			chain[0].Transactions[0].Amount = 99
			loaded, err := s.LoadChain()
			require.NoError(t, err)
			assert.Equal(t, float64(1), loaded[0].Transactions[0].Amount)

			loaded[1].Transactions[0].Amount = 99
			again, err := s.LoadChain()
			require.NoError(t, err)
			assert.Equal(t, float64(2), again[1].Transactions[0].Amount)
		})
	}
}

func TestChainStoreClosed(t *testing.T) {
	for name, s := range openStores(t) {
		s := s
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Close())

			_, err := s.LoadChain()
			assert.ErrorIs(t, err, store.ErrClosed)
			assert.ErrorIs(t, s.AppendBlock(blocks(1, "a")[0]), store.ErrClosed)
			assert.ErrorIs(t, s.SaveChain(blocks(1, "a")), store.ErrClosed)
		})
	}
}

func TestBadgerRejectsOutOfOrderAppend(t *testing.T) {
	s, err := store.OpenBadgerChainStore("", zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()

	assert.Error(t, s.AppendBlock(blocks(2, "a")[1]))
	require.NoError(t, s.AppendBlock(blocks(1, "a")[0]))
	assert.Error(t, s.AppendBlock(blocks(1, "a")[0]))
}

func TestBadgerReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := store.OpenBadgerChainStore(dir, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s.SaveChain(blocks(4, "a")))
	require.NoError(t, s.Close())

	s, err = store.OpenBadgerChainStore(dir, zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()

	chain, err := s.LoadChain()
	require.NoError(t, err)
	assert.Equal(t, blocks(4, "a"), chain)
}

func heavyBlocks(n, txs int, tag string) blockchain.Chain {
	chain := blocks(n, tag)
	for i := range chain {
		for j := 1; j < txs; j++ {
			chain[i].Transactions = append(chain[i].Transactions, blockchain.Transaction{
				Sender:    tag,
				Recipient: "recipient-with-a-reasonably-long-address",
				Amount:    float64(j),
			})
		}
	}
	return chain
}

func TestBadgerSaveChainLargerThanOneTransaction(t *testing.T) {
	// ~30MB of block data, several times badger's per-transaction limit
	const (
		n   = 20000
		txs = 20
	)

	s, err := store.OpenBadgerChainStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.SaveChain(blocks(3, "a")))

	large := heavyBlocks(n, txs, "b")
	require.NoError(t, s.SaveChain(large))

	chain, err := s.LoadChain()
	require.NoError(t, err)
	require.Len(t, chain, n)
	assert.Equal(t, large[0], chain[0])
	assert.Equal(t, large[n-1], chain[n-1])

	// a fork of the large chain only rewrites its tail
	fork := append(large[:n-10].Clone(), heavyBlocks(n+5, txs, "c")[n-10:]...)
	require.NoError(t, s.SaveChain(fork))
	require.NoError(t, s.AppendBlock(heavyBlocks(n+6, txs, "c")[n+5]))

	chain, err = s.LoadChain()
	require.NoError(t, err)
	require.Len(t, chain, n+6)
	assert.Equal(t, large[n-11], chain[n-11])
	assert.Equal(t, fork[n-10], chain[n-10])
	assert.Equal(t, "c", chain[n+5].PreviousHash)
}
