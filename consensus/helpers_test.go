package consensus

import (
	"testing"

	"github.com/stretchr/testify/require"

	"powchain/blockchain"
	"powchain/blockchain/store"
)

func newSeededStore(t *testing.T, chain blockchain.Chain) store.ChainStore {
	t.Helper()
	s := store.NewMemoryChainStore()
	require.NoError(t, s.SaveChain(chain))
	return s
}
