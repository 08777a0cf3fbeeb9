package p2p

import (
	"powchain/blockchain"
)

// ChainPath is where every node serves its full chain.
const ChainPath = "/chain"

// ChainResponse is the body of GET /chain, both served and fetched.
type ChainResponse struct {
	Chain  blockchain.Chain `json:"chain"`
	Length int              `json:"length"`
}

// Consistent reports whether the advertised length matches the blocks sent.
func (r *ChainResponse) Consistent() bool {
	return r.Length == len(r.Chain)
}
