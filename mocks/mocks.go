// Package mocks builds valid and deliberately broken chains and provides
// in-memory stand-ins for peer transport, for use in tests.
package mocks

import (
	"context"
	"fmt"
	"sync"

	"powchain/blockchain"
	"powchain/p2p"
)

// BaseTimestamp is the genesis timestamp of every generated chain.
const BaseTimestamp = 1700000000.0

var (
	proofMu sync.Mutex
	proofs  = map[int64]int64{}
)

// NextProof returns Solve(last), memoized across tests since the search is
// the slow part of building chains.
func NextProof(last int64) int64 {
	proofMu.Lock()
	defer proofMu.Unlock()
	if p, ok := proofs[last]; ok {
		return p
	}
	p := blockchain.Solve(last)
	proofs[last] = p
	return p
}

// BuildChain returns a valid chain of n blocks (n >= 1). Every block after
// genesis carries one transaction signed by tag, so chains built with
// different tags differ while sharing the same proofs.
func BuildChain(n int, tag string) blockchain.Chain {
	if n < 1 {
		return blockchain.Chain{}
	}
	chain := blockchain.Chain{blockchain.NewGenesisBlock(BaseTimestamp)}
	return Extend(chain, n-1, tag)
}

// Extend appends count valid blocks to a copy of chain.
func Extend(chain blockchain.Chain, count int, tag string) blockchain.Chain {
	out := chain.Clone()
	for i := 0; i < count; i++ {
		head := out.Head()
		out = append(out, blockchain.NewBlock(blockchain.BlockCreationParams{
			Index:     head.Index + 1,
			Timestamp: BaseTimestamp + float64(head.Index),
			Transactions: []blockchain.Transaction{{
				Sender:    tag,
				Recipient: fmt.Sprintf("%s-recipient", tag),
				Amount:    float64(head.Index),
			}},
			Proof:        NextProof(head.Proof),
			PreviousHash: blockchain.HashBlock(&head),
		}))
	}
	return out
}

// BreakLink returns a copy of chain whose block at position pos no longer
// links to its predecessor.
func BreakLink(chain blockchain.Chain, pos int) blockchain.Chain {
	out := chain.Clone()
	out[pos].PreviousHash = "not-a-real-hash"
	return out
}

// BreakProof returns a copy of chain whose block at position pos carries a
// proof that does not solve against its predecessor.
func BreakProof(chain blockchain.Chain, pos int) blockchain.Chain {
	out := chain.Clone()
	bad := out[pos].Proof + 1
	for blockchain.ValidProof(out[pos-1].Proof, bad) {
		bad++
	}
	out[pos].Proof = bad
	return out
}

// StaticFetcher serves fixed chain responses by peer address. Unknown
// addresses behave like unreachable peers.
type StaticFetcher struct {
	mu        sync.Mutex
	responses map[string]p2p.ChainResponse
	panics    map[string]bool
	calls     map[string]int
}

func NewStaticFetcher() *StaticFetcher {
	return &StaticFetcher{
		responses: make(map[string]p2p.ChainResponse),
		panics:    make(map[string]bool),
		calls:     make(map[string]int),
	}
}

// Serve makes address answer with chain and its true length.
func (f *StaticFetcher) Serve(address string, chain blockchain.Chain) {
	f.ServeResponse(address, p2p.ChainResponse{Chain: chain, Length: len(chain)})
}

// ServeResponse makes address answer with resp as is.
func (f *StaticFetcher) ServeResponse(address string, resp p2p.ChainResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[address] = resp
}

// Panic makes fetches from address panic.
func (f *StaticFetcher) Panic(address string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.panics[address] = true
}

func (f *StaticFetcher) FetchChain(_ context.Context, address string) (p2p.ChainResponse, bool) {
	f.mu.Lock()
	f.calls[address]++
	resp, ok := f.responses[address]
	shouldPanic := f.panics[address]
	f.mu.Unlock()

	if shouldPanic {
		panic("fetch from " + address)
	}
	if !ok {
		return p2p.ChainResponse{}, false
	}
	resp.Chain = resp.Chain.Clone()
	return resp, true
}

// Calls reports how many times address was fetched.
func (f *StaticFetcher) Calls(address string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[address]
}
