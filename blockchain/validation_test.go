package blockchain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildChain(n int) Chain {
	chain := Chain{NewGenesisBlock(1700000000)}
	for len(chain) < n {
		head := chain.Head()
		chain = append(chain, NewBlock(BlockCreationParams{
			Index:        head.Index + 1,
			Timestamp:    head.Timestamp + 1,
			Transactions: []Transaction{RewardTransaction("miner", 1)},
			Proof:        Solve(head.Proof),
			PreviousHash: HashBlock(&head),
		}))
	}
	return chain
}

func TestValidateChain(t *testing.T) {
	valid := buildChain(3)

	tests := []struct {
		name    string
		chain   func() Chain
		wantErr interface{}
	}{
		{name: "empty", chain: func() Chain { return nil }},
		{name: "genesis only", chain: func() Chain { return valid[:1] }},
		{name: "valid", chain: func() Chain { return valid }},
		{
			name: "genesis content is not checked",
			chain: func() Chain {
				c := Chain{Block{Index: 1, Proof: 5, PreviousHash: "x"}}
				return c
			},
		},
		{
			name: "broken link",
			chain: func() Chain {
				c := valid.Clone()
				c[2].PreviousHash = "deadbeef"
				return c
			},
			wantErr: &ErrBrokenLink{},
		},
		{
			name: "tampered parent",
			chain: func() Chain {
				c := valid.Clone()
				c[1].Transactions[0].Amount = 1000
				return c
			},
			wantErr: &ErrBrokenLink{},
		},
		{
			name: "invalid proof on genesis successor",
			chain: func() Chain {
				c := valid.Clone()
				c[1].Proof++
				for ValidProof(c[0].Proof, c[1].Proof) {
					c[1].Proof++
				}
				// relink the third block so only the proof is wrong
				c[2].PreviousHash = HashBlock(&c[1])
				return c
			},
			wantErr: &ErrInvalidProof{},
		},
		{
			name: "index out of place",
			chain: func() Chain {
				c := valid.Clone()
				c[1].Index = 7
				return c
			},
			wantErr: &ErrIndexMismatch{},
		},
		{
			name: "first block index not genesis",
			chain: func() Chain {
				c := valid.Clone()
				c[0].Index = 0
				c[1].PreviousHash = HashBlock(&c[0])
				return c
			},
			wantErr: &ErrIndexMismatch{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChain(tt.chain())
			switch target := tt.wantErr.(type) {
			case nil:
				require.NoError(t, err)
			case *ErrBrokenLink:
				assert.ErrorAs(t, err, target)
			case *ErrInvalidProof:
				assert.ErrorAs(t, err, target)
			case *ErrIndexMismatch:
				assert.ErrorAs(t, err, target)
			}
			assert.Equal(t, tt.wantErr == nil, IsValidChain(tt.chain()))
		})
	}
}

func TestBrokenLinkReportsBlock(t *testing.T) {
	c := buildChain(4)
	c[3].PreviousHash = "nope"

	var linkErr ErrBrokenLink
	require.ErrorAs(t, ValidateChain(c), &linkErr)
	assert.Equal(t, int64(4), linkErr.Index)
	assert.Equal(t, "nope", linkErr.Got)
}

func TestIndexMismatchReportsFirstPosition(t *testing.T) {
	c := buildChain(3)
	c[0].Index = 5
	c[1].PreviousHash = HashBlock(&c[0])

	var indexErr ErrIndexMismatch
	require.ErrorAs(t, ValidateChain(c), &indexErr)
	assert.Equal(t, 1, indexErr.Position)
	assert.Equal(t, int64(5), indexErr.Index)
}
