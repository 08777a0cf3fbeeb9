package blockchain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalBlock(t *testing.T) {
	tests := []struct {
		name  string
		block Block
		want  string
	}{
		{
			name:  "genesis",
			block: NewGenesisBlock(1700000000.5),
			want:  `{"index":1,"previous_hash":"1","proof":100,"timestamp":1700000000.5,"transactions":[]}`,
		},
		{
			name: "nil transactions encode as empty list",
			block: Block{
				Index:        2,
				Timestamp:    3,
				Proof:        7,
				PreviousHash: "abc",
			},
			want: `{"index":2,"previous_hash":"abc","proof":7,"timestamp":3,"transactions":[]}`,
		},
		{
			name: "transaction keys sorted and html left alone",
			block: Block{
				Index:        2,
				Timestamp:    1.25,
				Transactions: []Transaction{{Sender: "<a>", Recipient: "b&c", Amount: 5}},
				Proof:        35293,
				PreviousHash: "h",
			},
			want: `{"index":2,"previous_hash":"h","proof":35293,"timestamp":1.25,"transactions":[{"amount":5,"recipient":"b&c","sender":"<a>"}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := canonicalBlock(&tt.block)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestHashBlock(t *testing.T) {
	a := NewGenesisBlock(1700000000)
	b := NewGenesisBlock(1700000000)

	h := HashBlock(&a)
	assert.Len(t, h, 64)
	assert.Equal(t, h, HashBlock(&b), "equal blocks hash equally")

	b.Timestamp++
	assert.NotEqual(t, h, HashBlock(&b))

	t.Run("transaction order matters", func(t *testing.T) {
		x := Block{Index: 2, Transactions: []Transaction{{Sender: "a"}, {Sender: "b"}}}
		y := Block{Index: 2, Transactions: []Transaction{{Sender: "b"}, {Sender: "a"}}}
		assert.NotEqual(t, HashBlock(&x), HashBlock(&y))
	})

	t.Run("unencodable block", func(t *testing.T) {
		bad := Block{Index: 2, Timestamp: math.NaN()}
		assert.Equal(t, "", HashBlock(&bad))
	})
}
