package blockchain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSolveFindsSmallestProof(t *testing.T) {
	proof := Solve(GenesisProof)
	require.True(t, ValidProof(GenesisProof, proof))

	for p := int64(0); p < proof; p++ {
		require.False(t, ValidProof(GenesisProof, p), "proof %d is smaller and valid", p)
	}

	sum := sha256.Sum256([]byte(strconv.FormatInt(GenesisProof, 10) + strconv.FormatInt(proof, 10)))
	assert.True(t, strings.HasPrefix(hex.EncodeToString(sum[:]), strings.Repeat("0", Difficulty)))
}

func TestDigestMeetsDifficulty(t *testing.T) {
	tests := []struct {
		name string
		hex  string
		want bool
	}{
		{"four zeros", "0000ff" + strings.Repeat("f", 58), true},
		{"five zeros", "00000f" + strings.Repeat("f", 58), true},
		{"three zeros", "000fff" + strings.Repeat("f", 58), false},
		{"zero in second byte only", "ff00ff" + strings.Repeat("f", 58), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := hex.DecodeString(tt.hex)
			require.NoError(t, err)
			var sum [32]byte
			copy(sum[:], raw)
			assert.Equal(t, tt.want, digestMeetsDifficulty(sum))
		})
	}
}

func TestProofOfWork(t *testing.T) {
	t.Run("matches Solve", func(t *testing.T) {
		proof, err := ProofOfWork(context.Background(), GenesisProof)
		require.NoError(t, err)
		assert.Equal(t, Solve(GenesisProof), proof)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := ProofOfWork(ctx, GenesisProof)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
