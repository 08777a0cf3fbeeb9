package blockchain

import (
	"fmt"
)

// ErrBrokenLink is returned when a block's previous_hash does not match the
// digest of the block before it.
type ErrBrokenLink struct {
	Index    int64
	Expected string
	Got      string
}

func (e ErrBrokenLink) Error() string {
	return fmt.Sprintf("block %d: previous hash %.16s does not match parent digest %.16s", e.Index, e.Got, e.Expected)
}

// ErrInvalidProof is returned when a block's proof does not solve the puzzle
// posed by its parent's proof.
type ErrInvalidProof struct {
	Index     int64
	LastProof int64
	Proof     int64
}

func (e ErrInvalidProof) Error() string {
	return fmt.Sprintf("block %d: proof %d is not valid against parent proof %d", e.Index, e.Proof, e.LastProof)
}

// ErrIndexMismatch is returned when a block's index differs from its position.
type ErrIndexMismatch struct {
	Position int
	Index    int64
}

func (e ErrIndexMismatch) Error() string {
	return fmt.Sprintf("block at position %d carries index %d", e.Position, e.Index)
}

// ValidateChain walks the chain from the second block onward and checks that
// every block links to its parent's digest and carries a proof valid against
// the parent's proof. The genesis successor is verified too. Every index must
// equal its 1-based position. Chains of length zero or one are valid.
func ValidateChain(chain []Block) error {
	if len(chain) > 1 && chain[0].Index != GenesisIndex {
		return ErrIndexMismatch{Position: 1, Index: chain[0].Index}
	}
	for i := 1; i < len(chain); i++ {
		prev := &chain[i-1]
		cur := &chain[i]

		if cur.Index != int64(i+1) {
			return ErrIndexMismatch{Position: i + 1, Index: cur.Index}
		}

		digest := HashBlock(prev)
		if digest == "" || cur.PreviousHash != digest {
			return ErrBrokenLink{Index: cur.Index, Expected: digest, Got: cur.PreviousHash}
		}

		if !ValidProof(prev.Proof, cur.Proof) {
			return ErrInvalidProof{Index: cur.Index, LastProof: prev.Proof, Proof: cur.Proof}
		}
	}
	return nil
}

// IsValidChain is ValidateChain as a predicate.
func IsValidChain(chain []Block) bool {
	return ValidateChain(chain) == nil
}
