package blockchain

import (
	"context"
	"crypto/sha256"
	"strconv"
)

// cancelCheckInterval is how many attempts ProofOfWork makes between context checks.
const cancelCheckInterval = 1 << 12

// ValidProof reports whether sha256(decimal(lastProof) + decimal(proof)) has
// Difficulty leading zero hex digits.
func ValidProof(lastProof, proof int64) bool {
	var buf [40]byte
	guess := strconv.AppendInt(buf[:0], lastProof, 10)
	guess = strconv.AppendInt(guess, proof, 10)
	return digestMeetsDifficulty(sha256.Sum256(guess))
}

func digestMeetsDifficulty(sum [32]byte) bool {
	// two hex digits per byte
	for i := 0; i < Difficulty/2; i++ {
		if sum[i] != 0 {
			return false
		}
	}
	if Difficulty%2 == 1 && sum[Difficulty/2]>>4 != 0 {
		return false
	}
	return true
}

// Solve returns the smallest non-negative proof valid against lastProof.
func Solve(lastProof int64) int64 {
	proof, _ := ProofOfWork(context.Background(), lastProof)
	return proof
}

// ProofOfWork runs the same linear search as Solve but gives up with ctx.Err()
// once ctx is done.
func ProofOfWork(ctx context.Context, lastProof int64) (int64, error) {
	for proof := int64(0); ; proof++ {
		if proof%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}
		if ValidProof(lastProof, proof) {
			return proof, nil
		}
	}
}
