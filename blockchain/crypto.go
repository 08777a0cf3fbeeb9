package blockchain

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// canonicalBlock encodes a block as JSON with lexicographically sorted keys.
// encoding/json sorts map keys and formats floats with the shortest
// round-trip representation, so the output does not depend on platform or locale.
func canonicalBlock(block *Block) ([]byte, error) {
	txs := make([]map[string]interface{}, 0, len(block.Transactions))
	for _, tx := range block.Transactions {
		txs = append(txs, map[string]interface{}{
			"amount":    tx.Amount,
			"recipient": tx.Recipient,
			"sender":    tx.Sender,
		})
	}

	fields := map[string]interface{}{
		"index":         block.Index,
		"previous_hash": block.PreviousHash,
		"proof":         block.Proof,
		"timestamp":     block.Timestamp,
		"transactions":  txs,
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(fields); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// HashBlock returns the hex SHA-256 digest of the block's canonical encoding.
// An empty string is returned only for blocks that cannot be encoded
// (non-finite floats), which never link to anything.
func HashBlock(block *Block) string {
	data, err := canonicalBlock(block)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
