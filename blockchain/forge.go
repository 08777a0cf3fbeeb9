package blockchain

import "time"

type BlockCreationParams struct {
	Index        int64
	Timestamp    float64
	Transactions []Transaction
	Proof        int64
	PreviousHash string
}

// NewBlock assembles a block. The transaction list is copied so later changes
// to the caller's slice cannot reach a sealed block.
func NewBlock(params BlockCreationParams) Block {
	txs := make([]Transaction, len(params.Transactions))
	copy(txs, params.Transactions)

	return Block{
		Index:        params.Index,
		Timestamp:    params.Timestamp,
		Transactions: txs,
		Proof:        params.Proof,
		PreviousHash: params.PreviousHash,
	}
}

// Timestamp converts a wall-clock time into block timestamp seconds.
func Timestamp(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// RewardTransaction is the coinbase entry a miner adds before sealing.
func RewardTransaction(recipient string, amount float64) Transaction {
	return Transaction{
		Sender:    RewardSender,
		Recipient: recipient,
		Amount:    amount,
	}
}
