package blockchain

const (
	// Difficulty is the number of leading hex zeros a proof digest must carry.
	Difficulty = 4

	GenesisIndex        = 1
	GenesisProof  int64 = 100
	GenesisPrevHash     = "1"

	// RewardSender marks a transaction as newly minted by the sealing node.
	RewardSender = "0"
)

type Transaction struct {
	Sender    string  `json:"sender"`
	Recipient string  `json:"recipient"`
	Amount    float64 `json:"amount"`
}

type Block struct {
	Index        int64         `json:"index"`
	Timestamp    float64       `json:"timestamp"`
	Transactions []Transaction `json:"transactions"`
	Proof        int64         `json:"proof"`
	PreviousHash string        `json:"previous_hash"`
}

// Chain is an ordered sequence of blocks from genesis to head.
type Chain []Block

// Head returns the last block. The caller guarantees the chain is non-empty.
func (c Chain) Head() Block {
	return c[len(c)-1]
}

// Clone copies the chain including every block's transaction list.
func (c Chain) Clone() Chain {
	if c == nil {
		return nil
	}
	out := make(Chain, len(c))
	for i, b := range c {
		out[i] = b.Clone()
	}
	return out
}

func (b Block) Clone() Block {
	txs := make([]Transaction, len(b.Transactions))
	copy(txs, b.Transactions)
	b.Transactions = txs
	return b
}
