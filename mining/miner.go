package mining

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"powchain/blockchain"
	"powchain/ledger"
	"powchain/metrics"
)

const DefaultReward = 1

// Miner seals blocks on a ledger and pays itself a reward for each one.
type Miner struct {
	ledger  *ledger.Ledger
	nodeID  string
	reward  float64
	logger  zerolog.Logger
	metrics *metrics.Metrics

	// called with the head each proof search starts from; tests only
	onSearch func(ledger.Head)
}

func NewMiner(l *ledger.Ledger, nodeID string, reward float64, logger zerolog.Logger, m *metrics.Metrics) *Miner {
	if m == nil {
		m = metrics.New(nil)
	}
	return &Miner{
		ledger:  l,
		nodeID:  nodeID,
		reward:  reward,
		logger:  logger,
		metrics: m,
	}
}

// Mine searches for a proof on the current head without holding the ledger
// lock, then seals a block with the pending transactions and the reward. If
// the chain moves while searching (a seal or an adopted peer chain) the
// search restarts on the new head. Mine only fails when ctx ends or the
// ledger cannot persist the block.
func (m *Miner) Mine(ctx context.Context) (blockchain.Block, error) {
	for {
		head := m.ledger.Head()

		start := time.Now()
		proof, err := m.search(ctx, head)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return blockchain.Block{}, ctxErr
			}
			m.logger.Debug().Int64("head", head.Block.Index).Msg("Chain moved during proof search, restarting")
			continue
		}
		m.metrics.MiningDuration.Observe(time.Since(start).Seconds())

		previousHash := blockchain.HashBlock(&head.Block)
		reward := blockchain.RewardTransaction(m.nodeID, m.reward)

		block, err := m.ledger.SealOnto(head.Version, proof, previousHash, reward)
		if errors.Is(err, ledger.ErrStaleHead) {
			m.logger.Debug().Int64("head", head.Block.Index).Msg("Head went stale before sealing, restarting")
			continue
		}
		if err != nil {
			return blockchain.Block{}, err
		}

		m.metrics.BlocksMined.Inc()
		m.logger.Info().Int64("index", block.Index).Int64("proof", proof).Msg("New block forged")
		return block, nil
	}
}

// search runs proof-of-work on head, cancelled early if head goes stale.
func (m *Miner) search(ctx context.Context, head ledger.Head) (int64, error) {
	if m.onSearch != nil {
		m.onSearch(head)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-head.Changed:
			cancel()
		case <-ctx.Done():
		}
	}()

	return blockchain.ProofOfWork(ctx, head.Block.Proof)
}
