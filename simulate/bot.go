// Package simulate drives local nodes with synthetic traffic: bots submit
// random transactions and mine at random intervals, and a cluster wires a
// handful of in-process nodes together as peers.
package simulate

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"powchain/blockchain"
)

// Node is the part of a full node a bot drives.
type Node interface {
	NodeID() string
	SubmitTransaction(sender, recipient string, amount float64) int64
	Mine(ctx context.Context) (blockchain.Block, error)
}

type BotConfig struct {
	// Each round starts after a random delay in [MinInterval, MaxInterval].
	MinInterval time.Duration
	MaxInterval time.Duration

	TransactionsPerRound int
	MaxAmount            float64

	// Recipients to pay. The bot pays itself when empty.
	Recipients []string
}

func DefaultBotConfig() BotConfig {
	return BotConfig{
		MinInterval:          10 * time.Second,
		MaxInterval:          2 * time.Minute,
		TransactionsPerRound: 3,
		MaxAmount:            100,
	}
}

type Bot struct {
	node   Node
	cfg    BotConfig
	rng    *rand.Rand
	logger zerolog.Logger
}

// amounts are drawn in whole cents
const minAmount = 0.01

func NewBot(node Node, cfg BotConfig, seed int64, logger zerolog.Logger) (*Bot, error) {
	if node == nil {
		return nil, errors.New("bot needs a node")
	}
	if cfg.MinInterval <= 0 || cfg.MaxInterval < cfg.MinInterval {
		return nil, fmt.Errorf("invalid bot interval [%s, %s]", cfg.MinInterval, cfg.MaxInterval)
	}
	if cfg.MaxAmount <= 0 {
		cfg.MaxAmount = 1
	}
	if cfg.MaxAmount < minAmount {
		cfg.MaxAmount = minAmount
	}
	return &Bot{
		node:   node,
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(seed)),
		logger: logger.With().Str("bot", node.NodeID()).Logger(),
	}, nil
}

// Round submits the configured number of transactions and mines them.
func (b *Bot) Round(ctx context.Context) (blockchain.Block, error) {
	self := b.node.NodeID()
	for i := 0; i < b.cfg.TransactionsPerRound; i++ {
		recipient := self
		if len(b.cfg.Recipients) > 0 {
			recipient = b.cfg.Recipients[b.rng.Intn(len(b.cfg.Recipients))]
		}
		amount := float64(1+b.rng.Int63n(int64(b.cfg.MaxAmount*100))) / 100
		b.node.SubmitTransaction(self, recipient, amount)
	}

	block, err := b.node.Mine(ctx)
	if err != nil {
		return blockchain.Block{}, err
	}
	b.logger.Info().Int64("index", block.Index).Int("transactions", len(block.Transactions)).Msg("Bot mined block")
	return block, nil
}

func (b *Bot) nextDelay() time.Duration {
	span := b.cfg.MaxInterval - b.cfg.MinInterval
	if span <= 0 {
		return b.cfg.MinInterval
	}
	return b.cfg.MinInterval + time.Duration(b.rng.Int63n(int64(span)+1))
}

// Run plays rounds until ctx is done. Errors from a round are logged and the
// bot keeps going.
func (b *Bot) Run(ctx context.Context) {
	for {
		delay := b.nextDelay()
		b.logger.Debug().Dur("delay", delay).Msg("Bot waiting for next round")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if _, err := b.Round(ctx); err != nil && ctx.Err() == nil {
			b.logger.Warn().Err(err).Msg("Bot round failed")
		}
	}
}
