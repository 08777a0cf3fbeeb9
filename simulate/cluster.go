package simulate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"powchain/config"
	"powchain/node"
)

type ClusterConfig struct {
	Size int
	// BasePort is the first node's port; node i listens on BasePort+i. Zero
	// picks free ports.
	BasePort int
	Host     string

	// Node is the template every member starts from. NodeID and
	// ListenAddress are overwritten per member.
	Node config.Config
	Bot  BotConfig
}

// Cluster is a set of in-process nodes that all know each other, each driven
// by its own bot.
type Cluster struct {
	Nodes []*node.FullNode

	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger zerolog.Logger
}

// StartCluster starts every node, registers all of them with each other and
// launches the bots.
func StartCluster(ctx context.Context, cfg ClusterConfig, logger zerolog.Logger) (*Cluster, error) {
	if cfg.Size < 1 {
		return nil, fmt.Errorf("cluster size must be at least 1, got %d", cfg.Size)
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}

	c := &Cluster{logger: logger}
	for i := 0; i < cfg.Size; i++ {
		nodeCfg := cfg.Node
		nodeCfg.NodeID = fmt.Sprintf("node-%d", i+1)
		nodeCfg.Peers = nil
		port := 0
		if cfg.BasePort > 0 {
			port = cfg.BasePort + i
		}
		nodeCfg.ListenAddress = fmt.Sprintf("%s:%d", cfg.Host, port)

		n, err := node.NewFullNode(&nodeCfg, logger)
		if err != nil {
			_ = c.stopNodes(ctx)
			return nil, fmt.Errorf("create %s: %w", nodeCfg.NodeID, err)
		}
		if err := n.Start(ctx); err != nil {
			_ = c.stopNodes(ctx)
			return nil, fmt.Errorf("start %s: %w", nodeCfg.NodeID, err)
		}
		c.Nodes = append(c.Nodes, n)
	}

	ids := make([]string, len(c.Nodes))
	for i, n := range c.Nodes {
		ids[i] = n.NodeID()
	}
	for _, n := range c.Nodes {
		var others []string
		for _, m := range c.Nodes {
			if m != n {
				others = append(others, m.Addr())
			}
		}
		if len(others) == 0 {
			continue
		}
		if _, err := n.RegisterPeers(others); err != nil {
			_ = c.stopNodes(ctx)
			return nil, err
		}
	}

	botCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	for i, n := range c.Nodes {
		botCfg := cfg.Bot
		botCfg.Recipients = ids
		bot, err := NewBot(n, botCfg, int64(i+1), logger)
		if err != nil {
			cancel()
			_ = c.stopNodes(ctx)
			return nil, err
		}
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			bot.Run(botCtx)
		}()
	}

	logger.Info().Int("size", len(c.Nodes)).Msg("Cluster started")
	return c, nil
}

// StopBots halts the bots and waits for any in-flight round.
func (c *Cluster) StopBots() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

// Stop halts the bots, then every node.
func (c *Cluster) Stop(ctx context.Context) error {
	c.StopBots()
	return c.stopNodes(ctx)
}

func (c *Cluster) stopNodes(ctx context.Context) error {
	var errs []error
	for _, n := range c.Nodes {
		if err := n.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", n.NodeID(), err))
		}
	}
	return errors.Join(errs...)
}
