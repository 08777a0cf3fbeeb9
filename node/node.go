package node

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"powchain/api"
	"powchain/blockchain"
	"powchain/blockchain/store"
	"powchain/config"
	"powchain/consensus"
	"powchain/ledger"
	"powchain/logging"
	"powchain/metrics"
	"powchain/mining"
	"powchain/p2p"
)

// FullNode wires the ledger, peer set, consensus and mining together and
// serves them over HTTP.
type FullNode struct {
	config *config.Config
	logger zerolog.Logger

	registry *prometheus.Registry
	metrics  *metrics.Metrics

	store      store.ChainStore
	ledger     *ledger.Ledger
	peers      *p2p.PeerSet
	resolver   *consensus.Resolver
	reconciler *consensus.Reconciler
	miner      *mining.Miner
	server     *api.Server

	// serializes manual resolve requests with each other
	resolveMu sync.Mutex

	serveErr chan error
}

type Option func(*options)

type options struct {
	fetcher p2p.ChainFetcher
	store   store.ChainStore
}

// WithFetcher replaces the HTTP peer chain fetcher.
func WithFetcher(f p2p.ChainFetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithStore replaces the store selected by config.
func WithStore(s store.ChainStore) Option {
	return func(o *options) { o.store = s }
}

// NewFullNode builds every component but starts nothing.
func NewFullNode(cfg *config.Config, logger zerolog.Logger, opts ...Option) (*FullNode, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger = logger.With().Str("node", cfg.NodeID).Logger()
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	chainStore := o.store
	if chainStore == nil {
		var err error
		chainStore, err = openStore(cfg, logger)
		if err != nil {
			return nil, err
		}
	}

	l, err := ledger.New(
		ledger.WithStore(chainStore),
		ledger.WithLogger(logging.Module(logger, "ledger")),
		ledger.WithMetrics(m),
	)
	if err != nil {
		_ = chainStore.Close()
		return nil, fmt.Errorf("create ledger: %w", err)
	}

	peers := p2p.NewPeerSet()
	for _, addr := range cfg.Peers {
		if _, _, err := peers.Register(addr); err != nil {
			_ = chainStore.Close()
			return nil, fmt.Errorf("seed peer: %w", err)
		}
	}
	m.Peers.Set(float64(peers.Len()))

	fetcher := o.fetcher
	if fetcher == nil {
		fetcher = p2p.NewHTTPFetcher(cfg.FetchTimeout, logging.Module(logger, "fetcher"))
	}

	resolver, err := consensus.NewResolver(l, peers, fetcher, consensus.ResolverConfig{
		MaxConcurrentFetches: cfg.MaxConcurrentFetches,
		RejectedCacheSize:    cfg.RejectedCacheSize,
		Logger:               logging.Module(logger, "consensus"),
		Metrics:              m,
	})
	if err != nil {
		_ = chainStore.Close()
		return nil, err
	}

	n := &FullNode{
		config:     cfg,
		logger:     logger,
		registry:   registry,
		metrics:    m,
		store:      chainStore,
		ledger:     l,
		peers:      peers,
		resolver:   resolver,
		reconciler: consensus.NewReconciler(resolver, cfg.ResolveInterval, logging.Module(logger, "reconciler")),
		miner:      mining.NewMiner(l, cfg.NodeID, cfg.MiningReward, logging.Module(logger, "miner"), m),
	}
	n.server = api.NewServer(n, registry, logging.Module(logger, "api"))
	return n, nil
}

func openStore(cfg *config.Config, logger zerolog.Logger) (store.ChainStore, error) {
	switch cfg.Storage {
	case config.MemoryStorage, "":
		return store.NewMemoryChainStore(), nil
	case config.BadgerStorage:
		s, err := store.OpenBadgerChainStore(cfg.DataDir, logger)
		if err != nil {
			return nil, fmt.Errorf("open chain store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Storage)
	}
}

// Start binds the HTTP listener, then runs the API server and the
// reconciliation loop in the background.
func (n *FullNode) Start(ctx context.Context) error {
	if err := n.server.Listen(n.config.ListenAddress); err != nil {
		return err
	}

	n.serveErr = make(chan error, 1)
	go func() {
		n.serveErr <- n.server.Serve()
	}()

	n.reconciler.Start(ctx)

	n.logger.Info().Str("addr", n.server.Addr()).Int("peers", n.peers.Len()).Msg("Full node started")
	return nil
}

// Done reports the API server's exit. It is nil before Start.
func (n *FullNode) Done() <-chan error {
	return n.serveErr
}

// Addr returns the bound HTTP address.
func (n *FullNode) Addr() string {
	return n.server.Addr()
}

// Stop gracefully shuts down the FullNode
func (n *FullNode) Stop(ctx context.Context) error {
	n.logger.Info().Msg("Stopping full node")

	n.reconciler.Stop()

	var errs []error
	if err := n.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown api: %w", err))
	}
	if err := n.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	return errors.Join(errs...)
}

func (n *FullNode) NodeID() string {
	return n.config.NodeID
}

func (n *FullNode) Ledger() *ledger.Ledger {
	return n.ledger
}

// SubmitTransaction queues a transaction and returns the index of the block
// that will include it.
func (n *FullNode) SubmitTransaction(sender, recipient string, amount float64) int64 {
	return n.ledger.NewTransaction(sender, recipient, amount)
}

func (n *FullNode) Mine(ctx context.Context) (blockchain.Block, error) {
	return n.miner.Mine(ctx)
}

func (n *FullNode) Chain() (blockchain.Chain, int) {
	return n.ledger.Snapshot()
}

func (n *FullNode) Pending() []blockchain.Transaction {
	return n.ledger.Pending()
}

// RegisterPeers adds every address or none: a single invalid address rejects
// the whole request. It returns all known peers.
func (n *FullNode) RegisterPeers(addresses []string) ([]string, error) {
	var bad []string
	for _, addr := range addresses {
		if _, err := p2p.NormalizeAddress(addr); err != nil {
			bad = append(bad, fmt.Sprintf("%q", addr))
		}
	}
	if len(bad) > 0 {
		return nil, fmt.Errorf("invalid peer addresses: %s", strings.Join(bad, ", "))
	}

	for _, addr := range addresses {
		normalized, added, err := n.peers.Register(addr)
		if err != nil {
			return nil, err
		}
		if added {
			n.logger.Info().Str("peer", normalized).Msg("Registered peer")
		}
	}
	n.metrics.Peers.Set(float64(n.peers.Len()))
	return n.peers.All(), nil
}

func (n *FullNode) Peers() []string {
	return n.peers.All()
}

// Resolve runs one conflict resolution round immediately and returns the
// resulting chain.
func (n *FullNode) Resolve(ctx context.Context) (bool, blockchain.Chain) {
	n.resolveMu.Lock()
	replaced := n.resolver.Resolve(ctx)
	n.resolveMu.Unlock()

	chain, _ := n.ledger.Snapshot()
	return replaced, chain
}
