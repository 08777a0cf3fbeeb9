package consensus

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"powchain/blockchain"
	"powchain/ledger"
	"powchain/metrics"
	"powchain/p2p"
)

const (
	DefaultMaxConcurrentFetches = 8
	DefaultRejectedCacheSize    = 128
)

type ResolverConfig struct {
	MaxConcurrentFetches int
	// RejectedCacheSize bounds how many known-invalid peer chains are
	// remembered so they are not validated again every round.
	RejectedCacheSize int
	Logger            zerolog.Logger
	Metrics           *metrics.Metrics
}

// Resolver implements the longest-valid-chain rule against the known peers.
type Resolver struct {
	ledger   *ledger.Ledger
	peers    *p2p.PeerSet
	fetcher  p2p.ChainFetcher
	rejected *lru.Cache

	maxConcurrent int
	logger        zerolog.Logger
	metrics       *metrics.Metrics
}

func NewResolver(l *ledger.Ledger, peers *p2p.PeerSet, fetcher p2p.ChainFetcher, cfg ResolverConfig) (*Resolver, error) {
	if cfg.MaxConcurrentFetches <= 0 {
		cfg.MaxConcurrentFetches = DefaultMaxConcurrentFetches
	}
	if cfg.RejectedCacheSize <= 0 {
		cfg.RejectedCacheSize = DefaultRejectedCacheSize
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New(nil)
	}

	rejected, err := lru.New(cfg.RejectedCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create rejected chain cache: %w", err)
	}

	return &Resolver{
		ledger:        l,
		peers:         peers,
		fetcher:       fetcher,
		rejected:      rejected,
		maxConcurrent: cfg.MaxConcurrentFetches,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
	}, nil
}

// Resolve fetches every peer's chain and adopts the longest one that is longer
// than the local chain and structurally valid. Ties go to the peer registered
// first. Peer failures are skipped; the result only says whether the local
// chain was replaced.
func (r *Resolver) Resolve(ctx context.Context) bool {
	r.metrics.ResolveRounds.Inc()

	peers := r.peers.All()
	if len(peers) == 0 {
		return false
	}
	localLength := r.ledger.Length()

	responses := r.fetchAll(ctx, peers)

	var (
		best     blockchain.Chain
		bestPeer string
		longest  = localLength
	)
	for i, resp := range responses {
		if resp == nil {
			continue
		}
		log := r.logger.With().Str("peer", peers[i]).Int("length", resp.Length).Logger()

		if !resp.Consistent() {
			log.Debug().Int("blocks", len(resp.Chain)).Msg("Peer length does not match its chain")
			r.metrics.PeerFetchFailures.WithLabelValues(metrics.ReasonBadLength).Inc()
			continue
		}
		if resp.Length <= longest {
			continue
		}

		fingerprint := chainFingerprint(resp.Chain)
		if r.rejected.Contains(fingerprint) {
			log.Debug().Msg("Peer chain already known to be invalid")
			r.metrics.PeerFetchFailures.WithLabelValues(metrics.ReasonInvalidChain).Inc()
			continue
		}
		if err := blockchain.ValidateChain(resp.Chain); err != nil {
			log.Warn().Err(err).Msg("Rejecting invalid peer chain")
			r.rejected.Add(fingerprint, struct{}{})
			r.metrics.PeerFetchFailures.WithLabelValues(metrics.ReasonInvalidChain).Inc()
			continue
		}

		longest = resp.Length
		best = resp.Chain
		bestPeer = peers[i]
	}

	if best == nil {
		return false
	}

	if err := r.ledger.ReplaceIfLonger(best); err != nil {
		if errors.Is(err, ledger.ErrNotLonger) {
			r.logger.Debug().Str("peer", bestPeer).Msg("Local chain grew past candidate before adoption")
		} else {
			r.logger.Error().Err(err).Str("peer", bestPeer).Msg("Failed to adopt peer chain")
		}
		return false
	}

	r.logger.Info().Str("peer", bestPeer).Int("old_length", localLength).Int("new_length", len(best)).Msg("Adopted longer peer chain")
	return true
}

// fetchAll queries peers concurrently. The result is indexed like peers, with
// nil for any peer that could not be fetched.
func (r *Resolver) fetchAll(ctx context.Context, peers []string) []*p2p.ChainResponse {
	responses := make([]*p2p.ChainResponse, len(peers))

	var g errgroup.Group
	g.SetLimit(r.maxConcurrent)
	for i, addr := range peers {
		i, addr := i, addr
		g.Go(func() error {
			defer func() {
				if p := recover(); p != nil {
					r.logger.Error().Str("peer", addr).Interface("panic", p).Msg("Chain fetch panicked")
					responses[i] = nil
				}
			}()

			resp, ok := r.fetcher.FetchChain(ctx, addr)
			if !ok {
				r.metrics.PeerFetchFailures.WithLabelValues(metrics.ReasonUnreachable).Inc()
				return nil
			}
			responses[i] = &resp
			return nil
		})
	}
	_ = g.Wait()

	return responses
}

// chainFingerprint digests every block so a cached rejection only matches an
// identical chain.
func chainFingerprint(chain blockchain.Chain) string {
	h := sha256.New()
	for i := range chain {
		h.Write([]byte(blockchain.HashBlock(&chain[i])))
	}
	return hex.EncodeToString(h.Sum(nil))
}
