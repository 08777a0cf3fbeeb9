// Package metrics holds the node's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "powchain"

// Fetch failure reasons used with PeerFetchFailures.
const (
	ReasonUnreachable  = "unreachable"
	ReasonInvalidChain = "invalid_chain"
	ReasonBadLength    = "length_mismatch"
)

type Metrics struct {
	BlocksMined           prometheus.Counter
	ChainReplacements     prometheus.Counter
	ResolveRounds         prometheus.Counter
	TransactionsSubmitted prometheus.Counter
	PeerFetchFailures     *prometheus.CounterVec

	ChainLength         prometheus.Gauge
	PendingTransactions prometheus.Gauge
	Peers               prometheus.Gauge

	MiningDuration prometheus.Histogram
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		BlocksMined: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_mined_total",
			Help:      "Blocks sealed by this node.",
		}),
		ChainReplacements: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chain_replacements_total",
			Help:      "Times the local chain was replaced by a longer peer chain.",
		}),
		ResolveRounds: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolve_rounds_total",
			Help:      "Conflict resolution rounds run.",
		}),
		TransactionsSubmitted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_submitted_total",
			Help:      "Transactions admitted to the pending pool.",
		}),
		PeerFetchFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peer_fetch_failures_total",
			Help:      "Peer chains skipped during conflict resolution.",
		}, []string{"reason"}),
		ChainLength: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chain_length",
			Help:      "Number of blocks in the local chain.",
		}),
		PendingTransactions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_transactions",
			Help:      "Transactions waiting for the next block.",
		}),
		Peers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peers",
			Help:      "Known peer addresses.",
		}),
		MiningDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "mining_duration_seconds",
			Help:      "Wall-clock time spent searching for a proof.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
	}
}
