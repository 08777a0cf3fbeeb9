package consensus

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"powchain/blockchain"
	"powchain/ledger"
	"powchain/metrics"
	"powchain/mocks"
	"powchain/p2p"
)

type resolverFixture struct {
	ledger   *ledger.Ledger
	peers    *p2p.PeerSet
	fetcher  *mocks.StaticFetcher
	metrics  *metrics.Metrics
	resolver *Resolver
}

func newResolverFixture(t *testing.T, localLength int, peers ...string) *resolverFixture {
	t.Helper()

	s := newSeededStore(t, mocks.BuildChain(localLength, "local"))
	m := metrics.New(prometheus.NewRegistry())
	l, err := ledger.New(ledger.WithStore(s), ledger.WithMetrics(m))
	require.NoError(t, err)

	ps := p2p.NewPeerSet()
	for _, p := range peers {
		_, _, err := ps.Register(p)
		require.NoError(t, err)
	}

	f := mocks.NewStaticFetcher()
	r, err := NewResolver(l, ps, f, ResolverConfig{Logger: zerolog.Nop(), Metrics: m, MaxConcurrentFetches: 2})
	require.NoError(t, err)

	return &resolverFixture{ledger: l, peers: ps, fetcher: f, metrics: m, resolver: r}
}

func (fx *resolverFixture) chain() blockchain.Chain {
	c, _ := fx.ledger.Snapshot()
	return c
}

func TestResolveAdoptsLongestValidChain(t *testing.T) {
	fx := newResolverFixture(t, 1, "a:5000", "b:5000")
	chainA := mocks.BuildChain(3, "a")
	fx.fetcher.Serve("a:5000", chainA)
	fx.fetcher.Serve("b:5000", mocks.BreakLink(mocks.BuildChain(5, "b"), 3))

	assert.True(t, fx.resolver.Resolve(context.Background()))
	assert.Equal(t, chainA, fx.chain())
	assert.Equal(t, float64(1), testutil.ToFloat64(fx.metrics.PeerFetchFailures.WithLabelValues(metrics.ReasonInvalidChain)))
	assert.Equal(t, float64(3), testutil.ToFloat64(fx.metrics.ChainLength))
}

func TestResolveKeepsLocalChain(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *mocks.StaticFetcher)
	}{
		{
			name: "shorter and equal peers",
			setup: func(f *mocks.StaticFetcher) {
				f.Serve("a:5000", mocks.BuildChain(2, "a"))
				f.Serve("b:5000", mocks.BuildChain(3, "b"))
			},
		},
		{
			name:  "all unreachable",
			setup: func(f *mocks.StaticFetcher) {},
		},
		{
			name: "longer but invalid proof",
			setup: func(f *mocks.StaticFetcher) {
				f.Serve("a:5000", mocks.BreakProof(mocks.BuildChain(6, "a"), 1))
			},
		},
		{
			name: "advertised length larger than chain",
			setup: func(f *mocks.StaticFetcher) {
				f.ServeResponse("a:5000", p2p.ChainResponse{Chain: mocks.BuildChain(3, "a"), Length: 9})
			},
		},
		{
			name: "advertised length smaller than chain",
			setup: func(f *mocks.StaticFetcher) {
				f.ServeResponse("a:5000", p2p.ChainResponse{Chain: mocks.BuildChain(5, "a"), Length: 4})
			},
		},
		{
			name: "fetch panics",
			setup: func(f *mocks.StaticFetcher) {
				f.Panic("a:5000")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newResolverFixture(t, 3, "a:5000", "b:5000")
			before := fx.chain()
			tt.setup(fx.fetcher)

			assert.False(t, fx.resolver.Resolve(context.Background()))
			assert.Equal(t, before, fx.chain())
		})
	}
}

func TestResolveSkipsUnreachablePeers(t *testing.T) {
	fx := newResolverFixture(t, 1, "down:5000", "up:5000")
	fx.fetcher.Serve("up:5000", mocks.BuildChain(2, "up"))

	require.True(t, fx.resolver.Resolve(context.Background()))
	assert.Equal(t, 2, fx.ledger.Length())
	assert.Equal(t, 1, fx.fetcher.Calls("down:5000"))
	assert.Equal(t, float64(1), testutil.ToFloat64(fx.metrics.PeerFetchFailures.WithLabelValues(metrics.ReasonUnreachable)))
}

func TestResolveTieGoesToFirstRegistered(t *testing.T) {
	fx := newResolverFixture(t, 1, "first:5000", "second:5000", "third:5000")
	first := mocks.BuildChain(4, "first")
	fx.fetcher.Serve("first:5000", first)
	fx.fetcher.Serve("second:5000", mocks.BuildChain(4, "second"))
	fx.fetcher.Serve("third:5000", mocks.BuildChain(3, "third"))

	require.True(t, fx.resolver.Resolve(context.Background()))
	assert.Equal(t, first, fx.chain())
}

func TestResolveWithoutPeers(t *testing.T) {
	fx := newResolverFixture(t, 1)
	assert.False(t, fx.resolver.Resolve(context.Background()))
	assert.Equal(t, float64(1), testutil.ToFloat64(fx.metrics.ResolveRounds))
}

func TestResolveRemembersRejectedChains(t *testing.T) {
	fx := newResolverFixture(t, 1, "bad:5000")
	bad := mocks.BreakLink(mocks.BuildChain(4, "bad"), 2)
	fx.fetcher.Serve("bad:5000", bad)

	assert.False(t, fx.resolver.Resolve(context.Background()))
	assert.False(t, fx.resolver.Resolve(context.Background()))

	assert.Equal(t, 1, fx.resolver.rejected.Len())
	assert.True(t, fx.resolver.rejected.Contains(chainFingerprint(bad)))
	assert.Equal(t, float64(2), testutil.ToFloat64(fx.metrics.PeerFetchFailures.WithLabelValues(metrics.ReasonInvalidChain)))

	// the same peer later serving a good chain is judged afresh
	fx.fetcher.Serve("bad:5000", mocks.BuildChain(4, "bad"))
	assert.True(t, fx.resolver.Resolve(context.Background()))
}

func TestResolveIsIdempotent(t *testing.T) {
	fx := newResolverFixture(t, 1, "a:5000")
	fx.fetcher.Serve("a:5000", mocks.BuildChain(3, "a"))

	assert.True(t, fx.resolver.Resolve(context.Background()))
	assert.False(t, fx.resolver.Resolve(context.Background()), "second round finds nothing longer")
}
