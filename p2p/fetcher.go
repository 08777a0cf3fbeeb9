package p2p

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultFetchTimeout = 3 * time.Second
	maxChainBodyBytes   = 64 << 20
)

// ChainFetcher retrieves a peer's chain. Any failure (network, status, body)
// is reported as ok == false rather than an error; one bad peer is routine.
type ChainFetcher interface {
	FetchChain(ctx context.Context, address string) (resp ChainResponse, ok bool)
}

// HTTPFetcher fetches http://<address>/chain.
type HTTPFetcher struct {
	client  *http.Client
	timeout time.Duration
	logger  zerolog.Logger
}

func NewHTTPFetcher(timeout time.Duration, logger zerolog.Logger) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &HTTPFetcher{
		client:  &http.Client{},
		timeout: timeout,
		logger:  logger,
	}
}

func (f *HTTPFetcher) FetchChain(ctx context.Context, address string) (ChainResponse, bool) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	log := f.logger.With().Str("peer", address).Logger()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+address+ChainPath, nil)
	if err != nil {
		log.Debug().Err(err).Msg("Cannot build chain request")
		return ChainResponse{}, false
	}
	req.Header.Set("Accept", "application/json")

	res, err := f.client.Do(req)
	if err != nil {
		log.Debug().Err(err).Msg("Peer unreachable")
		return ChainResponse{}, false
	}
	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		log.Debug().Int("status", res.StatusCode).Msg("Peer returned non-success status")
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4096))
		return ChainResponse{}, false
	}

	var body ChainResponse
	if err := json.NewDecoder(io.LimitReader(res.Body, maxChainBodyBytes)).Decode(&body); err != nil {
		log.Debug().Err(err).Msg("Cannot decode peer chain")
		return ChainResponse{}, false
	}
	return body, true
}
