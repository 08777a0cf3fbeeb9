package p2p

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// PeerSet is the deduplicated set of peer addresses a node reconciles with.
// It only grows. Enumeration follows registration order, which is also the
// tie-break order during conflict resolution.
type PeerSet struct {
	mu    sync.RWMutex
	order []string
	known map[string]struct{}
}

func NewPeerSet() *PeerSet {
	return &PeerSet{
		known: make(map[string]struct{}),
	}
}

// NormalizeAddress reduces an address to host[:port]. Scheme, path, query and
// credentials are dropped; a bare "host:port" is accepted as is.
func NormalizeAddress(address string) (string, error) {
	raw := strings.TrimSpace(address)
	if raw == "" {
		return "", fmt.Errorf("empty peer address")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid peer address %q: %w", address, err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("invalid peer address %q: missing host", address)
	}
	return strings.ToLower(u.Host), nil
}

// Register normalizes address and adds it. It returns the normalized form and
// whether it was new.
func (ps *PeerSet) Register(address string) (string, bool, error) {
	normalized, err := NormalizeAddress(address)
	if err != nil {
		return "", false, err
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	if _, ok := ps.known[normalized]; ok {
		return normalized, false, nil
	}
	ps.known[normalized] = struct{}{}
	ps.order = append(ps.order, normalized)
	return normalized, true, nil
}

// All returns the known addresses in registration order.
func (ps *PeerSet) All() []string {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	out := make([]string, len(ps.order))
	copy(out, ps.order)
	return out
}

func (ps *PeerSet) Contains(address string) bool {
	normalized, err := NormalizeAddress(address)
	if err != nil {
		return false
	}
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	_, ok := ps.known[normalized]
	return ok
}

func (ps *PeerSet) Len() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.order)
}
