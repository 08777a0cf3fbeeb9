package consensus

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const DefaultResolveInterval = 5 * time.Second

// ChainResolver is what the reconciliation loop drives.
type ChainResolver interface {
	Resolve(ctx context.Context) bool
}

// Reconciler calls Resolve on a fixed interval until stopped. A failing or
// panicking round is logged and the loop carries on.
type Reconciler struct {
	resolver ChainResolver
	interval time.Duration
	logger   zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewReconciler(resolver ChainResolver, interval time.Duration, logger zerolog.Logger) *Reconciler {
	if interval <= 0 {
		interval = DefaultResolveInterval
	}
	return &Reconciler{
		resolver: resolver,
		interval: interval,
		logger:   logger,
	}
}

// Start launches the loop in the background. Calling Start on a running
// reconciler does nothing.
func (r *Reconciler) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		return
	}

	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go r.run(ctx, r.done)
}

// Stop signals the loop and waits for the current round to finish.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (r *Reconciler) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	r.logger.Info().Dur("interval", r.interval).Msg("Reconciliation loop started")
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("Reconciliation loop stopped")
			return
		case <-ticker.C:
			r.round(ctx)
		}
	}
}

func (r *Reconciler) round(ctx context.Context) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error().Interface("panic", p).Msg("Resolve round panicked")
		}
	}()

	if r.resolver.Resolve(ctx) {
		r.logger.Debug().Msg("Resolve round replaced the local chain")
	}
}
