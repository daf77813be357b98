package messaging

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/habitere/hbmsg/internal/logging"
)

// DefaultSyncInterval is the poll cadence used when none is configured.
const DefaultSyncInterval = 5 * time.Second

// Poller drives one refresh target on a fixed interval. It is a cancellable
// repeating task scoped to its owner's lifetime: the owning view starts it
// on mount and stops it on unmount or target change, there is no global
// timer.
//
// At most one refresh is in flight at a time; a tick that fires while the
// previous refresh has not resolved is skipped. The in-flight call is never
// duplicated and never cancelled by the next tick.
type Poller struct {
	name     string
	interval time.Duration
	refresh  func(ctx context.Context) error
	log      zerolog.Logger

	inFlight atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoller creates a poller that invokes refresh every interval. The name
// is used for logging only.
func NewPoller(name string, interval time.Duration, refresh func(ctx context.Context) error) *Poller {
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	return &Poller{
		name:     name,
		interval: interval,
		refresh:  refresh,
		log:      logging.Component("poller").With().Str("target", name).Logger(),
	}
}

// Start begins polling. The first refresh fires immediately. Calling Start
// on a running poller restarts it.
func (p *Poller) Start(ctx context.Context) {
	p.Stop()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	p.mu.Lock()
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	go p.loop(runCtx, done)
}

// Stop cancels the repeating task and waits for the loop to exit. Any
// refresh already in flight runs to completion; its result is the session's
// staleness guard's problem, not ours. Stop is idempotent.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	done := p.done
	p.cancel = nil
	p.done = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.log.Debug().Msg("previous refresh still in flight, skipping tick")
		return
	}
	go func() {
		defer p.inFlight.Store(false)
		if err := p.refresh(ctx); err != nil && ctx.Err() == nil {
			// Background failures are never fatal and never surfaced: worst
			// case is a stale view corrected on the next successful tick.
			p.log.Warn().Err(err).Msg("background refresh failed")
		}
	}()
}
