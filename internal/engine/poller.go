package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/commerceday/vageesha-stock-exchange-sub000/internal/domain"
)

// Fetcher is the gateway as seen by a polling loop.
type Fetcher interface {
	FetchQuotes(ctx context.Context, symbols []string) ([]domain.QuoteResult, bool, error)
}

// Publisher receives every snapshot a poller produces.
type Publisher interface {
	Publish(ctx context.Context, snap *domain.Snapshot) error
}

// AlertDispatcher is notified when the gateway rejects the loop's
// credentials, which points at configuration rather than a transient fault.
type AlertDispatcher interface {
	DispatchUnauthorized(loop string, at time.Time)
}

// Poller drives one Reconciler on a fixed interval. Ticks never overlap:
// a tick that comes due while the previous one is still fetching is
// skipped, and results that arrive after Stop are discarded.
type Poller struct {
	name       string
	interval   time.Duration
	fetcher    Fetcher
	rec        *Reconciler
	publishers []Publisher
	alerts     AlertDispatcher
	logger     *slog.Logger
	now        func() time.Time

	latest   atomic.Pointer[domain.Snapshot]
	inFlight atomic.Bool
	skipped  atomic.Int64

	mu           sync.Mutex // guards cancel, stopped, and every Apply
	cancel       context.CancelFunc
	done         chan struct{}
	stopped      bool
	unauthorized bool
}

// NewPoller creates a poller. The reconciler's current state is published
// immediately so readers never see a nil snapshot.
func NewPoller(
	name string,
	interval time.Duration,
	fetcher Fetcher,
	rec *Reconciler,
	logger *slog.Logger,
	publishers ...Publisher,
) *Poller {
	p := &Poller{
		name:       name,
		interval:   interval,
		fetcher:    fetcher,
		rec:        rec,
		publishers: publishers,
		logger:     logger.With(slog.String("loop", name)),
		now:        time.Now,
	}
	p.latest.Store(rec.Snapshot(p.now()))
	return p
}

// SetAlertDispatcher registers the unauthorized-condition notifier.
func (p *Poller) SetAlertDispatcher(a AlertDispatcher) {
	p.alerts = a
}

// Name returns the loop name.
func (p *Poller) Name() string {
	return p.name
}

// Snapshot returns the most recently published snapshot.
func (p *Poller) Snapshot() *domain.Snapshot {
	return p.latest.Load()
}

// Skipped returns how many ticks were skipped because the previous one was
// still in flight.
func (p *Poller) Skipped() int64 {
	return p.skipped.Load()
}

// Start launches the polling goroutine. It ticks once right away, then on
// every interval, until ctx is cancelled or Stop is called. Calling Start
// on a running or stopped poller does nothing.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.cancel != nil || p.stopped {
		p.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	done := p.done
	p.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		p.Tick(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.Tick(ctx)
			}
		}
	}()
}

// Stop cancels the timer and any in-flight fetch and waits for the polling
// goroutine to exit. No snapshot is applied after Stop returns.
func (p *Poller) Stop() {
	p.mu.Lock()
	p.stopped = true
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Tick runs one fetch-and-reconcile cycle. It returns false when the tick
// was skipped or its result discarded.
func (p *Poller) Tick(ctx context.Context) bool {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.skipped.Add(1)
		p.logger.Debug("tick skipped, previous tick still in flight")
		return false
	}
	defer p.inFlight.Store(false)

	results, marketOpen, fetchErr := p.fetcher.FetchQuotes(ctx, p.rec.Symbols())

	p.mu.Lock()
	if p.stopped || ctx.Err() != nil {
		p.mu.Unlock()
		p.logger.Debug("discarding tick result after stop")
		return false
	}
	now := p.now()
	var snap *domain.Snapshot
	if fetchErr != nil {
		snap = p.rec.ApplyFailure(now)
	} else {
		snap = p.rec.Apply(results, marketOpen, now)
	}
	alert := p.trackAuth(fetchErr)
	p.latest.Store(snap)
	p.mu.Unlock()

	p.logTick(snap, fetchErr)
	if alert && p.alerts != nil {
		p.alerts.DispatchUnauthorized(p.name, now)
	}
	for _, pub := range p.publishers {
		if err := pub.Publish(ctx, snap); err != nil {
			p.logger.Warn("snapshot publish failed", slog.String("error", err.Error()))
		}
	}
	return true
}

// trackAuth reports whether this tick entered the unauthorized state.
// Must be called with p.mu held.
func (p *Poller) trackAuth(err error) bool {
	if errors.Is(err, domain.ErrUnauthorized) {
		entered := !p.unauthorized
		p.unauthorized = true
		return entered
	}
	if err == nil {
		p.unauthorized = false
	}
	return false
}

func (p *Poller) logTick(snap *domain.Snapshot, err error) {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		p.logger.Error("gateway rejected credentials, serving fallback prices",
			slog.String("tick_id", snap.TickID))
	case err != nil:
		p.logger.Warn("gateway fetch failed, serving fallback prices",
			slog.String("tick_id", snap.TickID),
			slog.String("error", err.Error()))
	default:
		p.logger.Debug("tick applied",
			slog.String("tick_id", snap.TickID),
			slog.Bool("market_open", snap.MarketOpen),
			slog.Int("instruments", len(snap.Instruments)))
	}
	if len(snap.Failed) > 0 {
		p.logger.Debug("symbols failed upstream",
			slog.Int("count", len(snap.Failed)),
			slog.Any("symbols", snap.Failed))
	}
}
