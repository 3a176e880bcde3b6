package engine

import (
	"sort"
	"time"

	"github.com/commerceday/vageesha-stock-exchange-sub000/internal/domain"
	"github.com/commerceday/vageesha-stock-exchange-sub000/internal/store"
	"github.com/google/uuid"
)

// Reconciler merges gateway results into per-symbol display state. It holds
// the instruments, last trusted prices, rolling history and failed set of a
// single polling loop and is not safe for concurrent Apply calls; the
// Poller serializes them.
type Reconciler struct {
	loop        string
	catalog     *domain.Catalog
	instruments map[string]domain.Instrument
	lastReal    map[string]float64
	history     *store.HistoryStore
	failed      []string
	marketOpen  bool
}

// NewReconciler seeds every catalog entry at its base price.
func NewReconciler(loop string, catalog *domain.Catalog, history *store.HistoryStore, now time.Time) *Reconciler {
	r := &Reconciler{
		loop:        loop,
		catalog:     catalog,
		instruments: make(map[string]domain.Instrument, catalog.Len()),
		lastReal:    make(map[string]float64, catalog.Len()),
		history:     history,
		failed:      []string{},
	}
	for _, e := range catalog.Entries() {
		r.instruments[e.Symbol] = domain.NewInstrument(e, now)
	}
	return r
}

// Symbols returns the tracked symbols in catalog order.
func (r *Reconciler) Symbols() []string {
	return r.catalog.Symbols()
}

// LastRealPrice returns the last trusted price recorded for symbol.
func (r *Reconciler) LastRealPrice(symbol string) (float64, bool) {
	p, ok := r.lastReal[symbol]
	return p, ok
}

// Apply runs one reconciliation pass over every tracked symbol and returns
// the resulting snapshot.
func (r *Reconciler) Apply(results []domain.QuoteResult, marketOpen bool, now time.Time) *domain.Snapshot {
	bySymbol := make(map[string]domain.QuoteResult, len(results))
	for _, res := range results {
		if _, seen := bySymbol[res.Symbol]; !seen {
			bySymbol[res.Symbol] = res
		}
	}

	failed := []string{}
	for _, entry := range r.catalog.Entries() {
		res, present := bySymbol[entry.Symbol]

		switch {
		case marketOpen && present && !res.Failed() && !res.MarketClosed():
			q, _ := res.Quote()
			r.applyLive(entry, q, now)
		case marketOpen && (!present || res.Failed()):
			// A symbol the gateway dropped is as unreliable as one it errored on.
			failed = append(failed, entry.Symbol)
		default:
			r.applyFallback(entry, res, present, now)
		}
	}

	sort.Strings(failed)
	r.failed = failed
	r.marketOpen = marketOpen
	return r.snapshot(now)
}

// ApplyFailure handles a gateway call that produced no response at all:
// the market is treated as closed and every symbol falls back.
func (r *Reconciler) ApplyFailure(now time.Time) *domain.Snapshot {
	return r.Apply(nil, false, now)
}

// applyLive trusts a fresh quote from an open market. Every tick appends
// to history, even when the price is unchanged.
func (r *Reconciler) applyLive(entry domain.CatalogEntry, q domain.Quote, now time.Time) {
	price := q.Price
	if price <= 0 {
		price = entry.BasePrice
	}
	price = domain.DisplayPrice(price)
	change, pct := quoteChange(q, price)

	in := r.instruments[entry.Symbol]
	in.Price = price
	in.Change = domain.Round2(change)
	in.ChangePercent = domain.Round2(pct)
	in.Provenance = domain.ProvenanceReal
	in.UpdatedAt = now
	r.instruments[entry.Symbol] = in

	r.history.Append(entry.Symbol, price, now)
	r.lastReal[entry.Symbol] = price
}

// applyFallback covers a closed market and an open-market quote that
// carries the closed flag.
func (r *Reconciler) applyFallback(entry domain.CatalogEntry, res domain.QuoteResult, present bool, now time.Time) {
	in := r.instruments[entry.Symbol]

	if q, ok := res.Quote(); present && ok && q.Price > 0 {
		// Upstream still reported a last traded price for a closed session.
		price := domain.DisplayPrice(q.Price)
		change, pct := quoteChange(q, price)
		in.Price = price
		in.Change = domain.Round2(change)
		in.ChangePercent = domain.Round2(pct)
		in.Provenance = domain.ProvenanceReal
	} else {
		anchor, ok := r.lastReal[entry.Symbol]
		if !ok {
			anchor = entry.BasePrice
		}
		in.Price = domain.DisplayPrice(anchor)
		in.Change = 0
		in.ChangePercent = 0
		in.Provenance = domain.ProvenanceSimulated
	}
	in.UpdatedAt = now
	r.instruments[entry.Symbol] = in

	r.lastReal[entry.Symbol] = in.Price
	r.history.AppendIfChanged(entry.Symbol, in.Price, now)
}

// quoteChange returns the quote's change figures. When the upstream sent a
// change but no percent, the percent is derived from the explicit previous
// close if there is one, else by reconstructing the previous price.
func quoteChange(q domain.Quote, price float64) (float64, float64) {
	if q.ChangePercent != 0 || q.Change == 0 {
		return q.Change, q.ChangePercent
	}
	if q.PreviousClose != nil && *q.PreviousClose > 0 {
		_, pct := domain.ChangeFromPreviousClose(price, *q.PreviousClose)
		return q.Change, pct
	}
	return q.Change, domain.ChangePercent(price, q.Change)
}

func (r *Reconciler) snapshot(now time.Time) *domain.Snapshot {
	entries := r.catalog.Entries()
	ins := make([]domain.Instrument, len(entries))
	for i, e := range entries {
		ins[i] = r.instruments[e.Symbol]
	}
	failed := make([]string, len(r.failed))
	copy(failed, r.failed)

	return &domain.Snapshot{
		Loop:        r.loop,
		TickID:      uuid.New().String(),
		At:          now,
		Instruments: ins,
		History:     r.history.Snapshot(),
		MarketOpen:  r.marketOpen,
		Failed:      failed,
	}
}

// Snapshot returns the current state without running a pass.
func (r *Reconciler) Snapshot(now time.Time) *domain.Snapshot {
	return r.snapshot(now)
}
