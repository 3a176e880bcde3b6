package domain

import (
	"encoding/json"
	"fmt"
)

// Quote is a single upstream reading for one symbol. Optional fields are
// nil when the upstream did not report them.
type Quote struct {
	Symbol        string
	Price         float64
	Change        float64
	ChangePercent float64
	High          *float64
	Low           *float64
	Open          *float64
	PreviousClose *float64
	MarketClosed  bool
}

// QuoteResult is either a usable Quote or a per-symbol failure.
// Construct it with OkResult or ErrResult.
type QuoteResult struct {
	Symbol       string
	quote        Quote
	failed       bool
	reason       string
	marketClosed bool
}

// OkResult wraps a successful quote.
func OkResult(q Quote) QuoteResult {
	return QuoteResult{Symbol: q.Symbol, quote: q, marketClosed: q.MarketClosed}
}

// ErrResult records a per-symbol failure.
func ErrResult(symbol, reason string, marketClosed bool) QuoteResult {
	return QuoteResult{Symbol: symbol, failed: true, reason: reason, marketClosed: marketClosed}
}

// Quote returns the wrapped quote and true, or false for a failure.
func (r QuoteResult) Quote() (Quote, bool) {
	if r.failed {
		return Quote{}, false
	}
	return r.quote, true
}

// Failed reports whether the upstream call for this symbol errored.
func (r QuoteResult) Failed() bool { return r.failed }

// Reason is the failure description. Empty for successful results.
func (r QuoteResult) Reason() string { return r.reason }

// MarketClosed reports the upstream's closed flag.
func (r QuoteResult) MarketClosed() bool { return r.marketClosed }

// WithMarketClosed returns a copy of r with the closed flag set.
func (r QuoteResult) WithMarketClosed(closed bool) QuoteResult {
	r.marketClosed = closed
	r.quote.MarketClosed = closed
	return r
}

// wireResult is the JSON shape shared by the gateway server and client.
type wireResult struct {
	Symbol        string   `json:"symbol"`
	Price         *float64 `json:"price,omitempty"`
	Change        *float64 `json:"change,omitempty"`
	ChangePercent *float64 `json:"changePercent,omitempty"`
	High          *float64 `json:"high,omitempty"`
	Low           *float64 `json:"low,omitempty"`
	Open          *float64 `json:"open,omitempty"`
	PreviousClose *float64 `json:"previousClose,omitempty"`
	MarketClosed  *bool    `json:"marketClosed,omitempty"`
	Error         bool     `json:"error,omitempty"`
}

// MarshalJSON encodes r as {symbol, price, change, ...} or
// {symbol, error: true, marketClosed?}.
func (r QuoteResult) MarshalJSON() ([]byte, error) {
	w := wireResult{Symbol: r.Symbol}
	if r.marketClosed {
		closed := true
		w.MarketClosed = &closed
	}
	if r.failed {
		w.Error = true
		return json.Marshal(w)
	}
	q := r.quote
	price, change, pct := Round2(q.Price), Round2(q.Change), Round2(q.ChangePercent)
	w.Price = &price
	w.Change = &change
	w.ChangePercent = &pct
	w.High = q.High
	w.Low = q.Low
	w.Open = q.Open
	w.PreviousClose = q.PreviousClose
	return json.Marshal(w)
}

// UnmarshalJSON decodes either wire shape. A missing price on a non-error
// result decodes as a zero price, which the engine treats as absent.
func (r *QuoteResult) UnmarshalJSON(data []byte) error {
	var w wireResult
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode quote result: %w", err)
	}
	closed := w.MarketClosed != nil && *w.MarketClosed
	if w.Error {
		*r = ErrResult(w.Symbol, "upstream error", closed)
		return nil
	}
	q := Quote{
		Symbol:        w.Symbol,
		High:          w.High,
		Low:           w.Low,
		Open:          w.Open,
		PreviousClose: w.PreviousClose,
		MarketClosed:  closed,
	}
	if w.Price != nil {
		q.Price = *w.Price
	}
	if w.Change != nil {
		q.Change = *w.Change
	}
	if w.ChangePercent != nil {
		q.ChangePercent = *w.ChangePercent
	}
	*r = OkResult(q)
	return nil
}
