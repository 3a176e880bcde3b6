// Package synth produces random-walk prices for illustrative charts and for
// the offline upstream provider. Nothing here feeds the authoritative
// instrument price directly.
package synth

import (
	"math/rand/v2"
	"sync"

	"github.com/commerceday/vageesha-stock-exchange-sub000/internal/domain"
)

// Step moves price by a uniform draw in ±volatilityPercent/2 percent,
// floored at domain.MinPrice.
func Step(r *rand.Rand, price, volatilityPercent float64) float64 {
	next := price * (1 + (r.Float64()-0.5)*volatilityPercent/100)
	if next < domain.MinPrice {
		return domain.MinPrice
	}
	return next
}

// GenerateSeries returns length prices starting at startPrice. The first
// element is startPrice itself (clamped).
func GenerateSeries(length int, startPrice, volatilityPercent float64) []float64 {
	r := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	return GenerateSeriesRand(r, length, startPrice, volatilityPercent)
}

// GenerateSeriesRand is GenerateSeries with an explicit random source.
func GenerateSeriesRand(r *rand.Rand, length int, startPrice, volatilityPercent float64) []float64 {
	if length <= 0 {
		return []float64{}
	}
	out := make([]float64, length)
	out[0] = domain.ClampPrice(startPrice)
	for i := 1; i < length; i++ {
		out[i] = Step(r, out[i-1], volatilityPercent)
	}
	return out
}

// Walker keeps an independent random walk per symbol. Safe for concurrent use.
type Walker struct {
	mu         sync.Mutex
	rng        *rand.Rand
	volatility float64
	prices     map[string]float64
	opens      map[string]float64
}

// NewWalker creates a walker. seed fixes the sequence for tests.
func NewWalker(volatilityPercent float64, seed uint64) *Walker {
	return &Walker{
		rng:        rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		volatility: volatilityPercent,
		prices:     make(map[string]float64),
		opens:      make(map[string]float64),
	}
}

// Next advances symbol's walk and returns the new price and the price the
// walk started from. The first call for a symbol seeds it at start.
func (w *Walker) Next(symbol string, start float64) (price, open float64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	cur, ok := w.prices[symbol]
	if !ok {
		cur = domain.ClampPrice(start)
		w.opens[symbol] = cur
	}
	next := Step(w.rng, cur, w.volatility)
	w.prices[symbol] = next
	return next, w.opens[symbol]
}
