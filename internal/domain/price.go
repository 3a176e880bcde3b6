package domain

import (
	"math"

	"github.com/shopspring/decimal"
)

// MinPrice is the smallest price ever published. Anchors at or below zero
// are clamped up to it.
const MinPrice = 0.01

// Round2 rounds f half away from zero to 2 decimal places. NaN and
// infinities are returned unchanged.
func Round2(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return f
	}
	return decimal.NewFromFloat(f).Round(2).InexactFloat64()
}

// ClampPrice returns p, or MinPrice when p is not strictly positive.
func ClampPrice(p float64) float64 {
	if p <= 0 || math.IsNaN(p) {
		return MinPrice
	}
	return p
}

// DisplayPrice rounds p for publication and keeps the result positive.
func DisplayPrice(p float64) float64 {
	return ClampPrice(Round2(p))
}

// ChangePercent reconstructs the previous price as price-change and returns
// change relative to it in percent. A zero previous price yields 0.
func ChangePercent(price, change float64) float64 {
	prev := decimal.NewFromFloat(price).Sub(decimal.NewFromFloat(change))
	if prev.IsZero() {
		return 0
	}
	return decimal.NewFromFloat(change).Div(prev).Mul(decimal.NewFromInt(100)).InexactFloat64()
}

// ChangeFromPreviousClose returns the absolute and percent change of price
// against an explicit previous close. A non-positive close yields zeros.
func ChangeFromPreviousClose(price, previousClose float64) (float64, float64) {
	if previousClose <= 0 {
		return 0, 0
	}
	p := decimal.NewFromFloat(price)
	pc := decimal.NewFromFloat(previousClose)
	change := p.Sub(pc)
	pct := change.Div(pc).Mul(decimal.NewFromInt(100))
	return change.InexactFloat64(), pct.InexactFloat64()
}
