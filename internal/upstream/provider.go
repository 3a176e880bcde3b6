// Package upstream fetches single-symbol quotes from a market data source.
// The gateway service fans a batch out over a Provider one symbol at a time.
package upstream

import (
	"context"

	"github.com/commerceday/vageesha-stock-exchange-sub000/internal/domain"
)

// Provider returns the latest quote for one symbol.
type Provider interface {
	Name() string
	Quote(ctx context.Context, symbol string) (domain.Quote, error)
}
