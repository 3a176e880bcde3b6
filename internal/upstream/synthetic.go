package upstream

import (
	"context"
	"fmt"

	"github.com/commerceday/vageesha-stock-exchange-sub000/internal/domain"
	"github.com/commerceday/vageesha-stock-exchange-sub000/internal/synth"
)

// SyntheticProvider serves random-walk quotes for catalog symbols. It lets
// the whole pipeline run without network access to a market data source.
type SyntheticProvider struct {
	catalog *domain.Catalog
	walker  *synth.Walker
}

// NewSyntheticProvider creates a provider walking from each entry's base
// price at volatilityPercent per step.
func NewSyntheticProvider(catalog *domain.Catalog, volatilityPercent float64, seed uint64) *SyntheticProvider {
	return &SyntheticProvider{
		catalog: catalog,
		walker:  synth.NewWalker(volatilityPercent, seed),
	}
}

// Name identifies the provider in logs.
func (p *SyntheticProvider) Name() string { return "synthetic" }

// Quote advances symbol's walk. Unknown symbols return domain.ErrUpstreamNotFound.
func (p *SyntheticProvider) Quote(ctx context.Context, symbol string) (domain.Quote, error) {
	if err := ctx.Err(); err != nil {
		return domain.Quote{}, err
	}
	entry, ok := p.catalog.Get(symbol)
	if !ok {
		return domain.Quote{}, fmt.Errorf("synthetic %s: %w", symbol, domain.ErrUpstreamNotFound)
	}

	price, open := p.walker.Next(symbol, entry.BasePrice)
	q := domain.Quote{
		Symbol: symbol,
		Price:  price,
		Open:   &open,
	}
	q.Change, q.ChangePercent = domain.ChangeFromPreviousClose(price, open)
	q.PreviousClose = &open
	return q, nil
}
