// Package catalog loads the static instrument catalog from YAML.
package catalog

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/commerceday/vageesha-stock-exchange-sub000/internal/domain"
)

//go:embed default.yaml
var defaultCatalog []byte

type fileFormat struct {
	Instruments []fileEntry `yaml:"instruments"`
}

type fileEntry struct {
	Symbol    string  `yaml:"symbol"`
	Name      string  `yaml:"name"`
	Kind      string  `yaml:"kind"`
	BasePrice float64 `yaml:"base_price"`
}

// Load reads the catalog at path. An empty path loads the embedded default.
func Load(path string) (*domain.Catalog, error) {
	if path == "" {
		return Parse(defaultCatalog)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes a YAML catalog document.
func Parse(data []byte) (*domain.Catalog, error) {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(f.Instruments) == 0 {
		return nil, &domain.ValidationError{Message: "catalog has no instruments"}
	}

	entries := make([]domain.CatalogEntry, len(f.Instruments))
	for i, e := range f.Instruments {
		entries[i] = domain.CatalogEntry{
			Symbol:    e.Symbol,
			Name:      e.Name,
			Kind:      domain.InstrumentKind(e.Kind),
			BasePrice: e.BasePrice,
		}
	}
	return domain.NewCatalog(entries)
}

// Split divides a catalog into the tradable set polled through the quotes
// route (stocks, ETFs and funds) and the index set.
func Split(c *domain.Catalog) (tradable, indices *domain.Catalog) {
	tradable = c.Filter(domain.KindStock, domain.KindETF, domain.KindMutualFund)
	indices = c.Filter(domain.KindIndex)
	return tradable, indices
}
