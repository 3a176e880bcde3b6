package domain

import (
	"fmt"
	"regexp"

	"github.com/google/btree"
)

// symbolPattern is the accepted shape of a symbol at every boundary.
var symbolPattern = regexp.MustCompile(`^[A-Z0-9&_-]{1,20}$`)

// ValidSymbol reports whether s is an acceptable instrument symbol.
func ValidSymbol(s string) bool {
	return symbolPattern.MatchString(s)
}

// CatalogEntry is one row of the static instrument catalog.
type CatalogEntry struct {
	Symbol    string
	Name      string
	Kind      InstrumentKind
	BasePrice float64
}

func entryLess(a, b CatalogEntry) bool {
	return a.Symbol < b.Symbol
}

// Catalog is the read-only set of tracked instruments, ordered by symbol.
// It is never mutated after NewCatalog returns, so it is safe to share
// between polling loops without locking.
type Catalog struct {
	tree *btree.BTreeG[CatalogEntry]
}

// NewCatalog validates entries and builds a catalog. Symbols must be
// unique and well-formed, kinds known, and base prices positive.
func NewCatalog(entries []CatalogEntry) (*Catalog, error) {
	const degree = 16
	tree := btree.NewG[CatalogEntry](degree, entryLess)
	for _, e := range entries {
		if !ValidSymbol(e.Symbol) {
			return nil, &ValidationError{Message: fmt.Sprintf("invalid symbol %q", e.Symbol)}
		}
		if !e.Kind.Valid() {
			return nil, &ValidationError{Message: fmt.Sprintf("symbol %s: unknown kind %q", e.Symbol, e.Kind)}
		}
		if e.BasePrice <= 0 {
			return nil, &ValidationError{Message: fmt.Sprintf("symbol %s: base price must be positive", e.Symbol)}
		}
		if _, dup := tree.ReplaceOrInsert(e); dup {
			return nil, &ValidationError{Message: fmt.Sprintf("duplicate symbol %s", e.Symbol)}
		}
	}
	return &Catalog{tree: tree}, nil
}

// Get returns the entry for symbol.
func (c *Catalog) Get(symbol string) (CatalogEntry, bool) {
	return c.tree.Get(CatalogEntry{Symbol: symbol})
}

// Exists reports whether symbol is in the catalog.
func (c *Catalog) Exists(symbol string) bool {
	return c.tree.Has(CatalogEntry{Symbol: symbol})
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	return c.tree.Len()
}

// Entries returns all entries in symbol order.
func (c *Catalog) Entries() []CatalogEntry {
	out := make([]CatalogEntry, 0, c.tree.Len())
	c.tree.Ascend(func(e CatalogEntry) bool {
		out = append(out, e)
		return true
	})
	return out
}

// Symbols returns all symbols in order.
func (c *Catalog) Symbols() []string {
	out := make([]string, 0, c.tree.Len())
	c.tree.Ascend(func(e CatalogEntry) bool {
		out = append(out, e.Symbol)
		return true
	})
	return out
}

// Filter returns a new catalog holding the entries whose kind is one of kinds.
func (c *Catalog) Filter(kinds ...InstrumentKind) *Catalog {
	want := make(map[InstrumentKind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}
	tree := c.tree.Clone()
	c.tree.Ascend(func(e CatalogEntry) bool {
		if !want[e.Kind] {
			tree.Delete(e)
		}
		return true
	})
	return &Catalog{tree: tree}
}
