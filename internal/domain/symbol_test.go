package domain

import (
	"errors"
	"sync"
	"testing"
)

func testEntries() []CatalogEntry {
	return []CatalogEntry{
		{Symbol: "TCS", Name: "Tata Consultancy Services", Kind: KindStock, BasePrice: 3050},
		{Symbol: "INFY", Name: "Infosys", Kind: KindStock, BasePrice: 1500},
		{Symbol: "NIFTYBEES", Name: "Nippon India ETF Nifty BeES", Kind: KindETF, BasePrice: 250},
		{Symbol: "NIFTY_50", Name: "NIFTY 50", Kind: KindIndex, BasePrice: 22000},
	}
}

func TestValidSymbol(t *testing.T) {
	valid := []string{"TCS", "M&M", "BAJAJ-AUTO", "NIFTY_50", "A", "ABCDEFGHIJKLMNOPQRST"}
	for _, s := range valid {
		if !ValidSymbol(s) {
			t.Errorf("ValidSymbol(%q) = false, want true", s)
		}
	}

	invalid := []string{"", "tcs", "TCS.NS", "TCS NS", "ABCDEFGHIJKLMNOPQRSTU", "TCS;DROP"}
	for _, s := range invalid {
		if ValidSymbol(s) {
			t.Errorf("ValidSymbol(%q) = true, want false", s)
		}
	}
}

func TestNewCatalog_OrderedBySymbol(t *testing.T) {
	c, err := NewCatalog(testEntries())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"INFY", "NIFTYBEES", "NIFTY_50", "TCS"}
	got := c.Symbols()
	if len(got) != len(want) {
		t.Fatalf("Symbols() len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Symbols()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestNewCatalog_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		entries []CatalogEntry
	}{
		{"bad symbol", []CatalogEntry{{Symbol: "tcs", Kind: KindStock, BasePrice: 1}}},
		{"bad kind", []CatalogEntry{{Symbol: "TCS", Kind: "bond", BasePrice: 1}}},
		{"zero price", []CatalogEntry{{Symbol: "TCS", Kind: KindStock, BasePrice: 0}}},
		{"duplicate", []CatalogEntry{
			{Symbol: "TCS", Kind: KindStock, BasePrice: 1},
			{Symbol: "TCS", Kind: KindStock, BasePrice: 2},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCatalog(tt.entries)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestCatalog_GetAndExists(t *testing.T) {
	c, _ := NewCatalog(testEntries())

	e, ok := c.Get("TCS")
	if !ok {
		t.Fatal("Get(TCS) not found")
	}
	if e.BasePrice != 3050 {
		t.Errorf("BasePrice = %v, want 3050", e.BasePrice)
	}
	if c.Exists("WIPRO") {
		t.Error("Exists(WIPRO) = true, want false")
	}
}

func TestCatalog_Filter(t *testing.T) {
	c, _ := NewCatalog(testEntries())

	indices := c.Filter(KindIndex)
	if indices.Len() != 1 || !indices.Exists("NIFTY_50") {
		t.Errorf("Filter(index) = %v, want [NIFTY_50]", indices.Symbols())
	}

	tradable := c.Filter(KindStock, KindETF, KindMutualFund)
	if tradable.Len() != 3 {
		t.Errorf("Filter(tradable).Len() = %d, want 3", tradable.Len())
	}

	// The source catalog is untouched.
	if c.Len() != 4 {
		t.Errorf("source Len() = %d, want 4", c.Len())
	}
}

func TestCatalog_ConcurrentReads(t *testing.T) {
	c, _ := NewCatalog(testEntries())
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Get("TCS")
			c.Symbols()
		}()
	}
	wg.Wait()
}
