package domain

import "time"

// Provenance tags where a displayed price came from.
type Provenance string

const (
	ProvenanceReal      Provenance = "real"
	ProvenanceSimulated Provenance = "simulated"
	ProvenanceError     Provenance = "error"
)

// InstrumentKind classifies catalog entries.
type InstrumentKind string

const (
	KindStock      InstrumentKind = "stock"
	KindETF        InstrumentKind = "etf"
	KindMutualFund InstrumentKind = "mutual_fund"
	KindIndex      InstrumentKind = "index"
)

// Valid reports whether k is a known instrument kind.
func (k InstrumentKind) Valid() bool {
	switch k {
	case KindStock, KindETF, KindMutualFund, KindIndex:
		return true
	}
	return false
}

// Instrument is the displayed state of one tracked symbol. Only the
// reconciliation engine mutates it.
type Instrument struct {
	Symbol        string
	Name          string
	Kind          InstrumentKind
	Price         float64
	Change        float64
	ChangePercent float64
	Provenance    Provenance
	UpdatedAt     time.Time
}

// NewInstrument seeds an instrument from its catalog entry at the base
// price, tagged simulated until the first tick resolves it.
func NewInstrument(e CatalogEntry, now time.Time) Instrument {
	return Instrument{
		Symbol:     e.Symbol,
		Name:       e.Name,
		Kind:       e.Kind,
		Price:      DisplayPrice(e.BasePrice),
		Provenance: ProvenanceSimulated,
		UpdatedAt:  now,
	}
}
