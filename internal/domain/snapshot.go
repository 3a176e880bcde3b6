package domain

import "time"

// PricePoint is one entry of a rolling price history.
type PricePoint struct {
	Price float64   `json:"price"`
	At    time.Time `json:"at"`
}

// Snapshot is the immutable state a polling loop publishes after a tick.
type Snapshot struct {
	Loop        string
	TickID      string
	At          time.Time
	Instruments []Instrument
	History     map[string][]PricePoint
	MarketOpen  bool
	Failed      []string
}

// Instrument returns the instrument for symbol.
func (s *Snapshot) Instrument(symbol string) (Instrument, bool) {
	for _, in := range s.Instruments {
		if in.Symbol == symbol {
			return in, true
		}
	}
	return Instrument{}, false
}
