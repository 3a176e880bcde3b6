package store

import (
	"sync"
	"time"

	"github.com/commerceday/vageesha-stock-exchange-sub000/internal/domain"
)

// DefaultHistoryCapacity is the number of points kept per symbol.
const DefaultHistoryCapacity = 30

// HistoryStore is a bounded, per-symbol rolling price history. Points are
// kept oldest first; an append at capacity evicts the oldest point.
type HistoryStore struct {
	mu       sync.RWMutex
	capacity int
	points   map[string][]domain.PricePoint // symbol → points (chronological)
}

// NewHistoryStore creates an empty store. A non-positive capacity falls
// back to DefaultHistoryCapacity.
func NewHistoryStore(capacity int) *HistoryStore {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &HistoryStore{
		capacity: capacity,
		points:   make(map[string][]domain.PricePoint),
	}
}

// Capacity returns the per-symbol bound.
func (s *HistoryStore) Capacity() int {
	return s.capacity
}

// Append adds a point for symbol unconditionally.
func (s *HistoryStore) Append(symbol string, price float64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.appendLocked(symbol, domain.PricePoint{Price: price, At: at})
}

// AppendIfChanged adds a point only when price differs from the last stored
// point. It reports whether a point was added.
func (s *HistoryStore) AppendIfChanged(symbol string, price float64, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	pts := s.points[symbol]
	if len(pts) > 0 && pts[len(pts)-1].Price == price {
		return false
	}
	s.appendLocked(symbol, domain.PricePoint{Price: price, At: at})
	return true
}

func (s *HistoryStore) appendLocked(symbol string, p domain.PricePoint) {
	pts := s.points[symbol]
	// Keep time order even if the wall clock steps backwards.
	if n := len(pts); n > 0 && p.At.Before(pts[n-1].At) {
		p.At = pts[n-1].At
	}
	if len(pts) >= s.capacity {
		// Shift down in place rather than reslicing so the backing array
		// does not grow without bound.
		copy(pts, pts[len(pts)-s.capacity+1:])
		pts = pts[:s.capacity-1]
	}
	s.points[symbol] = append(pts, p)
}

// Last returns the most recent point for symbol.
func (s *HistoryStore) Last(symbol string) (domain.PricePoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pts := s.points[symbol]
	if len(pts) == 0 {
		return domain.PricePoint{}, false
	}
	return pts[len(pts)-1], true
}

// Len returns the number of points stored for symbol.
func (s *HistoryStore) Len(symbol string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.points[symbol])
}

// Get returns a copy of symbol's points, oldest first. Returns an empty
// slice if nothing has been stored.
func (s *HistoryStore) Get(symbol string) []domain.PricePoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pts := s.points[symbol]
	result := make([]domain.PricePoint, len(pts))
	copy(result, pts)
	return result
}

// Snapshot returns a deep copy of every symbol's history.
func (s *HistoryStore) Snapshot() map[string][]domain.PricePoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]domain.PricePoint, len(s.points))
	for sym, pts := range s.points {
		cp := make([]domain.PricePoint, len(pts))
		copy(cp, pts)
		out[sym] = cp
	}
	return out
}
