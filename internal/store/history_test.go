package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"pgregory.net/rapid"
)

func TestHistoryStore_AppendAndGet(t *testing.T) {
	s := NewHistoryStore(30)
	now := time.Now()

	s.Append("TCS", 3100, now)
	s.Append("TCS", 3101.5, now.Add(time.Second))

	pts := s.Get("TCS")
	if len(pts) != 2 {
		t.Fatalf("expected 2 points, got %d", len(pts))
	}
	if pts[0].Price != 3100 {
		t.Errorf("expected 3100 first, got %v", pts[0].Price)
	}
	if pts[1].Price != 3101.5 {
		t.Errorf("expected 3101.5 second, got %v", pts[1].Price)
	}
}

func TestHistoryStore_Get_Empty(t *testing.T) {
	s := NewHistoryStore(30)

	pts := s.Get("INFY")
	if pts == nil {
		t.Fatal("expected non-nil empty slice, got nil")
	}
	if len(pts) != 0 {
		t.Fatalf("expected 0 points, got %d", len(pts))
	}
	if _, ok := s.Last("INFY"); ok {
		t.Error("Last() on empty history should report false")
	}
}

func TestHistoryStore_EvictsOldest(t *testing.T) {
	s := NewHistoryStore(30)
	now := time.Now()

	for i := 0; i < 35; i++ {
		s.Append("TCS", float64(i), now.Add(time.Duration(i)*time.Second))
	}

	pts := s.Get("TCS")
	if len(pts) != 30 {
		t.Fatalf("expected 30 points, got %d", len(pts))
	}
	if pts[0].Price != 5 {
		t.Errorf("expected oldest point 5, got %v", pts[0].Price)
	}
	if pts[29].Price != 34 {
		t.Errorf("expected newest point 34, got %v", pts[29].Price)
	}
}

func TestHistoryStore_AppendIfChanged(t *testing.T) {
	s := NewHistoryStore(30)
	now := time.Now()

	if !s.AppendIfChanged("TCS", 3100, now) {
		t.Error("first append should be accepted")
	}
	if s.AppendIfChanged("TCS", 3100, now.Add(time.Second)) {
		t.Error("duplicate price should be rejected")
	}
	if !s.AppendIfChanged("TCS", 3100.01, now.Add(2*time.Second)) {
		t.Error("changed price should be accepted")
	}
	if got := s.Len("TCS"); got != 2 {
		t.Errorf("Len() = %d, want 2", got)
	}
}

func TestHistoryStore_KeepsTimeOrderOnClockStep(t *testing.T) {
	s := NewHistoryStore(30)
	now := time.Now()

	s.Append("TCS", 1, now)
	s.Append("TCS", 2, now.Add(-time.Minute))

	pts := s.Get("TCS")
	if pts[1].At.Before(pts[0].At) {
		t.Errorf("points out of order: %v before %v", pts[1].At, pts[0].At)
	}
}

func TestHistoryStore_GetReturnsCopy(t *testing.T) {
	s := NewHistoryStore(30)
	s.Append("TCS", 3100, time.Now())

	pts := s.Get("TCS")
	pts[0].Price = 0

	if last, _ := s.Last("TCS"); last.Price != 3100 {
		t.Errorf("internal state mutated through Get(), got %v", last.Price)
	}

	snap := s.Snapshot()
	snap["TCS"][0].Price = 0
	if last, _ := s.Last("TCS"); last.Price != 3100 {
		t.Errorf("internal state mutated through Snapshot(), got %v", last.Price)
	}
}

func TestHistoryStore_DefaultCapacity(t *testing.T) {
	if got := NewHistoryStore(0).Capacity(); got != DefaultHistoryCapacity {
		t.Errorf("Capacity() = %d, want %d", got, DefaultHistoryCapacity)
	}
}

func TestHistoryStore_ConcurrentAccess(t *testing.T) {
	s := NewHistoryStore(30)
	var wg sync.WaitGroup
	now := time.Now()

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			s.Append(fmt.Sprintf("S%d", i%5), float64(i), now)
		}(i)
		go func() {
			defer wg.Done()
			s.Snapshot()
		}()
	}
	wg.Wait()

	for i := 0; i < 5; i++ {
		if got := s.Len(fmt.Sprintf("S%d", i)); got != 10 {
			t.Errorf("Len(S%d) = %d, want 10", i, got)
		}
	}
}

func TestProperty_HistoryBoundedAndOrdered(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(1, 40).Draw(t, "capacity")
		s := NewHistoryStore(capacity)
		start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

		n := rapid.IntRange(0, 120).Draw(t, "n")
		var want []float64
		for i := 0; i < n; i++ {
			price := float64(rapid.IntRange(1, 5).Draw(t, fmt.Sprintf("price-%d", i)))
			at := start.Add(time.Duration(i) * time.Second)
			if rapid.Bool().Draw(t, fmt.Sprintf("conditional-%d", i)) {
				if len(want) > 0 && want[len(want)-1] == price {
					s.AppendIfChanged("X", price, at)
					continue
				}
				s.AppendIfChanged("X", price, at)
			} else {
				s.Append("X", price, at)
			}
			want = append(want, price)
			if len(want) > capacity {
				want = want[1:]
			}
		}

		got := s.Get("X")
		if len(got) > capacity {
			t.Fatalf("len = %d exceeds capacity %d", len(got), capacity)
		}
		if len(got) != len(want) {
			t.Fatalf("len = %d, want %d", len(got), len(want))
		}
		for i := range got {
			if got[i].Price != want[i] {
				t.Fatalf("point %d = %v, want %v", i, got[i].Price, want[i])
			}
			if i > 0 && got[i].At.Before(got[i-1].At) {
				t.Fatalf("point %d out of time order", i)
			}
		}
	})
}
