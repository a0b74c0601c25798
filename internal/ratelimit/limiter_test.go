package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestAdmitLimitAndReset(t *testing.T) {
	l := New(NewMemoryStore(), Config{Limit: 5, Window: 60 * time.Second})
	ctx := context.Background()
	start := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		d := l.Admit(ctx, "abcdefgh", start.Add(time.Duration(i)*time.Second))
		if d.Outcome != Allowed {
			t.Fatalf("admit %d: %v", i+1, d.Outcome)
		}
		if d.Remaining != 4-i {
			t.Errorf("admit %d remaining = %d", i+1, d.Remaining)
		}
	}
	if d := l.Admit(ctx, "abcdefgh", start.Add(10*time.Second)); d.Outcome != Denied {
		t.Fatalf("6th admit: %v, want denied", d.Outcome)
	}
	if d := l.Admit(ctx, "abcdefgh", start.Add(60*time.Second)); d.Outcome != Allowed {
		t.Fatalf("admit after window: %v, want allowed", d.Outcome)
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l := New(NewMemoryStore(), Config{Limit: 1, Window: time.Minute})
	now := time.Now()
	if !l.Admit(context.Background(), "a", now).Allowed() {
		t.Fatal("a denied")
	}
	if !l.Admit(context.Background(), "b", now).Allowed() {
		t.Fatal("b denied")
	}
	if l.Admit(context.Background(), "a", now).Allowed() {
		t.Fatal("second a allowed")
	}
}

type failingStore struct{}

func (failingStore) Increment(context.Context, string, time.Time, time.Duration) (Counter, error) {
	return Counter{}, errors.New("connection refused")
}

func TestStoreFailureFailsOpen(t *testing.T) {
	var seen []Outcome
	l := New(failingStore{}, Config{Limit: 1}).WithObserver(func(d Decision) { seen = append(seen, d.Outcome) })
	for i := 0; i < 3; i++ {
		d := l.Admit(context.Background(), "k", time.Now())
		if d.Outcome != AllowedDegraded || !d.Allowed() {
			t.Fatalf("outcome = %v", d.Outcome)
		}
		if d.StoreErr == nil {
			t.Fatal("store error not surfaced")
		}
	}
	if len(seen) != 3 {
		t.Errorf("observer saw %d decisions", len(seen))
	}
}

func TestConcurrentAdmitsRespectLimit(t *testing.T) {
	const limit = 15
	l := New(NewMemoryStore(), Config{Limit: limit, Window: time.Minute})
	now := time.Now()

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Admit(context.Background(), "shared", now).Outcome == Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	if got := allowed.Load(); got != limit {
		t.Errorf("allowed = %d, want %d", got, limit)
	}
}

func TestDefaults(t *testing.T) {
	l := New(NewMemoryStore(), Config{})
	if c := l.Config(); c.Limit != DefaultLimit || c.Window != DefaultWindow {
		t.Errorf("defaults = %+v", c)
	}
}

func TestMemoryStoreSweep(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now()
	_, _ = s.Increment(context.Background(), "old", now.Add(-time.Hour), time.Minute)
	_, _ = s.Increment(context.Background(), "new", now, time.Minute)
	if n := s.Sweep(now.Add(-10 * time.Minute)); n != 1 {
		t.Errorf("swept %d", n)
	}
	if s.Len() != 1 {
		t.Errorf("len = %d", s.Len())
	}
}

func TestSetConfigTakesEffect(t *testing.T) {
	l := New(NewMemoryStore(), Config{Limit: 1, Window: time.Minute})
	now := time.Now()
	if !l.Admit(context.Background(), "k", now).Allowed() {
		t.Fatal("first admit denied")
	}
	if l.Admit(context.Background(), "k", now).Allowed() {
		t.Fatal("second admit allowed at limit 1")
	}
	l.SetConfig(Config{Limit: 5, Window: time.Minute})
	if !l.Admit(context.Background(), "k", now).Allowed() {
		t.Fatal("admit denied after raising the limit")
	}
}
