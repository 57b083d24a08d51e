package dedup_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/slackrelay/dedup"
)

func ctx() context.Context { return context.Background() }

var t0 = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

func seen(t *testing.T, g dedup.Guard, key string, at time.Time) bool {
	t.Helper()
	got, err := g.Seen(ctx(), key, at)
	if err != nil {
		t.Fatal(err)
	}
	return got
}

func TestMemorySuppressesWithinWindow(t *testing.T) {
	g := dedup.NewMemory(dedup.DefaultWindow)

	if seen(t, g, "k", t0) {
		t.Fatal("first check must not suppress")
	}
	if !seen(t, g, "k", t0.Add(5*time.Second)) {
		t.Fatal("second check within window must suppress")
	}
	if !seen(t, g, "k", t0.Add(89_999*time.Millisecond)) {
		t.Fatal("check just inside window must suppress")
	}
}

func TestMemoryAllowsWhenSpacedBeyondWindow(t *testing.T) {
	g := dedup.NewMemory(dedup.DefaultWindow)

	at := t0
	for i := range 3 {
		if seen(t, g, "k", at) {
			t.Fatalf("check %d spaced beyond window was suppressed", i+1)
		}
		at = at.Add(90_001 * time.Millisecond)
	}
}

func TestMemoryWindowBoundaryIsExclusive(t *testing.T) {
	g := dedup.NewMemory(dedup.DefaultWindow)

	seen(t, g, "k", t0)
	if seen(t, g, "k", t0.Add(dedup.DefaultWindow)) {
		t.Fatal("check exactly one window later must not suppress")
	}
}

func TestMemorySuppressedCheckDoesNotExtendWindow(t *testing.T) {
	g := dedup.NewMemory(10 * time.Second)

	seen(t, g, "k", t0)
	seen(t, g, "k", t0.Add(9*time.Second))
	if seen(t, g, "k", t0.Add(11*time.Second)) {
		t.Fatal("suppressed check should not refresh the recorded time")
	}
}

func TestMemoryKeysAreIndependent(t *testing.T) {
	g := dedup.NewMemory(dedup.DefaultWindow)

	if seen(t, g, "a", t0) || seen(t, g, "b", t0) {
		t.Fatal("distinct keys must not suppress each other")
	}
	if g.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", g.Len())
	}
}

func TestMemoryEmptyKeyNeverSuppressed(t *testing.T) {
	g := dedup.NewMemory(dedup.DefaultWindow)

	for range 3 {
		if seen(t, g, "", t0) {
			t.Fatal("empty key suppressed")
		}
	}
	if g.Len() != 0 {
		t.Fatalf("empty key recorded: len %d", g.Len())
	}
}

func TestMemoryDefaultWindow(t *testing.T) {
	if got := dedup.NewMemory(0).Window(); got != dedup.DefaultWindow {
		t.Fatalf("window: got %v, want %v", got, dedup.DefaultWindow)
	}
}

func TestMemoryConcurrentAtMostOneAllowed(t *testing.T) {
	g := dedup.NewMemory(dedup.DefaultWindow)

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for range 64 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			suppressed, err := g.Seen(ctx(), "same-click", t0)
			if err != nil {
				t.Error(err)
				return
			}
			if !suppressed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if allowed.Load() != 1 {
		t.Fatalf("expected exactly one caller allowed, got %d", allowed.Load())
	}
}
