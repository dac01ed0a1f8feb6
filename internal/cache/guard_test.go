package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryGuard(t *testing.T) {
	ctx := context.Background()
	g := NewMemoryGuard()

	release, ok, err := g.Acquire(ctx, "user-1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("Acquire() = %v, %v, want ok", ok, err)
	}

	if _, ok, err = g.Acquire(ctx, "user-1", time.Minute); err != nil || ok {
		t.Errorf("second Acquire() = %v, %v, want rejected while the first is in flight", ok, err)
	}

	if _, ok, _ = g.Acquire(ctx, "user-2", time.Minute); !ok {
		t.Error("Acquire() for another key was rejected")
	}

	release()
	release2, ok, _ := g.Acquire(ctx, "user-1", time.Minute)
	if !ok {
		t.Fatal("Acquire() after release was rejected")
	}

	// a stale release must not free someone else's hold
	release()
	if _, ok, _ = g.Acquire(ctx, "user-1", time.Minute); ok {
		t.Error("stale release freed the current hold")
	}
	release2()
}

func TestMemoryGuard_Expires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g := NewMemoryGuard()
	g.now = func() time.Time { return now }

	if _, ok, _ := g.Acquire(ctx, "k", 30*time.Second); !ok {
		t.Fatal("Acquire() was rejected")
	}

	now = now.Add(31 * time.Second)
	if _, ok, _ := g.Acquire(ctx, "k", 30*time.Second); !ok {
		t.Error("expired hold was not reclaimed")
	}
}
