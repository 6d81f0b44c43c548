package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryRoundtrip(t *testing.T) {
	m := NewMemory(time.Minute)
	ctx := context.Background()

	if err := m.Put(ctx, "k", "v"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	value, found, err := m.Get(ctx, "k")
	if err != nil || !found || value != "v" {
		t.Fatalf("Get = %q, %v, %v", value, found, err)
	}

	if err := m.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, found, _ := m.Get(ctx, "k"); found {
		t.Fatal("entry survived deletion")
	}
}

func TestMemoryExpiry(t *testing.T) {
	m := NewMemory(30 * time.Second)
	now := time.Now()
	m.now = func() time.Time { return now }
	ctx := context.Background()

	if err := m.Put(ctx, "k", "v"); err != nil {
		t.Fatal(err)
	}
	now = now.Add(29 * time.Second)
	if _, found, _ := m.Get(ctx, "k"); !found {
		t.Fatal("entry expired early")
	}
	now = now.Add(2 * time.Second)
	if _, found, _ := m.Get(ctx, "k"); found {
		t.Fatal("entry outlived its ttl")
	}
}
