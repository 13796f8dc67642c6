package session

import (
	"context"
	"testing"
	"time"

	"halcyon-hq/switchboard/pkg/cache"
)

func TestMemoryStore_SaveLoadDelete(t *testing.T) {
	s := NewMemoryStore(time.Minute, time.Minute)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	if _, ok, err := s.Load(ctx, "call-1"); ok || err != nil {
		t.Fatalf("Load() before save = (%v, %v), want absent", ok, err)
	}

	st := NewState("call-1", "tenant-1")
	st.SetField("name", "Dana")
	if err := s.Save(ctx, st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, ok, err := s.Load(ctx, "call-1")
	if err != nil || !ok {
		t.Fatalf("Load() = (%v, %v), want found", ok, err)
	}
	if got == st {
		t.Fatal("Load() returned the stored pointer, want a copy")
	}
	if got.CollectedFields["name"] != "Dana" {
		t.Errorf("CollectedFields[name] = %q, want %q", got.CollectedFields["name"], "Dana")
	}

	// Mutating a loaded copy must not leak into the store.
	got.SetField("name", "Lee")
	again, _, _ := s.Load(ctx, "call-1")
	if again.CollectedFields["name"] != "Dana" {
		t.Error("mutation of a loaded copy changed the stored state")
	}

	if err := s.Delete(ctx, "call-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok, _ := s.Load(ctx, "call-1"); ok {
		t.Error("Load() after delete reports the session present")
	}
}

func TestMemoryStore_ExpiredEntryNotServed(t *testing.T) {
	// Sweep interval is long so this exercises the read-side expiry check.
	s := NewMemoryStore(20*time.Millisecond, time.Hour)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	if err := s.Save(ctx, NewState("call-1", "tenant-1")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if _, ok, _ := s.Load(ctx, "call-1"); ok {
		t.Error("Load() served an expired session")
	}
}

func TestMemoryStore_SweepReclaimsExpired(t *testing.T) {
	s := NewMemoryStore(10*time.Millisecond, 20*time.Millisecond)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	s.Save(ctx, NewState("call-1", "tenant-1"))
	s.Save(ctx, NewState("call-2", "tenant-1"))

	deadline := time.Now().Add(2 * time.Second)
	for s.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("sweeper left %d entries after expiry", s.Len())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestMemoryStore_SaveWithoutCallID(t *testing.T) {
	s := NewMemoryStore(time.Minute, time.Minute)
	t.Cleanup(func() { s.Close() })

	if err := s.Save(context.Background(), &State{}); err == nil {
		t.Error("Save() without call id succeeded, want error")
	}
}

func TestCacheStore_RoundTrip(t *testing.T) {
	backing := cache.NewMemory(100, 0)
	t.Cleanup(func() { backing.Close() })
	s := NewCacheStore(backing, time.Minute)
	ctx := context.Background()

	if _, ok, err := s.Load(ctx, "call-9"); ok || err != nil {
		t.Fatalf("Load() before save = (%v, %v), want absent", ok, err)
	}

	st := NewState("call-9", "tenant-2")
	st.TurnCount = 3
	st.QueueInterruption("about the invoice")
	if err := s.Save(ctx, st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, ok, err := s.Load(ctx, "call-9")
	if err != nil || !ok {
		t.Fatalf("Load() = (%v, %v), want found", ok, err)
	}
	if got.TurnCount != 3 || got.TenantID != "tenant-2" {
		t.Errorf("Load() = %+v, want saved fields back", got)
	}
	if len(got.QueuedInterruptions) != 1 {
		t.Errorf("QueuedInterruptions = %v, want 1 entry", got.QueuedInterruptions)
	}

	if err := s.Delete(ctx, "call-9"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok, _ := s.Load(ctx, "call-9"); ok {
		t.Error("Load() after delete reports the session present")
	}
}

func TestCacheStore_CorruptPayload(t *testing.T) {
	backing := cache.NewMemory(100, 0)
	t.Cleanup(func() { backing.Close() })
	s := NewCacheStore(backing, time.Minute)
	ctx := context.Background()

	if err := backing.Set(ctx, cache.SessionKey("call-9"), []byte("{not json"), time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if _, _, err := s.Load(ctx, "call-9"); err == nil {
		t.Error("Load() of a corrupt session succeeded, want error")
	}
}
