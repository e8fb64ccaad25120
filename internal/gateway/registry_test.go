package gateway

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestClientRegistry_FreeTierBurst(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	registry := NewClientRegistry(TierFree, time.Hour, clock)

	allowed, denied := 0, 0
	var retryAfter time.Duration
	for i := 0; i < 11; i++ {
		clock.Advance(9 * time.Millisecond)
		res := registry.Check("client", 1, clock.Now())
		if res.Allowed {
			allowed++
			continue
		}
		denied++
		retryAfter = res.RetryAfter
	}
	if allowed != 10 || denied != 1 {
		t.Fatalf("expected 10 allowed and 1 denied, got %d/%d", allowed, denied)
	}
	if retryAfter < 900*time.Millisecond || retryAfter > 1100*time.Millisecond {
		t.Fatalf("unexpected retry hint: %v", retryAfter)
	}

	clock.Advance(time.Second)
	if res := registry.Check("client", 1, clock.Now()); !res.Allowed {
		t.Fatalf("expected take to succeed after one second")
	}
}

func TestClientRegistry_TierChangeResetsBucket(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	registry := NewClientRegistry(TierFree, time.Hour, clock)

	for i := 0; i < 10; i++ {
		if res := registry.Check("client", 1, clock.Now()); !res.Allowed {
			t.Fatalf("expected take %d to succeed", i)
		}
	}
	if res := registry.Check("client", 1, clock.Now()); res.Allowed {
		t.Fatalf("expected drained bucket to deny")
	}

	tier, err := registry.SetTier("client", "PREMIUM")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tier.Name != "PREMIUM" {
		t.Fatalf("unexpected tier: %#v", tier)
	}

	res := registry.Check("client", 1, clock.Now())
	if !res.Allowed || res.Remaining != 199 {
		t.Fatalf("expected fresh premium bucket, got %#v", res)
	}
}

func TestClientRegistry_RouteCostDrain(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	registry := NewClientRegistry(TierFree, time.Hour, clock)
	if _, err := registry.SetTier("client", "BASIC"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 0; i < 10; i++ {
		if res := registry.Check("client", 5, clock.Now()); !res.Allowed {
			t.Fatalf("expected take %d to succeed", i)
		}
	}
	res := registry.Check("client", 5, clock.Now())
	if res.Allowed {
		t.Fatalf("expected denial once drained")
	}
	if res.RetryAfter != time.Second {
		t.Fatalf("expected one second retry hint, got %v", res.RetryAfter)
	}
}

func TestClientRegistry_SetTierUnknown(t *testing.T) {
	t.Parallel()

	registry := NewClientRegistry(TierFree, time.Hour, newFakeClock())
	if _, err := registry.SetTier("client", "PLATINUM"); CodeOf(err) != CodeUnknownTier {
		t.Fatalf("expected unknown tier error, got %v", err)
	}
}

func TestClientRegistry_StatusResetRemove(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	registry := NewClientRegistry(TierFree, time.Hour, clock)

	if _, ok := registry.Status("client"); ok {
		t.Fatalf("expected unknown client before first check")
	}
	registry.Check("client", 4, clock.Now())

	status, ok := registry.Status("client")
	if !ok || status.Tier != "FREE" || status.AvailableTokens != 6 {
		t.Fatalf("unexpected status: %#v", status)
	}

	if !registry.Reset("client") {
		t.Fatalf("expected reset to succeed")
	}
	status, _ = registry.Status("client")
	if status.AvailableTokens != 10 {
		t.Fatalf("expected full bucket after reset, got %v", status.AvailableTokens)
	}

	if !registry.Remove("client") || registry.Remove("client") {
		t.Fatalf("expected remove to succeed exactly once")
	}
}

func TestClientRegistry_SweepEvictsIdleClients(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	registry := NewClientRegistry(TierFree, time.Hour, clock)

	registry.Check("idle", 1, clock.Now())
	clock.Advance(50 * time.Minute)
	registry.Check("active", 1, clock.Now())
	clock.Advance(15 * time.Minute)

	if evicted := registry.Sweep(clock.Now()); evicted != 1 {
		t.Fatalf("expected one eviction, got %d", evicted)
	}
	if _, ok := registry.Status("idle"); ok {
		t.Fatalf("expected idle client to be evicted")
	}
	if _, ok := registry.Status("active"); !ok {
		t.Fatalf("expected active client to survive")
	}
}

func TestClientRegistry_ConcurrentClientsAreIndependent(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	registry := NewClientRegistry(TierFree, time.Hour, clock)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			clientID := fmt.Sprintf("client-%d", i)
			for j := 0; j < 10; j++ {
				if res := registry.Check(clientID, 1, clock.Now()); !res.Allowed {
					t.Errorf("client %s take %d denied", clientID, j)
					return
				}
			}
			if res := registry.Check(clientID, 1, clock.Now()); res.Allowed {
				t.Errorf("client %s expected denial after drain", clientID)
			}
		}(i)
	}
	wg.Wait()

	if got := registry.Len(); got != 16 {
		t.Fatalf("expected 16 tracked clients, got %d", got)
	}
}
