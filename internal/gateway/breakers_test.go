package gateway

import (
	"testing"
	"time"
)

func TestBreakerRegistry_PerUpstreamOptions(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	registry := NewBreakerRegistry(map[string]CircuitOptions{
		"fragile": {FailureThreshold: 1, SuccessThreshold: 1, RecoveryTimeout: time.Minute},
	}, CircuitOptions{FailureThreshold: 5, SuccessThreshold: 3, RecoveryTimeout: 30 * time.Second}, clock)

	registry.Report("fragile", false, clock.Now())
	registry.Report("sturdy", false, clock.Now())

	if ok, _ := registry.Allow("fragile", clock.Now()); ok {
		t.Fatalf("expected fragile upstream to trip on one failure")
	}
	if ok, _ := registry.Allow("sturdy", clock.Now()); !ok {
		t.Fatalf("expected sturdy upstream to stay closed")
	}
}

func TestBreakerRegistry_SnapshotReportsState(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	registry := NewBreakerRegistry(nil, CircuitOptions{FailureThreshold: 2, SuccessThreshold: 1, RecoveryTimeout: time.Minute}, clock)

	registry.Report("orders", false, clock.Now())
	registry.Report("orders", true, clock.Now())
	registry.Report("billing", false, clock.Now())
	registry.Report("billing", false, clock.Now())
	clock.Advance(5 * time.Second)

	snapshots := registry.Snapshot()
	if len(snapshots) != 2 {
		t.Fatalf("expected two breakers, got %d", len(snapshots))
	}
	billing, orders := snapshots[0], snapshots[1]
	if billing.Name != "billing" || orders.Name != "orders" {
		t.Fatalf("expected sorted snapshots: %#v", snapshots)
	}
	if billing.State != "open" || billing.TotalFailures != 2 {
		t.Fatalf("unexpected billing snapshot: %#v", billing)
	}
	if billing.OpenedAt.IsZero() || billing.TimeInState != 5*time.Second {
		t.Fatalf("unexpected billing timing: %#v", billing)
	}
	if orders.State != "closed" || orders.TotalRequests != 2 {
		t.Fatalf("unexpected orders snapshot: %#v", orders)
	}
}

func TestBreakerRegistry_ResetAll(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	registry := NewBreakerRegistry(nil, CircuitOptions{FailureThreshold: 1, SuccessThreshold: 1, RecoveryTimeout: time.Hour}, clock)

	registry.Report("a", false, clock.Now())
	registry.Report("b", false, clock.Now())
	registry.ResetAll()

	for _, name := range []string{"a", "b"} {
		if ok, _ := registry.Allow(name, clock.Now()); !ok {
			t.Fatalf("expected %s to admit after reset", name)
		}
	}
}
