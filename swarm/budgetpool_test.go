package swarm

import "testing"

func TestReserveDynamicSplitsEvenlyAmongExpectedChildren(t *testing.T) {
	pool := NewBudgetPool(10000, PoolConfig{ReserveRatio: 0, ExpectedChildren: 4, MaxRemainingRatio: 1})

	a, err := pool.ReserveDynamic("a", PriorityNormal)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != 2500 {
		t.Fatalf("expected even 1/4 share of 10000, got %d", a)
	}
}

func TestReserveDynamicHigherPriorityGetsMoreShare(t *testing.T) {
	pool := NewBudgetPool(10000, PoolConfig{ReserveRatio: 0, ExpectedChildren: 2, MaxRemainingRatio: 1, MaxPerChild: 100000})

	critical, err := pool.ReserveDynamic("a", PriorityCritical)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	normal, err := pool.ReserveDynamic("b", PriorityNormal)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if critical <= normal {
		t.Fatalf("expected critical priority share (%d) to exceed normal share (%d)", critical, normal)
	}
}

func TestReserveDynamicRespectsMaxPerChild(t *testing.T) {
	pool := NewBudgetPool(10000, PoolConfig{ReserveRatio: 0, ExpectedChildren: 1, MaxRemainingRatio: 1, MaxPerChild: 500})

	a, err := pool.ReserveDynamic("a", PriorityNormal)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != 500 {
		t.Fatalf("expected allocation capped at 500, got %d", a)
	}
}

func TestReserveDynamicReturnsStarvationErrorBelowFloor(t *testing.T) {
	pool := NewBudgetPool(100, PoolConfig{ReserveRatio: 0, ExpectedChildren: 10, MaxRemainingRatio: 1, StarvationFloor: 50})

	_, err := pool.ReserveDynamic("a", PriorityNormal)
	if err == nil {
		t.Fatal("expected starvation error")
	}
	if pool.Remaining() != 100 {
		t.Fatalf("expected no mutation on starvation, pool remaining = %d", pool.Remaining())
	}
}

func TestReleaseDynamicReturnsUnspentPortion(t *testing.T) {
	pool := NewBudgetPool(10000, PoolConfig{ReserveRatio: 0, ExpectedChildren: 2, MaxRemainingRatio: 1})

	allocated, err := pool.ReserveDynamic("a", PriorityNormal)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	before := pool.Remaining()
	pool.ReleaseDynamic("a", allocated/2)
	after := pool.Remaining()
	if after <= before {
		t.Fatalf("expected remaining to grow after releasing unspent budget: before=%d after=%d", before, after)
	}
}

func TestReserveDynamicRejectsDuplicateChild(t *testing.T) {
	pool := NewBudgetPool(1000, PoolConfig{ReserveRatio: 0, ExpectedChildren: 1, MaxRemainingRatio: 1})
	if _, err := pool.ReserveDynamic("a", PriorityNormal); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := pool.ReserveDynamic("a", PriorityNormal); err == nil {
		t.Fatal("expected error reserving for the same child twice")
	}
}
