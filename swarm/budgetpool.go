package swarm

import (
	"fmt"
	"sync"
)

// Priority re-weights a child's share of the shared budget pool.
type Priority string

const (
	PriorityNormal   Priority = ""
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

func (p Priority) weight() float64 {
	switch p {
	case PriorityCritical:
		return 2.0
	case PriorityHigh:
		return 1.5
	default:
		return 1.0
	}
}

// PoolConfig configures a shared budget pool split off a parent budget.
type PoolConfig struct {
	// ReserveRatio is the fraction of the parent budget the parent keeps
	// for itself; the remainder seeds the pool.
	ReserveRatio float64
	// MaxPerChild caps any single reservation regardless of formula.
	MaxPerChild int
	// MaxRemainingRatio caps a reservation as a fraction of what remains
	// in the pool.
	MaxRemainingRatio float64
	// ExpectedChildren is the planner's estimate of total children that
	// will eventually request a reservation, used to keep an even share
	// available for children not yet spawned.
	ExpectedChildren int
	// StarvationFloor is the minimum reservation a child must receive;
	// below this, the pool prefers to defer the spawn rather than
	// under-provision (spec §4.7).
	StarvationFloor int
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.ReserveRatio < 0 {
		c.ReserveRatio = 0
	}
	if c.MaxRemainingRatio <= 0 {
		c.MaxRemainingRatio = 0.5
	}
	if c.ExpectedChildren <= 0 {
		c.ExpectedChildren = 1
	}
	return c
}

// ErrStarvation is returned by ReserveDynamic when the computed allocation
// would fall below the configured floor.
type ErrStarvation struct {
	ChildID  string
	Computed int
	Floor    int
}

func (e *ErrStarvation) Error() string {
	return fmt.Sprintf("swarm: reservation for %s would be %d, below starvation floor %d", e.ChildID, e.Computed, e.Floor)
}

type reservation struct {
	allocated int
	spent     int
}

// BudgetPool is the spec §4.7 shared budget pool: a parent budget split
// into a reserve the parent keeps and a pool children draw dynamic
// reservations from.
type BudgetPool struct {
	mu            sync.Mutex
	cfg           PoolConfig
	poolTotal     int
	poolRemaining int
	spawnedCount  int
	reservations  map[string]*reservation
}

// NewBudgetPool splits parentBudget into a parent reserve and a pool per
// cfg.ReserveRatio.
func NewBudgetPool(parentBudget int, cfg PoolConfig) *BudgetPool {
	cfg = cfg.withDefaults()
	pool := int(float64(parentBudget) * (1 - cfg.ReserveRatio))
	return &BudgetPool{
		cfg:           cfg,
		poolTotal:     pool,
		poolRemaining: pool,
		reservations:  make(map[string]*reservation),
	}
}

// ReserveDynamic allocates a budget share to childID per spec §4.7's
// formula: min(maxPerChild, min(poolRemaining * maxRemainingRatio,
// poolRemaining / max(1, expectedChildren - spawnedCount))), re-weighted by
// priority. Returns ErrStarvation (without mutating state) if the
// resulting allocation is below the configured floor.
func (p *BudgetPool) ReserveDynamic(childID string, priority Priority) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.reservations[childID]; exists {
		return 0, fmt.Errorf("swarm: child %s already has a reservation", childID)
	}

	remainingSlots := p.cfg.ExpectedChildren - p.spawnedCount
	if remainingSlots < 1 {
		remainingSlots = 1
	}
	evenShare := float64(p.poolRemaining) / float64(remainingSlots)
	capShare := float64(p.poolRemaining) * p.cfg.MaxRemainingRatio

	share := evenShare
	if capShare < share {
		share = capShare
	}
	share *= priority.weight()

	allocation := int(share)
	if p.cfg.MaxPerChild > 0 && allocation > p.cfg.MaxPerChild {
		allocation = p.cfg.MaxPerChild
	}
	if allocation > p.poolRemaining {
		allocation = p.poolRemaining
	}

	if p.cfg.StarvationFloor > 0 && allocation < p.cfg.StarvationFloor {
		return 0, &ErrStarvation{ChildID: childID, Computed: allocation, Floor: p.cfg.StarvationFloor}
	}

	p.reservations[childID] = &reservation{allocated: allocation}
	p.poolRemaining -= allocation
	p.spawnedCount++
	return allocation, nil
}

// ReleaseDynamic returns any unspent portion of childID's reservation to
// the pool and marks the reservation complete. spent is how much of the
// allocation the child actually used.
func (p *BudgetPool) ReleaseDynamic(childID string, spent int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	r, ok := p.reservations[childID]
	if !ok {
		return
	}
	r.spent = spent
	unspent := r.allocated - spent
	if unspent > 0 {
		p.poolRemaining += unspent
	}
}

// Remaining reports the pool's current uncommitted balance.
func (p *BudgetPool) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.poolRemaining
}
