package kernel

import (
	"context"
	"fmt"

	"github.com/agentcore/agentcore/cacheboundary"
	"github.com/agentcore/agentcore/economics"
	"github.com/agentcore/agentcore/swarm"
	"github.com/agentcore/agentcore/telemetry"
	"github.com/agentcore/agentcore/trace"
)

// Spawn creates a subagent kernel sharing this kernel's tool registry,
// journal, and provider chain but owning its own budget tracker, cache
// tracker, and trace view, per spec §2's subagent description: "K creates
// an O-view that writes into the parent's trace file with a tag, and a
// derived B pool."
func (k *Kernel) Spawn(
	ctx context.Context,
	subagentID, subagentType, systemPrompt string,
	pool *swarm.BudgetPool,
	priority swarm.Priority,
) (*Kernel, error) {
	allocated, err := pool.ReserveDynamic(subagentID, priority)
	if err != nil {
		return nil, fmt.Errorf("kernel: spawn %s: %w", subagentID, err)
	}

	childCache := cacheboundary.NewTracker(cacheboundary.Config{})
	childTrace := k.trace.NewView(k.sessionID, subagentID, subagentType, k.iteration, childCache)
	if err := k.trace.RecordEvent(ctx, "", string(trace.RecordSubagentLink), trace.SubagentLinkPayload{
		ChildSessionID: subagentID,
		ChildType:      subagentType,
	}); err != nil {
		return nil, err
	}

	childCfg := k.cfg
	childCfg.MaxToolCalls = 0 // the child's own tool-call cap is governed by its budget allocation, not the parent's

	child := &Kernel{
		sessionID:    subagentID,
		systemPrompt: systemPrompt,
		cfg:          childCfg,
		chain:        k.chain,
		providers:    k.providers,
		budget:       economics.New(economics.Config{MaxTokens: allocated, EnforcementMode: economics.ModeStrict}, k.tel),
		cache:        childCache,
		journal:      k.journal,
		trace:        childTrace,
		tools:        k.tools,
		tel:          k.tel,
		confirm:      k.confirm,
		cancel:       k.cancel.Child(),
		retryCounts:  make(map[string]int),
	}
	return child, nil
}

// Release returns unspent budget to pool once a spawned subagent finishes,
// per spec §4.7's reclaim-on-completion behavior.
func (k *Kernel) Release(pool *swarm.BudgetPool, spent int) {
	pool.ReleaseDynamic(k.sessionID, spent)
}
