/*
hierarchy.go - Override commission calculation over the reporting hierarchy

PURPOSE:
  Walks the upline chain of a producing agent and computes override
  commissions for qualifying upline agents. Pure function of its inputs; no
  side effects.

THE RULE:
  At each link, compare the upline's rank level to the CURRENT node's level,
  not the original base agent's. Strictly greater earns an override of
  baseCommission x uplinePercent / 100. Equal or lower earns nothing for
  that link, but the walk continues: a higher rank further up can still
  qualify against ITS immediate child.

EXAMPLE:
  Advisor -> Team Leader -> Team Leader -> Group Leader, commission 1000:
    link 1: Team Leader > Advisor          -> override
    link 2: Team Leader == Team Leader     -> nothing, keep climbing
    link 3: Group Leader > Team Leader     -> override
  Two entries total.

SAFETY:
  The chain must be acyclic. The walk is bounded by Config.MaxHierarchyDepth;
  exceeding it (or revisiting a node) fails with an invalid-hierarchy error
  rather than looping forever on malformed data.
*/
package engine

import "context"

// =============================================================================
// CHAIN RESOLUTION
// =============================================================================

// AgentNode is one resolved node of an upline chain: the agent plus its rank
// definition. Built by ResolveChain or directly by callers/tests.
type AgentNode struct {
	Agent Agent
	Def   RankDefinition
}

// OverrideCalculator computes upline override commissions.
type OverrideCalculator struct {
	Ranks  *RankTable
	Config Config
}

func NewOverrideCalculator(ranks *RankTable, cfg Config) *OverrideCalculator {
	return &OverrideCalculator{Ranks: ranks, Config: cfg}
}

// ResolveChain loads base agent plus its full upline chain from the store,
// base first. Fails with a hierarchy error on a cycle or when the chain
// exceeds the configured depth.
func (oc *OverrideCalculator) ResolveChain(ctx context.Context, agents AgentStore, baseID AgentID) ([]AgentNode, error) {
	maxDepth := oc.Config.MaxHierarchyDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxHierarchyDepth
	}

	var chain []AgentNode
	seen := make(map[AgentID]bool)

	id := &baseID
	for depth := 0; id != nil; depth++ {
		if depth >= maxDepth {
			return nil, &HierarchyError{AgentID: *id, Depth: depth, Reason: "max depth exceeded"}
		}
		if seen[*id] {
			return nil, &HierarchyError{AgentID: *id, Depth: depth, Reason: "cycle"}
		}
		seen[*id] = true

		agent, err := agents.GetAgent(ctx, *id)
		if err != nil {
			return nil, err
		}
		def, ok := oc.Ranks.Lookup(agent.Rank)
		if !ok {
			return nil, &ValidationError{Field: "rank", Message: "unknown rank " + string(agent.Rank)}
		}
		chain = append(chain, AgentNode{Agent: agent, Def: def})
		id = agent.UplineID
	}
	return chain, nil
}

// =============================================================================
// OVERRIDE COMPUTATION
// =============================================================================

// ComputeOverrides produces override entries for qualifying upline agents.
// chain is base-first, as returned by ResolveChain. baseCommission must be
// non-negative.
func (oc *OverrideCalculator) ComputeOverrides(baseCommission Money, chain []AgentNode) ([]OverrideCommission, error) {
	if baseCommission.IsNegative() {
		return nil, &ValidationError{Field: "commission", Message: "must be non-negative"}
	}
	if len(chain) == 0 {
		return nil, &ValidationError{Field: "chain", Message: "must contain the base agent"}
	}

	maxDepth := oc.Config.MaxHierarchyDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxHierarchyDepth
	}
	if len(chain) > maxDepth {
		last := chain[len(chain)-1]
		return nil, &HierarchyError{AgentID: last.Agent.ID, Depth: len(chain), Reason: "max depth exceeded"}
	}

	base := chain[0]
	var overrides []OverrideCommission

	// Each link is evaluated against its immediate child, so overrides can
	// compound rank-by-rank up a multi-level chain.
	current := base
	for _, upline := range chain[1:] {
		if upline.Def.Level > current.Def.Level {
			overrides = append(overrides, OverrideCommission{
				AgentID:     upline.Agent.ID,
				BaseAgentID: base.Agent.ID,
				Rank:        upline.Agent.Rank,
				Percent:     upline.Def.OverridePercent,
				Amount:      RoundCurrency(Percent(baseCommission, upline.Def.OverridePercent)),
			})
		}
		current = upline
	}
	return overrides, nil
}

// OverridesForAgent resolves the chain from the store and computes overrides
// in one step. Read-only; safe under unbounded parallelism.
func (oc *OverrideCalculator) OverridesForAgent(ctx context.Context, agents AgentStore, baseID AgentID, baseCommission Money) ([]OverrideCommission, error) {
	chain, err := oc.ResolveChain(ctx, agents, baseID)
	if err != nil {
		return nil, err
	}
	return oc.ComputeOverrides(baseCommission, chain)
}
