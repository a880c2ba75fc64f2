package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/commission-engine/engine"
	"github.com/warp/commission-engine/engine/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func seedAgent(t *testing.T, st *store.Memory, id string, rank engine.Rank, upline string) {
	t.Helper()
	a := engine.Agent{ID: engine.AgentID(id), Name: id, Rank: rank, Active: true}
	if upline != "" {
		u := engine.AgentID(upline)
		a.UplineID = &u
	}
	require.NoError(t, st.SaveAgent(context.Background(), a))
}

func newCalculator(t *testing.T, st *store.Memory) *engine.OverrideCalculator {
	t.Helper()
	ranks, err := st.RankTable(context.Background())
	require.NoError(t, err)
	return engine.NewOverrideCalculator(ranks, engine.DefaultConfig())
}

// =============================================================================
// OVERRIDE COMPUTATION TESTS
// =============================================================================

func TestOverrides_ThreeLevelChain_TwoOverrides(t *testing.T) {
	// GIVEN: advisor -> team leader -> regional director
	// WHEN: Computing overrides for a 10000 base commission
	// THEN: Both uplines qualify, at their own rank's percentage

	ctx := context.Background()
	st := store.NewMemory()
	seedAgent(t, st, "director", engine.RankRegionalDirector, "")
	seedAgent(t, st, "leader", engine.RankTeamLeader, "director")
	seedAgent(t, st, "advisor", engine.RankAdvisor, "leader")

	calc := newCalculator(t, st)
	overrides, err := calc.OverridesForAgent(ctx, st, "advisor", engine.NewMoney(10000))
	require.NoError(t, err)

	require.Len(t, overrides, 2)
	assert.Equal(t, engine.AgentID("leader"), overrides[0].AgentID)
	assert.Equal(t, "500.00", overrides[0].Amount.StringFixed(2)) // 5% of 10000
	assert.Equal(t, engine.AgentID("director"), overrides[1].AgentID)
	assert.Equal(t, "1000.00", overrides[1].Amount.StringFixed(2)) // 10% of 10000
	for _, o := range overrides {
		assert.Equal(t, engine.AgentID("advisor"), o.BaseAgentID)
	}
}

func TestOverrides_EqualRankLink_SkippedButWalkContinues(t *testing.T) {
	// GIVEN: advisor -> team leader -> team leader -> group leader
	// WHEN: Computing overrides
	// THEN: The second team leader earns nothing (equal to its child), but
	//       the group leader above still qualifies

	ctx := context.Background()
	st := store.NewMemory()
	seedAgent(t, st, "group", engine.RankGroupLeader, "")
	seedAgent(t, st, "leader-2", engine.RankTeamLeader, "group")
	seedAgent(t, st, "leader-1", engine.RankTeamLeader, "leader-2")
	seedAgent(t, st, "advisor", engine.RankAdvisor, "leader-1")

	calc := newCalculator(t, st)
	overrides, err := calc.OverridesForAgent(ctx, st, "advisor", engine.NewMoney(1000))
	require.NoError(t, err)

	require.Len(t, overrides, 2)
	assert.Equal(t, engine.AgentID("leader-1"), overrides[0].AgentID)
	assert.Equal(t, "50.00", overrides[0].Amount.StringFixed(2))
	assert.Equal(t, engine.AgentID("group"), overrides[1].AgentID)
	assert.Equal(t, "80.00", overrides[1].Amount.StringFixed(2))
}

func TestOverrides_LowerRankedUpline_EarnsNothing(t *testing.T) {
	// GIVEN: A team leader whose upline is an advisor (demoted, say)
	// WHEN: Computing overrides on the team leader's sale
	// THEN: No overrides at all

	ctx := context.Background()
	st := store.NewMemory()
	seedAgent(t, st, "upline-advisor", engine.RankAdvisor, "")
	seedAgent(t, st, "leader", engine.RankTeamLeader, "upline-advisor")

	calc := newCalculator(t, st)
	overrides, err := calc.OverridesForAgent(ctx, st, "leader", engine.NewMoney(1000))
	require.NoError(t, err)
	assert.Empty(t, overrides)
}

func TestOverrides_NoUpline_NoOverrides(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	seedAgent(t, st, "solo", engine.RankAdvisor, "")

	calc := newCalculator(t, st)
	overrides, err := calc.OverridesForAgent(ctx, st, "solo", engine.NewMoney(1000))
	require.NoError(t, err)
	assert.Empty(t, overrides)
}

func TestOverrides_ZeroCommission_ZeroAmounts(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	seedAgent(t, st, "leader", engine.RankTeamLeader, "")
	seedAgent(t, st, "advisor", engine.RankAdvisor, "leader")

	calc := newCalculator(t, st)
	overrides, err := calc.OverridesForAgent(ctx, st, "advisor", engine.NewMoney(0))
	require.NoError(t, err)
	require.Len(t, overrides, 1)
	assert.True(t, overrides[0].Amount.IsZero())
}

func TestOverrides_NegativeCommission_Rejected(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	seedAgent(t, st, "advisor", engine.RankAdvisor, "")

	calc := newCalculator(t, st)
	_, err := calc.OverridesForAgent(ctx, st, "advisor", engine.NewMoney(-1))
	require.Error(t, err)
	assert.True(t, engine.IsClientError(err))
}

// =============================================================================
// CHAIN SAFETY TESTS
// =============================================================================

func TestResolveChain_Cycle_Detected(t *testing.T) {
	// GIVEN: a -> b -> a (malformed data)
	// WHEN: Resolving the chain
	// THEN: Fails with an invalid-hierarchy error instead of looping

	ctx := context.Background()
	st := store.NewMemory()
	seedAgent(t, st, "a", engine.RankAdvisor, "b")
	seedAgent(t, st, "b", engine.RankTeamLeader, "a")

	calc := newCalculator(t, st)
	_, err := calc.ResolveChain(ctx, st, "a")
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrInvalidHierarchy)
}

func TestResolveChain_SelfUpline_Detected(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	seedAgent(t, st, "narcissist", engine.RankTeamLeader, "narcissist")

	calc := newCalculator(t, st)
	_, err := calc.ResolveChain(ctx, st, "narcissist")
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrInvalidHierarchy)
}

func TestResolveChain_DepthBound_Enforced(t *testing.T) {
	// GIVEN: A chain longer than the configured max depth
	// WHEN: Resolving it
	// THEN: Fails with an invalid-hierarchy error

	ctx := context.Background()
	st := store.NewMemory()
	seedAgent(t, st, "n3", engine.RankRegionalDirector, "")
	seedAgent(t, st, "n2", engine.RankGroupLeader, "n3")
	seedAgent(t, st, "n1", engine.RankTeamLeader, "n2")
	seedAgent(t, st, "n0", engine.RankAdvisor, "n1")

	cfg := engine.DefaultConfig()
	cfg.MaxHierarchyDepth = 2
	ranks, err := st.RankTable(ctx)
	require.NoError(t, err)
	calc := engine.NewOverrideCalculator(ranks, cfg)

	_, err = calc.ResolveChain(ctx, st, "n0")
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrInvalidHierarchy)
}

func TestResolveChain_MissingUpline_NotFound(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	seedAgent(t, st, "orphan", engine.RankAdvisor, "ghost")

	calc := newCalculator(t, st)
	_, err := calc.ResolveChain(ctx, st, "orphan")
	require.Error(t, err)
	assert.True(t, engine.IsNotFound(err))
}

// =============================================================================
// DATA-DRIVEN RANK TABLE TESTS
// =============================================================================

func TestOverrides_CustomRankTable_Used(t *testing.T) {
	// GIVEN: A rank table with a non-default override percentage
	// WHEN: Computing overrides
	// THEN: The stored percentage applies, not the stock one

	ctx := context.Background()
	st := store.NewMemory()
	require.NoError(t, st.SaveRankDefinitions(ctx, []engine.RankDefinition{
		{Rank: engine.RankAdvisor, OverridePercent: engine.NewMoney(0), Level: 1},
		{Rank: engine.RankTeamLeader, OverridePercent: engine.NewMoney(7.5), Level: 3},
	}))
	seedAgent(t, st, "leader", engine.RankTeamLeader, "")
	seedAgent(t, st, "advisor", engine.RankAdvisor, "leader")

	calc := newCalculator(t, st)
	overrides, err := calc.OverridesForAgent(ctx, st, "advisor", engine.NewMoney(1000))
	require.NoError(t, err)
	require.Len(t, overrides, 1)
	assert.Equal(t, "75.00", overrides[0].Amount.StringFixed(2))
}

func TestOverrides_UnknownRank_Rejected(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	seedAgent(t, st, "mystery", engine.Rank("partner"), "")

	calc := newCalculator(t, st)
	_, err := calc.ResolveChain(ctx, st, "mystery")
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrValidation)
}
