package sqlite_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/commission-engine/engine"
	"github.com/warp/commission-engine/store/sqlite"
)

// =============================================================================
// FIXTURES
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func saveAgent(t *testing.T, st *sqlite.Store, id string, rank engine.Rank, upline string) {
	t.Helper()
	a := engine.Agent{
		ID: engine.AgentID(id), Name: id, Rank: rank, Active: true,
		CreatedAt: time.Now().UTC(),
	}
	if upline != "" {
		u := engine.AgentID(upline)
		a.UplineID = &u
	}
	require.NoError(t, st.SaveAgent(context.Background(), a))
}

func saveStandardSchedule(t *testing.T, st *sqlite.Store) engine.PaymentScheduleTemplate {
	t.Helper()
	tpl := engine.PaymentScheduleTemplate{
		ID: "standard", Name: "Standard 3-Part", IsDefault: true,
		Installments: []engine.InstallmentTemplate{
			{Number: 1, Percent: engine.NewMoney(50), DaysAfter: 0, Description: "On closing"},
			{Number: 2, Percent: engine.NewMoney(30), DaysAfter: 30},
			{Number: 3, Percent: engine.NewMoney(20), DaysAfter: 60},
		},
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, st.SaveSchedule(context.Background(), tpl))
	return tpl
}

func saveTransaction(t *testing.T, st *sqlite.Store, id, agentID string) engine.Transaction {
	t.Helper()
	sched := engine.ScheduleID("standard")
	txn := engine.Transaction{
		ID:               engine.TransactionID(id),
		AgentID:          engine.AgentID(agentID),
		CommissionAmount: engine.NewMoney(10000),
		Date:             engine.Date(2025, time.March, 15),
		ScheduleID:       &sched,
		SplitPercent:     engine.NewMoney(70),
		CreatedAt:        time.Now().UTC(),
	}
	require.NoError(t, st.SaveTransaction(context.Background(), txn))
	return txn
}

func sampleBatch(txID engine.TransactionID, agentID engine.AgentID, ids ...string) []engine.CommissionInstallment {
	batch := make([]engine.CommissionInstallment, 0, len(ids))
	for i, id := range ids {
		batch = append(batch, engine.CommissionInstallment{
			ID:            engine.InstallmentID(id),
			TransactionID: txID,
			Number:        i + 1,
			AgentID:       agentID,
			Amount:        engine.NewMoney(100),
			Percent:       engine.NewMoney(50),
			ScheduledDate: engine.Date(2025, time.March, 15).AddDate(0, 0, 30*i),
			Status:        engine.InstallmentPending,
			CreatedAt:     time.Now().UTC(),
		})
	}
	return batch
}

// =============================================================================
// AGENT & RANK TESTS
// =============================================================================

func TestAgentRoundtrip(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	saveAgent(t, st, "leader", engine.RankTeamLeader, "")
	saveAgent(t, st, "ana", engine.RankAdvisor, "leader")

	got, err := st.GetAgent(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, engine.RankAdvisor, got.Rank)
	require.NotNil(t, got.UplineID)
	assert.Equal(t, engine.AgentID("leader"), *got.UplineID)

	// Upsert updates in place.
	got.Rank = engine.RankSeniorAdvisor
	require.NoError(t, st.SaveAgent(ctx, got))
	reloaded, err := st.GetAgent(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, engine.RankSeniorAdvisor, reloaded.Rank)

	agents, err := st.ListAgents(ctx)
	require.NoError(t, err)
	assert.Len(t, agents, 2)
}

func TestGetAgent_Missing_NotFound(t *testing.T) {
	st := newTestStore(t)
	_, err := st.GetAgent(context.Background(), "ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

func TestRankTable_SeededOnFirstRun(t *testing.T) {
	st := newTestStore(t)
	ranks, err := st.RankTable(context.Background())
	require.NoError(t, err)

	def, ok := ranks.Lookup(engine.RankRegionalDirector)
	require.True(t, ok)
	assert.Equal(t, 5, def.Level)
	assert.True(t, def.OverridePercent.Equal(engine.NewMoney(10)))
}

func TestSaveRankDefinitions_ReplacesTable(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	require.NoError(t, st.SaveRankDefinitions(ctx, []engine.RankDefinition{
		{Rank: "junior", OverridePercent: engine.NewMoney(0), Level: 1},
		{Rank: "partner", OverridePercent: engine.NewMoney(12), Level: 2},
	}))

	ranks, err := st.RankTable(ctx)
	require.NoError(t, err)
	_, ok := ranks.Lookup(engine.RankAdvisor)
	assert.False(t, ok, "old rows must be gone")
	def, ok := ranks.Lookup("partner")
	require.True(t, ok)
	assert.True(t, def.OverridePercent.Equal(engine.NewMoney(12)))
}

// =============================================================================
// SCHEDULE TESTS
// =============================================================================

func TestScheduleRoundtrip(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	saveStandardSchedule(t, st)

	got, err := st.GetSchedule(ctx, "standard")
	require.NoError(t, err)
	assert.True(t, got.IsDefault)
	require.Len(t, got.Installments, 3)
	assert.Equal(t, "On closing", got.Installments[0].Description)
	assert.True(t, got.Installments[1].Percent.Equal(engine.NewMoney(30)))
}

func TestGetDefaultSchedule_NoneConfigured(t *testing.T) {
	st := newTestStore(t)
	_, err := st.GetDefaultSchedule(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrNoDefaultSchedule)
}

func TestSaveSchedule_SingleDefaultInvariant(t *testing.T) {
	// GIVEN: An existing default schedule
	// WHEN: Saving another schedule flagged default
	// THEN: The old default is demoted; exactly one default remains

	ctx := context.Background()
	st := newTestStore(t)
	saveStandardSchedule(t, st)

	require.NoError(t, st.SaveSchedule(ctx, engine.PaymentScheduleTemplate{
		ID: "upfront", Name: "Upfront", IsDefault: true,
		Installments: []engine.InstallmentTemplate{
			{Number: 1, Percent: engine.NewMoney(100), DaysAfter: 0},
		},
		CreatedAt: time.Now().UTC(),
	}))

	def, err := st.GetDefaultSchedule(ctx)
	require.NoError(t, err)
	assert.Equal(t, engine.ScheduleID("upfront"), def.ID)

	old, err := st.GetSchedule(ctx, "standard")
	require.NoError(t, err)
	assert.False(t, old.IsDefault)
}

// =============================================================================
// TRANSACTION & INSTALLMENT TESTS
// =============================================================================

func TestTransactionRoundtrip(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	saveAgent(t, st, "ana", engine.RankAdvisor, "")
	saveStandardSchedule(t, st)
	saveTransaction(t, st, "txn-1", "ana")

	got, err := st.GetTransaction(ctx, "txn-1")
	require.NoError(t, err)
	assert.True(t, got.CommissionAmount.Equal(engine.NewMoney(10000)))
	assert.True(t, got.SplitPercent.Equal(engine.NewMoney(70)))
	require.NotNil(t, got.ScheduleID)
	assert.False(t, got.InstallmentsGenerated)

	list, err := st.ListTransactionsByAgent(ctx, "ana")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCreateInstallments_SetsFlagAndInserts(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	saveAgent(t, st, "ana", engine.RankAdvisor, "")
	saveStandardSchedule(t, st)
	txn := saveTransaction(t, st, "txn-1", "ana")

	err := st.CreateInstallments(ctx, txn.ID, sampleBatch(txn.ID, "ana", "i-1", "i-2"))
	require.NoError(t, err)

	reloaded, err := st.GetTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.InstallmentsGenerated)

	stored, err := st.InstallmentsByTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestCreateInstallments_SecondCall_AlreadyGenerated(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	saveAgent(t, st, "ana", engine.RankAdvisor, "")
	saveStandardSchedule(t, st)
	txn := saveTransaction(t, st, "txn-1", "ana")

	require.NoError(t, st.CreateInstallments(ctx, txn.ID, sampleBatch(txn.ID, "ana", "i-1")))

	err := st.CreateInstallments(ctx, txn.ID, sampleBatch(txn.ID, "ana", "i-9"))
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrAlreadyGenerated)

	stored, err := st.InstallmentsByTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 1, "losing batch must leave no rows")
}

func TestCreateInstallments_MissingTransaction_NotFound(t *testing.T) {
	st := newTestStore(t)
	err := st.CreateInstallments(context.Background(), "ghost", sampleBatch("ghost", "ana", "i-1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

func TestCreateInstallments_ConcurrentCallers_ExactlyOneWins(t *testing.T) {
	// GIVEN: Two goroutines generating for the same transaction
	// WHEN: Both race through the conditional flag update
	// THEN: Exactly one batch lands

	ctx := context.Background()
	st := newTestStore(t)
	saveAgent(t, st, "ana", engine.RankAdvisor, "")
	saveStandardSchedule(t, st)
	txn := saveTransaction(t, st, "txn-race", "ana")

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			batch := sampleBatch(txn.ID, "ana",
				fmt.Sprintf("a-%d", i), fmt.Sprintf("b-%d", i), fmt.Sprintf("c-%d", i))
			errs[i] = st.CreateInstallments(ctx, txn.ID, batch)
		}(i)
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, engine.ErrAlreadyGenerated)
			failures++
		}
	}
	assert.Equal(t, 1, failures, "exactly one caller must lose")

	stored, err := st.InstallmentsByTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 3)
}

func TestResetInstallments_ClearsBatchAndFlag(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	saveAgent(t, st, "ana", engine.RankAdvisor, "")
	saveStandardSchedule(t, st)
	require.NoError(t, st.SaveSchedule(ctx, engine.PaymentScheduleTemplate{
		ID: "upfront", Name: "Upfront",
		Installments: []engine.InstallmentTemplate{
			{Number: 1, Percent: engine.NewMoney(100), DaysAfter: 0},
		},
		CreatedAt: time.Now().UTC(),
	}))
	txn := saveTransaction(t, st, "txn-1", "ana")
	require.NoError(t, st.CreateInstallments(ctx, txn.ID, sampleBatch(txn.ID, "ana", "i-1", "i-2")))

	upfront := engine.ScheduleID("upfront")
	require.NoError(t, st.ResetInstallments(ctx, txn.ID, &upfront))

	stored, err := st.InstallmentsByTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Empty(t, stored)

	reloaded, err := st.GetTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.InstallmentsGenerated)
	require.NotNil(t, reloaded.ScheduleID)
	assert.Equal(t, upfront, *reloaded.ScheduleID)
}

func TestUpdateInstallment_PersistsPaymentState(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	saveAgent(t, st, "ana", engine.RankAdvisor, "")
	saveStandardSchedule(t, st)
	txn := saveTransaction(t, st, "txn-1", "ana")
	require.NoError(t, st.CreateInstallments(ctx, txn.ID, sampleBatch(txn.ID, "ana", "i-1")))

	inst, err := st.GetInstallment(ctx, "i-1")
	require.NoError(t, err)
	paidAt := engine.Date(2025, time.March, 20)
	inst.Status = engine.InstallmentPaid
	inst.PaidAt = &paidAt
	inst.Notes = "wire received"
	require.NoError(t, st.UpdateInstallment(ctx, inst))

	reloaded, err := st.GetInstallment(ctx, "i-1")
	require.NoError(t, err)
	assert.Equal(t, engine.InstallmentPaid, reloaded.Status)
	require.NotNil(t, reloaded.PaidAt)
	assert.True(t, reloaded.PaidAt.Equal(paidAt))
	assert.Equal(t, "wire received", reloaded.Notes)
}

func TestDueInstallments_PendingBeforeCutoffOnly(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	saveAgent(t, st, "ana", engine.RankAdvisor, "")
	saveStandardSchedule(t, st)
	txn := saveTransaction(t, st, "txn-1", "ana")
	// Batch scheduled Mar 15 / Apr 14 / May 14.
	require.NoError(t, st.CreateInstallments(ctx, txn.ID, sampleBatch(txn.ID, "ana", "i-1", "i-2", "i-3")))

	// Mark the first paid; it must not be swept.
	inst, err := st.GetInstallment(ctx, "i-1")
	require.NoError(t, err)
	inst.Status = engine.InstallmentPaid
	require.NoError(t, st.UpdateInstallment(ctx, inst))

	due, err := st.DueInstallments(ctx, engine.Date(2025, time.April, 20))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, engine.InstallmentID("i-2"), due[0].ID)
}

// =============================================================================
// APPROVAL TESTS
// =============================================================================

func openApproval(t *testing.T, st *sqlite.Store, id, txID string) engine.CommissionApproval {
	t.Helper()
	a := engine.CommissionApproval{
		ID:               engine.ApprovalID(id),
		TransactionID:    engine.TransactionID(txID),
		Status:           engine.ApprovalPending,
		SubmittedBy:      "alice",
		SubmittedAt:      time.Now().UTC(),
		CommissionAmount: engine.NewMoney(10000),
	}
	require.NoError(t, st.CreateApproval(context.Background(), a, engine.ApprovalHistoryEntry{
		ID: id + "-h0", ApprovalID: a.ID, NewStatus: engine.ApprovalPending,
		Actor: "alice", Notes: "submitted", At: time.Now().UTC(),
	}))
	return a
}

func TestApprovalRoundtrip(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	saveAgent(t, st, "ana", engine.RankAdvisor, "")
	saveStandardSchedule(t, st)
	saveTransaction(t, st, "txn-1", "ana")
	openApproval(t, st, "app-1", "txn-1")

	got, err := st.GetApproval(ctx, "app-1")
	require.NoError(t, err)
	assert.Equal(t, engine.ApprovalPending, got.Status)

	byTx, err := st.GetApprovalByTransaction(ctx, "txn-1")
	require.NoError(t, err)
	assert.Equal(t, got.ID, byTx.ID)

	history, err := st.ApprovalHistory(ctx, "app-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "submitted", history[0].Notes)

	pending, err := st.ListApprovalsByStatus(ctx, engine.ApprovalPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestCreateApproval_DuplicateTransaction_Conflict(t *testing.T) {
	st := newTestStore(t)
	saveAgent(t, st, "ana", engine.RankAdvisor, "")
	saveStandardSchedule(t, st)
	saveTransaction(t, st, "txn-1", "ana")
	openApproval(t, st, "app-1", "txn-1")

	err := st.CreateApproval(context.Background(), engine.CommissionApproval{
		ID: "app-2", TransactionID: "txn-1", Status: engine.ApprovalPending,
		SubmittedBy: "bob", SubmittedAt: time.Now().UTC(),
		CommissionAmount: engine.NewMoney(10000),
	}, engine.ApprovalHistoryEntry{
		ID: "app-2-h0", ApprovalID: "app-2", NewStatus: engine.ApprovalPending,
		Actor: "bob", At: time.Now().UTC(),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrConflict)
}

func TestUpdateApprovalStatus_AppendsHistory(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	saveAgent(t, st, "ana", engine.RankAdvisor, "")
	saveStandardSchedule(t, st)
	saveTransaction(t, st, "txn-1", "ana")
	openApproval(t, st, "app-1", "txn-1")

	err := st.UpdateApprovalStatus(ctx, "app-1",
		engine.ApprovalPending, engine.ApprovalUnderReview,
		engine.ApprovalHistoryEntry{
			ID: "h-1", ApprovalID: "app-1",
			PreviousStatus: engine.ApprovalPending, NewStatus: engine.ApprovalUnderReview,
			Actor: "bob", At: time.Now().UTC(),
		})
	require.NoError(t, err)

	got, err := st.GetApproval(ctx, "app-1")
	require.NoError(t, err)
	assert.Equal(t, engine.ApprovalUnderReview, got.Status)

	history, err := st.ApprovalHistory(ctx, "app-1")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestUpdateApprovalStatus_StaleFrom_Conflict(t *testing.T) {
	// GIVEN: An approval still pending
	// WHEN: Writing conditioned on under_review
	// THEN: ErrConflict, status unchanged, no history appended

	ctx := context.Background()
	st := newTestStore(t)
	saveAgent(t, st, "ana", engine.RankAdvisor, "")
	saveStandardSchedule(t, st)
	saveTransaction(t, st, "txn-1", "ana")
	openApproval(t, st, "app-1", "txn-1")

	err := st.UpdateApprovalStatus(ctx, "app-1",
		engine.ApprovalUnderReview, engine.ApprovalApproved,
		engine.ApprovalHistoryEntry{
			ID: "h-stale", ApprovalID: "app-1",
			PreviousStatus: engine.ApprovalUnderReview, NewStatus: engine.ApprovalApproved,
			Actor: "bob", At: time.Now().UTC(),
		})
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrConflict)

	got, err := st.GetApproval(ctx, "app-1")
	require.NoError(t, err)
	assert.Equal(t, engine.ApprovalPending, got.Status)

	history, err := st.ApprovalHistory(ctx, "app-1")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestUpdateApprovalStatus_Missing_NotFound(t *testing.T) {
	st := newTestStore(t)
	err := st.UpdateApprovalStatus(context.Background(), "ghost",
		engine.ApprovalPending, engine.ApprovalUnderReview,
		engine.ApprovalHistoryEntry{ID: "h-1", ApprovalID: "ghost", At: time.Now().UTC()})
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

// =============================================================================
// CONFIG TESTS
// =============================================================================

func TestCutoffDay_DefaultThenOverride(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	day, err := st.GetCutoffDay(ctx)
	require.NoError(t, err)
	assert.Equal(t, engine.DefaultCutoffDay, day)

	require.NoError(t, st.SetCutoffDay(ctx, 15))
	day, err = st.GetCutoffDay(ctx)
	require.NoError(t, err)
	assert.Equal(t, 15, day)

	require.NoError(t, st.SetCutoffDay(ctx, 20))
	day, err = st.GetCutoffDay(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, day)
}

func TestSetCutoffDay_OutOfRange_Rejected(t *testing.T) {
	st := newTestStore(t)
	for _, day := range []int{0, 32, -1} {
		err := st.SetCutoffDay(context.Background(), day)
		require.Error(t, err, "day %d", day)
		assert.ErrorIs(t, err, engine.ErrValidation)
	}
}
