package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/commission-engine/engine"
	"github.com/warp/commission-engine/engine/store"
)

// =============================================================================
// TEST FIXTURES
// =============================================================================

// captureNotifier records every notification for later assertions. Setting
// fail makes every call report an error after recording.
type captureNotifier struct {
	paid    []engine.CommissionInstallment
	overdue []engine.CommissionInstallment
	fail    error
}

func (n *captureNotifier) InstallmentPaid(_ context.Context, inst engine.CommissionInstallment) error {
	n.paid = append(n.paid, inst)
	return n.fail
}

func (n *captureNotifier) InstallmentOverdue(_ context.Context, inst engine.CommissionInstallment) error {
	n.overdue = append(n.overdue, inst)
	return n.fail
}

func seedSchedule(t *testing.T, st *store.Memory, tpl engine.PaymentScheduleTemplate) {
	t.Helper()
	require.NoError(t, st.SaveSchedule(context.Background(), tpl))
}

func seedTransaction(t *testing.T, st *store.Memory, txn engine.Transaction) {
	t.Helper()
	require.NoError(t, st.SaveTransaction(context.Background(), txn))
}

// standardSale is a 10000 commission on 2025-03-15 at a 70% split against the
// standard three-part schedule: 7000 to the agent as 3500 / 2100 / 1400.
func standardSale(t *testing.T, st *store.Memory) engine.Transaction {
	t.Helper()
	seedAgent(t, st, "advisor", engine.RankAdvisor, "")
	tpl := threePartTemplate()
	tpl.IsDefault = true
	seedSchedule(t, st, tpl)

	sched := tpl.ID
	txn := engine.Transaction{
		ID:               "txn-1",
		AgentID:          "advisor",
		CommissionAmount: engine.NewMoney(10000),
		Date:             engine.Date(2025, time.March, 15),
		ScheduleID:       &sched,
		SplitPercent:     engine.NewMoney(70),
	}
	seedTransaction(t, st, txn)
	return txn
}

func newGenerator(st *store.Memory, notifier engine.Notifier) *engine.InstallmentService {
	svc := engine.NewInstallmentService(st, notifier, engine.DefaultConfig())
	svc.Now = func() time.Time { return engine.Date(2025, time.March, 15) }
	return svc
}

// =============================================================================
// GENERATION TESTS
// =============================================================================

func TestGenerate_StandardSchedule_AmountsAndDates(t *testing.T) {
	// GIVEN: A 10000 transaction at 70% split on a 50/30/20 schedule
	// WHEN: Generating installments
	// THEN: Three pending installments, amounts summing back to 7000

	ctx := context.Background()
	st := store.NewMemory()
	txn := standardSale(t, st)

	result, err := newGenerator(st, nil).Generate(ctx, txn.ID)
	require.NoError(t, err)
	assert.Empty(t, result.Warning)
	require.Len(t, result.Installments, 3)

	wantAmounts := []string{"3500.00", "2100.00", "1400.00"}
	wantDates := []time.Time{
		engine.Date(2025, time.March, 15),
		engine.Date(2025, time.April, 14),
		engine.Date(2025, time.May, 14),
	}
	for i, inst := range result.Installments {
		assert.Equal(t, i+1, inst.Number)
		assert.Equal(t, wantAmounts[i], inst.Amount.StringFixed(2))
		assert.True(t, inst.ScheduledDate.Equal(wantDates[i]), "installment %d scheduled %v, want %v", i+1, inst.ScheduledDate, wantDates[i])
		assert.Equal(t, engine.InstallmentPending, inst.Status)
		assert.Equal(t, engine.AgentID("advisor"), inst.AgentID)
	}

	// The store carries the batch and the transaction is flagged.
	stored, err := st.InstallmentsByTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 3)
	reloaded, err := st.GetTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.InstallmentsGenerated)
}

func TestGenerate_SecondCall_AlreadyGenerated(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	txn := standardSale(t, st)
	gen := newGenerator(st, nil)

	_, err := gen.Generate(ctx, txn.ID)
	require.NoError(t, err)

	_, err = gen.Generate(ctx, txn.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrAlreadyGenerated)
	assert.True(t, engine.IsStateConflict(err))
	assert.False(t, engine.IsClientError(err), "resource state, not bad input")

	stored, err := st.InstallmentsByTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 3, "losing call must not add rows")
}

func TestGenerate_NoExplicitSchedule_UsesDefault(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	txn := standardSale(t, st)
	txn.ID = "txn-default"
	txn.ScheduleID = nil
	seedTransaction(t, st, txn)

	result, err := newGenerator(st, nil).Generate(ctx, txn.ID)
	require.NoError(t, err)
	assert.Len(t, result.Installments, 3)
}

func TestGenerate_NoDefaultSchedule_Fails(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	seedAgent(t, st, "advisor", engine.RankAdvisor, "")
	seedTransaction(t, st, engine.Transaction{
		ID:               "txn-orphan",
		AgentID:          "advisor",
		CommissionAmount: engine.NewMoney(1000),
		Date:             engine.Date(2025, time.March, 15),
	})

	_, err := newGenerator(st, nil).Generate(ctx, "txn-orphan")
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrNoDefaultSchedule)
}

func TestGenerate_ZeroSplit_FallsBackToConfigDefault(t *testing.T) {
	// GIVEN: A transaction with no explicit split
	// WHEN: Generating
	// THEN: The configured default split (70%) applies

	ctx := context.Background()
	st := store.NewMemory()
	txn := standardSale(t, st)
	txn.ID = "txn-nosplit"
	txn.SplitPercent = engine.NewMoney(0)
	seedTransaction(t, st, txn)

	result, err := newGenerator(st, nil).Generate(ctx, txn.ID)
	require.NoError(t, err)
	require.Len(t, result.Installments, 3)
	assert.Equal(t, "3500.00", result.Installments[0].Amount.StringFixed(2))
}

func TestGenerate_UnknownTransaction_NotFound(t *testing.T) {
	st := store.NewMemory()
	_, err := newGenerator(st, nil).Generate(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, engine.IsNotFound(err))
}

func TestExpand_SumNotHundred_CarriesWarning(t *testing.T) {
	// Legacy templates can predate write-time validation; Expand flags the
	// shortfall instead of failing.
	tpl := engine.PaymentScheduleTemplate{
		ID:   "legacy",
		Name: "Legacy 80",
		Installments: []engine.InstallmentTemplate{
			{Number: 1, Percent: engine.NewMoney(50), DaysAfter: 0},
			{Number: 2, Percent: engine.NewMoney(30), DaysAfter: 30},
		},
	}
	txn := engine.Transaction{
		ID:               "txn-legacy",
		AgentID:          "advisor",
		CommissionAmount: engine.NewMoney(10000),
		Date:             engine.Date(2025, time.March, 15),
		SplitPercent:     engine.NewMoney(70),
	}

	gen := newGenerator(store.NewMemory(), nil)
	result, err := gen.Expand(txn, tpl)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Warning)
	require.Len(t, result.Installments, 2)
	assert.Equal(t, "3500.00", result.Installments[0].Amount.StringFixed(2))
	assert.Equal(t, "2100.00", result.Installments[1].Amount.StringFixed(2))
}

func TestExpand_NegativeCommission_Rejected(t *testing.T) {
	gen := newGenerator(store.NewMemory(), nil)
	_, err := gen.Expand(engine.Transaction{
		ID:               "txn-neg",
		CommissionAmount: engine.NewMoney(-1),
		Date:             engine.Date(2025, time.March, 15),
	}, threePartTemplate())
	require.Error(t, err)
	assert.True(t, engine.IsClientError(err))
}

func TestExpand_RoundingDoesNotCompound(t *testing.T) {
	// GIVEN: An awkward amount whose thirds do not terminate
	// WHEN: Expanding a 33.33/33.33/33.34 schedule
	// THEN: Each amount is rounded independently from the unrounded base

	tpl := engine.PaymentScheduleTemplate{
		ID:   "thirds",
		Name: "Thirds",
		Installments: []engine.InstallmentTemplate{
			{Number: 1, Percent: engine.MustParseMoney("33.33"), DaysAfter: 0},
			{Number: 2, Percent: engine.MustParseMoney("33.33"), DaysAfter: 30},
			{Number: 3, Percent: engine.MustParseMoney("33.34"), DaysAfter: 60},
		},
	}
	txn := engine.Transaction{
		ID:               "txn-thirds",
		AgentID:          "advisor",
		CommissionAmount: engine.NewMoney(1000),
		Date:             engine.Date(2025, time.March, 15),
		SplitPercent:     engine.NewMoney(100),
	}

	gen := newGenerator(store.NewMemory(), nil)
	result, err := gen.Expand(txn, tpl)
	require.NoError(t, err)
	require.Len(t, result.Installments, 3)
	assert.Equal(t, "333.30", result.Installments[0].Amount.StringFixed(2))
	assert.Equal(t, "333.30", result.Installments[1].Amount.StringFixed(2))
	assert.Equal(t, "333.40", result.Installments[2].Amount.StringFixed(2))
}

// =============================================================================
// REGENERATION TESTS
// =============================================================================

func TestRegenerate_SwitchSchedule_ReplacesBatch(t *testing.T) {
	// GIVEN: A generated 3-part transaction
	// WHEN: Regenerating against an upfront schedule
	// THEN: One installment for the full 7000 replaces the three

	ctx := context.Background()
	st := store.NewMemory()
	txn := standardSale(t, st)
	seedSchedule(t, st, engine.PaymentScheduleTemplate{
		ID:   "upfront",
		Name: "Upfront",
		Installments: []engine.InstallmentTemplate{
			{Number: 1, Percent: engine.NewMoney(100), DaysAfter: 0},
		},
	})
	gen := newGenerator(st, nil)

	_, err := gen.Generate(ctx, txn.ID)
	require.NoError(t, err)

	upfront := engine.ScheduleID("upfront")
	result, err := gen.Regenerate(ctx, txn.ID, &upfront)
	require.NoError(t, err)
	require.Len(t, result.Installments, 1)
	assert.Equal(t, "7000.00", result.Installments[0].Amount.StringFixed(2))

	stored, err := st.InstallmentsByTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 1, "regeneration must replace, not append")
}

func TestRegenerate_PaidInstallment_Refused(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	txn := standardSale(t, st)
	gen := newGenerator(st, nil)

	result, err := gen.Generate(ctx, txn.ID)
	require.NoError(t, err)
	_, err = gen.Process(ctx, result.Installments[0].ID, engine.InstallmentPaid, "")
	require.NoError(t, err)

	_, err = gen.Regenerate(ctx, txn.ID, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrInstallmentsPaid)
	assert.True(t, engine.IsStateConflict(err))

	stored, err := st.InstallmentsByTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 3, "refused regeneration must leave the batch intact")
}

// =============================================================================
// PAYMENT PROCESSING TESTS
// =============================================================================

func TestProcess_MarkPaid_StampsDateAndNotifies(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	txn := standardSale(t, st)
	notifier := &captureNotifier{}
	gen := newGenerator(st, notifier)

	result, err := gen.Generate(ctx, txn.ID)
	require.NoError(t, err)

	inst, err := gen.Process(ctx, result.Installments[0].ID, engine.InstallmentPaid, "wired")
	require.NoError(t, err)
	require.NotNil(t, inst.PaidAt)
	assert.Equal(t, engine.InstallmentPaid, inst.Status)
	assert.Equal(t, "wired", inst.Notes)
	require.Len(t, notifier.paid, 1)
	assert.Equal(t, inst.ID, notifier.paid[0].ID)
}

func TestProcess_RepeatPaid_DoesNotRenotify(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	txn := standardSale(t, st)
	notifier := &captureNotifier{}
	gen := newGenerator(st, notifier)

	result, err := gen.Generate(ctx, txn.ID)
	require.NoError(t, err)
	id := result.Installments[0].ID

	_, err = gen.Process(ctx, id, engine.InstallmentPaid, "")
	require.NoError(t, err)
	_, err = gen.Process(ctx, id, engine.InstallmentPaid, "")
	require.NoError(t, err)

	assert.Len(t, notifier.paid, 1, "only the transition into paid notifies")
}

func TestProcess_NotifierFailure_PaymentStands(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	txn := standardSale(t, st)
	notifier := &captureNotifier{fail: errors.New("webhook down")}
	gen := newGenerator(st, notifier)

	result, err := gen.Generate(ctx, txn.ID)
	require.NoError(t, err)

	inst, err := gen.Process(ctx, result.Installments[0].ID, engine.InstallmentPaid, "")
	require.NoError(t, err, "notifier failure must not fail the payment")
	assert.Equal(t, engine.InstallmentPaid, inst.Status)

	stored, err := st.GetInstallment(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.InstallmentPaid, stored.Status)
	assert.NotNil(t, stored.PaidAt)
}

func TestProcess_BackToPending_ClearsPaidAt(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	txn := standardSale(t, st)
	gen := newGenerator(st, nil)

	result, err := gen.Generate(ctx, txn.ID)
	require.NoError(t, err)
	id := result.Installments[0].ID

	_, err = gen.Process(ctx, id, engine.InstallmentPaid, "")
	require.NoError(t, err)
	inst, err := gen.Process(ctx, id, engine.InstallmentPending, "correction")
	require.NoError(t, err)
	assert.Nil(t, inst.PaidAt)
	assert.Equal(t, engine.InstallmentPending, inst.Status)
}

func TestProcess_UnknownStatus_Rejected(t *testing.T) {
	gen := newGenerator(store.NewMemory(), nil)
	_, err := gen.Process(context.Background(), "any", engine.InstallmentStatus("cancelled"), "")
	require.Error(t, err)
	assert.True(t, engine.IsClientError(err))
}

// =============================================================================
// OVERDUE SWEEP TESTS
// =============================================================================

func TestSweepOverdue_FlipsPastDuePending(t *testing.T) {
	// GIVEN: Three installments scheduled Mar 15 / Apr 14 / May 14
	// WHEN: Sweeping as of Apr 20
	// THEN: The first two flip to overdue; the third stays pending

	ctx := context.Background()
	st := store.NewMemory()
	txn := standardSale(t, st)
	notifier := &captureNotifier{}
	gen := newGenerator(st, notifier)

	_, err := gen.Generate(ctx, txn.ID)
	require.NoError(t, err)

	gen.Now = func() time.Time { return engine.Date(2025, time.April, 20) }
	flipped, err := gen.SweepOverdue(ctx)
	require.NoError(t, err)
	assert.Len(t, flipped, 2)
	assert.Len(t, notifier.overdue, 2)

	stored, err := st.InstallmentsByTransaction(ctx, txn.ID)
	require.NoError(t, err)
	byNumber := map[int]engine.InstallmentStatus{}
	for _, inst := range stored {
		byNumber[inst.Number] = inst.Status
	}
	assert.Equal(t, engine.InstallmentOverdue, byNumber[1])
	assert.Equal(t, engine.InstallmentOverdue, byNumber[2])
	assert.Equal(t, engine.InstallmentPending, byNumber[3])
}

func TestSweepOverdue_PaidInstallments_Untouched(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	txn := standardSale(t, st)
	gen := newGenerator(st, nil)

	result, err := gen.Generate(ctx, txn.ID)
	require.NoError(t, err)
	_, err = gen.Process(ctx, result.Installments[0].ID, engine.InstallmentPaid, "")
	require.NoError(t, err)

	gen.Now = func() time.Time { return engine.Date(2025, time.April, 20) }
	flipped, err := gen.SweepOverdue(ctx)
	require.NoError(t, err)
	require.Len(t, flipped, 1)
	assert.Equal(t, 2, flipped[0].Number)
}
