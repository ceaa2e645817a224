package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/khatupay/khatu-backend/internal/domain"
	"github.com/khatupay/khatu-backend/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// disbursedLoan seeds a zero-rate loan of 1000 over 4 months (4 x 250.00)
// disbursed on 2025-01-01, which keeps installment amounts easy to reason
// about in payment tests.
func disbursedLoan(t *testing.T, loanRepo *testutil.MockLoanRepository, instRepo *testutil.MockInstallmentRepository) *domain.Loan {
	t.Helper()

	loan := newApprovedLoan(loanRepo, "1000", "0", 4)
	sched := NewScheduleService(testutil.NewMockTxManager(), loanRepo, instRepo)
	result, err := sched.Disburse(context.Background(), loan.ID, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return result
}

func event(loanID int64, amount string, installmentNo *int) domain.PaymentEvent {
	return domain.PaymentEvent{
		LoanID:        loanID,
		Amount:        decimal.RequireFromString(amount),
		Timestamp:     time.Date(2025, 2, 3, 10, 0, 0, 0, time.UTC),
		InstallmentNo: installmentNo,
		Reference:     uuid.New(),
	}
}

func intp(v int) *int { return &v }

func TestApply_TargetedExactAmount(t *testing.T) {
	loanRepo := testutil.NewMockLoanRepository()
	instRepo := testutil.NewMockInstallmentRepository()
	loan := disbursedLoan(t, loanRepo, instRepo)
	svc := NewPaymentService(testutil.NewMockTxManager(), loanRepo, instRepo)

	applied, err := svc.Apply(context.Background(), event(loan.ID, "250.00", intp(2)))
	require.NoError(t, err)

	assert.Equal(t, []int{2}, applied.PaidInstallments)
	assert.Equal(t, "250.00", applied.AppliedAmount.StringFixed(2))
	assert.Equal(t, "0.00", applied.UnappliedAmount.StringFixed(2))
	assert.Equal(t, "750.00", applied.Outstanding.StringFixed(2))

	schedule, _ := instRepo.GetByLoanID(context.Background(), loan.ID)
	assert.True(t, schedule[1].Paid)
	require.NotNil(t, schedule[1].PaidAt)
	require.NotNil(t, schedule[1].PaymentRef)
	assert.False(t, schedule[0].Paid)
	assert.False(t, schedule[2].Paid)
}

func TestApply_TargetedOvershootNotCarriedForward(t *testing.T) {
	loanRepo := testutil.NewMockLoanRepository()
	instRepo := testutil.NewMockInstallmentRepository()
	loan := disbursedLoan(t, loanRepo, instRepo)
	svc := NewPaymentService(testutil.NewMockTxManager(), loanRepo, instRepo)

	// 600 against a 250 installment pays that one installment only.
	applied, err := svc.Apply(context.Background(), event(loan.ID, "600.00", intp(1)))
	require.NoError(t, err)

	assert.Equal(t, []int{1}, applied.PaidInstallments)
	assert.Equal(t, "350.00", applied.UnappliedAmount.StringFixed(2))
	assert.Equal(t, "750.00", applied.Outstanding.StringFixed(2))
}

func TestApply_TargetedInsufficient(t *testing.T) {
	loanRepo := testutil.NewMockLoanRepository()
	instRepo := testutil.NewMockInstallmentRepository()
	loan := disbursedLoan(t, loanRepo, instRepo)
	svc := NewPaymentService(testutil.NewMockTxManager(), loanRepo, instRepo)

	_, err := svc.Apply(context.Background(), event(loan.ID, "249.99", intp(1)))
	assert.ErrorIs(t, err, domain.ErrInsufficientPayment)
}

func TestApply_TargetedUnknownInstallment(t *testing.T) {
	loanRepo := testutil.NewMockLoanRepository()
	instRepo := testutil.NewMockInstallmentRepository()
	loan := disbursedLoan(t, loanRepo, instRepo)
	svc := NewPaymentService(testutil.NewMockTxManager(), loanRepo, instRepo)

	_, err := svc.Apply(context.Background(), event(loan.ID, "250.00", intp(5)))
	assert.ErrorIs(t, err, domain.ErrUnknownInstallment)
}

func TestApply_TargetedAlreadyPaid(t *testing.T) {
	loanRepo := testutil.NewMockLoanRepository()
	instRepo := testutil.NewMockInstallmentRepository()
	loan := disbursedLoan(t, loanRepo, instRepo)
	svc := NewPaymentService(testutil.NewMockTxManager(), loanRepo, instRepo)

	_, err := svc.Apply(context.Background(), event(loan.ID, "250.00", intp(1)))
	require.NoError(t, err)

	_, err = svc.Apply(context.Background(), event(loan.ID, "250.00", intp(1)))
	assert.ErrorIs(t, err, domain.ErrAlreadyPaid)
}

func TestApply_WaterfallOldestFirst(t *testing.T) {
	loanRepo := testutil.NewMockLoanRepository()
	instRepo := testutil.NewMockInstallmentRepository()
	loan := disbursedLoan(t, loanRepo, instRepo)
	svc := NewPaymentService(testutil.NewMockTxManager(), loanRepo, instRepo)

	// 620 covers installments 1 and 2, leaving 120 unapplied.
	applied, err := svc.Apply(context.Background(), event(loan.ID, "620.00", nil))
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2}, applied.PaidInstallments)
	assert.Equal(t, "500.00", applied.AppliedAmount.StringFixed(2))
	assert.Equal(t, "120.00", applied.UnappliedAmount.StringFixed(2))
	assert.Equal(t, "500.00", applied.Outstanding.StringFixed(2))

	schedule, _ := instRepo.GetByLoanID(context.Background(), loan.ID)
	assert.True(t, schedule[0].Paid)
	assert.True(t, schedule[1].Paid)
	assert.False(t, schedule[2].Paid)
	assert.False(t, schedule[3].Paid)
}

func TestApply_WaterfallSkipsPaidRows(t *testing.T) {
	loanRepo := testutil.NewMockLoanRepository()
	instRepo := testutil.NewMockInstallmentRepository()
	loan := disbursedLoan(t, loanRepo, instRepo)
	svc := NewPaymentService(testutil.NewMockTxManager(), loanRepo, instRepo)

	_, err := svc.Apply(context.Background(), event(loan.ID, "250.00", intp(1)))
	require.NoError(t, err)

	applied, err := svc.Apply(context.Background(), event(loan.ID, "250.00", nil))
	require.NoError(t, err)
	assert.Equal(t, []int{2}, applied.PaidInstallments)
}

func TestApply_AmountBelowNextInstallmentLeavesScheduleUntouched(t *testing.T) {
	loanRepo := testutil.NewMockLoanRepository()
	instRepo := testutil.NewMockInstallmentRepository()
	loan := disbursedLoan(t, loanRepo, instRepo)
	svc := NewPaymentService(testutil.NewMockTxManager(), loanRepo, instRepo)

	applied, err := svc.Apply(context.Background(), event(loan.ID, "100.00", nil))
	require.NoError(t, err)

	assert.Empty(t, applied.PaidInstallments)
	assert.Equal(t, "100.00", applied.UnappliedAmount.StringFixed(2))
	assert.Equal(t, "1000.00", applied.Outstanding.StringFixed(2), "outstanding unchanged")

	schedule, _ := instRepo.GetByLoanID(context.Background(), loan.ID)
	for _, inst := range schedule {
		assert.False(t, inst.Paid, "no installment may be partially marked paid")
	}
}

func TestApply_ConcurrentPaymentsSerializePerLoan(t *testing.T) {
	loanRepo := testutil.NewMockLoanRepository()
	instRepo := testutil.NewMockInstallmentRepository()
	loan := disbursedLoan(t, loanRepo, instRepo)
	svc := NewPaymentService(testutil.NewMockTxManager(), loanRepo, instRepo)

	// Four goroutines each pay a different installment of the same loan. The
	// per-loan lock must serialize them so no application is lost.
	var wg sync.WaitGroup
	errs := make([]error, 4)
	for no := 1; no <= 4; no++ {
		wg.Add(1)
		go func(no int) {
			defer wg.Done()
			_, errs[no-1] = svc.Apply(context.Background(), event(loan.ID, "250.00", intp(no)))
		}(no)
	}
	wg.Wait()

	for no, err := range errs {
		assert.NoError(t, err, "payment for installment %d", no+1)
	}

	updated, err := loanRepo.GetByID(context.Background(), loan.ID)
	require.NoError(t, err)
	assert.Equal(t, "0.00", updated.Outstanding.StringFixed(2))

	schedule, err := instRepo.GetByLoanID(context.Background(), loan.ID)
	require.NoError(t, err)
	for _, inst := range schedule {
		assert.True(t, inst.Paid, "installment %d must be paid", inst.Number)
	}
}

func TestApply_RacingDisbursementSerializes(t *testing.T) {
	loanRepo := testutil.NewMockLoanRepository()
	instRepo := testutil.NewMockInstallmentRepository()
	loan := newApprovedLoan(loanRepo, "1000", "0", 4)
	sched := NewScheduleService(testutil.NewMockTxManager(), loanRepo, instRepo)
	payments := NewPaymentService(testutil.NewMockTxManager(), loanRepo, instRepo)

	// Schedule and payment services share one per-loan lock, so a payment
	// arriving while the schedule materializes either waits for the full
	// schedule or observes the loan before disbursement. It never reads a
	// half-written schedule.
	var wg sync.WaitGroup
	var disburseErr, applyErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, disburseErr = sched.Disburse(context.Background(), loan.ID, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	}()
	go func() {
		defer wg.Done()
		_, applyErr = payments.Apply(context.Background(), event(loan.ID, "250.00", intp(1)))
	}()
	wg.Wait()

	require.NoError(t, disburseErr)

	schedule, err := instRepo.GetByLoanID(context.Background(), loan.ID)
	require.NoError(t, err)
	require.Len(t, schedule, 4)

	if applyErr != nil {
		// Payment won the lock first and saw an APPROVED loan.
		assert.ErrorIs(t, applyErr, domain.ErrLoanNotActive)
		assert.False(t, schedule[0].Paid)
	} else {
		assert.True(t, schedule[0].Paid)
	}
}

func TestApply_RejectsNonDisbursedLoan(t *testing.T) {
	loanRepo := testutil.NewMockLoanRepository()
	instRepo := testutil.NewMockInstallmentRepository()
	loan := newApprovedLoan(loanRepo, "1000", "0", 4)
	svc := NewPaymentService(testutil.NewMockTxManager(), loanRepo, instRepo)

	_, err := svc.Apply(context.Background(), event(loan.ID, "250.00", nil))
	assert.ErrorIs(t, err, domain.ErrLoanNotActive)
}

func TestApply_RejectsNonPositiveAmount(t *testing.T) {
	svc := NewPaymentService(testutil.NewMockTxManager(), testutil.NewMockLoanRepository(), testutil.NewMockInstallmentRepository())

	_, err := svc.Apply(context.Background(), domain.PaymentEvent{
		LoanID:    1,
		Amount:    decimal.Zero,
		Reference: uuid.New(),
	})
	assert.ErrorIs(t, err, domain.ErrPaymentAmountInvalid)
}

func TestSettle_ClosesLoanAndFlagsRemainingRows(t *testing.T) {
	loanRepo := testutil.NewMockLoanRepository()
	instRepo := testutil.NewMockInstallmentRepository()
	loan := disbursedLoan(t, loanRepo, instRepo)
	svc := NewPaymentService(testutil.NewMockTxManager(), loanRepo, instRepo)

	_, err := svc.Apply(context.Background(), event(loan.ID, "250.00", intp(1)))
	require.NoError(t, err)

	settledAt := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	result, err := svc.Settle(context.Background(), loan.ID, decimal.RequireFromString("500.00"), settledAt)
	require.NoError(t, err)

	assert.Equal(t, 3, result.ClosedCount)
	assert.Equal(t, "500.00", result.SettlementAmount.StringFixed(2))

	updated, err := loanRepo.GetByID(context.Background(), loan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusClosed, updated.Status)
	assert.Equal(t, "0.00", updated.Outstanding.StringFixed(2))
	require.NotNil(t, updated.SettlementAmount)

	schedule, _ := instRepo.GetByLoanID(context.Background(), loan.ID)
	assert.True(t, schedule[0].Paid)
	assert.False(t, schedule[0].PaidBySettlement, "ordinary payment keeps its flag")
	for _, inst := range schedule[1:] {
		assert.True(t, inst.Paid)
		assert.True(t, inst.PaidBySettlement)
	}
}

func TestSettle_RequiresDisbursedLoan(t *testing.T) {
	loanRepo := testutil.NewMockLoanRepository()
	instRepo := testutil.NewMockInstallmentRepository()
	loan := newApprovedLoan(loanRepo, "1000", "0", 4)
	svc := NewPaymentService(testutil.NewMockTxManager(), loanRepo, instRepo)

	_, err := svc.Settle(context.Background(), loan.ID, decimal.RequireFromString("100"), time.Now())

	var transitionErr domain.ErrInvalidTransition
	assert.ErrorAs(t, err, &transitionErr)
}

func TestSettle_RejectsNonPositiveAmount(t *testing.T) {
	svc := NewPaymentService(testutil.NewMockTxManager(), testutil.NewMockLoanRepository(), testutil.NewMockInstallmentRepository())

	_, err := svc.Settle(context.Background(), 1, decimal.Zero, time.Now())
	assert.ErrorIs(t, err, domain.ErrSettlementAmountInvalid)
}
