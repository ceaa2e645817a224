package service

import (
	"context"
	"sort"
	"time"

	"github.com/khatupay/khatu-backend/internal/domain"
	"github.com/khatupay/khatu-backend/internal/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// PaymentService applies incoming payment events to loan schedules and
// handles settlement close-outs.
type PaymentService struct {
	txm            domain.TxManager
	loanRepo       domain.LoanRepository
	instRepo       domain.InstallmentRepository
	locker         *loanLocker
	eventPublisher websocket.EventPublisher
}

// NewPaymentService creates a new PaymentService
func NewPaymentService(txm domain.TxManager, loanRepo domain.LoanRepository, instRepo domain.InstallmentRepository) *PaymentService {
	return &PaymentService{
		txm:      txm,
		loanRepo: loanRepo,
		instRepo: instRepo,
		locker:   locks,
	}
}

// SetEventPublisher sets the event publisher for real-time updates
func (s *PaymentService) SetEventPublisher(publisher websocket.EventPublisher) {
	s.eventPublisher = publisher
}

func (s *PaymentService) publishEvent(event websocket.Event) {
	if s.eventPublisher != nil {
		s.eventPublisher.Publish(event)
	}
}

// Apply applies one payment event to a loan's schedule.
//
// With an explicit installment target, the full installment amount must be
// covered and only that installment is marked paid; overshoot is not carried
// forward. Without a target the amount is applied oldest-first across unpaid
// installments, and any remainder too small to cover the next installment is
// held unapplied. An installment is never partially marked paid.
func (s *PaymentService) Apply(ctx context.Context, event domain.PaymentEvent) (*domain.AppliedPayment, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}

	s.locker.Lock(event.LoanID)
	defer s.locker.Unlock(event.LoanID)

	var applied *domain.AppliedPayment
	err := s.txm.WithTx(ctx, func(tx any) error {
		loan, err := s.loanRepo.GetByIDForUpdate(ctx, tx, event.LoanID)
		if err != nil {
			return err
		}
		if loan.Status != domain.LoanStatusDisbursed {
			return domain.ErrLoanNotActive
		}

		schedule, err := s.instRepo.GetByLoanIDTx(ctx, tx, event.LoanID)
		if err != nil {
			return err
		}
		if len(schedule) == 0 {
			return domain.ErrMissingSchedule
		}
		sort.Slice(schedule, func(i, j int) bool { return schedule[i].Number < schedule[j].Number })

		paidAt := event.Timestamp
		if paidAt.IsZero() {
			paidAt = time.Now().UTC()
		}

		var paidNumbers []int
		if event.InstallmentNo != nil {
			paidNumbers, err = s.applyTargeted(ctx, tx, schedule, event, paidAt)
		} else {
			paidNumbers, err = s.applyWaterfall(ctx, tx, schedule, event, paidAt)
		}
		if err != nil {
			return err
		}

		outstanding := domain.OutstandingTotal(schedule)
		if err := s.loanRepo.UpdateOutstandingTx(ctx, tx, event.LoanID, outstanding); err != nil {
			return err
		}

		appliedAmount := decimal.Zero
		for _, no := range paidNumbers {
			appliedAmount = appliedAmount.Add(schedule[no-1].Total)
		}

		applied = &domain.AppliedPayment{
			LoanID:           event.LoanID,
			PaidInstallments: paidNumbers,
			AppliedAmount:    appliedAmount,
			UnappliedAmount:  event.Amount.Sub(appliedAmount),
			Outstanding:      outstanding,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("loan_id", event.LoanID).
		Str("amount", event.Amount.StringFixed(2)).
		Ints("installments", applied.PaidInstallments).
		Str("outstanding", applied.Outstanding.StringFixed(2)).
		Msg("Payment applied")

	s.publishEvent(websocket.PaymentApplied(applied))
	return applied, nil
}

// applyTargeted marks a single named installment paid, with no carry-forward.
func (s *PaymentService) applyTargeted(ctx context.Context, tx any, schedule []*domain.Installment, event domain.PaymentEvent, paidAt time.Time) ([]int, error) {
	no := *event.InstallmentNo
	if no < 1 || no > len(schedule) {
		return nil, domain.ErrUnknownInstallment
	}

	target := schedule[no-1]
	if target.Paid {
		return nil, domain.ErrAlreadyPaid
	}
	if event.Amount.LessThan(target.Total) {
		return nil, domain.ErrInsufficientPayment
	}

	if err := s.instRepo.MarkPaidTx(ctx, tx, target.ID, paidAt, &event.Reference, false); err != nil {
		return nil, err
	}
	target.Paid = true
	target.PaidAt = &paidAt
	target.PaymentRef = &event.Reference

	return []int{no}, nil
}

// applyWaterfall walks unpaid installments oldest-first, marking each paid
// while the remaining amount covers it.
func (s *PaymentService) applyWaterfall(ctx context.Context, tx any, schedule []*domain.Installment, event domain.PaymentEvent, paidAt time.Time) ([]int, error) {
	remaining := event.Amount
	var paidNumbers []int

	for _, inst := range schedule {
		if inst.Paid {
			continue
		}
		if remaining.LessThan(inst.Total) {
			break
		}

		if err := s.instRepo.MarkPaidTx(ctx, tx, inst.ID, paidAt, &event.Reference, false); err != nil {
			return nil, err
		}
		inst.Paid = true
		inst.PaidAt = &paidAt
		inst.PaymentRef = &event.Reference

		remaining = remaining.Sub(inst.Total)
		paidNumbers = append(paidNumbers, inst.Number)
	}

	return paidNumbers, nil
}

// Settle closes a DISBURSED loan against a negotiated settlement amount.
// Remaining unpaid installments are flagged paid-by-settlement rather than
// paid, so collections history can tell the two apart. This deliberately
// bypasses per-installment application.
func (s *PaymentService) Settle(ctx context.Context, loanID int64, amount decimal.Decimal, settledAt time.Time) (*domain.SettlementResult, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, domain.ErrSettlementAmountInvalid
	}
	if settledAt.IsZero() {
		settledAt = time.Now().UTC()
	}

	s.locker.Lock(loanID)
	defer s.locker.Unlock(loanID)

	var result *domain.SettlementResult
	err := s.txm.WithTx(ctx, func(tx any) error {
		loan, err := s.loanRepo.GetByIDForUpdate(ctx, tx, loanID)
		if err != nil {
			return err
		}
		if !domain.CanTransition(loan.Status, domain.LoanStatusClosed) {
			return domain.ErrInvalidTransition{From: loan.Status, To: domain.LoanStatusClosed}
		}

		schedule, err := s.instRepo.GetByLoanIDTx(ctx, tx, loanID)
		if err != nil {
			return err
		}

		closed := 0
		for _, inst := range schedule {
			if inst.Paid {
				continue
			}
			if err := s.instRepo.MarkPaidTx(ctx, tx, inst.ID, settledAt, nil, true); err != nil {
				return err
			}
			closed++
		}

		if err := s.loanRepo.RecordSettlementTx(ctx, tx, loanID, amount); err != nil {
			return err
		}
		if err := s.loanRepo.UpdateStatusTx(ctx, tx, loanID, domain.LoanStatusClosed, nil); err != nil {
			return err
		}
		if err := s.loanRepo.UpdateOutstandingTx(ctx, tx, loanID, decimal.Zero); err != nil {
			return err
		}

		result = &domain.SettlementResult{
			LoanID:           loanID,
			SettlementAmount: amount,
			ClosedCount:      closed,
			SettledAt:        settledAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("loan_id", loanID).
		Str("settlement_amount", amount.StringFixed(2)).
		Int("closed_installments", result.ClosedCount).
		Msg("Loan settled")

	s.publishEvent(websocket.LoanSettled(result))
	return result, nil
}
