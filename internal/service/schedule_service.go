package service

import (
	"context"
	"time"

	"github.com/khatupay/khatu-backend/internal/amortization"
	"github.com/khatupay/khatu-backend/internal/domain"
	"github.com/khatupay/khatu-backend/internal/websocket"
	"github.com/rs/zerolog/log"
)

// ScheduleService materializes repayment schedules at disbursement time.
type ScheduleService struct {
	txm            domain.TxManager
	loanRepo       domain.LoanRepository
	instRepo       domain.InstallmentRepository
	locker         *loanLocker
	eventPublisher websocket.EventPublisher
}

// NewScheduleService creates a new ScheduleService
func NewScheduleService(txm domain.TxManager, loanRepo domain.LoanRepository, instRepo domain.InstallmentRepository) *ScheduleService {
	return &ScheduleService{
		txm:      txm,
		loanRepo: loanRepo,
		instRepo: instRepo,
		locker:   locks,
	}
}

// SetEventPublisher sets the event publisher for real-time updates
func (s *ScheduleService) SetEventPublisher(publisher websocket.EventPublisher) {
	s.eventPublisher = publisher
}

func (s *ScheduleService) publishEvent(event websocket.Event) {
	if s.eventPublisher != nil {
		s.eventPublisher.Publish(event)
	}
}

// Disburse moves an APPROVED loan to DISBURSED and materializes its
// repayment schedule in the same transaction. Schedules are generated exactly
// once: a second call fails with ErrAlreadyMaterialized and leaves the
// existing rows untouched.
func (s *ScheduleService) Disburse(ctx context.Context, loanID int64, disbursementDate time.Time) (*domain.Loan, error) {
	s.locker.Lock(loanID)
	defer s.locker.Unlock(loanID)

	var loan *domain.Loan
	err := s.txm.WithTx(ctx, func(tx any) error {
		var err error
		loan, err = s.loanRepo.GetByIDForUpdate(ctx, tx, loanID)
		if err != nil {
			return err
		}

		if loan.Status == domain.LoanStatusDisbursed {
			return domain.ErrAlreadyMaterialized
		}
		if !domain.CanTransition(loan.Status, domain.LoanStatusDisbursed) {
			return domain.ErrInvalidTransition{From: loan.Status, To: domain.LoanStatusDisbursed}
		}

		existing, err := s.instRepo.GetByLoanIDTx(ctx, tx, loanID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return domain.ErrAlreadyMaterialized
		}

		result, err := amortization.Compute(loan.Terms, disbursementDate)
		if err != nil {
			return err
		}

		installments := make([]*domain.Installment, len(result.Lines))
		for i, line := range result.Lines {
			installments[i] = &domain.Installment{
				LoanID:    loanID,
				Number:    line.Number,
				DueDate:   line.DueDate,
				Principal: line.Principal,
				Interest:  line.Interest,
				Total:     line.Total,
			}
		}

		if err := s.instRepo.CreateBatchTx(ctx, tx, installments); err != nil {
			return err
		}
		if err := s.loanRepo.UpdateStatusTx(ctx, tx, loanID, domain.LoanStatusDisbursed, &disbursementDate); err != nil {
			return err
		}
		if err := s.loanRepo.UpdateOutstandingTx(ctx, tx, loanID, result.TotalPayable); err != nil {
			return err
		}

		loan.Status = domain.LoanStatusDisbursed
		loan.DisbursementDate = &disbursementDate
		loan.Outstanding = result.TotalPayable
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("loan_id", loanID).
		Str("outstanding", loan.Outstanding.StringFixed(2)).
		Int("installments", loan.Terms.TenureMonths).
		Msg("Loan disbursed, schedule materialized")

	s.publishEvent(websocket.LoanDisbursed(loan))
	return loan, nil
}
