package service

import (
	"context"
	"time"

	"github.com/khatupay/khatu-backend/internal/domain"
	"github.com/khatupay/khatu-backend/internal/websocket"
	"github.com/shopspring/decimal"
)

// LoanService handles loan application lifecycle up to disbursement.
type LoanService struct {
	loanRepo       domain.LoanRepository
	instRepo       domain.InstallmentRepository
	eventPublisher websocket.EventPublisher
}

// NewLoanService creates a new LoanService
func NewLoanService(loanRepo domain.LoanRepository, instRepo domain.InstallmentRepository) *LoanService {
	return &LoanService{
		loanRepo: loanRepo,
		instRepo: instRepo,
	}
}

// SetEventPublisher sets the event publisher for real-time updates
func (s *LoanService) SetEventPublisher(publisher websocket.EventPublisher) {
	s.eventPublisher = publisher
}

func (s *LoanService) publishEvent(event websocket.Event) {
	if s.eventPublisher != nil {
		s.eventPublisher.Publish(event)
	}
}

// CreateLoanInput contains input for creating a loan application
type CreateLoanInput struct {
	UserID            int64
	Principal         decimal.Decimal
	AnnualRatePercent decimal.Decimal
	TenureMonths      int
}

// CreateLoan registers a new loan application in PENDING state. The schedule
// does not exist yet; it is materialized at disbursement.
func (s *LoanService) CreateLoan(ctx context.Context, input CreateLoanInput) (*domain.Loan, error) {
	loan := &domain.Loan{
		UserID: input.UserID,
		Terms: domain.LoanTerms{
			Principal:         input.Principal,
			AnnualRatePercent: input.AnnualRatePercent,
			TenureMonths:      input.TenureMonths,
		},
		Status:      domain.LoanStatusPending,
		Outstanding: decimal.Zero,
	}

	if err := loan.Validate(); err != nil {
		return nil, err
	}

	created, err := s.loanRepo.Create(ctx, loan)
	if err != nil {
		return nil, err
	}

	s.publishEvent(websocket.LoanCreated(created))
	return created, nil
}

// ApproveLoan moves a PENDING application to APPROVED.
func (s *LoanService) ApproveLoan(ctx context.Context, id int64) (*domain.Loan, error) {
	return s.transition(ctx, id, domain.LoanStatusApproved)
}

// RejectLoan moves a PENDING application to REJECTED (terminal).
func (s *LoanService) RejectLoan(ctx context.Context, id int64) (*domain.Loan, error) {
	return s.transition(ctx, id, domain.LoanStatusRejected)
}

func (s *LoanService) transition(ctx context.Context, id int64, to domain.LoanStatus) (*domain.Loan, error) {
	loan, err := s.loanRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := loan.Transition(to); err != nil {
		return nil, err
	}

	if err := s.loanRepo.UpdateStatus(ctx, id, to); err != nil {
		return nil, err
	}
	loan.UpdatedAt = time.Now()

	switch to {
	case domain.LoanStatusApproved:
		s.publishEvent(websocket.LoanApproved(loan))
	case domain.LoanStatusRejected:
		s.publishEvent(websocket.LoanRejected(loan))
	}

	return loan, nil
}

// GetLoan retrieves a loan by ID
func (s *LoanService) GetLoan(ctx context.Context, id int64) (*domain.Loan, error) {
	return s.loanRepo.GetByID(ctx, id)
}

// GetLoans retrieves loans, optionally filtered by status
func (s *LoanService) GetLoans(ctx context.Context, status *domain.LoanStatus) ([]*domain.Loan, error) {
	return s.loanRepo.List(ctx, status)
}

// GetSchedule retrieves the full installment schedule for a loan
func (s *LoanService) GetSchedule(ctx context.Context, loanID int64) ([]*domain.Installment, error) {
	// Verify loan exists first so a missing loan is distinguishable from an
	// empty schedule.
	if _, err := s.loanRepo.GetByID(ctx, loanID); err != nil {
		return nil, err
	}
	return s.instRepo.GetByLoanID(ctx, loanID)
}
