package service

import (
	"context"
	"time"

	"github.com/khatupay/khatu-backend/internal/domain"
	"github.com/khatupay/khatu-backend/internal/websocket"
	"github.com/rs/zerolog"
)

// SweepService is the daily collections sweep: it walks DISBURSED loans and
// marks those overdue beyond the configured threshold as DEFAULTED. It is the
// only producer of the DEFAULTED status.
type SweepService struct {
	loanRepo         domain.LoanRepository
	instRepo         domain.InstallmentRepository
	defaultAfterDays int
	logger           zerolog.Logger
	eventPublisher   websocket.EventPublisher
}

// NewSweepService creates a new SweepService
func NewSweepService(loanRepo domain.LoanRepository, instRepo domain.InstallmentRepository, defaultAfterDays int, logger zerolog.Logger) *SweepService {
	return &SweepService{
		loanRepo:         loanRepo,
		instRepo:         instRepo,
		defaultAfterDays: defaultAfterDays,
		logger:           logger.With().Str("component", "overdue_sweep").Logger(),
	}
}

// SetEventPublisher sets the event publisher for real-time updates
func (s *SweepService) SetEventPublisher(publisher websocket.EventPublisher) {
	s.eventPublisher = publisher
}

// SweepResult summarizes one sweep run.
type SweepResult struct {
	Scanned   int
	Defaulted []int64
}

// Run scans all disbursed loans as of the given date and defaults those whose
// oldest unpaid installment is overdue by at least the threshold. Loans that
// fail individually are logged and skipped so one bad record cannot stall the
// whole sweep.
func (s *SweepService) Run(ctx context.Context, asOf time.Time) (*SweepResult, error) {
	status := domain.LoanStatusDisbursed
	loans, err := s.loanRepo.List(ctx, &status)
	if err != nil {
		return nil, err
	}

	result := &SweepResult{Scanned: len(loans)}
	for _, loan := range loans {
		schedule, err := s.instRepo.GetByLoanID(ctx, loan.ID)
		if err != nil {
			s.logger.Error().Err(err).Int64("loan_id", loan.ID).Msg("Failed to load schedule")
			continue
		}

		maxDays := 0
		for _, inst := range schedule {
			if days := inst.DaysOverdue(asOf); days > maxDays {
				maxDays = days
			}
		}
		if maxDays < s.defaultAfterDays {
			continue
		}

		if err := loan.Transition(domain.LoanStatusDefaulted); err != nil {
			s.logger.Error().Err(err).Int64("loan_id", loan.ID).Msg("Unexpected transition failure")
			continue
		}
		if err := s.loanRepo.UpdateStatus(ctx, loan.ID, domain.LoanStatusDefaulted); err != nil {
			s.logger.Error().Err(err).Int64("loan_id", loan.ID).Msg("Failed to mark loan defaulted")
			continue
		}

		result.Defaulted = append(result.Defaulted, loan.ID)
		s.logger.Warn().
			Int64("loan_id", loan.ID).
			Int("days_overdue", maxDays).
			Msg("Loan marked defaulted")

		if s.eventPublisher != nil {
			s.eventPublisher.Publish(websocket.LoanDefaulted(loan))
		}
	}

	s.logger.Info().
		Int("scanned", result.Scanned).
		Int("defaulted", len(result.Defaulted)).
		Msg("Overdue sweep completed")

	return result, nil
}
