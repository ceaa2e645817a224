package service

import (
	"context"
	"sort"
	"time"

	"github.com/khatupay/khatu-backend/internal/domain"
	"github.com/shopspring/decimal"
)

// ReportService derives read-only aggregate views over loan schedules for
// dashboards, collections tooling and legal notices.
type ReportService struct {
	loanRepo domain.LoanRepository
	instRepo domain.InstallmentRepository
}

// NewReportService creates a new ReportService
func NewReportService(loanRepo domain.LoanRepository, instRepo domain.InstallmentRepository) *ReportService {
	return &ReportService{
		loanRepo: loanRepo,
		instRepo: instRepo,
	}
}

// GetView loads a loan and its schedule and computes the aggregate view as of
// the given date.
func (s *ReportService) GetView(ctx context.Context, loanID int64, asOf time.Time) (*domain.LoanView, error) {
	loan, err := s.loanRepo.GetByID(ctx, loanID)
	if err != nil {
		return nil, err
	}

	schedule, err := s.instRepo.GetByLoanID(ctx, loanID)
	if err != nil {
		return nil, err
	}

	return ComputeView(loan, schedule, asOf)
}

// ComputeView derives outstanding/overdue aggregates from a loan's schedule.
// It never mutates the schedule and is deterministic for a given (loan, asOf)
// pair, so figures embedded in legal notices and settlement offers are
// reproducible. A DISBURSED loan without a schedule is a data-integrity
// error, not an empty view.
func ComputeView(loan *domain.Loan, schedule []*domain.Installment, asOf time.Time) (*domain.LoanView, error) {
	if loan.Status == domain.LoanStatusDisbursed && len(schedule) == 0 {
		return nil, domain.ErrMissingSchedule
	}

	ordered := make([]*domain.Installment, len(schedule))
	copy(ordered, schedule)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Number < ordered[j].Number })

	view := &domain.LoanView{
		LoanID:              loan.ID,
		AsOf:                asOf,
		TotalOutstanding:    domain.OutstandingTotal(ordered),
		OverdueAmount:       decimal.Zero,
		OverdueInstallments: []domain.OverdueLine{},
	}

	for _, inst := range ordered {
		if inst.IsOverdue(asOf) {
			view.OverdueAmount = view.OverdueAmount.Add(inst.Total)
			view.OverdueInstallments = append(view.OverdueInstallments, domain.OverdueLine{
				Installment: inst,
				DaysOverdue: inst.DaysOverdue(asOf),
			})
		}
		if view.NextDue == nil && !inst.Paid {
			view.NextDue = inst
		}
	}

	return view, nil
}
