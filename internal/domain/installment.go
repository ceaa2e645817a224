package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/khatupay/khatu-backend/internal/util"
	"github.com/shopspring/decimal"
)

// Installment is one scheduled payment row of a loan.
//
// Principal + Interest always equals Total, and installment numbers run
// 1..tenure with no gaps. Rows are created once at disbursement and only ever
// mutated by marking them paid.
type Installment struct {
	ID               int64           `json:"id"`
	LoanID           int64           `json:"loanId"`
	Number           int             `json:"number"`
	DueDate          time.Time       `json:"dueDate"`
	Principal        decimal.Decimal `json:"principal"`
	Interest         decimal.Decimal `json:"interest"`
	Total            decimal.Decimal `json:"total"`
	Paid             bool            `json:"paid"`
	PaidAt           *time.Time      `json:"paidAt,omitempty"`
	PaymentRef       *uuid.UUID      `json:"paymentRef,omitempty"`
	PaidBySettlement bool            `json:"paidBySettlement"`
}

// IsOverdue reports whether the installment is unpaid and past due as of the
// given date.
func (i *Installment) IsOverdue(asOf time.Time) bool {
	return !i.Paid && i.DueDate.Before(truncateToDay(asOf))
}

// DaysOverdue returns how many whole days past due the installment is as of
// the given date. Paid or not-yet-due installments return 0.
func (i *Installment) DaysOverdue(asOf time.Time) int {
	if i.Paid {
		return 0
	}
	days := util.DaysBetween(i.DueDate, asOf)
	if days < 0 {
		return 0
	}
	return days
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// OutstandingTotal sums Total over the unpaid rows of a schedule.
func OutstandingTotal(schedule []*Installment) decimal.Decimal {
	total := decimal.Zero
	for _, inst := range schedule {
		if !inst.Paid {
			total = total.Add(inst.Total)
		}
	}
	return total
}

// InstallmentRepository is the persistence contract for schedule rows.
type InstallmentRepository interface {
	CreateBatchTx(ctx context.Context, tx any, installments []*Installment) error
	GetByLoanID(ctx context.Context, loanID int64) ([]*Installment, error)
	GetByLoanIDTx(ctx context.Context, tx any, loanID int64) ([]*Installment, error)
	// MarkPaidTx is an atomic partial update of a single row, never a
	// whole-schedule rewrite.
	MarkPaidTx(ctx context.Context, tx any, installmentID int64, paidAt time.Time, paymentRef *uuid.UUID, bySettlement bool) error
}
