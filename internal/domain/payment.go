package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentEvent is an incoming payment supplied by a collaborator (gateway
// webhook, manual admin action, settlement acceptance). The engine never
// creates these itself.
type PaymentEvent struct {
	LoanID        int64           `json:"loanId"`
	Amount        decimal.Decimal `json:"amount"`
	Timestamp     time.Time       `json:"timestamp"`
	InstallmentNo *int            `json:"installmentNo,omitempty"`
	Reference     uuid.UUID       `json:"reference"`
}

func (e PaymentEvent) Validate() error {
	if e.LoanID <= 0 {
		return ErrLoanNotFound
	}
	if e.Amount.LessThanOrEqual(decimal.Zero) {
		return ErrPaymentAmountInvalid
	}
	return nil
}

// AppliedPayment describes the outcome of applying one PaymentEvent.
type AppliedPayment struct {
	LoanID           int64           `json:"loanId"`
	PaidInstallments []int           `json:"paidInstallments"`
	AppliedAmount    decimal.Decimal `json:"appliedAmount"`
	UnappliedAmount  decimal.Decimal `json:"unappliedAmount"`
	Outstanding      decimal.Decimal `json:"outstanding"`
}

// SettlementResult describes a settlement close-out.
type SettlementResult struct {
	LoanID           int64           `json:"loanId"`
	SettlementAmount decimal.Decimal `json:"settlementAmount"`
	ClosedCount      int             `json:"closedCount"`
	SettledAt        time.Time       `json:"settledAt"`
}

// LoanView is the read-only aggregate the reporter derives for dashboards,
// collections tooling and legal notices. It is deterministic for a given
// (loan, asOf) pair.
type LoanView struct {
	LoanID              int64           `json:"loanId"`
	AsOf                time.Time       `json:"asOf"`
	TotalOutstanding    decimal.Decimal `json:"totalOutstanding"`
	OverdueAmount       decimal.Decimal `json:"overdueAmount"`
	OverdueInstallments []OverdueLine   `json:"overdueInstallments"`
	NextDue             *Installment    `json:"nextDue,omitempty"`
}

// OverdueLine is one overdue installment with its age in days.
type OverdueLine struct {
	Installment *Installment `json:"installment"`
	DaysOverdue int          `json:"daysOverdue"`
}
