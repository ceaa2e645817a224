package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrLoanPrincipalInvalid = errors.New("loan principal must be positive")
	ErrLoanRateInvalid      = errors.New("annual interest rate must not be negative")
	ErrLoanTenureInvalid    = errors.New("tenure must be at least 1 month")
	ErrLoanUserRequired     = errors.New("borrower user ID is required")
)

// LoanStatus is the lifecycle state of a loan.
type LoanStatus string

const (
	LoanStatusPending   LoanStatus = "PENDING"
	LoanStatusApproved  LoanStatus = "APPROVED"
	LoanStatusDisbursed LoanStatus = "DISBURSED"
	LoanStatusClosed    LoanStatus = "CLOSED"
	LoanStatusDefaulted LoanStatus = "DEFAULTED"
	LoanStatusRejected  LoanStatus = "REJECTED"
)

// transitions holds the allowed forward moves of the loan lifecycle.
// There are no back-transitions; REJECTED is reachable only from PENDING.
var transitions = map[LoanStatus][]LoanStatus{
	LoanStatusPending:   {LoanStatusApproved, LoanStatusRejected},
	LoanStatusApproved:  {LoanStatusDisbursed},
	LoanStatusDisbursed: {LoanStatusClosed, LoanStatusDefaulted},
}

// CanTransition reports whether a loan may move from one status to another.
func CanTransition(from, to LoanStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status has no outgoing transitions.
func (s LoanStatus) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// LoanTerms are the immutable amortization inputs fixed at approval time.
type LoanTerms struct {
	Principal         decimal.Decimal `json:"principal"`
	AnnualRatePercent decimal.Decimal `json:"annualRatePercent"`
	TenureMonths      int             `json:"tenureMonths"`
}

func (t LoanTerms) Validate() error {
	if t.Principal.LessThanOrEqual(decimal.Zero) {
		return ErrLoanPrincipalInvalid
	}
	if t.AnnualRatePercent.IsNegative() {
		return ErrLoanRateInvalid
	}
	if t.TenureMonths < 1 {
		return ErrLoanTenureInvalid
	}
	return nil
}

// Loan is the aggregate root owning the repayment schedule.
type Loan struct {
	ID               int64            `json:"id"`
	UserID           int64            `json:"userId"`
	Terms            LoanTerms        `json:"terms"`
	Status           LoanStatus       `json:"status"`
	DisbursementDate *time.Time       `json:"disbursementDate,omitempty"`
	Outstanding      decimal.Decimal  `json:"outstanding"`
	SettlementAmount *decimal.Decimal `json:"settlementAmount,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

func (l *Loan) Validate() error {
	if l.UserID <= 0 {
		return ErrLoanUserRequired
	}
	return l.Terms.Validate()
}

// Transition moves the loan to a new status, enforcing the lifecycle.
func (l *Loan) Transition(to LoanStatus) error {
	if !CanTransition(l.Status, to) {
		return ErrInvalidTransition{From: l.Status, To: to}
	}
	l.Status = to
	return nil
}

// LoanRepository is the persistence contract for loans.
type LoanRepository interface {
	Create(ctx context.Context, loan *Loan) (*Loan, error)
	GetByID(ctx context.Context, id int64) (*Loan, error)
	// GetByIDForUpdate reads the loan inside tx holding a row lock, so that
	// concurrent schedule mutation against the same loan serializes.
	GetByIDForUpdate(ctx context.Context, tx any, id int64) (*Loan, error)
	List(ctx context.Context, status *LoanStatus) ([]*Loan, error)
	UpdateStatusTx(ctx context.Context, tx any, id int64, status LoanStatus, disbursementDate *time.Time) error
	UpdateOutstandingTx(ctx context.Context, tx any, id int64, outstanding decimal.Decimal) error
	RecordSettlementTx(ctx context.Context, tx any, id int64, amount decimal.Decimal) error
	UpdateStatus(ctx context.Context, id int64, status LoanStatus) error
}

// TxManager abstracts transactional execution so services can be exercised
// against in-memory repositories.
type TxManager interface {
	WithTx(ctx context.Context, fn func(tx any) error) error
}
