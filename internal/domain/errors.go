package domain

import "errors"

// Domain errors
var (
	ErrLoanNotFound            = errors.New("loan not found")
	ErrInvalidInput            = errors.New("invalid amortization input")
	ErrAlreadyMaterialized     = errors.New("schedule already materialized")
	ErrUnknownInstallment      = errors.New("installment does not exist on loan")
	ErrAlreadyPaid             = errors.New("installment already paid")
	ErrInsufficientPayment     = errors.New("payment amount below installment total")
	ErrMissingSchedule         = errors.New("disbursed loan has no schedule")
	ErrRoundingInvariant       = errors.New("schedule sum violates rounding invariant")
	ErrPaymentAmountInvalid    = errors.New("payment amount must be positive")
	ErrLoanNotActive           = errors.New("loan is not open for payments")
	ErrSettlementAmountInvalid = errors.New("settlement amount must be positive")
)

// ErrInvalidTransition reports an attempted loan status change that the
// lifecycle does not allow.
type ErrInvalidTransition struct {
	From LoanStatus
	To   LoanStatus
}

func (e ErrInvalidTransition) Error() string {
	return "invalid loan status transition: " + string(e.From) + " -> " + string(e.To)
}
