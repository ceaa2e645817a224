// Package amortization computes EMI and full repayment schedules for
// fixed-rate monthly loans. It is the single authority on repayment math:
// both the calculator preview endpoint and schedule materialization go
// through Compute, so a borrower never sees a preview EMI that differs from
// the contract schedule.
package amortization

import (
	"time"

	"github.com/khatupay/khatu-backend/internal/domain"
	"github.com/khatupay/khatu-backend/internal/util"
	"github.com/shopspring/decimal"
)

// Line is one computed installment before persistence.
type Line struct {
	Number    int
	DueDate   time.Time
	Principal decimal.Decimal
	Interest  decimal.Decimal
	Total     decimal.Decimal
	Balance   decimal.Decimal
}

// Result is the full output of an amortization run.
type Result struct {
	EMI           decimal.Decimal
	TotalInterest decimal.Decimal
	TotalPayable  decimal.Decimal
	Lines         []Line
}

var (
	hundred = decimal.NewFromInt(100)
	twelve  = decimal.NewFromInt(12)
)

// Compute builds the amortization schedule for the given terms, with due
// dates anchored on the disbursement date (installment i falls due i calendar
// months later, day-of-month clamped).
//
// EMI uses the standard annuity formula
//
//	emi = P * r * (1+r)^n / ((1+r)^n - 1)
//
// with r the monthly rate, rounded to 2 decimals half-up (decimal.Round is
// half-away-from-zero, which is half-up for positive amounts). Zero-rate
// loans divide the principal flat across the tenure.
//
// Per line, interest = balance * r rounded to 2 decimals and principal is the
// remainder of the EMI. The final line absorbs all accumulated rounding
// drift: its principal is exactly the remaining balance, so the principal
// column always sums to P with zero residual and the balance never goes
// negative. TotalPayable and TotalInterest are taken from the materialized
// schedule rather than emi*n, so the headline figures match the contract rows
// to the cent.
func Compute(terms domain.LoanTerms, disbursementDate time.Time) (*Result, error) {
	if err := terms.Validate(); err != nil {
		return nil, domain.ErrInvalidInput
	}

	n := terms.TenureMonths
	principal := terms.Principal.Round(2)
	monthlyRate := terms.AnnualRatePercent.Div(hundred).Div(twelve)

	var emi decimal.Decimal
	if monthlyRate.IsZero() {
		emi = principal.Div(decimal.NewFromInt(int64(n))).Round(2)
	} else {
		// (1+r)^n is exact for integer exponents under decimal arithmetic.
		factor := decimal.NewFromInt(1).Add(monthlyRate).Pow(decimal.NewFromInt(int64(n)))
		emi = principal.Mul(monthlyRate).Mul(factor).Div(factor.Sub(decimal.NewFromInt(1))).Round(2)
	}

	lines := make([]Line, 0, n)
	balance := principal
	totalInterest := decimal.Zero

	for i := 1; i <= n; i++ {
		interest := balance.Mul(monthlyRate).Round(2)

		var principalPart decimal.Decimal
		if i == n {
			// Last installment consumes the remaining balance exactly.
			principalPart = balance
		} else {
			principalPart = emi.Sub(interest)
		}

		balance = balance.Sub(principalPart)
		if balance.IsNegative() {
			balance = decimal.Zero
		}

		totalInterest = totalInterest.Add(interest)
		lines = append(lines, Line{
			Number:    i,
			DueDate:   util.AddMonthsClamped(disbursementDate, i),
			Principal: principalPart,
			Interest:  interest,
			Total:     principalPart.Add(interest),
			Balance:   balance,
		})
	}

	result := &Result{
		EMI:           emi,
		TotalInterest: totalInterest,
		TotalPayable:  principal.Add(totalInterest),
		Lines:         lines,
	}

	if err := checkInvariants(principal, result); err != nil {
		return nil, err
	}
	return result, nil
}

// checkInvariants verifies the schedule against the principal. A failure here
// is a calculator bug, never a caller mistake.
func checkInvariants(principal decimal.Decimal, r *Result) error {
	sumPrincipal := decimal.Zero
	sumTotal := decimal.Zero
	for _, line := range r.Lines {
		if !line.Total.Equal(line.Principal.Add(line.Interest)) {
			return domain.ErrRoundingInvariant
		}
		sumPrincipal = sumPrincipal.Add(line.Principal)
		sumTotal = sumTotal.Add(line.Total)
	}
	if !sumPrincipal.Equal(principal) {
		return domain.ErrRoundingInvariant
	}
	if !sumTotal.Equal(r.TotalPayable) {
		return domain.ErrRoundingInvariant
	}
	return nil
}
