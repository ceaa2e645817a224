package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/khatupay/khatu-backend/internal/domain"
	"github.com/khatupay/khatu-backend/internal/service"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

// PaymentHandler handles payment application and settlement HTTP requests
type PaymentHandler struct {
	paymentService *service.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(paymentService *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService}
}

// ApplyPaymentRequest represents the apply payment request body
type ApplyPaymentRequest struct {
	Amount        string  `json:"amount"`
	Timestamp     string  `json:"timestamp,omitempty"`     // RFC 3339, defaults to now
	InstallmentNo *int    `json:"installmentNo,omitempty"` // nil selects waterfall application
	Reference     *string `json:"reference,omitempty"`     // UUID, generated when absent
}

// AppliedPaymentResponse represents the result of applying a payment
type AppliedPaymentResponse struct {
	LoanID           int64  `json:"loanId"`
	Reference        string `json:"reference"`
	PaidInstallments []int  `json:"paidInstallments"`
	AppliedAmount    string `json:"appliedAmount"`
	UnappliedAmount  string `json:"unappliedAmount"`
	Outstanding      string `json:"outstanding"`
}

// SettleLoanRequest represents the settle request body
type SettleLoanRequest struct {
	Amount string `json:"amount"`
}

// SettlementResponse represents the result of settling a loan
type SettlementResponse struct {
	LoanID           int64  `json:"loanId"`
	SettlementAmount string `json:"settlementAmount"`
	ClosedCount      int    `json:"closedCount"`
	Status           string `json:"status"`
}

// ApplyPayment handles POST /api/v1/loans/:id/payments
func (h *PaymentHandler) ApplyPayment(c echo.Context) error {
	id, err := parseLoanID(c)
	if err != nil {
		return NewValidationError(c, "Invalid loan ID", nil)
	}

	var req ApplyPaymentRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return NewValidationError(c, "Invalid amount", []ValidationError{
			{Field: "amount", Message: "Must be a valid decimal number"},
		})
	}

	timestamp := time.Now().UTC()
	if req.Timestamp != "" {
		timestamp, err = time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			return NewValidationError(c, "Invalid timestamp", []ValidationError{
				{Field: "timestamp", Message: "Must be in RFC 3339 format"},
			})
		}
	}

	reference := uuid.New()
	if req.Reference != nil && *req.Reference != "" {
		reference, err = uuid.Parse(*req.Reference)
		if err != nil {
			return NewValidationError(c, "Invalid reference", []ValidationError{
				{Field: "reference", Message: "Must be a valid UUID"},
			})
		}
	}

	applied, err := h.paymentService.Apply(c.Request().Context(), domain.PaymentEvent{
		LoanID:        id,
		Amount:        amount,
		Timestamp:     timestamp,
		InstallmentNo: req.InstallmentNo,
		Reference:     reference,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrLoanNotFound):
			return NewNotFoundError(c, "Loan not found")
		case errors.Is(err, domain.ErrPaymentAmountInvalid):
			return NewValidationError(c, "Payment amount must be positive", []ValidationError{
				{Field: "amount", Message: "Must be greater than zero"},
			})
		case errors.Is(err, domain.ErrLoanNotActive):
			return NewConflictError(c, "Payments are only accepted on disbursed loans")
		case errors.Is(err, domain.ErrUnknownInstallment):
			return NewValidationError(c, "Unknown installment", []ValidationError{
				{Field: "installmentNo", Message: "No such installment on this loan"},
			})
		case errors.Is(err, domain.ErrAlreadyPaid):
			return NewConflictError(c, "Installment has already been paid")
		case errors.Is(err, domain.ErrInsufficientPayment):
			return NewValidationError(c, "Amount does not cover the targeted installment", []ValidationError{
				{Field: "amount", Message: "Targeted payments must cover the installment in full"},
			})
		}
		return NewInternalError(c, "Failed to apply payment")
	}

	return c.JSON(http.StatusOK, &AppliedPaymentResponse{
		LoanID:           applied.LoanID,
		Reference:        reference.String(),
		PaidInstallments: applied.PaidInstallments,
		AppliedAmount:    applied.AppliedAmount.StringFixed(2),
		UnappliedAmount:  applied.UnappliedAmount.StringFixed(2),
		Outstanding:      applied.Outstanding.StringFixed(2),
	})
}

// SettleLoan handles POST /api/v1/loans/:id/settle
func (h *PaymentHandler) SettleLoan(c echo.Context) error {
	id, err := parseLoanID(c)
	if err != nil {
		return NewValidationError(c, "Invalid loan ID", nil)
	}

	var req SettleLoanRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return NewValidationError(c, "Invalid amount", []ValidationError{
			{Field: "amount", Message: "Must be a valid decimal number"},
		})
	}

	result, err := h.paymentService.Settle(c.Request().Context(), id, amount, time.Now().UTC())
	if err != nil {
		if errors.Is(err, domain.ErrSettlementAmountInvalid) {
			return NewValidationError(c, "Settlement amount must be positive", []ValidationError{
				{Field: "amount", Message: "Must be greater than zero"},
			})
		}
		return loanTransitionError(c, err)
	}

	return c.JSON(http.StatusOK, &SettlementResponse{
		LoanID:           result.LoanID,
		SettlementAmount: result.SettlementAmount.StringFixed(2),
		ClosedCount:      result.ClosedCount,
		Status:           string(domain.LoanStatusClosed),
	})
}
