package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/khatupay/khatu-backend/internal/domain"
	"github.com/khatupay/khatu-backend/internal/service"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

// LoanHandler handles loan lifecycle HTTP requests
type LoanHandler struct {
	loanService     *service.LoanService
	scheduleService *service.ScheduleService
}

// NewLoanHandler creates a new LoanHandler
func NewLoanHandler(loanService *service.LoanService, scheduleService *service.ScheduleService) *LoanHandler {
	return &LoanHandler{
		loanService:     loanService,
		scheduleService: scheduleService,
	}
}

// CreateLoanRequest represents the create loan request body
type CreateLoanRequest struct {
	UserID            int64  `json:"userId"`
	Principal         string `json:"principal"`
	AnnualRatePercent string `json:"annualRatePercent"`
	TenureMonths      int    `json:"tenureMonths"`
}

// DisburseLoanRequest represents the disburse request body
type DisburseLoanRequest struct {
	DisbursementDate string `json:"disbursementDate"` // YYYY-MM-DD, defaults to today
}

// LoanResponse represents a loan in API responses
type LoanResponse struct {
	ID                int64   `json:"id"`
	UserID            int64   `json:"userId"`
	Principal         string  `json:"principal"`
	AnnualRatePercent string  `json:"annualRatePercent"`
	TenureMonths      int     `json:"tenureMonths"`
	Status            string  `json:"status"`
	DisbursementDate  *string `json:"disbursementDate,omitempty"`
	Outstanding       string  `json:"outstanding"`
	SettlementAmount  *string `json:"settlementAmount,omitempty"`
	CreatedAt         string  `json:"createdAt"`
	UpdatedAt         string  `json:"updatedAt"`
}

// InstallmentResponse represents a schedule row in API responses
type InstallmentResponse struct {
	Number           int     `json:"number"`
	DueDate          string  `json:"dueDate"`
	Principal        string  `json:"principal"`
	Interest         string  `json:"interest"`
	Total            string  `json:"total"`
	Paid             bool    `json:"paid"`
	PaidAt           *string `json:"paidAt,omitempty"`
	PaymentRef       *string `json:"paymentRef,omitempty"`
	PaidBySettlement bool    `json:"paidBySettlement"`
}

// CreateLoan handles POST /api/v1/loans
func (h *LoanHandler) CreateLoan(c echo.Context) error {
	var req CreateLoanRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	principal, err := decimal.NewFromString(req.Principal)
	if err != nil {
		return NewValidationError(c, "Invalid principal", []ValidationError{
			{Field: "principal", Message: "Must be a valid decimal number"},
		})
	}

	rate := decimal.Zero
	if req.AnnualRatePercent != "" {
		rate, err = decimal.NewFromString(req.AnnualRatePercent)
		if err != nil {
			return NewValidationError(c, "Invalid interest rate", []ValidationError{
				{Field: "annualRatePercent", Message: "Must be a valid decimal number"},
			})
		}
	}

	loan, err := h.loanService.CreateLoan(c.Request().Context(), service.CreateLoanInput{
		UserID:            req.UserID,
		Principal:         principal,
		AnnualRatePercent: rate,
		TenureMonths:      req.TenureMonths,
	})
	if err != nil {
		if errors.Is(err, domain.ErrLoanPrincipalInvalid) {
			return NewValidationError(c, "Validation failed", []ValidationError{
				{Field: "principal", Message: "Principal must be positive"},
			})
		}
		if errors.Is(err, domain.ErrLoanRateInvalid) {
			return NewValidationError(c, "Validation failed", []ValidationError{
				{Field: "annualRatePercent", Message: "Rate must not be negative"},
			})
		}
		if errors.Is(err, domain.ErrLoanTenureInvalid) {
			return NewValidationError(c, "Validation failed", []ValidationError{
				{Field: "tenureMonths", Message: "Tenure must be at least 1 month"},
			})
		}
		if errors.Is(err, domain.ErrLoanUserRequired) {
			return NewValidationError(c, "Validation failed", []ValidationError{
				{Field: "userId", Message: "Borrower user ID is required"},
			})
		}
		return NewInternalError(c, "Failed to create loan")
	}

	return c.JSON(http.StatusCreated, loanToResponse(loan))
}

// GetLoans handles GET /api/v1/loans
func (h *LoanHandler) GetLoans(c echo.Context) error {
	var status *domain.LoanStatus
	if s := c.QueryParam("status"); s != "" {
		st := domain.LoanStatus(s)
		status = &st
	}

	loans, err := h.loanService.GetLoans(c.Request().Context(), status)
	if err != nil {
		return NewInternalError(c, "Failed to list loans")
	}

	out := make([]*LoanResponse, len(loans))
	for i, loan := range loans {
		out[i] = loanToResponse(loan)
	}
	return c.JSON(http.StatusOK, out)
}

// GetLoan handles GET /api/v1/loans/:id
func (h *LoanHandler) GetLoan(c echo.Context) error {
	id, err := parseLoanID(c)
	if err != nil {
		return NewValidationError(c, "Invalid loan ID", nil)
	}

	loan, err := h.loanService.GetLoan(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrLoanNotFound) {
			return NewNotFoundError(c, "Loan not found")
		}
		return NewInternalError(c, "Failed to get loan")
	}

	return c.JSON(http.StatusOK, loanToResponse(loan))
}

// ApproveLoan handles POST /api/v1/loans/:id/approve
func (h *LoanHandler) ApproveLoan(c echo.Context) error {
	return h.transition(c, h.loanService.ApproveLoan)
}

// RejectLoan handles POST /api/v1/loans/:id/reject
func (h *LoanHandler) RejectLoan(c echo.Context) error {
	return h.transition(c, h.loanService.RejectLoan)
}

func (h *LoanHandler) transition(c echo.Context, fn func(ctx context.Context, id int64) (*domain.Loan, error)) error {
	id, err := parseLoanID(c)
	if err != nil {
		return NewValidationError(c, "Invalid loan ID", nil)
	}

	loan, err := fn(c.Request().Context(), id)
	if err != nil {
		return loanTransitionError(c, err)
	}

	return c.JSON(http.StatusOK, loanToResponse(loan))
}

// DisburseLoan handles POST /api/v1/loans/:id/disburse
func (h *LoanHandler) DisburseLoan(c echo.Context) error {
	id, err := parseLoanID(c)
	if err != nil {
		return NewValidationError(c, "Invalid loan ID", nil)
	}

	var req DisburseLoanRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	disbursementDate := time.Now().UTC().Truncate(24 * time.Hour)
	if req.DisbursementDate != "" {
		disbursementDate, err = time.Parse("2006-01-02", req.DisbursementDate)
		if err != nil {
			return NewValidationError(c, "Invalid disbursement date", []ValidationError{
				{Field: "disbursementDate", Message: "Must be in YYYY-MM-DD format"},
			})
		}
	}

	loan, err := h.scheduleService.Disburse(c.Request().Context(), id, disbursementDate)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyMaterialized) {
			return NewConflictError(c, "Loan schedule has already been materialized")
		}
		return loanTransitionError(c, err)
	}

	return c.JSON(http.StatusOK, loanToResponse(loan))
}

// GetSchedule handles GET /api/v1/loans/:id/schedule
func (h *LoanHandler) GetSchedule(c echo.Context) error {
	id, err := parseLoanID(c)
	if err != nil {
		return NewValidationError(c, "Invalid loan ID", nil)
	}

	schedule, err := h.loanService.GetSchedule(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrLoanNotFound) {
			return NewNotFoundError(c, "Loan not found")
		}
		return NewInternalError(c, "Failed to get schedule")
	}

	out := make([]*InstallmentResponse, len(schedule))
	for i, inst := range schedule {
		out[i] = installmentToResponse(inst)
	}
	return c.JSON(http.StatusOK, out)
}

func loanTransitionError(c echo.Context, err error) error {
	if errors.Is(err, domain.ErrLoanNotFound) {
		return NewNotFoundError(c, "Loan not found")
	}
	var transitionErr domain.ErrInvalidTransition
	if errors.As(err, &transitionErr) {
		return NewConflictError(c, transitionErr.Error())
	}
	return NewInternalError(c, "Loan operation failed")
}

func parseLoanID(c echo.Context) (int64, error) {
	return strconv.ParseInt(c.Param("id"), 10, 64)
}

func loanToResponse(loan *domain.Loan) *LoanResponse {
	resp := &LoanResponse{
		ID:                loan.ID,
		UserID:            loan.UserID,
		Principal:         loan.Terms.Principal.StringFixed(2),
		AnnualRatePercent: loan.Terms.AnnualRatePercent.String(),
		TenureMonths:      loan.Terms.TenureMonths,
		Status:            string(loan.Status),
		Outstanding:       loan.Outstanding.StringFixed(2),
		CreatedAt:         loan.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         loan.UpdatedAt.Format(time.RFC3339),
	}
	if loan.DisbursementDate != nil {
		d := loan.DisbursementDate.Format("2006-01-02")
		resp.DisbursementDate = &d
	}
	if loan.SettlementAmount != nil {
		s := loan.SettlementAmount.StringFixed(2)
		resp.SettlementAmount = &s
	}
	return resp
}

func installmentToResponse(inst *domain.Installment) *InstallmentResponse {
	resp := &InstallmentResponse{
		Number:           inst.Number,
		DueDate:          inst.DueDate.Format("2006-01-02"),
		Principal:        inst.Principal.StringFixed(2),
		Interest:         inst.Interest.StringFixed(2),
		Total:            inst.Total.StringFixed(2),
		Paid:             inst.Paid,
		PaidBySettlement: inst.PaidBySettlement,
	}
	if inst.PaidAt != nil {
		t := inst.PaidAt.Format(time.RFC3339)
		resp.PaidAt = &t
	}
	if inst.PaymentRef != nil {
		r := inst.PaymentRef.String()
		resp.PaymentRef = &r
	}
	return resp
}
