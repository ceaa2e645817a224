package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/khatupay/khatu-backend/internal/amortization"
	"github.com/khatupay/khatu-backend/internal/domain"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

// AmortizationHandler serves stateless schedule previews so the mobile app can
// show a borrower their installments before any loan record exists.
type AmortizationHandler struct{}

// NewAmortizationHandler creates a new AmortizationHandler
func NewAmortizationHandler() *AmortizationHandler {
	return &AmortizationHandler{}
}

// PreviewRequest represents the amortization preview request body
type PreviewRequest struct {
	Principal         string `json:"principal"`
	AnnualRatePercent string `json:"annualRatePercent"`
	TenureMonths      int    `json:"tenureMonths"`
	DisbursementDate  string `json:"disbursementDate,omitempty"` // YYYY-MM-DD, defaults to today
}

// PreviewLineResponse represents one previewed installment
type PreviewLineResponse struct {
	Number    int    `json:"number"`
	DueDate   string `json:"dueDate"`
	Principal string `json:"principal"`
	Interest  string `json:"interest"`
	Total     string `json:"total"`
	Balance   string `json:"balance"`
}

// PreviewResponse represents the amortization preview result
type PreviewResponse struct {
	EMI           string                `json:"emi"`
	TotalInterest string                `json:"totalInterest"`
	TotalPayable  string                `json:"totalPayable"`
	Lines         []PreviewLineResponse `json:"lines"`
}

// Preview handles POST /api/v1/amortization/preview
func (h *AmortizationHandler) Preview(c echo.Context) error {
	var req PreviewRequest
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

	disbursementDate := time.Now().UTC()
	if req.DisbursementDate != "" {
		disbursementDate, err = time.Parse("2006-01-02", req.DisbursementDate)
		if err != nil {
			return NewValidationError(c, "Invalid disbursement date", []ValidationError{
				{Field: "disbursementDate", Message: "Must be in YYYY-MM-DD format"},
			})
		}
	}

	result, err := amortization.Compute(domain.LoanTerms{
		Principal:         principal,
		AnnualRatePercent: rate,
		TenureMonths:      req.TenureMonths,
	}, disbursementDate)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			return NewValidationError(c, "Invalid amortization terms", nil)
		}
		return NewInternalError(c, "Failed to compute preview")
	}

	resp := &PreviewResponse{
		EMI:           result.EMI.StringFixed(2),
		TotalInterest: result.TotalInterest.StringFixed(2),
		TotalPayable:  result.TotalPayable.StringFixed(2),
		Lines:         make([]PreviewLineResponse, len(result.Lines)),
	}
	for i, line := range result.Lines {
		resp.Lines[i] = PreviewLineResponse{
			Number:    line.Number,
			DueDate:   line.DueDate.Format("2006-01-02"),
			Principal: line.Principal.StringFixed(2),
			Interest:  line.Interest.StringFixed(2),
			Total:     line.Total.StringFixed(2),
			Balance:   line.Balance.StringFixed(2),
		}
	}

	return c.JSON(http.StatusOK, resp)
}
