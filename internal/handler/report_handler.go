package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/khatupay/khatu-backend/internal/domain"
	"github.com/khatupay/khatu-backend/internal/service"
	"github.com/labstack/echo/v4"
)

// ReportHandler handles loan view HTTP requests
type ReportHandler struct {
	reportService *service.ReportService
}

// NewReportHandler creates a new ReportHandler
func NewReportHandler(reportService *service.ReportService) *ReportHandler {
	return &ReportHandler{reportService: reportService}
}

// OverdueLineResponse represents one overdue installment with its age
type OverdueLineResponse struct {
	Installment *InstallmentResponse `json:"installment"`
	DaysOverdue int                  `json:"daysOverdue"`
}

// LoanViewResponse represents the aggregate loan view
type LoanViewResponse struct {
	LoanID              int64                 `json:"loanId"`
	AsOf                string                `json:"asOf"`
	TotalOutstanding    string                `json:"totalOutstanding"`
	OverdueAmount       string                `json:"overdueAmount"`
	OverdueInstallments []OverdueLineResponse `json:"overdueInstallments"`
	NextDue             *InstallmentResponse  `json:"nextDue,omitempty"`
}

// GetLoanView handles GET /api/v1/loans/:id/view
func (h *ReportHandler) GetLoanView(c echo.Context) error {
	id, err := parseLoanID(c)
	if err != nil {
		return NewValidationError(c, "Invalid loan ID", nil)
	}

	asOf := time.Now().UTC()
	if s := c.QueryParam("asOf"); s != "" {
		asOf, err = time.Parse("2006-01-02", s)
		if err != nil {
			return NewValidationError(c, "Invalid asOf date", []ValidationError{
				{Field: "asOf", Message: "Must be in YYYY-MM-DD format"},
			})
		}
	}

	view, err := h.reportService.GetView(c.Request().Context(), id, asOf)
	if err != nil {
		if errors.Is(err, domain.ErrLoanNotFound) {
			return NewNotFoundError(c, "Loan not found")
		}
		if errors.Is(err, domain.ErrMissingSchedule) {
			return NewInternalError(c, "Loan schedule is missing")
		}
		return NewInternalError(c, "Failed to compute loan view")
	}

	resp := &LoanViewResponse{
		LoanID:              view.LoanID,
		AsOf:                view.AsOf.Format("2006-01-02"),
		TotalOutstanding:    view.TotalOutstanding.StringFixed(2),
		OverdueAmount:       view.OverdueAmount.StringFixed(2),
		OverdueInstallments: make([]OverdueLineResponse, len(view.OverdueInstallments)),
	}
	for i, line := range view.OverdueInstallments {
		resp.OverdueInstallments[i] = OverdueLineResponse{
			Installment: installmentToResponse(line.Installment),
			DaysOverdue: line.DaysOverdue,
		}
	}
	if view.NextDue != nil {
		resp.NextDue = installmentToResponse(view.NextDue)
	}

	return c.JSON(http.StatusOK, resp)
}
