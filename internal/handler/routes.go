package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// RegisterRoutes sets up all API routes
func RegisterRoutes(e *echo.Echo, loanHandler *LoanHandler, paymentHandler *PaymentHandler, reportHandler *ReportHandler, amortizationHandler *AmortizationHandler, wsHandler *WebSocketHandler) {
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// API version 1
	api := e.Group("/api/v1")

	// Loan lifecycle
	loans := api.Group("/loans")
	loans.POST("", loanHandler.CreateLoan)
	loans.GET("", loanHandler.GetLoans)
	loans.GET("/:id", loanHandler.GetLoan)
	loans.POST("/:id/approve", loanHandler.ApproveLoan)
	loans.POST("/:id/reject", loanHandler.RejectLoan)
	loans.POST("/:id/disburse", loanHandler.DisburseLoan)
	loans.GET("/:id/schedule", loanHandler.GetSchedule)

	// Payments and settlement
	loans.POST("/:id/payments", paymentHandler.ApplyPayment)
	loans.POST("/:id/settle", paymentHandler.SettleLoan)

	// Reporting
	loans.GET("/:id/view", reportHandler.GetLoanView)

	// Stateless calculator
	api.POST("/amortization/preview", amortizationHandler.Preview)

	// Real-time dashboard events
	e.GET("/ws", wsHandler.HandleWS)
}
