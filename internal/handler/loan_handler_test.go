package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/khatupay/khatu-backend/internal/domain"
	"github.com/khatupay/khatu-backend/internal/service"
	"github.com/khatupay/khatu-backend/internal/testutil"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type loanFixture struct {
	loanRepo *testutil.MockLoanRepository
	instRepo *testutil.MockInstallmentRepository
	handler  *LoanHandler
}

func newLoanFixture() *loanFixture {
	loanRepo := testutil.NewMockLoanRepository()
	instRepo := testutil.NewMockInstallmentRepository()
	loanService := service.NewLoanService(loanRepo, instRepo)
	scheduleService := service.NewScheduleService(testutil.NewMockTxManager(), loanRepo, instRepo)
	return &loanFixture{
		loanRepo: loanRepo,
		instRepo: instRepo,
		handler:  NewLoanHandler(loanService, scheduleService),
	}
}

func (f *loanFixture) addApprovedLoan(principal, rate string, tenure int) *domain.Loan {
	loan := &domain.Loan{
		UserID: 7,
		Terms: domain.LoanTerms{
			Principal:         decimal.RequireFromString(principal),
			AnnualRatePercent: decimal.RequireFromString(rate),
			TenureMonths:      tenure,
		},
		Status: domain.LoanStatusApproved,
	}
	f.loanRepo.AddLoan(loan)
	return loan
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestCreateLoanHandler_Success(t *testing.T) {
	e := echo.New()
	f := newLoanFixture()

	reqBody := `{
		"userId": 7,
		"principal": "12000",
		"annualRatePercent": "12",
		"tenureMonths": 12
	}`
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/v1/loans", reqBody), rec)

	if err := f.handler.CreateLoan(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if rec.Code != http.StatusCreated {
		t.Errorf("Expected status 201, got %d", rec.Code)
	}

	var response LoanResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}

	if response.Status != "PENDING" {
		t.Errorf("Expected status PENDING, got %s", response.Status)
	}
	if response.Principal != "12000.00" {
		t.Errorf("Expected principal '12000.00', got %s", response.Principal)
	}
	if response.Outstanding != "0.00" {
		t.Errorf("Expected outstanding '0.00', got %s", response.Outstanding)
	}
}

func TestCreateLoanHandler_InvalidPrincipal(t *testing.T) {
	e := echo.New()
	f := newLoanFixture()

	reqBody := `{"userId": 7, "principal": "abc", "tenureMonths": 12}`
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/v1/loans", reqBody), rec)

	if err := f.handler.CreateLoan(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}

	var problem ProblemDetails
	if err := json.Unmarshal(rec.Body.Bytes(), &problem); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if problem.Type != ErrorTypeValidation {
		t.Errorf("Expected validation problem type, got %s", problem.Type)
	}
}

func TestCreateLoanHandler_NegativePrincipal(t *testing.T) {
	e := echo.New()
	f := newLoanFixture()

	reqBody := `{"userId": 7, "principal": "-100", "tenureMonths": 12}`
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/v1/loans", reqBody), rec)

	if err := f.handler.CreateLoan(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}
}

func TestGetLoanHandler_NotFound(t *testing.T) {
	e := echo.New()
	f := newLoanFixture()

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/loans/42", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues("42")

	if err := f.handler.GetLoan(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rec.Code)
	}
}

func TestApproveLoanHandler_Success(t *testing.T) {
	e := echo.New()
	f := newLoanFixture()

	loan := &domain.Loan{
		UserID: 7,
		Terms: domain.LoanTerms{
			Principal:         decimal.RequireFromString("1000"),
			AnnualRatePercent: decimal.Zero,
			TenureMonths:      4,
		},
		Status: domain.LoanStatusPending,
	}
	f.loanRepo.AddLoan(loan)

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/v1/loans/1/approve", ""), rec)
	c.SetParamNames("id")
	c.SetParamValues("1")

	if err := f.handler.ApproveLoan(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}

	var response LoanResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if response.Status != "APPROVED" {
		t.Errorf("Expected status APPROVED, got %s", response.Status)
	}
}

func TestApproveLoanHandler_WrongState(t *testing.T) {
	e := echo.New()
	f := newLoanFixture()
	f.addApprovedLoan("1000", "0", 4)

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/v1/loans/1/approve", ""), rec)
	c.SetParamNames("id")
	c.SetParamValues("1")

	if err := f.handler.ApproveLoan(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if rec.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", rec.Code)
	}
}

func TestDisburseLoanHandler_Success(t *testing.T) {
	e := echo.New()
	f := newLoanFixture()
	f.addApprovedLoan("12000", "12", 12)

	reqBody := `{"disbursementDate": "2025-03-15"}`
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/v1/loans/1/disburse", reqBody), rec)
	c.SetParamNames("id")
	c.SetParamValues("1")

	if err := f.handler.DisburseLoan(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}

	var response LoanResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if response.Status != "DISBURSED" {
		t.Errorf("Expected status DISBURSED, got %s", response.Status)
	}
	if response.Outstanding != "12794.23" {
		t.Errorf("Expected outstanding '12794.23', got %s", response.Outstanding)
	}

	schedule, _ := f.instRepo.GetByLoanID(context.Background(), 1)
	if len(schedule) != 12 {
		t.Errorf("Expected 12 installments, got %d", len(schedule))
	}
}

func TestDisburseLoanHandler_SecondCallConflicts(t *testing.T) {
	e := echo.New()
	f := newLoanFixture()
	f.addApprovedLoan("1000", "0", 4)

	reqBody := `{"disbursementDate": "2025-01-01"}`
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/v1/loans/1/disburse", reqBody), rec)
	c.SetParamNames("id")
	c.SetParamValues("1")
	if err := f.handler.DisburseLoan(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(jsonRequest(http.MethodPost, "/api/v1/loans/1/disburse", reqBody), rec)
	c.SetParamNames("id")
	c.SetParamValues("1")
	if err := f.handler.DisburseLoan(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if rec.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", rec.Code)
	}
}

func TestGetScheduleHandler_Success(t *testing.T) {
	e := echo.New()
	f := newLoanFixture()
	loan := f.addApprovedLoan("1000", "0", 4)
	scheduleService := service.NewScheduleService(testutil.NewMockTxManager(), f.loanRepo, f.instRepo)
	if _, err := scheduleService.Disburse(context.Background(), loan.ID, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("Failed to disburse: %v", err)
	}

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/loans/1/schedule", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues("1")

	if err := f.handler.GetSchedule(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}

	var response []InstallmentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if len(response) != 4 {
		t.Fatalf("Expected 4 installments, got %d", len(response))
	}
	if response[0].Total != "250.00" {
		t.Errorf("Expected first total '250.00', got %s", response[0].Total)
	}
	if response[0].DueDate != "2025-02-01" {
		t.Errorf("Expected first due date '2025-02-01', got %s", response[0].DueDate)
	}
}

func TestGetLoansHandler_FiltersByStatus(t *testing.T) {
	e := echo.New()
	f := newLoanFixture()
	f.addApprovedLoan("1000", "0", 4)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/loans?status=PENDING", nil), rec)

	if err := f.handler.GetLoans(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	var response []LoanResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if len(response) != 0 {
		t.Errorf("Expected no PENDING loans, got %d", len(response))
	}
}
