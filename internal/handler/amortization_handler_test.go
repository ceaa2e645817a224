package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestPreviewHandler_StandardAnnuity(t *testing.T) {
	e := echo.New()
	handler := NewAmortizationHandler()

	reqBody := `{
		"principal": "12000",
		"annualRatePercent": "12",
		"tenureMonths": 12,
		"disbursementDate": "2025-03-15"
	}`
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/v1/amortization/preview", reqBody), rec)

	if err := handler.Preview(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}

	var response PreviewResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}

	if response.EMI != "1066.19" {
		t.Errorf("Expected EMI '1066.19', got %s", response.EMI)
	}
	if response.TotalPayable != "12794.23" {
		t.Errorf("Expected total payable '12794.23', got %s", response.TotalPayable)
	}
	if len(response.Lines) != 12 {
		t.Fatalf("Expected 12 lines, got %d", len(response.Lines))
	}
	if response.Lines[0].DueDate != "2025-04-15" {
		t.Errorf("Expected first due date '2025-04-15', got %s", response.Lines[0].DueDate)
	}
	if response.Lines[11].Balance != "0.00" {
		t.Errorf("Expected final balance '0.00', got %s", response.Lines[11].Balance)
	}
}

func TestPreviewHandler_ZeroRate(t *testing.T) {
	e := echo.New()
	handler := NewAmortizationHandler()

	reqBody := `{"principal": "1000", "tenureMonths": 4, "disbursementDate": "2025-01-01"}`
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/v1/amortization/preview", reqBody), rec)

	if err := handler.Preview(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	var response PreviewResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}

	if response.EMI != "250.00" {
		t.Errorf("Expected EMI '250.00', got %s", response.EMI)
	}
	if response.TotalInterest != "0.00" {
		t.Errorf("Expected total interest '0.00', got %s", response.TotalInterest)
	}
}

func TestPreviewHandler_InvalidTerms(t *testing.T) {
	e := echo.New()
	handler := NewAmortizationHandler()

	reqBody := `{"principal": "1000", "tenureMonths": 0}`
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/v1/amortization/preview", reqBody), rec)

	if err := handler.Preview(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}
}

func TestPreviewHandler_InvalidPrincipal(t *testing.T) {
	e := echo.New()
	handler := NewAmortizationHandler()

	reqBody := `{"principal": "12,000", "tenureMonths": 12}`
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/v1/amortization/preview", reqBody), rec)

	if err := handler.Preview(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}
}
