package testutil

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/khatupay/khatu-backend/internal/domain"
	"github.com/khatupay/khatu-backend/internal/websocket"
	"github.com/shopspring/decimal"
)

// MockTxManager runs the callback without a real transaction.
type MockTxManager struct {
	BeginErr error
	Calls    int
}

// NewMockTxManager creates a new MockTxManager
func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

// WithTx implements domain.TxManager
func (m *MockTxManager) WithTx(ctx context.Context, fn func(tx any) error) error {
	if m.BeginErr != nil {
		return m.BeginErr
	}
	m.Calls++
	return fn(nil)
}

// MockLoanRepository is an in-memory implementation of domain.LoanRepository
type MockLoanRepository struct {
	Loans  map[int64]*domain.Loan
	NextID int64
}

// NewMockLoanRepository creates a new MockLoanRepository
func NewMockLoanRepository() *MockLoanRepository {
	return &MockLoanRepository{
		Loans:  make(map[int64]*domain.Loan),
		NextID: 1,
	}
}

// AddLoan adds a loan to the mock repository (helper for tests)
func (m *MockLoanRepository) AddLoan(loan *domain.Loan) {
	if loan.ID == 0 {
		loan.ID = m.NextID
	}
	if loan.ID >= m.NextID {
		m.NextID = loan.ID + 1
	}
	m.Loans[loan.ID] = loan
}

// Create creates a new loan
func (m *MockLoanRepository) Create(ctx context.Context, loan *domain.Loan) (*domain.Loan, error) {
	loan.ID = m.NextID
	m.NextID++
	now := time.Now()
	loan.CreatedAt = now
	loan.UpdatedAt = now
	m.Loans[loan.ID] = loan
	return loan, nil
}

// GetByID retrieves a loan by ID
func (m *MockLoanRepository) GetByID(ctx context.Context, id int64) (*domain.Loan, error) {
	loan, ok := m.Loans[id]
	if !ok {
		return nil, domain.ErrLoanNotFound
	}
	copied := *loan
	return &copied, nil
}

// GetByIDForUpdate retrieves a loan by ID (no real locking in the mock)
func (m *MockLoanRepository) GetByIDForUpdate(ctx context.Context, tx any, id int64) (*domain.Loan, error) {
	return m.GetByID(ctx, id)
}

// List retrieves loans, optionally filtered by status
func (m *MockLoanRepository) List(ctx context.Context, status *domain.LoanStatus) ([]*domain.Loan, error) {
	var out []*domain.Loan
	for _, loan := range m.Loans {
		if status == nil || loan.Status == *status {
			copied := *loan
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateStatusTx updates a loan's status and optionally its disbursement date
func (m *MockLoanRepository) UpdateStatusTx(ctx context.Context, tx any, id int64, status domain.LoanStatus, disbursementDate *time.Time) error {
	loan, ok := m.Loans[id]
	if !ok {
		return domain.ErrLoanNotFound
	}
	loan.Status = status
	if disbursementDate != nil {
		loan.DisbursementDate = disbursementDate
	}
	return nil
}

// UpdateOutstandingTx updates a loan's cached outstanding amount
func (m *MockLoanRepository) UpdateOutstandingTx(ctx context.Context, tx any, id int64, outstanding decimal.Decimal) error {
	loan, ok := m.Loans[id]
	if !ok {
		return domain.ErrLoanNotFound
	}
	loan.Outstanding = outstanding
	return nil
}

// RecordSettlementTx records a settlement amount on a loan
func (m *MockLoanRepository) RecordSettlementTx(ctx context.Context, tx any, id int64, amount decimal.Decimal) error {
	loan, ok := m.Loans[id]
	if !ok {
		return domain.ErrLoanNotFound
	}
	loan.SettlementAmount = &amount
	return nil
}

// UpdateStatus updates a loan's status outside a transaction
func (m *MockLoanRepository) UpdateStatus(ctx context.Context, id int64, status domain.LoanStatus) error {
	return m.UpdateStatusTx(ctx, nil, id, status, nil)
}

// MockInstallmentRepository is an in-memory implementation of domain.InstallmentRepository
type MockInstallmentRepository struct {
	ByLoanID map[int64][]*domain.Installment
	NextID   int64
}

// NewMockInstallmentRepository creates a new MockInstallmentRepository
func NewMockInstallmentRepository() *MockInstallmentRepository {
	return &MockInstallmentRepository{
		ByLoanID: make(map[int64][]*domain.Installment),
		NextID:   1,
	}
}

// CreateBatchTx persists a batch of installments
func (m *MockInstallmentRepository) CreateBatchTx(ctx context.Context, tx any, installments []*domain.Installment) error {
	for _, inst := range installments {
		inst.ID = m.NextID
		m.NextID++
		m.ByLoanID[inst.LoanID] = append(m.ByLoanID[inst.LoanID], inst)
	}
	return nil
}

// GetByLoanID retrieves all installments for a loan ordered by number
func (m *MockInstallmentRepository) GetByLoanID(ctx context.Context, loanID int64) ([]*domain.Installment, error) {
	installments := m.ByLoanID[loanID]
	out := make([]*domain.Installment, len(installments))
	for i, inst := range installments {
		copied := *inst
		out[i] = &copied
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

// GetByLoanIDTx retrieves all installments for a loan inside a transaction
func (m *MockInstallmentRepository) GetByLoanIDTx(ctx context.Context, tx any, loanID int64) ([]*domain.Installment, error) {
	return m.GetByLoanID(ctx, loanID)
}

// MarkPaidTx marks a single installment paid
func (m *MockInstallmentRepository) MarkPaidTx(ctx context.Context, tx any, installmentID int64, paidAt time.Time, paymentRef *uuid.UUID, bySettlement bool) error {
	for _, installments := range m.ByLoanID {
		for _, inst := range installments {
			if inst.ID != installmentID {
				continue
			}
			if inst.Paid {
				return domain.ErrAlreadyPaid
			}
			inst.Paid = true
			inst.PaidAt = &paidAt
			inst.PaymentRef = paymentRef
			inst.PaidBySettlement = bySettlement
			return nil
		}
	}
	return domain.ErrUnknownInstallment
}

// CapturingPublisher records published events for assertions.
type CapturingPublisher struct {
	Events []websocket.Event
}

// Publish records the event
func (p *CapturingPublisher) Publish(event websocket.Event) {
	p.Events = append(p.Events, event)
}

// Types returns the published event type strings in order
func (p *CapturingPublisher) Types() []string {
	types := make([]string, len(p.Events))
	for i, e := range p.Events {
		types[i] = e.Type
	}
	return types
}
