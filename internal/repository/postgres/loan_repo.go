package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/khatupay/khatu-backend/internal/domain"
	"github.com/shopspring/decimal"
)

const loanColumns = `id, user_id, principal, annual_rate_percent, tenure_months,
	status, disbursement_date, outstanding, settlement_amount, created_at, updated_at`

// LoanRepository implements domain.LoanRepository using PostgreSQL
type LoanRepository struct {
	pool *pgxpool.Pool
}

// NewLoanRepository creates a new LoanRepository
func NewLoanRepository(pool *pgxpool.Pool) *LoanRepository {
	return &LoanRepository{pool: pool}
}

// Create creates a new loan
func (r *LoanRepository) Create(ctx context.Context, loan *domain.Loan) (*domain.Loan, error) {
	principal, err := decimalToPgNumeric(loan.Terms.Principal)
	if err != nil {
		return nil, err
	}
	rate, err := decimalToPgNumeric(loan.Terms.AnnualRatePercent)
	if err != nil {
		return nil, err
	}
	outstanding, err := decimalToPgNumeric(loan.Outstanding)
	if err != nil {
		return nil, err
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO loans (user_id, principal, annual_rate_percent, tenure_months, status, outstanding)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+loanColumns,
		loan.UserID, principal, rate, loan.Terms.TenureMonths, loan.Status, outstanding)

	return scanLoan(row)
}

// GetByID retrieves a loan by ID
func (r *LoanRepository) GetByID(ctx context.Context, id int64) (*domain.Loan, error) {
	return getLoan(ctx, r.pool, id, "")
}

// GetByIDForUpdate retrieves a loan by ID holding a row lock inside tx
func (r *LoanRepository) GetByIDForUpdate(ctx context.Context, tx any, id int64) (*domain.Loan, error) {
	pgxTx, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	return getLoan(ctx, pgxTx, id, " FOR UPDATE")
}

func getLoan(ctx context.Context, q querier, id int64, suffix string) (*domain.Loan, error) {
	row := q.QueryRow(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1`+suffix, id)
	loan, err := scanLoan(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrLoanNotFound
		}
		return nil, err
	}
	return loan, nil
}

// List retrieves loans ordered by ID, optionally filtered by status
func (r *LoanRepository) List(ctx context.Context, status *domain.LoanStatus) ([]*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans`
	args := []any{}
	if status != nil {
		query += ` WHERE status = $1`
		args = append(args, *status)
	}
	query += ` ORDER BY id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var loans []*domain.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, loan)
	}
	return loans, rows.Err()
}

// UpdateStatusTx updates a loan's status and optionally its disbursement date
func (r *LoanRepository) UpdateStatusTx(ctx context.Context, tx any, id int64, status domain.LoanStatus, disbursementDate *time.Time) error {
	pgxTx, err := asTx(tx)
	if err != nil {
		return err
	}

	date := pgtype.Date{}
	if disbursementDate != nil {
		date.Time = *disbursementDate
		date.Valid = true
	}

	tag, err := pgxTx.Exec(ctx, `
		UPDATE loans
		SET status = $2,
		    disbursement_date = COALESCE($3, disbursement_date),
		    updated_at = now()
		WHERE id = $1`,
		id, status, date)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrLoanNotFound
	}
	return nil
}

// UpdateOutstandingTx updates a loan's cached outstanding amount
func (r *LoanRepository) UpdateOutstandingTx(ctx context.Context, tx any, id int64, outstanding decimal.Decimal) error {
	pgxTx, err := asTx(tx)
	if err != nil {
		return err
	}
	amount, err := decimalToPgNumeric(outstanding)
	if err != nil {
		return err
	}

	tag, err := pgxTx.Exec(ctx,
		`UPDATE loans SET outstanding = $2, updated_at = now() WHERE id = $1`,
		id, amount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrLoanNotFound
	}
	return nil
}

// RecordSettlementTx records the negotiated settlement amount on a loan
func (r *LoanRepository) RecordSettlementTx(ctx context.Context, tx any, id int64, amount decimal.Decimal) error {
	pgxTx, err := asTx(tx)
	if err != nil {
		return err
	}
	settlement, err := decimalToPgNumeric(amount)
	if err != nil {
		return err
	}

	tag, err := pgxTx.Exec(ctx,
		`UPDATE loans SET settlement_amount = $2, updated_at = now() WHERE id = $1`,
		id, settlement)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrLoanNotFound
	}
	return nil
}

// UpdateStatus updates a loan's status outside a transaction
func (r *LoanRepository) UpdateStatus(ctx context.Context, id int64, status domain.LoanStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE loans SET status = $2, updated_at = now() WHERE id = $1`,
		id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrLoanNotFound
	}
	return nil
}

func scanLoan(row pgx.Row) (*domain.Loan, error) {
	var (
		loan             domain.Loan
		principal        pgtype.Numeric
		rate             pgtype.Numeric
		outstanding      pgtype.Numeric
		settlement       pgtype.Numeric
		disbursementDate pgtype.Date
		createdAt        pgtype.Timestamptz
		updatedAt        pgtype.Timestamptz
	)

	err := row.Scan(
		&loan.ID, &loan.UserID, &principal, &rate, &loan.Terms.TenureMonths,
		&loan.Status, &disbursementDate, &outstanding, &settlement, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	loan.Terms.Principal = pgNumericToDecimal(principal)
	loan.Terms.AnnualRatePercent = pgNumericToDecimal(rate)
	loan.Outstanding = pgNumericToDecimal(outstanding)
	loan.CreatedAt = createdAt.Time
	loan.UpdatedAt = updatedAt.Time

	if disbursementDate.Valid {
		loan.DisbursementDate = &disbursementDate.Time
	}
	if settlement.Valid {
		amount := pgNumericToDecimal(settlement)
		loan.SettlementAmount = &amount
	}

	return &loan, nil
}
