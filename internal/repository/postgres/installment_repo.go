package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/khatupay/khatu-backend/internal/domain"
)

const installmentColumns = `id, loan_id, number, due_date, principal, interest, total,
	paid, paid_at, payment_ref, paid_by_settlement`

// InstallmentRepository implements domain.InstallmentRepository using PostgreSQL
type InstallmentRepository struct {
	pool *pgxpool.Pool
}

// NewInstallmentRepository creates a new InstallmentRepository
func NewInstallmentRepository(pool *pgxpool.Pool) *InstallmentRepository {
	return &InstallmentRepository{pool: pool}
}

// CreateBatchTx persists a full schedule inside a transaction
func (r *InstallmentRepository) CreateBatchTx(ctx context.Context, tx any, installments []*domain.Installment) error {
	pgxTx, err := asTx(tx)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, inst := range installments {
		principal, err := decimalToPgNumeric(inst.Principal)
		if err != nil {
			return err
		}
		interest, err := decimalToPgNumeric(inst.Interest)
		if err != nil {
			return err
		}
		total, err := decimalToPgNumeric(inst.Total)
		if err != nil {
			return err
		}

		batch.Queue(`
			INSERT INTO installments (loan_id, number, due_date, principal, interest, total)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			inst.LoanID, inst.Number,
			pgtype.Date{Time: inst.DueDate, Valid: true},
			principal, interest, total)
	}

	results := pgxTx.SendBatch(ctx, batch)
	defer results.Close()

	for range installments {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// GetByLoanID retrieves all installments for a loan ordered by number
func (r *InstallmentRepository) GetByLoanID(ctx context.Context, loanID int64) ([]*domain.Installment, error) {
	return listInstallments(ctx, r.pool, loanID)
}

// GetByLoanIDTx retrieves all installments for a loan inside a transaction
func (r *InstallmentRepository) GetByLoanIDTx(ctx context.Context, tx any, loanID int64) ([]*domain.Installment, error) {
	pgxTx, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	return listInstallments(ctx, pgxTx, loanID)
}

func listInstallments(ctx context.Context, q querier, loanID int64) ([]*domain.Installment, error) {
	rows, err := q.Query(ctx,
		`SELECT `+installmentColumns+` FROM installments WHERE loan_id = $1 ORDER BY number`,
		loanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var installments []*domain.Installment
	for rows.Next() {
		inst, err := scanInstallment(rows)
		if err != nil {
			return nil, err
		}
		installments = append(installments, inst)
	}
	return installments, rows.Err()
}

// MarkPaidTx marks a single installment paid. The paid guard is in the WHERE
// clause so a concurrent double-pay loses the race at the database too, not
// only under the service lock.
func (r *InstallmentRepository) MarkPaidTx(ctx context.Context, tx any, installmentID int64, paidAt time.Time, paymentRef *uuid.UUID, bySettlement bool) error {
	pgxTx, err := asTx(tx)
	if err != nil {
		return err
	}

	ref := pgtype.UUID{}
	if paymentRef != nil {
		ref.Bytes = *paymentRef
		ref.Valid = true
	}

	tag, err := pgxTx.Exec(ctx, `
		UPDATE installments
		SET paid = TRUE,
		    paid_at = $2,
		    payment_ref = $3,
		    paid_by_settlement = $4
		WHERE id = $1 AND NOT paid`,
		installmentID, paidAt, ref, bySettlement)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var paid bool
		err := pgxTx.QueryRow(ctx,
			`SELECT paid FROM installments WHERE id = $1`, installmentID).Scan(&paid)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrUnknownInstallment
		}
		if err != nil {
			return err
		}
		return domain.ErrAlreadyPaid
	}
	return nil
}

func scanInstallment(row pgx.Row) (*domain.Installment, error) {
	var (
		inst       domain.Installment
		dueDate    pgtype.Date
		principal  pgtype.Numeric
		interest   pgtype.Numeric
		total      pgtype.Numeric
		paidAt     pgtype.Timestamptz
		paymentRef pgtype.UUID
	)

	err := row.Scan(
		&inst.ID, &inst.LoanID, &inst.Number, &dueDate, &principal, &interest,
		&total, &inst.Paid, &paidAt, &paymentRef, &inst.PaidBySettlement)
	if err != nil {
		return nil, err
	}

	inst.DueDate = dueDate.Time
	inst.Principal = pgNumericToDecimal(principal)
	inst.Interest = pgNumericToDecimal(interest)
	inst.Total = pgNumericToDecimal(total)

	if paidAt.Valid {
		inst.PaidAt = &paidAt.Time
	}
	if paymentRef.Valid {
		ref := uuid.UUID(paymentRef.Bytes)
		inst.PaymentRef = &ref
	}

	return &inst, nil
}
