package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jettravel/backend/internal/domain"
)

type PaymentRepository interface {
	Create(ctx context.Context, payment *domain.Payment) error
	GetByID(ctx context.Context, id string) (*domain.Payment, error)
	GetByTransactionID(ctx context.Context, transactionID string) (*domain.Payment, error)
	// UpdateStatus writes the new status and merges data into the append-only
	// payment_data bag in a single statement.
	UpdateStatus(ctx context.Context, id string, status domain.PaymentStatus, data map[string]any) (*domain.Payment, error)
}

type PGPaymentRepository struct {
	db *pgxpool.Pool
}

func NewPaymentRepository(db *pgxpool.Pool) PaymentRepository {
	return &PGPaymentRepository{db: db}
}

const paymentColumns = `id, transaction_id, booking_id, user_id, amount, currency, payment_method, status, payment_data, created_at, updated_at`

func (r *PGPaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	return r.db.QueryRow(ctx, `INSERT INTO payments
		(id, transaction_id, booking_id, user_id, amount, currency, payment_method, status, payment_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		p.ID, p.TransactionID, p.BookingID, p.UserID, p.Amount, p.Currency, p.PaymentMethod, p.Status, p.PaymentData).
		Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *PGPaymentRepository) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	row := r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id=$1`, id)
	return scanPayment(row, id)
}

func (r *PGPaymentRepository) GetByTransactionID(ctx context.Context, transactionID string) (*domain.Payment, error) {
	row := r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE transaction_id=$1`, transactionID)
	return scanPayment(row, transactionID)
}

func (r *PGPaymentRepository) UpdateStatus(ctx context.Context, id string, status domain.PaymentStatus, data map[string]any) (*domain.Payment, error) {
	if data == nil {
		data = map[string]any{}
	}
	row := r.db.QueryRow(ctx, `UPDATE payments
		SET status=$2, payment_data = payment_data || $3, updated_at=now()
		WHERE id=$1
		RETURNING `+paymentColumns, id, status, data)
	return scanPayment(row, id)
}

func scanPayment(row pgx.Row, key string) (*domain.Payment, error) {
	var p domain.Payment
	err := row.Scan(&p.ID, &p.TransactionID, &p.BookingID, &p.UserID, &p.Amount, &p.Currency,
		&p.PaymentMethod, &p.Status, &p.PaymentData, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.NotFoundError{Entity: "payment", Key: key}
		}
		return nil, err
	}
	return &p, nil
}

var _ PaymentRepository = (*PGPaymentRepository)(nil)
