package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jettravel/backend/internal/domain"
)

type BookingRepository interface {
	Create(ctx context.Context, booking *domain.Booking) error
	GetByID(ctx context.Context, id string) (*domain.Booking, error)
	GetByReference(ctx context.Context, reference string) (*domain.Booking, error)
	UpdateStatus(ctx context.Context, id string, status domain.BookingStatus, failureReason *string) (*domain.Booking, error)
	ConfirmWithOrder(ctx context.Context, id, orderID string, orderData json.RawMessage) (*domain.Booking, error)
	SetETicketURL(ctx context.Context, id, url string) (*domain.Booking, error)
	ExpirePendingBefore(ctx context.Context, deadline time.Time) ([]domain.Booking, error)
}

type PGBookingRepository struct {
	db *pgxpool.Pool
}

func NewBookingRepository(db *pgxpool.Pool) BookingRepository {
	return &PGBookingRepository{db: db}
}

const bookingColumns = `id, reference, user_id, offer_snapshot, passengers, contact_email, contact_phone,
	total_amount, currency, status, failure_reason, provider_order_id, provider_order_data,
	eticket_url, expires_at, created_at, updated_at`

func (r *PGBookingRepository) Create(ctx context.Context, b *domain.Booking) error {
	return r.db.QueryRow(ctx, `INSERT INTO bookings
		(id, reference, user_id, offer_snapshot, passengers, contact_email, contact_phone, total_amount, currency, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`,
		b.ID, b.Reference, b.UserID, b.OfferSnapshot, b.Passengers, b.ContactEmail, b.ContactPhone,
		b.TotalAmount, b.Currency, b.Status, b.ExpiresAt).
		Scan(&b.CreatedAt, &b.UpdatedAt)
}

func (r *PGBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	row := r.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1`, id)
	return scanBooking(row, "booking", id)
}

func (r *PGBookingRepository) GetByReference(ctx context.Context, reference string) (*domain.Booking, error) {
	row := r.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE reference=$1`, reference)
	return scanBooking(row, "booking", reference)
}

func (r *PGBookingRepository) UpdateStatus(ctx context.Context, id string, status domain.BookingStatus, failureReason *string) (*domain.Booking, error) {
	row := r.db.QueryRow(ctx, `UPDATE bookings
		SET status=$2, failure_reason=COALESCE($3, failure_reason), updated_at=now()
		WHERE id=$1
		RETURNING `+bookingColumns, id, status, failureReason)
	return scanBooking(row, "booking", id)
}

func (r *PGBookingRepository) ConfirmWithOrder(ctx context.Context, id, orderID string, orderData json.RawMessage) (*domain.Booking, error) {
	row := r.db.QueryRow(ctx, `UPDATE bookings
		SET status=$2, provider_order_id=$3, provider_order_data=$4, updated_at=now()
		WHERE id=$1 AND provider_order_id IS NULL
		RETURNING `+bookingColumns, id, domain.BookingStatusConfirmed, orderID, orderData)
	return scanBooking(row, "booking", id)
}

func (r *PGBookingRepository) SetETicketURL(ctx context.Context, id, url string) (*domain.Booking, error) {
	// COALESCE keeps the first URL ever written.
	row := r.db.QueryRow(ctx, `UPDATE bookings
		SET eticket_url=COALESCE(eticket_url, $2), updated_at=now()
		WHERE id=$1
		RETURNING `+bookingColumns, id, url)
	return scanBooking(row, "booking", id)
}

func (r *PGBookingRepository) ExpirePendingBefore(ctx context.Context, deadline time.Time) ([]domain.Booking, error) {
	rows, err := r.db.Query(ctx, `UPDATE bookings
		SET status=$1, failure_reason='booking hold expired', updated_at=now()
		WHERE status=$2 AND expires_at <= $3
		RETURNING `+bookingColumns, domain.BookingStatusCancelled, domain.BookingStatusPending, deadline)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expired []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows, "booking", "")
		if err != nil {
			return nil, err
		}
		expired = append(expired, *b)
	}
	return expired, rows.Err()
}

func scanBooking(row pgx.Row, entity, key string) (*domain.Booking, error) {
	var b domain.Booking
	err := row.Scan(&b.ID, &b.Reference, &b.UserID, &b.OfferSnapshot, &b.Passengers, &b.ContactEmail, &b.ContactPhone,
		&b.TotalAmount, &b.Currency, &b.Status, &b.FailureReason, &b.ProviderOrderID, &b.ProviderOrderData,
		&b.ETicketURL, &b.ExpiresAt, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.NotFoundError{Entity: entity, Key: key}
		}
		return nil, err
	}
	return &b, nil
}

var _ BookingRepository = (*PGBookingRepository)(nil)
