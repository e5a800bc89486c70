package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/ashar-khursheed/care-platform-backend/internal/models"
)

// ErrBookingNotFound возвращается при синхронизации статуса оплаты
// несуществующего бронирования.
var ErrBookingNotFound = errors.New("booking not found")

type PayoutRepository struct {
	db *sqlx.DB
}

func NewPayoutRepository(db *sqlx.DB) *PayoutRepository {
	return &PayoutRepository{db: db}
}

// CreatePayout создаёт выплату в статусе pending на сумму net_provider_amount.
// Вызывается после фиксации освобождения эскроу.
func (r *PayoutRepository) CreatePayout(ctx context.Context, withdrawalRequestID, providerID uuid.UUID, amount decimal.Decimal, currency string) (*models.Payout, error) {
	var payout models.Payout
	err := r.db.GetContext(ctx, &payout, `
		INSERT INTO payouts (withdrawal_request_id, provider_id, amount, currency, status)
		VALUES ($1, $2, $3, $4, 'pending')
		RETURNING id, withdrawal_request_id, provider_id, amount, currency, status, created_at, completed_at
	`, withdrawalRequestID, providerID, amount, currency)
	if err != nil {
		return nil, err
	}
	return &payout, nil
}

// ListByProvider возвращает выплаты исполнителя.
func (r *PayoutRepository) ListByProvider(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]models.Payout, error) {
	var payouts []models.Payout
	err := r.db.SelectContext(ctx, &payouts, `
		SELECT id, withdrawal_request_id, provider_id, amount, currency, status, created_at, completed_at
		FROM payouts WHERE provider_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, providerID, limit, offset)
	return payouts, err
}

// UpdateBookingPaymentStatus записывает статус оплаты на бронирование.
func (r *PayoutRepository) UpdateBookingPaymentStatus(ctx context.Context, bookingID uuid.UUID, paymentStatus string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE bookings SET payment_status = $2, updated_at = NOW() WHERE id = $1
	`, bookingID, paymentStatus)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrBookingNotFound
	}
	return nil
}
