package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ashar-khursheed/care-platform-backend/internal/models"
)

var (
	// ErrWithdrawalNotFound возвращается, когда запись о расчёте не найдена.
	ErrWithdrawalNotFound = errors.New("withdrawal record not found")
	// ErrDuplicateBooking возвращается при попытке создать вторую запись по бронированию.
	ErrDuplicateBooking = errors.New("withdrawal record already exists for booking")
	// ErrVersionConflict возвращается при конфликте оптимистичной блокировки.
	ErrVersionConflict = errors.New("withdrawal record was modified concurrently")
)

const withdrawalColumns = `
	id, provider_id, booking_id,
	gross_amount, client_fee, provider_fee, platform_fee_total, net_provider_amount, currency,
	escrow_status, withdrawal_status,
	escrow_held_at, auto_release_at, escrow_released_at,
	withdrawal_requested_at, withdrawal_processed_at,
	bank_name, account_number_last4, transaction_reference,
	approved_by, rejection_reason, notes, metadata,
	version, created_at, updated_at
`

type WithdrawalRepository struct {
	db *sqlx.DB
}

func NewWithdrawalRepository(db *sqlx.DB) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

// Create сохраняет новую запись о расчёте. Поле booking_id уникально:
// по одному завершённому бронированию существует ровно одна запись.
func (r *WithdrawalRepository) Create(ctx context.Context, rec *models.WithdrawalRecord) (*models.WithdrawalRecord, error) {
	var created models.WithdrawalRecord
	err := r.db.GetContext(ctx, &created, `
		INSERT INTO withdrawal_requests (
			provider_id, booking_id,
			gross_amount, client_fee, provider_fee, platform_fee_total, net_provider_amount, currency,
			escrow_status, withdrawal_status, escrow_held_at, auto_release_at, metadata
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, COALESCE($13, '{}'::jsonb))
		RETURNING `+withdrawalColumns,
		rec.ProviderID, rec.BookingID,
		rec.GrossAmount, rec.ClientFee, rec.ProviderFee, rec.PlatformFeeTotal, rec.NetProviderAmount, rec.Currency,
		rec.EscrowStatus, rec.WithdrawalStatus, rec.EscrowHeldAt, rec.AutoReleaseAt, rec.Metadata,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrDuplicateBooking
		}
		return nil, err
	}
	return &created, nil
}

// GetByID возвращает запись по идентификатору.
func (r *WithdrawalRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.WithdrawalRecord, error) {
	var rec models.WithdrawalRecord
	err := r.db.GetContext(ctx, &rec, `SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWithdrawalNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetByBookingID возвращает запись по бронированию.
func (r *WithdrawalRepository) GetByBookingID(ctx context.Context, bookingID uuid.UUID) (*models.WithdrawalRecord, error) {
	var rec models.WithdrawalRecord
	err := r.db.GetContext(ctx, &rec, `SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE booking_id = $1`, bookingID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWithdrawalNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListByProvider возвращает записи исполнителя, свежие первыми.
func (r *WithdrawalRepository) ListByProvider(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]models.WithdrawalRecord, error) {
	var recs []models.WithdrawalRecord
	err := r.db.SelectContext(ctx, &recs, `
		SELECT `+withdrawalColumns+` FROM withdrawal_requests
		WHERE provider_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, providerID, limit, offset)
	return recs, err
}

// List возвращает записи с фильтрами по статусам (для админки).
// Пустой фильтр означает "любой статус".
func (r *WithdrawalRepository) List(ctx context.Context, escrowStatus, withdrawalStatus string, limit, offset int) ([]models.WithdrawalRecord, error) {
	var recs []models.WithdrawalRecord
	err := r.db.SelectContext(ctx, &recs, `
		SELECT `+withdrawalColumns+` FROM withdrawal_requests
		WHERE ($1 = '' OR escrow_status = $1)
		  AND ($2 = '' OR withdrawal_status = $2)
		ORDER BY created_at DESC LIMIT $3 OFFSET $4
	`, escrowStatus, withdrawalStatus, limit, offset)
	return recs, err
}

// ListAutoReleasable возвращает записи, подлежащие авторелизу на момент now.
// Предикат вычисляется заново при каждом вызове, граница включительно.
func (r *WithdrawalRepository) ListAutoReleasable(ctx context.Context, now time.Time, limit int) ([]models.WithdrawalRecord, error) {
	var recs []models.WithdrawalRecord
	err := r.db.SelectContext(ctx, &recs, `
		SELECT `+withdrawalColumns+` FROM withdrawal_requests
		WHERE escrow_status = 'holding'
		  AND auto_release_at IS NOT NULL
		  AND auto_release_at <= $1
		ORDER BY auto_release_at
		LIMIT $2
	`, now, limit)
	return recs, err
}

// UpdateTransition сохраняет результат перехода состояния с проверкой версии.
// Если строка была изменена конкурентно, версия не совпадёт и вернётся
// ErrVersionConflict — вызывающий должен перечитать запись.
func (r *WithdrawalRepository) UpdateTransition(ctx context.Context, rec *models.WithdrawalRecord) (*models.WithdrawalRecord, error) {
	var updated models.WithdrawalRecord
	err := r.db.GetContext(ctx, &updated, `
		UPDATE withdrawal_requests SET
			escrow_status = $3,
			withdrawal_status = $4,
			escrow_released_at = $5,
			withdrawal_requested_at = $6,
			withdrawal_processed_at = $7,
			bank_name = $8,
			account_number_last4 = $9,
			transaction_reference = $10,
			approved_by = $11,
			rejection_reason = $12,
			notes = $13,
			version = version + 1,
			updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING `+withdrawalColumns,
		rec.ID, rec.Version,
		rec.EscrowStatus, rec.WithdrawalStatus,
		rec.EscrowReleasedAt, rec.WithdrawalRequestedAt, rec.WithdrawalProcessedAt,
		rec.BankName, rec.AccountNumberLast4, rec.TransactionReference,
		rec.ApprovedBy, rec.RejectionReason, rec.Notes,
	)
	if errors.Is(err, sql.ErrNoRows) {
		// Либо записи нет, либо версия устарела.
		exists, existsErr := r.exists(ctx, rec.ID)
		if existsErr != nil {
			return nil, existsErr
		}
		if !exists {
			return nil, ErrWithdrawalNotFound
		}
		return nil, ErrVersionConflict
	}
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (r *WithdrawalRepository) exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM withdrawal_requests WHERE id = $1`, id); err != nil {
		return false, err
	}
	return count > 0, nil
}
