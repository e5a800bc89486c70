package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/shopspring/decimal"
)

// Статусы эскроу
const (
	EscrowStatusHolding  = "holding"
	EscrowStatusReleased = "released"
	EscrowStatusDisputed = "disputed"
)

// Статусы вывода средств
const (
	WithdrawalStatusNone      = "none"
	WithdrawalStatusRequested = "requested"
	WithdrawalStatusApproved  = "approved"
	WithdrawalStatusRejected  = "rejected"
	WithdrawalStatusPaid      = "paid"
	WithdrawalStatusCancelled = "cancelled"
)

// WithdrawalRecord представляет эскроу и вывод средств по одному
// завершённому бронированию. Суммы комиссий фиксируются при создании
// и далее не пересчитываются.
type WithdrawalRecord struct {
	ID                uuid.UUID       `db:"id" json:"id"`
	ProviderID        uuid.UUID       `db:"provider_id" json:"provider_id"`
	BookingID         uuid.UUID       `db:"booking_id" json:"booking_id"`
	GrossAmount       decimal.Decimal `db:"gross_amount" json:"gross_amount"`
	ClientFee         decimal.Decimal `db:"client_fee" json:"client_fee"`
	ProviderFee       decimal.Decimal `db:"provider_fee" json:"provider_fee"`
	PlatformFeeTotal  decimal.Decimal `db:"platform_fee_total" json:"platform_fee_total"`
	NetProviderAmount decimal.Decimal `db:"net_provider_amount" json:"net_provider_amount"`
	Currency          string          `db:"currency" json:"currency"`

	EscrowStatus     string `db:"escrow_status" json:"escrow_status"`
	WithdrawalStatus string `db:"withdrawal_status" json:"withdrawal_status"`

	EscrowHeldAt     time.Time  `db:"escrow_held_at" json:"escrow_held_at"`
	AutoReleaseAt    *time.Time `db:"auto_release_at" json:"auto_release_at,omitempty"`
	EscrowReleasedAt *time.Time `db:"escrow_released_at" json:"escrow_released_at,omitempty"`

	WithdrawalRequestedAt *time.Time `db:"withdrawal_requested_at" json:"withdrawal_requested_at,omitempty"`
	WithdrawalProcessedAt *time.Time `db:"withdrawal_processed_at" json:"withdrawal_processed_at,omitempty"`

	BankName             *string        `db:"bank_name" json:"bank_name,omitempty"`
	AccountNumberLast4   *string        `db:"account_number_last4" json:"account_number_last4,omitempty"`
	TransactionReference *string        `db:"transaction_reference" json:"transaction_reference,omitempty"`
	ApprovedBy           *uuid.UUID     `db:"approved_by" json:"approved_by,omitempty"`
	RejectionReason      *string        `db:"rejection_reason" json:"rejection_reason,omitempty"`
	Notes                *string        `db:"notes" json:"notes,omitempty"`
	Metadata             types.JSONText `db:"metadata" json:"metadata,omitempty"`

	// Version увеличивается при каждом переходе состояния (optimistic lock).
	Version   int       `db:"version" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CanRequestWithdrawal проверяет, доступна ли подача заявки на вывод.
// Повторная заявка разрешена после отклонения или отмены, пока эскроу
// не освобождён и не оспорен.
func (w *WithdrawalRecord) CanRequestWithdrawal() bool {
	if w.EscrowStatus != EscrowStatusHolding {
		return false
	}
	switch w.WithdrawalStatus {
	case WithdrawalStatusNone, WithdrawalStatusRejected, WithdrawalStatusCancelled:
		return true
	}
	return false
}

// IsTerminalWithdrawal сообщает, что статус вывода финальный.
func (w *WithdrawalRecord) IsTerminalWithdrawal() bool {
	return w.WithdrawalStatus == WithdrawalStatusPaid
}
