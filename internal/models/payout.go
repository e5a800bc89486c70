package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Статусы выплат
const (
	PayoutStatusPending    = "pending"
	PayoutStatusProcessing = "processing"
	PayoutStatusCompleted  = "completed"
	PayoutStatusFailed     = "failed"
)

// Терминальные статусы платежа, приходящие от платёжного шлюза.
const (
	PaymentStatusSucceeded         = "succeeded"
	PaymentStatusRefunded          = "refunded"
	PaymentStatusPartiallyRefunded = "partially_refunded"
	PaymentStatusFailed            = "failed"
)

// Статусы оплаты бронирования (read-side).
const (
	BookingPaymentPaid              = "paid"
	BookingPaymentRefunded          = "refunded"
	BookingPaymentPartiallyRefunded = "partially_refunded"
	BookingPaymentFailed            = "failed"
	BookingPaymentPending           = "pending"
)

// Payout представляет выплату исполнителю, создаваемую при освобождении эскроу.
type Payout struct {
	ID                  uuid.UUID       `db:"id" json:"id"`
	WithdrawalRequestID uuid.UUID       `db:"withdrawal_request_id" json:"withdrawal_request_id"`
	ProviderID          uuid.UUID       `db:"provider_id" json:"provider_id"`
	Amount              decimal.Decimal `db:"amount" json:"amount"`
	Currency            string          `db:"currency" json:"currency"`
	Status              string          `db:"status" json:"status"`
	CreatedAt           time.Time       `db:"created_at" json:"created_at"`
	CompletedAt         *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
}

// MapPaymentStatusToBooking переводит статус платежа в статус оплаты
// бронирования. Неизвестные статусы безопасно отображаются в pending,
// ошибок тут быть не должно.
func MapPaymentStatusToBooking(paymentStatus string) string {
	switch paymentStatus {
	case PaymentStatusSucceeded:
		return BookingPaymentPaid
	case PaymentStatusRefunded:
		return BookingPaymentRefunded
	case PaymentStatusPartiallyRefunded:
		return BookingPaymentPartiallyRefunded
	case PaymentStatusFailed:
		return BookingPaymentFailed
	default:
		return BookingPaymentPending
	}
}
