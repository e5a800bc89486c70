package settlement

import (
	"time"

	"github.com/google/uuid"

	"github.com/ashar-khursheed/care-platform-backend/internal/models"
	"github.com/ashar-khursheed/care-platform-backend/internal/pkg/apperror"
)

// Пакет settlement содержит переходы состояний записи о расчёте.
// Функции не ходят в базу: они проверяют guard-условия и мутируют
// переданную запись, персистентность — забота вызывающего слоя.

func invalidTransition(message string) error {
	return apperror.New(apperror.ErrCodeInvalidTransition, message)
}

// RequestWithdrawal переводит запись в статус requested.
// Заявка допустима только пока эскроу удерживается; повторная заявка
// разрешена после rejected и cancelled.
func RequestWithdrawal(rec *models.WithdrawalRecord, bankName, accountLast4 string, now time.Time) error {
	if rec.EscrowStatus == models.EscrowStatusDisputed {
		return invalidTransition("эскроу оспорен, вывод средств заблокирован")
	}
	if rec.EscrowStatus != models.EscrowStatusHolding {
		return invalidTransition("эскроу уже освобождён")
	}
	if !rec.CanRequestWithdrawal() {
		return invalidTransition("заявка на вывод уже существует")
	}

	rec.WithdrawalStatus = models.WithdrawalStatusRequested
	rec.WithdrawalRequestedAt = &now
	rec.BankName = &bankName
	rec.AccountNumberLast4 = &accountLast4
	// Сбрасываем следы предыдущей отклонённой заявки.
	rec.RejectionReason = nil
	rec.ApprovedBy = nil
	return nil
}

// CancelWithdrawal отменяет поданную заявку. Эскроу при этом не трогаем.
func CancelWithdrawal(rec *models.WithdrawalRecord) error {
	if rec.WithdrawalStatus != models.WithdrawalStatusRequested {
		return invalidTransition("отменить можно только поданную заявку")
	}
	rec.WithdrawalStatus = models.WithdrawalStatusCancelled
	return nil
}

// ApproveWithdrawal одобряет заявку от имени администратора.
func ApproveWithdrawal(rec *models.WithdrawalRecord, adminID uuid.UUID) error {
	if rec.WithdrawalStatus != models.WithdrawalStatusRequested {
		return invalidTransition("заявка не в статусе requested")
	}
	rec.WithdrawalStatus = models.WithdrawalStatusApproved
	rec.ApprovedBy = &adminID
	return nil
}

// RejectWithdrawal отклоняет заявку с указанием причины.
// После отклонения исполнитель может подать заявку повторно.
func RejectWithdrawal(rec *models.WithdrawalRecord, reason string) error {
	if rec.WithdrawalStatus != models.WithdrawalStatusRequested {
		return invalidTransition("заявка не в статусе requested")
	}
	rec.WithdrawalStatus = models.WithdrawalStatusRejected
	rec.RejectionReason = &reason
	return nil
}

// ReleaseEscrow освобождает эскроу: holding → released.
// Используется и ручным действием администратора, и фоновой задачей.
func ReleaseEscrow(rec *models.WithdrawalRecord, now time.Time) error {
	if rec.EscrowStatus == models.EscrowStatusReleased {
		return invalidTransition("эскроу уже освобождён")
	}
	if rec.EscrowStatus == models.EscrowStatusDisputed {
		return invalidTransition("эскроу оспорен и не может быть освобождён")
	}
	rec.EscrowStatus = models.EscrowStatusReleased
	rec.EscrowReleasedAt = &now
	return nil
}

// MarkDisputed замораживает эскроу в споре. Авторелиз такой записи не касается.
func MarkDisputed(rec *models.WithdrawalRecord) error {
	if rec.EscrowStatus != models.EscrowStatusHolding {
		return invalidTransition("оспорить можно только удерживаемый эскроу")
	}
	rec.EscrowStatus = models.EscrowStatusDisputed
	return nil
}

// MarkPaid фиксирует факт исполненной выплаты по одобренной заявке.
func MarkPaid(rec *models.WithdrawalRecord, transactionReference string, now time.Time) error {
	if rec.WithdrawalStatus != models.WithdrawalStatusApproved {
		return invalidTransition("выплата возможна только по одобренной заявке")
	}
	rec.WithdrawalStatus = models.WithdrawalStatusPaid
	rec.WithdrawalProcessedAt = &now
	rec.TransactionReference = &transactionReference
	return nil
}

// EligibleForAutoRelease проверяет предикат авторелиза: эскроу удерживается
// и срок удержания истёк. Граница включительно.
func EligibleForAutoRelease(rec *models.WithdrawalRecord, now time.Time) bool {
	return rec.EscrowStatus == models.EscrowStatusHolding &&
		rec.AutoReleaseAt != nil &&
		!rec.AutoReleaseAt.After(now)
}
