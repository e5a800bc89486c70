package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ashar-khursheed/care-platform-backend/internal/fees"
	"github.com/ashar-khursheed/care-platform-backend/internal/logger"
	"github.com/ashar-khursheed/care-platform-backend/internal/models"
	"github.com/ashar-khursheed/care-platform-backend/internal/pkg/apperror"
	"github.com/ashar-khursheed/care-platform-backend/internal/repository"
	"github.com/ashar-khursheed/care-platform-backend/internal/settlement"
)

// События жизненного цикла расчёта, отдаваемые наружу (уведомления).
const (
	EventWithdrawalRequested = "withdrawal_requested"
	EventWithdrawalCancelled = "withdrawal_cancelled"
	EventWithdrawalApproved  = "withdrawal_approved"
	EventWithdrawalRejected  = "withdrawal_rejected"
	EventWithdrawalPaid      = "withdrawal_paid"
	EventEscrowReleased      = "escrow_released"
	EventEscrowDisputed      = "escrow_disputed"
)

// WithdrawalStore — хранилище записей о расчётах.
type WithdrawalStore interface {
	Create(ctx context.Context, rec *models.WithdrawalRecord) (*models.WithdrawalRecord, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.WithdrawalRecord, error)
	GetByBookingID(ctx context.Context, bookingID uuid.UUID) (*models.WithdrawalRecord, error)
	ListByProvider(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]models.WithdrawalRecord, error)
	List(ctx context.Context, escrowStatus, withdrawalStatus string, limit, offset int) ([]models.WithdrawalRecord, error)
	ListAutoReleasable(ctx context.Context, now time.Time, limit int) ([]models.WithdrawalRecord, error)
	UpdateTransition(ctx context.Context, rec *models.WithdrawalRecord) (*models.WithdrawalRecord, error)
}

// PayoutStore — read-side проекция: выплаты и статус оплаты бронирования.
type PayoutStore interface {
	CreatePayout(ctx context.Context, withdrawalRequestID, providerID uuid.UUID, amount decimal.Decimal, currency string) (*models.Payout, error)
	UpdateBookingPaymentStatus(ctx context.Context, bookingID uuid.UUID, paymentStatus string) error
}

// Notifier получает события о переходах состояний. Доставка уведомлений —
// внешняя система, здесь только точка подключения.
type Notifier interface {
	SettlementEvent(ctx context.Context, event string, rec *models.WithdrawalRecord)
}

// LogNotifier — дефолтная реализация Notifier, пишет события в лог.
type LogNotifier struct{}

func (LogNotifier) SettlementEvent(_ context.Context, event string, rec *models.WithdrawalRecord) {
	logger.WithComponent("settlement").WithFields(logrus.Fields{
		"event":       event,
		"record_id":   rec.ID,
		"provider_id": rec.ProviderID,
	}).Info("settlement event")
}

// SettlementService управляет жизненным циклом эскроу и вывода средств.
// Все переходы идут через guard-функции пакета settlement и сохраняются
// с проверкой версии записи.
type SettlementService struct {
	store      WithdrawalStore
	payouts    PayoutStore
	notifier   Notifier
	holdPeriod time.Duration
	log        *logrus.Entry
	now        func() time.Time
}

func NewSettlementService(store WithdrawalStore, payouts PayoutStore, notifier Notifier, holdPeriod time.Duration) *SettlementService {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &SettlementService{
		store:      store,
		payouts:    payouts,
		notifier:   notifier,
		holdPeriod: holdPeriod,
		log:        logger.WithComponent("settlement"),
		now:        time.Now,
	}
}

// CreateRecord создаёт запись о расчёте по завершённому и оплаченному
// бронированию. Комиссии фиксируются сразу и больше не пересчитываются,
// auto_release_at выставляется один раз.
func (s *SettlementService) CreateRecord(ctx context.Context, providerID, bookingID uuid.UUID, grossAmount decimal.Decimal, currency string) (*models.WithdrawalRecord, error) {
	breakdown, err := fees.Calculate(grossAmount)
	if err != nil {
		return nil, err
	}
	if currency == "" {
		currency = "USD"
	}

	now := s.now().UTC()
	autoReleaseAt := now.Add(s.holdPeriod)
	rec := &models.WithdrawalRecord{
		ProviderID:        providerID,
		BookingID:         bookingID,
		GrossAmount:       breakdown.GrossAmount,
		ClientFee:         breakdown.ClientFee,
		ProviderFee:       breakdown.ProviderFee,
		PlatformFeeTotal:  breakdown.PlatformFeeTotal,
		NetProviderAmount: breakdown.NetProviderAmount,
		Currency:          currency,
		EscrowStatus:      models.EscrowStatusHolding,
		WithdrawalStatus:  models.WithdrawalStatusNone,
		EscrowHeldAt:      now,
		AutoReleaseAt:     &autoReleaseAt,
		Metadata:          types.JSONText("{}"),
	}

	created, err := s.store.Create(ctx, rec)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateBooking) {
			return nil, apperror.New(apperror.ErrCodeConflict, "по этому бронированию запись уже создана")
		}
		return nil, err
	}
	return created, nil
}

// RequestWithdrawal подаёт заявку на вывод от имени исполнителя.
func (s *SettlementService) RequestWithdrawal(ctx context.Context, id uuid.UUID, bankName, accountLast4 string) (*models.WithdrawalRecord, error) {
	return s.transition(ctx, id, EventWithdrawalRequested, func(rec *models.WithdrawalRecord) error {
		return settlement.RequestWithdrawal(rec, bankName, accountLast4, s.now().UTC())
	})
}

// CancelWithdrawal отменяет поданную заявку.
func (s *SettlementService) CancelWithdrawal(ctx context.Context, id uuid.UUID) (*models.WithdrawalRecord, error) {
	return s.transition(ctx, id, EventWithdrawalCancelled, settlement.CancelWithdrawal)
}

// ApproveWithdrawal одобряет заявку от имени администратора.
func (s *SettlementService) ApproveWithdrawal(ctx context.Context, id, adminID uuid.UUID) (*models.WithdrawalRecord, error) {
	return s.transition(ctx, id, EventWithdrawalApproved, func(rec *models.WithdrawalRecord) error {
		return settlement.ApproveWithdrawal(rec, adminID)
	})
}

// RejectWithdrawal отклоняет заявку с причиной.
func (s *SettlementService) RejectWithdrawal(ctx context.Context, id uuid.UUID, reason string) (*models.WithdrawalRecord, error) {
	return s.transition(ctx, id, EventWithdrawalRejected, func(rec *models.WithdrawalRecord) error {
		return settlement.RejectWithdrawal(rec, reason)
	})
}

// MarkPaid фиксирует исполненную выплату по одобренной заявке.
func (s *SettlementService) MarkPaid(ctx context.Context, id uuid.UUID, transactionReference string) (*models.WithdrawalRecord, error) {
	return s.transition(ctx, id, EventWithdrawalPaid, func(rec *models.WithdrawalRecord) error {
		return settlement.MarkPaid(rec, transactionReference, s.now().UTC())
	})
}

// MarkDisputed замораживает эскроу в споре.
func (s *SettlementService) MarkDisputed(ctx context.Context, id uuid.UUID) (*models.WithdrawalRecord, error) {
	return s.transition(ctx, id, EventEscrowDisputed, settlement.MarkDisputed)
}

// ReleaseEscrow освобождает эскроу и создаёт выплату в статусе pending.
// Используется ручным действием администратора и фоновой задачей.
// Ошибка проекции (создание выплаты) логируется, но не откатывает переход:
// авторитетное состояние уже зафиксировано.
func (s *SettlementService) ReleaseEscrow(ctx context.Context, id uuid.UUID) (*models.WithdrawalRecord, error) {
	updated, err := s.transition(ctx, id, EventEscrowReleased, func(rec *models.WithdrawalRecord) error {
		return settlement.ReleaseEscrow(rec, s.now().UTC())
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.payouts.CreatePayout(ctx, updated.ID, updated.ProviderID, updated.NetProviderAmount, updated.Currency); err != nil {
		s.log.WithFields(logrus.Fields{
			"record_id":   updated.ID,
			"provider_id": updated.ProviderID,
		}).WithError(err).Error("не удалось создать выплату после освобождения эскроу, требуется сверка")
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "эскроу освобождён, но выплата не создана")
	}

	return updated, nil
}

// SyncPaymentStatus переносит терминальный статус платежа на бронирование.
// Неизвестный статус безопасно отображается в pending.
func (s *SettlementService) SyncPaymentStatus(ctx context.Context, bookingID uuid.UUID, paymentStatus string) error {
	mapped := models.MapPaymentStatusToBooking(paymentStatus)
	if err := s.payouts.UpdateBookingPaymentStatus(ctx, bookingID, mapped); err != nil {
		if errors.Is(err, repository.ErrBookingNotFound) {
			return apperror.ErrBookingNotFound
		}
		return err
	}
	return nil
}

// GetRecord возвращает запись по идентификатору.
func (s *SettlementService) GetRecord(ctx context.Context, id uuid.UUID) (*models.WithdrawalRecord, error) {
	rec, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, s.mapStoreErr(err)
	}
	return rec, nil
}

// ListByProvider возвращает записи исполнителя.
func (s *SettlementService) ListByProvider(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]models.WithdrawalRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.store.ListByProvider(ctx, providerID, limit, offset)
}

// ListRecords возвращает записи с фильтрами по статусам (админка).
func (s *SettlementService) ListRecords(ctx context.Context, escrowStatus, withdrawalStatus string, limit, offset int) ([]models.WithdrawalRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.store.List(ctx, escrowStatus, withdrawalStatus, limit, offset)
}

// ListAutoReleasable отдаёт записи, подлежащие авторелизу. Используется фоновой задачей.
func (s *SettlementService) ListAutoReleasable(ctx context.Context, now time.Time, limit int) ([]models.WithdrawalRecord, error) {
	return s.store.ListAutoReleasable(ctx, now, limit)
}

// transition выполняет цикл: загрузить запись, применить guard-переход,
// сохранить с проверкой версии, отдать событие наружу.
func (s *SettlementService) transition(ctx context.Context, id uuid.UUID, event string, apply func(*models.WithdrawalRecord) error) (*models.WithdrawalRecord, error) {
	rec, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, s.mapStoreErr(err)
	}

	if err := apply(rec); err != nil {
		return nil, err
	}

	updated, err := s.store.UpdateTransition(ctx, rec)
	if err != nil {
		return nil, s.mapStoreErr(err)
	}

	s.notifier.SettlementEvent(ctx, event, updated)
	return updated, nil
}

func (s *SettlementService) mapStoreErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrWithdrawalNotFound):
		return apperror.ErrRecordNotFound
	case errors.Is(err, repository.ErrVersionConflict):
		return apperror.New(apperror.ErrCodeConcurrentModify, "запись была изменена параллельно, повторите запрос")
	default:
		return err
	}
}
