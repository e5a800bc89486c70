package settlement

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashar-khursheed/care-platform-backend/internal/models"
	"github.com/ashar-khursheed/care-platform-backend/internal/pkg/apperror"
)

func newHoldingRecord() *models.WithdrawalRecord {
	heldAt := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	autoReleaseAt := heldAt.Add(7 * 24 * time.Hour)
	return &models.WithdrawalRecord{
		ID:                uuid.New(),
		ProviderID:        uuid.New(),
		BookingID:         uuid.New(),
		GrossAmount:       decimal.RequireFromString("100"),
		NetProviderAmount: decimal.RequireFromString("90"),
		Currency:          "USD",
		EscrowStatus:      models.EscrowStatusHolding,
		WithdrawalStatus:  models.WithdrawalStatusNone,
		EscrowHeldAt:      heldAt,
		AutoReleaseAt:     &autoReleaseAt,
	}
}

func TestRequestWithdrawal_Success(t *testing.T) {
	rec := newHoldingRecord()
	now := time.Now().UTC()

	err := RequestWithdrawal(rec, "Сбербанк", "1234", now)
	require.NoError(t, err)

	assert.Equal(t, models.WithdrawalStatusRequested, rec.WithdrawalStatus)
	assert.Equal(t, now, *rec.WithdrawalRequestedAt)
	assert.Equal(t, "Сбербанк", *rec.BankName)
	assert.Equal(t, "1234", *rec.AccountNumberLast4)
}

func TestRequestWithdrawal_TwiceFails(t *testing.T) {
	rec := newHoldingRecord()
	now := time.Now().UTC()

	require.NoError(t, RequestWithdrawal(rec, "bank", "1234", now))

	err := RequestWithdrawal(rec, "bank", "1234", now)
	require.Error(t, err)
	assert.True(t, apperror.IsInvalidTransition(err))
	assert.Equal(t, models.WithdrawalStatusRequested, rec.WithdrawalStatus)
}

func TestRequestWithdrawal_AfterReject(t *testing.T) {
	rec := newHoldingRecord()
	now := time.Now().UTC()

	require.NoError(t, RequestWithdrawal(rec, "bank", "1234", now))
	require.NoError(t, RejectWithdrawal(rec, "bank details invalid"))
	assert.Equal(t, models.WithdrawalStatusRejected, rec.WithdrawalStatus)
	assert.Equal(t, "bank details invalid", *rec.RejectionReason)

	// Повторная заявка после отклонения разрешена, причина отклонения очищается.
	require.NoError(t, RequestWithdrawal(rec, "bank", "1234", now))
	assert.Equal(t, models.WithdrawalStatusRequested, rec.WithdrawalStatus)
	assert.Nil(t, rec.RejectionReason)
}

func TestRequestWithdrawal_AfterCancel(t *testing.T) {
	rec := newHoldingRecord()
	now := time.Now().UTC()

	require.NoError(t, RequestWithdrawal(rec, "bank", "1234", now))
	require.NoError(t, CancelWithdrawal(rec))
	assert.Equal(t, models.WithdrawalStatusCancelled, rec.WithdrawalStatus)

	require.NoError(t, RequestWithdrawal(rec, "bank", "1234", now))
	assert.Equal(t, models.WithdrawalStatusRequested, rec.WithdrawalStatus)
}

func TestRequestWithdrawal_DisputedBlocked(t *testing.T) {
	rec := newHoldingRecord()
	require.NoError(t, MarkDisputed(rec))

	err := RequestWithdrawal(rec, "bank", "1234", time.Now().UTC())
	assert.True(t, apperror.IsInvalidTransition(err))
}

func TestRequestWithdrawal_ReleasedBlocked(t *testing.T) {
	rec := newHoldingRecord()
	require.NoError(t, ReleaseEscrow(rec, time.Now().UTC()))

	err := RequestWithdrawal(rec, "bank", "1234", time.Now().UTC())
	assert.True(t, apperror.IsInvalidTransition(err))
}

func TestCancelWithdrawal_OnlyRequested(t *testing.T) {
	rec := newHoldingRecord()
	err := CancelWithdrawal(rec)
	assert.True(t, apperror.IsInvalidTransition(err))
	assert.Equal(t, models.WithdrawalStatusNone, rec.WithdrawalStatus)
}

func TestApproveWithdrawal(t *testing.T) {
	rec := newHoldingRecord()
	adminID := uuid.New()
	now := time.Now().UTC()

	// Одобрение без заявки — нарушение guard-условия, запись не меняется.
	err := ApproveWithdrawal(rec, adminID)
	assert.True(t, apperror.IsInvalidTransition(err))
	assert.Equal(t, models.WithdrawalStatusNone, rec.WithdrawalStatus)
	assert.Nil(t, rec.ApprovedBy)

	require.NoError(t, RequestWithdrawal(rec, "bank", "1234", now))
	require.NoError(t, ApproveWithdrawal(rec, adminID))
	assert.Equal(t, models.WithdrawalStatusApproved, rec.WithdrawalStatus)
	assert.Equal(t, adminID, *rec.ApprovedBy)
}

func TestMarkPaid(t *testing.T) {
	rec := newHoldingRecord()
	now := time.Now().UTC()

	// Выплата возможна только из approved.
	err := MarkPaid(rec, "TX-1", now)
	assert.True(t, apperror.IsInvalidTransition(err))

	require.NoError(t, RequestWithdrawal(rec, "bank", "1234", now))
	require.NoError(t, ApproveWithdrawal(rec, uuid.New()))
	require.NoError(t, MarkPaid(rec, "TX-1", now))

	assert.Equal(t, models.WithdrawalStatusPaid, rec.WithdrawalStatus)
	assert.Equal(t, "TX-1", *rec.TransactionReference)
	assert.Equal(t, now, *rec.WithdrawalProcessedAt)
}

func TestPaidIsTerminal(t *testing.T) {
	rec := newHoldingRecord()
	now := time.Now().UTC()
	require.NoError(t, RequestWithdrawal(rec, "bank", "1234", now))
	require.NoError(t, ApproveWithdrawal(rec, uuid.New()))
	require.NoError(t, MarkPaid(rec, "TX-1", now))

	assert.Error(t, RequestWithdrawal(rec, "bank", "1234", now))
	assert.Error(t, CancelWithdrawal(rec))
	assert.Error(t, ApproveWithdrawal(rec, uuid.New()))
	assert.Error(t, RejectWithdrawal(rec, "late"))
	assert.Error(t, MarkPaid(rec, "TX-2", now))
	assert.Equal(t, models.WithdrawalStatusPaid, rec.WithdrawalStatus)
}

func TestReleaseEscrow(t *testing.T) {
	rec := newHoldingRecord()
	now := time.Now().UTC()

	require.NoError(t, ReleaseEscrow(rec, now))
	assert.Equal(t, models.EscrowStatusReleased, rec.EscrowStatus)
	assert.Equal(t, now, *rec.EscrowReleasedAt)

	// released не возвращается в holding и не освобождается повторно.
	err := ReleaseEscrow(rec, now)
	assert.True(t, apperror.IsInvalidTransition(err))
	assert.Equal(t, models.EscrowStatusReleased, rec.EscrowStatus)
}

func TestReleaseEscrow_DisputedBlocked(t *testing.T) {
	rec := newHoldingRecord()
	require.NoError(t, MarkDisputed(rec))

	err := ReleaseEscrow(rec, time.Now().UTC())
	assert.True(t, apperror.IsInvalidTransition(err))
	assert.Equal(t, models.EscrowStatusDisputed, rec.EscrowStatus)
}

func TestMarkDisputed_OnlyHolding(t *testing.T) {
	rec := newHoldingRecord()
	require.NoError(t, ReleaseEscrow(rec, time.Now().UTC()))

	err := MarkDisputed(rec)
	assert.True(t, apperror.IsInvalidTransition(err))
}

func TestEligibleForAutoRelease(t *testing.T) {
	rec := newHoldingRecord()
	releaseAt := *rec.AutoReleaseAt

	// За секунду до срока — не подлежит.
	assert.False(t, EligibleForAutoRelease(rec, releaseAt.Add(-time.Second)))
	// Ровно в срок — подлежит (граница включительно).
	assert.True(t, EligibleForAutoRelease(rec, releaseAt))
	assert.True(t, EligibleForAutoRelease(rec, releaseAt.Add(time.Hour)))

	// Оспоренная запись не подлежит авторелизу независимо от срока.
	disputed := newHoldingRecord()
	require.NoError(t, MarkDisputed(disputed))
	assert.False(t, EligibleForAutoRelease(disputed, releaseAt.Add(time.Hour)))

	// Без auto_release_at авторелиза нет.
	manual := newHoldingRecord()
	manual.AutoReleaseAt = nil
	assert.False(t, EligibleForAutoRelease(manual, releaseAt.Add(time.Hour)))

	// Уже освобождённая запись не подлежит повторно.
	released := newHoldingRecord()
	require.NoError(t, ReleaseEscrow(released, releaseAt))
	assert.False(t, EligibleForAutoRelease(released, releaseAt.Add(time.Hour)))
}
