package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ashar-khursheed/care-platform-backend/internal/models"
	"github.com/ashar-khursheed/care-platform-backend/internal/pkg/apperror"
)

type mockReleaser struct {
	mock.Mock
}

func (m *mockReleaser) ListAutoReleasable(ctx context.Context, now time.Time, limit int) ([]models.WithdrawalRecord, error) {
	args := m.Called(ctx, now, limit)
	return args.Get(0).([]models.WithdrawalRecord), args.Error(1)
}

func (m *mockReleaser) ReleaseEscrow(ctx context.Context, id uuid.UUID) (*models.WithdrawalRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WithdrawalRecord), args.Error(1)
}

func eligibleRecord() models.WithdrawalRecord {
	return models.WithdrawalRecord{
		ID:                uuid.New(),
		ProviderID:        uuid.New(),
		NetProviderAmount: decimal.RequireFromString("90"),
		EscrowStatus:      models.EscrowStatusHolding,
	}
}

func releasedCopy(rec models.WithdrawalRecord) *models.WithdrawalRecord {
	rec.EscrowStatus = models.EscrowStatusReleased
	return &rec
}

func TestRunSweep_ReleasesAllEligible(t *testing.T) {
	releaser := new(mockReleaser)
	w := NewAutoReleaseWorker(releaser, time.Hour, 100)
	ctx := context.Background()

	recs := []models.WithdrawalRecord{eligibleRecord(), eligibleRecord()}
	releaser.On("ListAutoReleasable", ctx, mock.Anything, 100).Return(recs, nil)
	for _, rec := range recs {
		releaser.On("ReleaseEscrow", ctx, rec.ID).Return(releasedCopy(rec), nil)
	}

	result, err := w.RunSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Released: 2, Failed: 0}, result)
	releaser.AssertExpectations(t)
}

func TestRunSweep_FailureDoesNotAbortBatch(t *testing.T) {
	releaser := new(mockReleaser)
	w := NewAutoReleaseWorker(releaser, time.Hour, 100)
	ctx := context.Background()

	first := eligibleRecord()
	second := eligibleRecord()
	third := eligibleRecord()
	releaser.On("ListAutoReleasable", ctx, mock.Anything, 100).
		Return([]models.WithdrawalRecord{first, second, third}, nil)
	releaser.On("ReleaseEscrow", ctx, first.ID).Return(releasedCopy(first), nil)
	// Ошибка создания выплаты по второй записи не должна остановить проход.
	releaser.On("ReleaseEscrow", ctx, second.ID).Return(nil, errors.New("payout creation failed"))
	releaser.On("ReleaseEscrow", ctx, third.ID).Return(releasedCopy(third), nil)

	result, err := w.RunSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Released: 2, Failed: 1}, result)
	releaser.AssertExpectations(t)
}

func TestRunSweep_NothingToDo(t *testing.T) {
	releaser := new(mockReleaser)
	w := NewAutoReleaseWorker(releaser, time.Hour, 100)
	ctx := context.Background()

	releaser.On("ListAutoReleasable", ctx, mock.Anything, 100).Return([]models.WithdrawalRecord{}, nil)

	result, err := w.RunSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, result)
	releaser.AssertNotCalled(t, "ReleaseEscrow", mock.Anything, mock.Anything)
}

func TestRunSweep_SecondRunReleasesNothing(t *testing.T) {
	releaser := new(mockReleaser)
	w := NewAutoReleaseWorker(releaser, time.Hour, 100)
	ctx := context.Background()

	rec := eligibleRecord()
	// Первый проход освобождает запись, второй её уже не видит.
	releaser.On("ListAutoReleasable", ctx, mock.Anything, 100).
		Return([]models.WithdrawalRecord{rec}, nil).Once()
	releaser.On("ReleaseEscrow", ctx, rec.ID).Return(releasedCopy(rec), nil).Once()
	releaser.On("ListAutoReleasable", ctx, mock.Anything, 100).
		Return([]models.WithdrawalRecord{}, nil).Once()

	first, err := w.RunSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Released)

	second, err := w.RunSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Released)
	releaser.AssertExpectations(t)
}

func TestRunSweep_StoreFailureIsFatal(t *testing.T) {
	releaser := new(mockReleaser)
	w := NewAutoReleaseWorker(releaser, time.Hour, 100)
	ctx := context.Background()

	releaser.On("ListAutoReleasable", ctx, mock.Anything, 100).
		Return([]models.WithdrawalRecord{}, errors.New("connection refused"))

	_, err := w.RunSweep(ctx)
	require.Error(t, err)
}

func TestRunSweep_RetriesVersionConflictOnce(t *testing.T) {
	releaser := new(mockReleaser)
	w := NewAutoReleaseWorker(releaser, time.Hour, 100)
	ctx := context.Background()

	rec := eligibleRecord()
	conflict := apperror.New(apperror.ErrCodeConcurrentModify, "запись была изменена параллельно")
	releaser.On("ListAutoReleasable", ctx, mock.Anything, 100).
		Return([]models.WithdrawalRecord{rec}, nil)
	releaser.On("ReleaseEscrow", ctx, rec.ID).Return(nil, conflict).Once()
	releaser.On("ReleaseEscrow", ctx, rec.ID).Return(releasedCopy(rec), nil).Once()

	result, err := w.RunSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Released: 1, Failed: 0}, result)
	releaser.AssertExpectations(t)
}

func TestRunSweep_ConflictBecomesGuardFailure(t *testing.T) {
	releaser := new(mockReleaser)
	w := NewAutoReleaseWorker(releaser, time.Hour, 100)
	ctx := context.Background()

	// Параллельный переход выиграл гонку: повтор упирается в guard
	// и запись считается неуспешной, но проход продолжается.
	rec := eligibleRecord()
	conflict := apperror.New(apperror.ErrCodeConcurrentModify, "запись была изменена параллельно")
	guard := apperror.New(apperror.ErrCodeInvalidTransition, "эскроу оспорен и не может быть освобождён")
	releaser.On("ListAutoReleasable", ctx, mock.Anything, 100).
		Return([]models.WithdrawalRecord{rec}, nil)
	releaser.On("ReleaseEscrow", ctx, rec.ID).Return(nil, conflict).Once()
	releaser.On("ReleaseEscrow", ctx, rec.ID).Return(nil, guard).Once()

	result, err := w.RunSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Released: 0, Failed: 1}, result)
}

func TestRunSweep_UsesCurrentTime(t *testing.T) {
	releaser := new(mockReleaser)
	w := NewAutoReleaseWorker(releaser, time.Hour, 100)
	ctx := context.Background()

	fixedNow := time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return fixedNow }

	releaser.On("ListAutoReleasable", ctx, fixedNow, 100).Return([]models.WithdrawalRecord{}, nil)

	_, err := w.RunSweep(ctx)
	require.NoError(t, err)
	releaser.AssertExpectations(t)
}
