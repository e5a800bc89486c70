package worker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"

	"github.com/ashar-khursheed/care-platform-backend/internal/goroutine"
	"github.com/ashar-khursheed/care-platform-backend/internal/logger"
	"github.com/ashar-khursheed/care-platform-backend/internal/models"
	"github.com/ashar-khursheed/care-platform-backend/internal/pkg/apperror"
)

// SettlementReleaser — часть сервиса расчётов, нужная фоновой задаче.
type SettlementReleaser interface {
	ListAutoReleasable(ctx context.Context, now time.Time, limit int) ([]models.WithdrawalRecord, error)
	ReleaseEscrow(ctx context.Context, id uuid.UUID) (*models.WithdrawalRecord, error)
}

// SweepResult — итог одного прохода авторелиза.
type SweepResult struct {
	Released int `json:"released"`
	Failed   int `json:"failed"`
}

// AutoReleaseWorker раз в сутки освобождает эскроу, у которого истёк срок
// удержания. Каждая запись обрабатывается независимо: ошибка по одной не
// прерывает проход. Повторный запуск безопасен — освобождённые записи
// перестают попадать под предикат выборки.
type AutoReleaseWorker struct {
	settlements SettlementReleaser
	interval    time.Duration
	batchSize   int
	log         *logrus.Entry
	now         func() time.Time

	// runMu гарантирует, что два прохода не идут одновременно.
	runMu     sync.Mutex
	waitGroup sync.WaitGroup
	quitChan  chan struct{}
}

func NewAutoReleaseWorker(settlements SettlementReleaser, interval time.Duration, batchSize int) *AutoReleaseWorker {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	return &AutoReleaseWorker{
		settlements: settlements,
		interval:    interval,
		batchSize:   batchSize,
		log:         logger.WithComponent("auto_release"),
		now:         time.Now,
		quitChan:    make(chan struct{}),
	}
}

// Start запускает воркер в фоне.
func (w *AutoReleaseWorker) Start(ctx context.Context) {
	w.waitGroup.Add(1)
	goroutine.SafeGoWithContext(ctx, w.run)
}

// Stop корректно останавливает воркер.
func (w *AutoReleaseWorker) Stop() {
	close(w.quitChan)
	w.waitGroup.Wait()
}

// run ждёт ближайшей полуночи UTC, затем работает по фиксированному интервалу.
func (w *AutoReleaseWorker) run(ctx context.Context) {
	defer w.waitGroup.Done()

	timer := time.NewTimer(w.untilFirstRun())
	defer timer.Stop()

	for {
		select {
		case <-w.quitChan:
			w.log.Info("auto release worker stopped")
			return
		case <-ctx.Done():
			return
		case <-timer.C:
			if _, err := w.RunSweep(ctx); err != nil {
				// Фатальная для прохода ошибка (хранилище недоступно).
				// Следующий запуск по расписанию покроет пропущенное.
				w.log.WithError(err).Error("auto release sweep failed")
			}
			timer.Reset(w.interval)
		}
	}
}

// untilFirstRun возвращает время до ближайшей полуночи UTC. Для коротких
// интервалов (тестовые конфигурации) стартуем сразу по интервалу.
func (w *AutoReleaseWorker) untilFirstRun() time.Duration {
	if w.interval < 24*time.Hour {
		return w.interval
	}
	now := w.now().UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
	return next.Sub(now)
}

// RunSweep выполняет один проход: выбирает записи с истёкшим сроком
// удержания и освобождает каждую. Вызывается по расписанию и вручную
// из админки. Конкурентный вызов пропускается.
func (w *AutoReleaseWorker) RunSweep(ctx context.Context) (SweepResult, error) {
	if !w.runMu.TryLock() {
		w.log.Warn("sweep already in progress, skipping")
		return SweepResult{}, nil
	}
	defer w.runMu.Unlock()

	now := w.now().UTC()
	records, err := w.settlements.ListAutoReleasable(ctx, now, w.batchSize)
	if err != nil {
		return SweepResult{}, err
	}

	if len(records) == 0 {
		w.log.Info("auto release sweep: nothing to do")
		return SweepResult{}, nil
	}

	var result SweepResult
	for _, rec := range records {
		if err := w.releaseOne(ctx, rec.ID); err != nil {
			result.Failed++
			w.log.WithFields(logrus.Fields{
				"record_id": rec.ID,
			}).WithError(err).Error("auto release failed for record")
			continue
		}
		result.Released++
		w.log.WithFields(logrus.Fields{
			"record_id":           rec.ID,
			"provider_id":         rec.ProviderID,
			"net_provider_amount": rec.NetProviderAmount,
		}).Info("escrow auto released")
	}

	w.log.WithFields(logrus.Fields{
		"released": result.Released,
		"failed":   result.Failed,
	}).Info("auto release sweep finished")
	return result, nil
}

// releaseOne освобождает одну запись. Конфликт версий (параллельный переход
// на той же записи) повторяется один раз: либо запись уже ушла из holding и
// guard вернёт ошибку, либо повтор пройдёт чисто.
func (w *AutoReleaseWorker) releaseOne(ctx context.Context, id uuid.UUID) error {
	backoff := retry.WithMaxRetries(1, retry.NewConstant(50*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		_, err := w.settlements.ReleaseEscrow(ctx, id)
		if err != nil && apperror.IsConcurrentModify(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}
