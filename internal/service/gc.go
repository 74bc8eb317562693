// gc.go — сервис фоновой очистки (Garbage Collection) хранилища версий.
//
// GC выполняет две задачи:
//  1. Удаляет завершённые (committed/rolled_back) WAL-записи
//  2. Очищает корзину от файлов, оставшихся после неудачной очистки
//     при коммите (файлы незавершённых транзакций не трогаются)
//
// Запускается как горутина с периодическим тикером (IT_GC_INTERVAL).
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus метрики GC
var (
	// gcRunsTotal — количество запусков GC.
	gcRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "it_gc_runs_total",
		Help: "Общее количество запусков GC",
	})

	// gcTrashPurgedTotal — количество файлов, удалённых из корзины.
	gcTrashPurgedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "it_gc_trash_purged_total",
		Help: "Общее количество файлов, удалённых GC из корзины",
	})

	// gcDurationSeconds — длительность выполнения GC.
	gcDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "it_gc_duration_seconds",
		Help:    "Длительность выполнения GC в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// GCResult — результат одного запуска GC.
type GCResult struct {
	// WALCleaned — количество удалённых завершённых WAL-записей
	WALCleaned int
	// TrashPurged — количество файлов, удалённых из корзины
	TrashPurged int
	// Errors — количество ошибок
	Errors int
	// Duration — длительность выполнения
	Duration time.Duration
}

// GCService — сервис фоновой очистки.
type GCService struct {
	records  *RecordService
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex // защита от параллельного запуска RunOnce
	cancel context.CancelFunc
}

// NewGCService создаёт сервис GC.
func NewGCService(records *RecordService, interval time.Duration, logger *slog.Logger) *GCService {
	return &GCService{
		records:  records,
		interval: interval,
		logger:   logger.With(slog.String("component", "gc")),
	}
}

// Start запускает фоновую горутину GC с периодическим тикером.
// Вызывается один раз при старте приложения.
func (gc *GCService) Start(ctx context.Context) {
	gcCtx, cancel := context.WithCancel(ctx)
	gc.cancel = cancel

	go gc.run(gcCtx)

	gc.logger.Info("GC запущен",
		slog.String("interval", gc.interval.String()),
	)
}

// Stop останавливает фоновый процесс GC.
func (gc *GCService) Stop() {
	if gc.cancel != nil {
		gc.cancel()
	}
	gc.logger.Info("GC остановлен")
}

// run — основной цикл фоновой горутины.
func (gc *GCService) run(ctx context.Context) {
	// Первый запуск — сразу после старта
	gc.RunOnce()

	ticker := time.NewTicker(gc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			gc.RunOnce()
		}
	}
}

// RunOnce выполняет один цикл GC.
func (gc *GCService) RunOnce() *GCResult {
	gc.mu.Lock()
	defer gc.mu.Unlock()

	start := time.Now()
	result := &GCResult{}
	result.WALCleaned, result.TrashPurged, result.Errors = gc.records.CollectGarbage()
	result.Duration = time.Since(start)

	gcRunsTotal.Inc()
	gcTrashPurgedTotal.Add(float64(result.TrashPurged))
	gcDurationSeconds.Observe(result.Duration.Seconds())

	if result.WALCleaned > 0 || result.TrashPurged > 0 || result.Errors > 0 {
		gc.logger.Info("GC завершён",
			slog.Int("wal_cleaned", result.WALCleaned),
			slog.Int("trash_purged", result.TrashPurged),
			slog.Int("errors", result.Errors),
			slog.Duration("duration", result.Duration),
		)
	}

	return result
}
