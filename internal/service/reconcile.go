// reconcile.go — сервис фоновой сверки (Reconciliation) каталога загрузок.
//
// Reconciliation сравнивает файлы каталога загрузок со ссылками записей
// (текущий файл и архивные версии).
//
// Обнаруживает проблемы:
//   - orphaned_file: файл на диске, на который не ссылается ни одна запись
//   - missing_file: запись ссылается на файл, которого нет на диске
//
// Архивные версии удалённых записей при политике retain не считаются
// проблемой и учитываются в Summary.Retained.
//
// Запускается как горутина с периодическим тикером (IT_RECONCILE_INTERVAL).
package service

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus метрики Reconciliation
var (
	// reconcileRunsTotal — количество запусков reconciliation.
	reconcileRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "it_reconcile_runs_total",
		Help: "Общее количество запусков reconciliation",
	})

	// reconcileIssuesTotal — количество обнаруженных проблем по типу.
	reconcileIssuesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "it_reconcile_issues_total",
		Help: "Общее количество проблем, обнаруженных reconciliation",
	}, []string{"type"})

	// reconcileDurationSeconds — длительность выполнения reconciliation.
	reconcileDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "it_reconcile_duration_seconds",
		Help:    "Длительность выполнения reconciliation в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
	})
)

// IssueType — тип расхождения.
type IssueType string

const (
	// IssueOrphanedFile — файл без ссылки из записи
	IssueOrphanedFile IssueType = "orphaned_file"
	// IssueMissingFile — ссылка на отсутствующий файл
	IssueMissingFile IssueType = "missing_file"
)

// ReconcileIssue — обнаруженное расхождение.
type ReconcileIssue struct {
	Type        IssueType `json:"type" yaml:"type"`
	Path        string    `json:"path" yaml:"path"`
	RecordID    string    `json:"record_id,omitempty" yaml:"record_id,omitempty"`
	Description string    `json:"description" yaml:"description"`
}

// ReconcileSummary — итоги сверки.
type ReconcileSummary struct {
	Ok            int `json:"ok" yaml:"ok"`
	OrphanedFiles int `json:"orphaned_files" yaml:"orphaned_files"`
	MissingFiles  int `json:"missing_files" yaml:"missing_files"`
	Retained      int `json:"retained" yaml:"retained"`
}

// ReconcileReport — результат сверки.
type ReconcileReport struct {
	StartedAt    time.Time        `json:"started_at" yaml:"started_at"`
	CompletedAt  time.Time        `json:"completed_at" yaml:"completed_at"`
	FilesChecked int              `json:"files_checked" yaml:"files_checked"`
	Issues       []ReconcileIssue `json:"issues" yaml:"issues"`
	Summary      ReconcileSummary `json:"summary" yaml:"summary"`
}

// ReconcileService — сервис фоновой сверки каталога загрузок.
type ReconcileService struct {
	records  *RecordService
	interval time.Duration
	logger   *slog.Logger

	mu        sync.Mutex // защита от параллельного запуска
	inProcess bool       // reconciliation в процессе выполнения
	cancel    context.CancelFunc
}

// NewReconcileService создаёт сервис reconciliation.
func NewReconcileService(
	records *RecordService,
	interval time.Duration,
	logger *slog.Logger,
) *ReconcileService {
	return &ReconcileService{
		records:  records,
		interval: interval,
		logger:   logger.With(slog.String("component", "reconcile")),
	}
}

// Start запускает фоновую горутину reconciliation с периодическим тикером.
func (rs *ReconcileService) Start(ctx context.Context) {
	rsCtx, cancel := context.WithCancel(ctx)
	rs.cancel = cancel

	go rs.run(rsCtx)

	rs.logger.Info("Reconciliation запущена",
		slog.String("interval", rs.interval.String()),
	)
}

// Stop останавливает фоновой процесс reconciliation.
func (rs *ReconcileService) Stop() {
	if rs.cancel != nil {
		rs.cancel()
	}
	rs.logger.Info("Reconciliation остановлена")
}

// IsInProgress возвращает true, если reconciliation выполняется.
func (rs *ReconcileService) IsInProgress() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.inProcess
}

// run — основной цикл фоновой горутины.
func (rs *ReconcileService) run(ctx context.Context) {
	ticker := time.NewTicker(rs.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := rs.RunOnce(); err != nil {
				rs.logger.Error("Ошибка reconciliation", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce выполняет один цикл reconciliation.
// Потокобезопасен: если reconciliation уже выполняется, возвращает nil, true.
//
// Возвращает:
//   - *ReconcileReport — результат сверки
//   - bool — true если reconciliation уже выполнялась (skipped)
//   - error — ошибка чтения каталога загрузок
func (rs *ReconcileService) RunOnce() (*ReconcileReport, bool, error) {
	rs.mu.Lock()
	if rs.inProcess {
		rs.mu.Unlock()
		rs.logger.Warn("Reconciliation уже выполняется, пропуск")
		return nil, true, nil
	}
	rs.inProcess = true
	rs.mu.Unlock()

	defer func() {
		rs.mu.Lock()
		rs.inProcess = false
		rs.mu.Unlock()
	}()

	startedAt := time.Now().UTC()
	rs.logger.Info("Reconciliation начата")

	referenced, onDisk, err := rs.records.Inventory()
	if err != nil {
		observe("reconcile", err)
		return nil, false, err
	}

	report := reconcile(referenced, onDisk, rs.records.versions.Retention() == RetentionRetain)
	report.StartedAt = startedAt
	report.CompletedAt = time.Now().UTC()
	duration := report.CompletedAt.Sub(startedAt)

	// Обновляем Prometheus метрики
	reconcileRunsTotal.Inc()
	reconcileDurationSeconds.Observe(duration.Seconds())
	for _, issue := range report.Issues {
		reconcileIssuesTotal.WithLabelValues(string(issue.Type)).Inc()
	}
	observe("reconcile", nil)

	rs.logger.Info("Reconciliation завершена",
		slog.Int("files_checked", report.FilesChecked),
		slog.Int("issues", len(report.Issues)),
		slog.Int("ok", report.Summary.Ok),
		slog.Duration("duration", duration),
	)

	return report, false, nil
}

// reconcile сопоставляет ссылки записей с содержимым каталога.
// retained — архивные версии удалённых записей ожидаемо остаются на диске.
func reconcile(referenced map[string]string, onDisk []string, retained bool) *ReconcileReport {
	report := &ReconcileReport{
		FilesChecked: len(onDisk),
		Issues:       []ReconcileIssue{},
	}

	present := make(map[string]bool, len(onDisk))
	for _, name := range onDisk {
		present[name] = true

		if _, ok := referenced[name]; ok {
			report.Summary.Ok++
			continue
		}
		if retained && isArchivedVersion(name) {
			report.Summary.Retained++
			continue
		}
		report.Issues = append(report.Issues, ReconcileIssue{
			Type:        IssueOrphanedFile,
			Path:        name,
			Description: "Файл на диске без ссылки из записи",
		})
		report.Summary.OrphanedFiles++
	}

	missing := make([]string, 0)
	for name := range referenced {
		if !present[name] {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	for _, name := range missing {
		report.Issues = append(report.Issues, ReconcileIssue{
			Type:        IssueMissingFile,
			Path:        name,
			RecordID:    referenced[name],
			Description: "Запись ссылается на отсутствующий файл",
		})
		report.Summary.MissingFiles++
	}

	return report
}

// isArchivedVersion проверяет, что имя имеет вид "<uuid>_v<N>_<имя>".
func isArchivedVersion(name string) bool {
	const idLen = 36
	if len(name) <= idLen+3 || name[idLen] != '_' {
		return false
	}
	if _, err := uuid.Parse(name[:idLen]); err != nil {
		return false
	}
	rest, ok := strings.CutPrefix(name[idLen+1:], "v")
	if !ok {
		return false
	}
	digits, _, ok := strings.Cut(rest, "_")
	if !ok || digits == "" {
		return false
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
