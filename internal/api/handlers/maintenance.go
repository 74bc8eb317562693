// maintenance.go — обработчик POST /api/v1/maintenance/reconcile.
// Делегирует reconciliation в ReconcileService.
package handlers

import (
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/instruction-tracker/internal/api/errors"
	"github.com/bigkaa/instruction-tracker/internal/service"
)

// ReconcileRunner — интерфейс для запуска reconciliation.
// Позволяет тестировать handler без полного ReconcileService.
type ReconcileRunner interface {
	// RunOnce выполняет один цикл reconciliation.
	// Возвращает результат и флаг "уже выполняется".
	RunOnce() (*service.ReconcileReport, bool, error)
}

// MaintenanceHandler — обработчик endpoints обслуживания.
type MaintenanceHandler struct {
	reconciler ReconcileRunner
	logger     *slog.Logger
}

// NewMaintenanceHandler создаёт обработчик maintenance endpoints.
func NewMaintenanceHandler(reconciler ReconcileRunner, logger *slog.Logger) *MaintenanceHandler {
	return &MaintenanceHandler{
		reconciler: reconciler,
		logger:     logger.With(slog.String("component", "maintenance_handler")),
	}
}

// Reconcile обрабатывает POST /api/v1/maintenance/reconcile.
// Запускает синхронный цикл reconciliation и возвращает результат.
// Если reconciliation уже выполняется — 409 RECONCILE_IN_PROGRESS.
func (h *MaintenanceHandler) Reconcile(w http.ResponseWriter, _ *http.Request) {
	report, inProgress, err := h.reconciler.RunOnce()
	if inProgress {
		apierrors.ReconcileInProgress(w, "Reconciliation уже выполняется")
		return
	}
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}
