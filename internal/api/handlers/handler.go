// handler.go — APIHandler: маршруты chi и общие функции ответа.
// Доменные обработчики делегируют запросы в сервисный слой,
// ошибки сервисов преобразуются в HTTP-ответы в writeServiceError.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/instruction-tracker/internal/api/errors"
	"github.com/bigkaa/instruction-tracker/internal/domain/model"
	"github.com/bigkaa/instruction-tracker/internal/mailer"
)

// APIHandler собирает доменные обработчики и регистрирует маршруты.
type APIHandler struct {
	instructions *InstructionsHandler
	reports      *ReportsHandler
	reminders    *RemindersHandler
	maintenance  *MaintenanceHandler
	system       *SystemHandler
	health       *HealthHandler
}

// NewAPIHandler создаёт единый handler для всех endpoints.
func NewAPIHandler(
	instructions *InstructionsHandler,
	reports *ReportsHandler,
	reminders *RemindersHandler,
	maintenance *MaintenanceHandler,
	system *SystemHandler,
	health *HealthHandler,
) *APIHandler {
	return &APIHandler{
		instructions: instructions,
		reports:      reports,
		reminders:    reminders,
		maintenance:  maintenance,
		system:       system,
		health:       health,
	}
}

// Mount регистрирует маршруты API в роутере.
func (h *APIHandler) Mount(r chi.Router) {
	r.Get("/health/live", h.health.HealthLive)
	r.Get("/health/ready", h.health.HealthReady)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/info", h.system.GetInfo)

		r.Route("/instructions", func(r chi.Router) {
			r.Get("/", h.instructions.List)
			r.Post("/", h.instructions.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.instructions.Get)
				r.Put("/", h.instructions.Edit)
				r.Delete("/", h.instructions.ConfirmDelete)
				r.Post("/deletion", h.instructions.RequestDelete)
				r.Get("/history", h.instructions.History)
				r.Get("/file", h.instructions.DownloadCurrent)
				r.Get("/versions/{version}/file", h.instructions.DownloadVersion)
			})
		})

		r.Get("/stats", h.reports.Stats)
		r.Get("/export", h.reports.Export)

		r.Get("/reminders", h.reminders.Preview)
		r.Post("/reminders/send", h.reminders.Send)
		r.Get("/reminders/schedule", h.reminders.Schedule)

		r.Post("/maintenance/reconcile", h.maintenance.Reconcile)
	})
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeServiceError преобразует ошибку сервисного слоя в ответ API.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var (
		validationErr  *model.ValidationError
		notFoundErr    *model.NotFoundError
		storageErr     *model.StorageError
		persistenceErr *model.PersistenceError
	)

	switch {
	case errors.As(err, &validationErr):
		apierrors.ValidationError(w, validationErr.Error())
	case errors.As(err, &notFoundErr):
		apierrors.NotFound(w, notFoundErr.Error())
	case errors.Is(err, model.ErrConfirmationRequired):
		apierrors.ConfirmationRequired(w, err.Error())
	case errors.Is(err, mailer.ErrNotConfigured):
		apierrors.MailerNotConfigured(w, err.Error())
	case errors.As(err, &storageErr):
		logger.Error("Ошибка файлового хранилища", slog.String("error", err.Error()))
		apierrors.StorageError(w, "Ошибка операции с файлом, изменения не применены")
	case errors.As(err, &persistenceErr):
		logger.Error("Ошибка сохранения коллекции", slog.String("error", err.Error()))
		apierrors.PersistenceError(w, "Ошибка сохранения данных")
	default:
		logger.Error("Внутренняя ошибка", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}
