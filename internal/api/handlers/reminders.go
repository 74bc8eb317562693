// reminders.go — просмотр и отправка напоминаний, строка crontab.
package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	apierrors "github.com/bigkaa/instruction-tracker/internal/api/errors"
	"github.com/bigkaa/instruction-tracker/internal/service"
)

// RemindersHandler — обработчик endpoints напоминаний.
type RemindersHandler struct {
	reminders *service.ReminderService
	logger    *slog.Logger
}

// NewRemindersHandler создаёт обработчик endpoints напоминаний.
func NewRemindersHandler(reminders *service.ReminderService, logger *slog.Logger) *RemindersHandler {
	return &RemindersHandler{
		reminders: reminders,
		logger:    logger.With(slog.String("component", "reminders_handler")),
	}
}

// sendRequest — тело POST /api/v1/reminders/send.
type sendRequest struct {
	Kind string `json:"kind"`
	// IDs — выбранные записи; пусто = все подходящие
	IDs []string `json:"ids"`
}

// Preview обрабатывает GET /api/v1/reminders?kind=outdated|nofile.
// Без kind используется outdated.
func (h *RemindersHandler) Preview(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	if kind == "" {
		kind = string(service.ReminderOutdated)
	}
	parsed, err := service.ParseReminderKind(kind)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	plan, err := h.reminders.Plan(parsed)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"kind":  parsed,
		"items": plan,
		"total": len(plan),
	})
}

// Send обрабатывает POST /api/v1/reminders/send.
// Ошибки отдельных писем не прерывают рассылку и возвращаются в failed.
func (h *RemindersHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Некорректный JSON: %s", err.Error()))
		return
	}

	kind, err := service.ParseReminderKind(req.Kind)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	result, err := h.reminders.Send(r.Context(), kind, req.IDs)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Schedule обрабатывает GET /api/v1/reminders/schedule?frequency=&hour=.
func (h *RemindersHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	hour, err := strconv.Atoi(q.Get("hour"))
	if err != nil {
		apierrors.ValidationError(w, "Параметр hour должен быть целым числом 0-23")
		return
	}

	sched, err := service.CronLine(service.Frequency(q.Get("frequency")), hour, "")
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sched)
}
