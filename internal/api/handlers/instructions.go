// instructions.go — HTTP handlers записей о должностных инструкциях.
// List, Create, Get, Edit, двухфазное удаление, история, скачивание файлов.
package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/instruction-tracker/internal/api/errors"
	"github.com/bigkaa/instruction-tracker/internal/api/middleware"
	"github.com/bigkaa/instruction-tracker/internal/domain/model"
	"github.com/bigkaa/instruction-tracker/internal/repository"
	"github.com/bigkaa/instruction-tracker/internal/service"
)

// multipartMemory — объём формы, хранимый в памяти; остальное во временных файлах.
const multipartMemory = 8 << 20

// formOverhead — запас на поля формы и заголовки multipart сверх размера файла.
const formOverhead = 1 << 20

// InstructionsHandler — обработчик endpoints записей.
type InstructionsHandler struct {
	records *service.RecordService
	logger  *slog.Logger
}

// NewInstructionsHandler создаёт обработчик endpoints записей.
func NewInstructionsHandler(records *service.RecordService, logger *slog.Logger) *InstructionsHandler {
	return &InstructionsHandler{
		records: records,
		logger:  logger.With(slog.String("component", "instructions_handler")),
	}
}

// recordView — запись с вычисленным признаком актуальности.
type recordView struct {
	*model.InstructionRecord
	Outdated bool `json:"outdated"`
}

// listResponse — ответ GET /api/v1/instructions.
type listResponse struct {
	Items []recordView `json:"items"`
	Total int          `json:"total"`
}

func (h *InstructionsHandler) view(rec *model.InstructionRecord) recordView {
	return recordView{InstructionRecord: rec, Outdated: rec.IsOutdated(h.records.Policy())}
}

// List обрабатывает GET /api/v1/instructions.
// Query: search, department, responsible, status (outdated|actual).
func (h *InstructionsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	status := repository.Status(q.Get("status"))
	switch status {
	case repository.StatusAny, repository.StatusOutdated, repository.StatusActual:
	default:
		apierrors.ValidationError(w, "Параметр status: допустимы outdated, actual")
		return
	}

	records := h.records.List(repository.Filter{
		Search:      q.Get("search"),
		Department:  q.Get("department"),
		Responsible: q.Get("responsible"),
		Status:      status,
	})

	items := make([]recordView, 0, len(records))
	for _, rec := range records {
		items = append(items, h.view(rec))
	}
	writeJSON(w, http.StatusOK, listResponse{Items: items, Total: len(items)})
}

// Create обрабатывает POST /api/v1/instructions.
// Форма: title, department, registration_date, last_update, responsible, email,
// file (опционально).
func (h *InstructionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	fields, upload, cleanup, ok := h.parseForm(w, r)
	if !ok {
		return
	}
	defer cleanup()

	rec, err := h.records.Create(fields, upload, middleware.ActorFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.view(rec))
}

// Get обрабатывает GET /api/v1/instructions/{id}.
func (h *InstructionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.records.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(rec))
}

// Edit обрабатывает PUT /api/v1/instructions/{id}.
// Форма как у Create; file заменяет текущий файл с архивированием прежнего.
func (h *InstructionsHandler) Edit(w http.ResponseWriter, r *http.Request) {
	fields, upload, cleanup, ok := h.parseForm(w, r)
	if !ok {
		return
	}
	defer cleanup()

	rec, err := h.records.Edit(chi.URLParam(r, "id"), fields, upload, middleware.ActorFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(rec))
}

// RequestDelete обрабатывает POST /api/v1/instructions/{id}/deletion.
// Возвращает токен, которым удаление подтверждается в DELETE.
func (h *InstructionsHandler) RequestDelete(w http.ResponseWriter, r *http.Request) {
	tok, err := h.records.RequestDelete(chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, tok)
}

// ConfirmDelete обрабатывает DELETE /api/v1/instructions/{id}?token=.
func (h *InstructionsHandler) ConfirmDelete(w http.ResponseWriter, r *http.Request) {
	err := h.records.ConfirmDelete(
		chi.URLParam(r, "id"),
		r.URL.Query().Get("token"),
		middleware.ActorFromContext(r.Context()),
	)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// History обрабатывает GET /api/v1/instructions/{id}/history.
// Порядок записей — порядок добавления.
func (h *InstructionsHandler) History(w http.ResponseWriter, r *http.Request) {
	history, err := h.records.History(chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// DownloadCurrent обрабатывает GET /api/v1/instructions/{id}/file.
func (h *InstructionsHandler) DownloadCurrent(w http.ResponseWriter, r *http.Request) {
	h.serveFile(w, r, 0)
}

// DownloadVersion обрабатывает GET /api/v1/instructions/{id}/versions/{version}/file.
func (h *InstructionsHandler) DownloadVersion(w http.ResponseWriter, r *http.Request) {
	version, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil || version < 1 {
		apierrors.ValidationError(w, "Номер версии должен быть положительным целым")
		return
	}
	h.serveFile(w, r, version)
}

// serveFile отдаёт файл с поддержкой Range и условных запросов.
func (h *InstructionsHandler) serveFile(w http.ResponseWriter, r *http.Request, version int) {
	f, name, err := h.records.OpenFile(chi.URLParam(r, "id"), version)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeServiceError(w, h.logger, &model.StorageError{Op: "stat", Err: err})
		return
	}

	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))

	http.ServeContent(w, r, name, info.ModTime(), f)
}

// parseForm разбирает поля записи и необязательный файл.
// При ошибке ответ уже записан и ok == false.
func (h *InstructionsHandler) parseForm(w http.ResponseWriter, r *http.Request) (
	fields model.Fields, upload *service.Upload, cleanup func(), ok bool,
) {
	cleanup = func() {}

	if limit := h.records.Rules().MaxFileSize; limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit+formOverhead)
	}

	err := r.ParseMultipartForm(multipartMemory)
	if errors.Is(err, http.ErrNotMultipart) {
		err = r.ParseForm()
	}
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			apierrors.FileTooLarge(w, fmt.Sprintf("Размер запроса превышает %d байт", maxErr.Limit))
			return fields, nil, cleanup, false
		}
		apierrors.ValidationError(w, fmt.Sprintf("Ошибка разбора формы: %s", err.Error()))
		return fields, nil, cleanup, false
	}

	fields = model.Fields{
		Title:            r.FormValue("title"),
		Department:       r.FormValue("department"),
		RegistrationDate: r.FormValue("registration_date"),
		LastUpdate:       r.FormValue("last_update"),
		Responsible:      r.FormValue("responsible"),
		Email:            r.FormValue("email"),
	}

	if r.MultipartForm == nil {
		return fields, nil, cleanup, true
	}
	cleanup = func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			h.logger.Warn("Ошибка удаления временных файлов формы", slog.String("error", err.Error()))
		}
	}

	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return fields, nil, cleanup, true
	}
	if err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Ошибка чтения файла: %s", err.Error()))
		return fields, nil, cleanup, false
	}

	return fields, newUpload(file, header), chain(cleanup, func() { _ = file.Close() }), true
}

func newUpload(file multipart.File, header *multipart.FileHeader) *service.Upload {
	return &service.Upload{
		Reader:   file,
		Filename: header.Filename,
		Size:     header.Size,
	}
}

func chain(fns ...func()) func() {
	return func() {
		for i := len(fns) - 1; i >= 0; i-- {
			fns[i]()
		}
	}
}
