// reports.go — статистика и выгрузка отчёта Excel.
package handlers

import (
	"bytes"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/bigkaa/instruction-tracker/internal/service"
)

// xlsxContentType — MIME-тип книги Excel.
const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ReportsHandler — обработчик статистики и отчётов.
type ReportsHandler struct {
	stats  *service.StatsService
	export *service.ExportService
	logger *slog.Logger
}

// NewReportsHandler создаёт обработчик статистики и отчётов.
func NewReportsHandler(stats *service.StatsService, export *service.ExportService, logger *slog.Logger) *ReportsHandler {
	return &ReportsHandler{
		stats:  stats,
		export: export,
		logger: logger.With(slog.String("component", "reports_handler")),
	}
}

// Stats обрабатывает GET /api/v1/stats.
func (h *ReportsHandler) Stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.stats.Stats())
}

// Export обрабатывает GET /api/v1/export.
// Книга формируется в буфере: при ошибке клиент получает JSON, а не обрезанный файл.
func (h *ReportsHandler) Export(w http.ResponseWriter, _ *http.Request) {
	var buf bytes.Buffer
	if err := h.export.Write(&buf); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{"filename": h.export.Filename()}))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
