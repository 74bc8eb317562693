// system.go — обработчик GET /api/v1/info: версия, размер коллекции,
// справочники подразделений и ответственных для фильтров.
package handlers

import (
	"net/http"

	"github.com/bigkaa/instruction-tracker/internal/config"
	"github.com/bigkaa/instruction-tracker/internal/repository"
	"github.com/bigkaa/instruction-tracker/internal/service"
)

// infoResponse — ответ GET /api/v1/info.
type infoResponse struct {
	ServiceID            string   `json:"service_id"`
	Version              string   `json:"version"`
	Records              int      `json:"records"`
	Outdated             int      `json:"outdated"`
	StaleThresholdMonths int      `json:"stale_threshold_months"`
	VersionRetention     string   `json:"version_retention"`
	AllowedExtensions    []string `json:"allowed_extensions"`
	MaxFileSize          int64    `json:"max_file_size"`
	Departments          []string `json:"departments"`
	Responsibles         []string `json:"responsibles"`
	MailerConfigured     bool     `json:"mailer_configured"`
}

// SystemHandler — обработчик системных endpoints.
type SystemHandler struct {
	cfg              *config.Config
	records          *service.RecordService
	mailerConfigured bool
}

// NewSystemHandler создаёт обработчик системных endpoints.
func NewSystemHandler(cfg *config.Config, records *service.RecordService, mailerConfigured bool) *SystemHandler {
	return &SystemHandler{
		cfg:              cfg,
		records:          records,
		mailerConfigured: mailerConfigured,
	}
}

// GetInfo обрабатывает GET /api/v1/info.
func (h *SystemHandler) GetInfo(w http.ResponseWriter, _ *http.Request) {
	all := h.records.List(repository.Filter{})
	outdated := h.records.List(repository.Filter{Status: repository.StatusOutdated})

	rules := h.records.Rules()
	writeJSON(w, http.StatusOK, infoResponse{
		ServiceID:            h.cfg.ServiceID,
		Version:              config.Version,
		Records:              len(all),
		Outdated:             len(outdated),
		StaleThresholdMonths: h.records.Policy().ThresholdMonths,
		VersionRetention:     h.cfg.VersionRetention,
		AllowedExtensions:    rules.AllowedExtensions,
		MaxFileSize:          rules.MaxFileSize,
		Departments:          h.records.Departments(),
		Responsibles:         h.records.Responsibles(),
		MailerConfigured:     h.mailerConfigured,
	})
}
