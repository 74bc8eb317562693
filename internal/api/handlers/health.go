// health.go — обработчики health endpoints для Kubernetes probes.
package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/bigkaa/instruction-tracker/internal/config"
)

const (
	statusOK       = "ok"
	statusFail     = "fail"
	statusDegraded = "degraded"
)

// ReadinessChecker — источник готовности коллекции.
type ReadinessChecker interface {
	IsReady() bool
}

// DependencyHealth — состояние внешних зависимостей (dephealth).
type DependencyHealth interface {
	Health() map[string]bool
}

// HealthHandler реализует health endpoints: /health/live, /health/ready.
type HealthHandler struct {
	version string
	// dirs — каталоги, доступные на запись: имя проверки → путь
	dirs map[string]string
	repo ReadinessChecker
	// deps — мониторинг зависимостей, nil если отключён
	deps DependencyHealth
}

// NewHealthHandler создаёт обработчик health endpoints.
// dataDir — каталог файла коллекции, uploadsDir и walDir — каталоги загрузок и WAL.
// deps может быть nil.
func NewHealthHandler(dataDir, uploadsDir, walDir string, repo ReadinessChecker, deps DependencyHealth) *HealthHandler {
	return &HealthHandler{
		version: config.Version,
		dirs: map[string]string{
			"data":    dataDir,
			"uploads": uploadsDir,
			"wal":     walDir,
		},
		repo: repo,
		deps: deps,
	}
}

// HealthLive обрабатывает GET /health/live.
// Возвращает 200, если процесс жив. Не проверяет зависимости.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    statusOK,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "instruction-tracker",
	})
}

// HealthReady обрабатывает GET /health/ready.
// Каталоги и загрузка коллекции обязательны (503 при сбое),
// недоступный SMTP даёт degraded.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	overall := statusOK
	httpStatus := http.StatusOK
	checks := make(map[string]any, len(h.dirs)+2)

	for name, dir := range h.dirs {
		check := checkWritable(dir)
		checks[name] = check
		if check["status"] != statusOK {
			overall = statusFail
			httpStatus = http.StatusServiceUnavailable
		}
	}

	if h.repo != nil && !h.repo.IsReady() {
		checks["collection"] = map[string]any{"status": statusFail, "message": "Коллекция не загружена"}
		overall = statusFail
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["collection"] = map[string]any{"status": statusOK}
	}

	if h.deps != nil {
		deps := h.deps.Health()
		depStatus := statusOK
		for _, up := range deps {
			if !up {
				depStatus = statusFail
			}
		}
		checks["dependencies"] = map[string]any{"status": depStatus, "details": deps}
		if depStatus != statusOK && overall == statusOK {
			overall = statusDegraded
		}
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    overall,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "instruction-tracker",
		"checks":    checks,
	})
}

// checkWritable проверяет доступность каталога на запись.
func checkWritable(dir string) map[string]any {
	if dir == "" {
		return map[string]any{
			"status":  statusOK,
			"message": "Проверка не настроена",
		}
	}

	testFile := filepath.Join(dir, ".health_check")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return map[string]any{
			"status":  statusFail,
			"message": "Каталог недоступен для записи: " + err.Error(),
		}
	}
	_ = os.Remove(testFile)

	return map[string]any{"status": statusOK}
}
