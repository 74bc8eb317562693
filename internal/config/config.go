// Пакет config — загрузка и валидация конфигурации реестра
// должностных инструкций из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации.
type Config struct {
	// Порт HTTP-сервера
	Port int
	// Идентификатор экземпляра (вершина графа topologymetrics)
	ServiceID string
	// Путь к JSON-файлу коллекции записей
	DataFile string
	// Путь к каталогу загруженных файлов
	UploadsDir string
	// Путь к директории WAL
	WALDir string
	// Порог устаревания в месяцах
	StaleThresholdMonths int
	// Судьба архивных версий при удалении записи: purge или retain
	VersionRetention string
	// Время жизни токена подтверждения удаления
	DeleteConfirmTTL time.Duration
	// Максимальный размер загружаемого файла в байтах
	MaxFileSize int64
	// Допустимые расширения файлов (без точки, в нижнем регистре)
	AllowedExtensions []string
	// Интервал автоматической сверки каталога загрузок
	ReconcileInterval time.Duration
	// Интервал очистки WAL и корзины
	GCInterval time.Duration

	// Параметры SMTP
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string
	// Максимальное количество писем в секунду
	SMTPRate float64

	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Имя группы в метриках topologymetrics
	DephealthGroup string

	// Путь к TLS сертификату (опционально, вместе с TLSKey)
	TLSCert string
	// Путь к TLS приватному ключу
	TLSKey string
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// значения и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// IT_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("IT_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("IT_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("IT_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.ServiceID = getEnvDefault("IT_SERVICE_ID", "instruction-tracker")
	cfg.DataFile = getEnvDefault("IT_DATA_FILE", "data/instructions.json")
	cfg.UploadsDir = getEnvDefault("IT_UPLOADS_DIR", "uploads")
	cfg.WALDir = getEnvDefault("IT_WAL_DIR", "data/wal")

	// IT_STALE_THRESHOLD_MONTHS — порог устаревания (по умолчанию 12)
	cfg.StaleThresholdMonths, err = getEnvInt("IT_STALE_THRESHOLD_MONTHS", 12)
	if err != nil {
		return nil, fmt.Errorf("IT_STALE_THRESHOLD_MONTHS: %w", err)
	}
	if cfg.StaleThresholdMonths <= 0 {
		return nil, fmt.Errorf("IT_STALE_THRESHOLD_MONTHS: значение должно быть положительным")
	}

	// IT_VERSION_RETENTION — purge (по умолчанию) или retain
	cfg.VersionRetention = strings.ToLower(getEnvDefault("IT_VERSION_RETENTION", "purge"))
	if cfg.VersionRetention != "purge" && cfg.VersionRetention != "retain" {
		return nil, fmt.Errorf("IT_VERSION_RETENTION: недопустимое значение %q, допустимые: purge, retain", cfg.VersionRetention)
	}

	cfg.DeleteConfirmTTL, err = getEnvDuration("IT_DELETE_CONFIRM_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("IT_DELETE_CONFIRM_TTL: %w", err)
	}
	if cfg.DeleteConfirmTTL <= 0 {
		return nil, fmt.Errorf("IT_DELETE_CONFIRM_TTL: значение должно быть положительным")
	}

	// IT_MAX_FILE_SIZE — максимальный размер файла (по умолчанию 50 MiB)
	cfg.MaxFileSize, err = getEnvInt64("IT_MAX_FILE_SIZE", 50<<20)
	if err != nil {
		return nil, fmt.Errorf("IT_MAX_FILE_SIZE: %w", err)
	}
	if cfg.MaxFileSize <= 0 {
		return nil, fmt.Errorf("IT_MAX_FILE_SIZE: значение должно быть положительным")
	}

	cfg.AllowedExtensions = parseExtensions(getEnvDefault("IT_ALLOWED_EXTENSIONS", "pdf,doc,docx,txt"))
	if len(cfg.AllowedExtensions) == 0 {
		return nil, fmt.Errorf("IT_ALLOWED_EXTENSIONS: список расширений пуст")
	}

	// IT_RECONCILE_INTERVAL — интервал сверки (по умолчанию 6h)
	cfg.ReconcileInterval, err = getEnvDuration("IT_RECONCILE_INTERVAL", 6*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("IT_RECONCILE_INTERVAL: %w", err)
	}

	// IT_GC_INTERVAL — интервал очистки WAL и корзины (по умолчанию 1h)
	cfg.GCInterval, err = getEnvDuration("IT_GC_INTERVAL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("IT_GC_INTERVAL: %w", err)
	}

	cfg.SMTPHost = getEnvDefault("IT_SMTP_HOST", "smtp.yandex.ru")
	cfg.SMTPPort, err = getEnvInt("IT_SMTP_PORT", 587)
	if err != nil {
		return nil, fmt.Errorf("IT_SMTP_PORT: %w", err)
	}
	cfg.SMTPUser = os.Getenv("IT_SMTP_USER")
	cfg.SMTPPassword = os.Getenv("IT_SMTP_PASSWORD")
	cfg.SMTPFrom = getEnvDefault("IT_SMTP_FROM", cfg.SMTPUser)

	// IT_SMTP_RATE — писем в секунду (по умолчанию 1, 0 = без ограничения)
	cfg.SMTPRate, err = getEnvFloat("IT_SMTP_RATE", 1)
	if err != nil {
		return nil, fmt.Errorf("IT_SMTP_RATE: %w", err)
	}
	if cfg.SMTPRate < 0 {
		return nil, fmt.Errorf("IT_SMTP_RATE: значение не может быть отрицательным")
	}

	// IT_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 30s)
	cfg.DephealthCheckInterval, err = getEnvDuration("IT_DEPHEALTH_CHECK_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("IT_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}
	cfg.DephealthGroup = getEnvDefault("IT_DEPHEALTH_GROUP", "instruction-tracker")

	// IT_TLS_CERT / IT_TLS_KEY — задаются вместе или не задаются
	cfg.TLSCert = os.Getenv("IT_TLS_CERT")
	cfg.TLSKey = os.Getenv("IT_TLS_KEY")
	if (cfg.TLSCert == "") != (cfg.TLSKey == "") {
		return nil, fmt.Errorf("IT_TLS_CERT и IT_TLS_KEY должны задаваться вместе")
	}

	// IT_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("IT_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("IT_LOG_LEVEL: %w", err)
	}

	// IT_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("IT_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("IT_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// IT_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 10s)
	cfg.ShutdownTimeout, err = getEnvDuration("IT_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("IT_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// TLSEnabled возвращает true, если заданы сертификат и ключ.
func (c *Config) TLSEnabled() bool {
	return c.TLSCert != "" && c.TLSKey != ""
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvFloat возвращает float64 значение переменной окружения или значение по умолчанию.
func getEnvFloat(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное число: %q", val)
	}
	return f, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 6h)", val)
	}
	return d, nil
}

// parseExtensions разбирает список расширений через запятую:
// ".PDF, docx" → [pdf docx]. Пустые элементы и повторы пропускаются.
func parseExtensions(s string) []string {
	var result []string
	seen := make(map[string]bool)
	for part := range strings.SplitSeq(s, ",") {
		ext := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(part), "."))
		if ext == "" || seen[ext] {
			continue
		}
		seen[ext] = true
		result = append(result, ext)
	}
	return result
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
