// dephealth.go — интеграция с topologymetrics SDK для мониторинга зависимостей.
//
// Сервис мониторит SMTP-сервер рассылки напоминаний (TCP-подключение, non-critical:
// без почты реестр продолжает работать, недоступны только напоминания).
//
// Метрики доступны на /metrics вместе с остальными Prometheus-метриками:
//   - app_dependency_health — состояние зависимости (1 = ok, 0 = fail)
//   - app_dependency_latency_seconds — задержка проверки
//   - app_dependency_status — категория статуса
//   - app_dependency_status_detail — детальный статус
package service

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/tcpcheck" // регистрация TCP checker factory
	"github.com/prometheus/client_golang/prometheus"
)

// smtpDependency — имя зависимости SMTP в метриках.
const smtpDependency = "smtp"

// DephealthService — сервис мониторинга зависимостей через topologymetrics.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService создаёт сервис мониторинга зависимостей.
// Метрики регистрируются в глобальном Prometheus registry.
//
// Параметры:
//   - serviceID — имя вершины графа текущего приложения (IT_SERVICE_ID)
//   - group — имя группы в метриках
//   - smtpHost, smtpPort — адрес SMTP-сервера (IT_SMTP_HOST, IT_SMTP_PORT)
//   - checkInterval — интервал проверки (IT_DEPHEALTH_CHECK_INTERVAL)
func NewDephealthService(
	serviceID string,
	group string,
	smtpHost string,
	smtpPort int,
	checkInterval time.Duration,
	logger *slog.Logger,
) (*DephealthService, error) {
	return newDephealthService(serviceID, group, smtpHost, smtpPort, checkInterval, logger)
}

// NewDephealthServiceWithRegisterer создаёт сервис с указанным Prometheus registerer.
// Используется в тестах для изоляции метрик.
func NewDephealthServiceWithRegisterer(
	serviceID string,
	group string,
	smtpHost string,
	smtpPort int,
	checkInterval time.Duration,
	logger *slog.Logger,
	registerer prometheus.Registerer,
) (*DephealthService, error) {
	return newDephealthService(serviceID, group, smtpHost, smtpPort, checkInterval, logger,
		dephealth.WithRegisterer(registerer))
}

// newDephealthService — внутренний конструктор.
func newDephealthService(
	serviceID string,
	group string,
	smtpHost string,
	smtpPort int,
	checkInterval time.Duration,
	logger *slog.Logger,
	extraOpts ...dephealth.Option,
) (*DephealthService, error) {
	smtpDepOpts := []dephealth.DependencyOption{
		dephealth.FromParams(smtpHost, strconv.Itoa(smtpPort)),
		dephealth.CheckInterval(checkInterval),
		dephealth.Critical(false),
	}

	opts := make([]dephealth.Option, 0, 2+len(extraOpts))
	opts = append(opts,
		dephealth.WithLogger(logger),
		dephealth.TCP(smtpDependency, smtpDepOpts...),
	)
	opts = append(opts, extraOpts...)

	dh, err := dephealth.New(serviceID, group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен (SMTP)")
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает текущее состояние зависимостей.
// Ключ — "зависимость:хост:порт", значение — true если ok.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}
