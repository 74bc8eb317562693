// Пакет service — бизнес-логика реестра должностных инструкций.
// metrics.go — Prometheus-метрики операций с записями.
package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// operationsTotal — количество операций с записями по типу и результату.
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "it_operations_total",
		Help: "Общее количество операций с записями",
	}, []string{"operation", "result"})

	// recordsTotal — количество записей по состоянию.
	recordsTotal = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "it_records_total",
		Help: "Количество записей по состоянию (all, outdated, with_file)",
	}, []string{"state"})

	// fileBytesTotal — объём загруженных файлов.
	fileBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "it_uploaded_bytes_total",
		Help: "Общий объём загруженных файлов в байтах",
	})
)

// observe фиксирует результат операции в метрике.
func observe(operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	operationsTotal.WithLabelValues(operation, result).Inc()
}
