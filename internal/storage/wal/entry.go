// Пакет wal — файловый Write-Ahead Log для атомарности операций
// с файлами инструкций. Каждая транзакция — отдельный файл
// {tx_id}.wal.json в IT_WAL_DIR. Транзакция перечисляет созданные
// и перемещённые в корзину файлы, чтобы после сбоя их можно было
// откатить.
package wal

import (
	"slices"
	"time"
)

// OperationType — тип операции, записываемой в WAL.
type OperationType string

const (
	// OpAttach — загрузка файла с архивированием предыдущей версии
	OpAttach OperationType = "attach"
	// OpDetach — освобождение файлов при удалении записи
	OpDetach OperationType = "detach"
)

// TransactionStatus — статус транзакции WAL.
type TransactionStatus string

const (
	// StatusPending — транзакция начата, операция в процессе
	StatusPending TransactionStatus = "pending"
	// StatusCommitted — транзакция успешно завершена
	StatusCommitted TransactionStatus = "committed"
	// StatusRolledBack — транзакция отменена
	StatusRolledBack TransactionStatus = "rolled_back"
)

// Entry — запись WAL.
type Entry struct {
	// TransactionID — уникальный идентификатор транзакции (UUID v4)
	TransactionID string `json:"transaction_id"`

	// Operation — тип операции
	Operation OperationType `json:"operation"`

	// Status — текущий статус транзакции
	Status TransactionStatus `json:"status"`

	// RecordID — идентификатор записи, над файлами которой выполняется операция
	RecordID string `json:"record_id"`

	// Created — файлы, созданные транзакцией (новый текущий файл, архивная копия)
	Created []string `json:"created,omitempty"`

	// Stashed — файлы, перемещённые транзакцией в корзину
	Stashed []string `json:"stashed,omitempty"`

	// StartedAt — время начала транзакции (UTC)
	StartedAt time.Time `json:"started_at"`

	// CompletedAt — время завершения транзакции (UTC).
	// nil для pending транзакций.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Step — вид шага транзакции.
type Step int

const (
	// StepCreate — файл будет создан
	StepCreate Step = iota
	// StepStash — файл будет перемещён в корзину
	StepStash
)

func (e *Entry) add(step Step, name string) {
	switch step {
	case StepCreate:
		if !slices.Contains(e.Created, name) {
			e.Created = append(e.Created, name)
		}
	case StepStash:
		if !slices.Contains(e.Stashed, name) {
			e.Stashed = append(e.Stashed, name)
		}
	}
}

// walFileName возвращает имя файла WAL для данной транзакции.
func walFileName(txID string) string {
	return txID + ".wal.json"
}
