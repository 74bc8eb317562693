// errors.go — таксономия ошибок доменного слоя.
package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDuplicateID — запись с таким идентификатором уже есть в репозитории.
var ErrDuplicateID = errors.New("запись с таким идентификатором уже существует")

// ErrConfirmationRequired — удаление не подтверждено (неизвестный или истёкший токен).
var ErrConfirmationRequired = errors.New("требуется подтверждение удаления")

// ValidationError — обязательные поля не заполнены или заполнены некорректно.
// Запись при этом не создаётся и не изменяется.
type ValidationError struct {
	// Missing — незаполненные обязательные поля (JSON-имена)
	Missing []string
	// Invalid — поля с некорректным значением (JSON-имена)
	Invalid []string
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "не заполнены обязательные поля: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "некорректные значения полей: "+strings.Join(e.Invalid, ", "))
	}
	if len(parts) == 0 {
		return "ошибка валидации"
	}
	return strings.Join(parts, "; ")
}

// NotFoundError — объект с указанным идентификатором не найден.
type NotFoundError struct {
	// Kind — что искали: "инструкция", "версия файла", "файл"
	Kind string
	// ID — идентификатор
	ID string
}

func (e *NotFoundError) Error() string {
	kind := e.Kind
	if kind == "" {
		kind = "инструкция"
	}
	return fmt.Sprintf("%s %s не найден(а)", kind, e.ID)
}

// StorageError — ошибка операции с файлами (копирование, запись, удаление).
// Операция прерывается, состояние записи остаётся прежним.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("ошибка файлового хранилища (%s): %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// PersistenceError — ошибка чтения или записи коллекции записей.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("ошибка сохранения данных (%s): %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsNotFound проверяет, является ли ошибка NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
