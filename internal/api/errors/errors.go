// Пакет errors — конструкторы стандартных ошибок API.
// Единый формат: {"error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors //nolint:revive // имя пакета совпадает со stdlib, импортируется как apierrors

import (
	"encoding/json"
	"net/http"
)

// Коды ошибок API.
const (
	CodeValidationError      = "VALIDATION_ERROR"
	CodeNotFound             = "NOT_FOUND"
	CodeConfirmationRequired = "CONFIRMATION_REQUIRED"
	CodeFileTooLarge         = "FILE_TOO_LARGE"
	CodeStorageError         = "STORAGE_ERROR"
	CodePersistenceError     = "PERSISTENCE_ERROR"
	CodeReconcileInProgress  = "RECONCILE_IN_PROGRESS"
	CodeMailerNotConfigured  = "MAILER_NOT_CONFIGURED"
	CodeInternalError        = "INTERNAL_ERROR"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// ConfirmationRequired — 409 удаление требует действительного токена подтверждения.
func ConfirmationRequired(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeConfirmationRequired, message)
}

// FileTooLarge — 413 файл превышает лимит.
func FileTooLarge(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusRequestEntityTooLarge, CodeFileTooLarge, message)
}

// StorageError — 500 ошибка операции с файлами.
func StorageError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeStorageError, message)
}

// PersistenceError — 500 ошибка сохранения коллекции.
func PersistenceError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodePersistenceError, message)
}

// ReconcileInProgress — 409 сверка уже выполняется.
func ReconcileInProgress(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeReconcileInProgress, message)
}

// MailerNotConfigured — 409 SMTP не настроен.
func MailerNotConfigured(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeMailerNotConfigured, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
