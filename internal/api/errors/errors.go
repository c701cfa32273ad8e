// Пакет errors: конструкторы стандартных ошибок API.
// Единый формат: {"error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors //nolint:revive // конфликт имени со stdlib, импортируется как apierrors

import (
	"encoding/json"
	"net/http"
)

// Коды ошибок API.
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeRentalEnded     = "RENTAL_ENDED"
	CodeFilesDeleted    = "FILES_DELETED"
	CodeFileTooLarge    = "FILE_TOO_LARGE"
	CodeNoContent       = "NO_CONTENT"
	CodeNotSupported    = "NOT_SUPPORTED"
	CodeStorageError    = "STORAGE_ERROR"
	CodeCleanupRejected = "CLEANUP_REJECTED"
	CodeInternalError   = "INTERNAL_ERROR"
)

// errorBody: структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail: детали ошибки.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате.
// statusCode: HTTP статус-код, code: машиночитаемый код, message: описание.
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

// ValidationError: 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound: 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// RentalEnded: 403 окно загрузки закрыто.
func RentalEnded(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeRentalEnded, message)
}

// FilesDeleted: 410 файлы мероприятия удалены.
func FilesDeleted(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusGone, CodeFilesDeleted, message)
}

// FileTooLarge: 413 файл превышает лимит.
func FileTooLarge(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusRequestEntityTooLarge, CodeFileTooLarge, message)
}

// NoContent: 404 у мероприятия нет файлов.
func NoContent(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNoContent, message)
}

// NotSupported: 501 операция не поддерживается backend'ом хранилища.
func NotSupported(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotImplemented, CodeNotSupported, message)
}

// StorageError: 502 ошибка объектного хранилища.
func StorageError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadGateway, CodeStorageError, message)
}

// CleanupRejected: 503 сервис останавливается, запуск очистки не принят.
func CleanupRejected(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusServiceUnavailable, CodeCleanupRejected, message)
}

// InternalError: 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
