// Пакет errors: конструкторы ошибок API в едином формате
// {"error": {"code": "...", "message": "...", "details": [...]}}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bigkaa/otter-vetting/internal/service"
	"github.com/bigkaa/otter-vetting/internal/validator"
)

// Коды ошибок, определённые в OpenAPI контракте.
const (
	CodeValidationError    = "VALIDATION_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeConflict           = "CONFLICT"
	CodeAmbiguousMatch     = "AMBIGUOUS_MATCH"
	CodeCatalogConflict    = "CATALOG_CONFLICT"
	CodeCatalogUnavailable = "CATALOG_UNAVAILABLE"
	CodeApproveTimeout     = "APPROVE_TIMEOUT"
	CodePayloadTooLarge    = "PAYLOAD_TOO_LARGE"
	CodeUnavailable        = "SERVICE_UNAVAILABLE"
	CodeInternalError      = "INTERNAL_ERROR"
)

// Detail: проблема в конкретном поле или строке входных данных.
type Detail struct {
	Field   string `json:"field"`
	Row     int    `json:"row,omitempty"`
	Message string `json:"message"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []Detail `json:"details,omitempty"`
}

// WriteError записывает ответ ошибки в стандартном формате.
// statusCode: HTTP статус-код, code: машиночитаемый код, message: описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	writeBody(w, statusCode, errorDetail{Code: code, Message: message})
}

// WriteErrorDetails записывает ответ ошибки со списком подробностей.
func WriteErrorDetails(w http.ResponseWriter, statusCode int, code, message string, details []Detail) {
	writeBody(w, statusCode, errorDetail{Code: code, Message: message, Details: details})
}

func writeBody(w http.ResponseWriter, statusCode int, d errorDetail) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{Error: d})
}

// --- Конструкторы для типичных ошибок ---

// ValidationError: 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// ValidationProblems: 400 со всеми проблемами из *validator.ValidationError.
func ValidationProblems(w http.ResponseWriter, message string, ve *validator.ValidationError) {
	details := make([]Detail, 0, len(ve.Problems))
	for _, p := range ve.Problems {
		details = append(details, Detail{Field: p.Field, Row: p.Row, Message: p.Message})
	}
	WriteErrorDetails(w, http.StatusBadRequest, CodeValidationError, message, details)
}

// NotFound: 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Unauthorized: 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden: 403 недостаточно прав.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

// Conflict: 409 конфликт состояния.
func Conflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeConflict, message)
}

// PayloadTooLarge: 413 тело запроса превышает лимит.
func PayloadTooLarge(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, message)
}

// CatalogUnavailable: 502 хранилище каталога недоступно.
func CatalogUnavailable(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadGateway, CodeCatalogUnavailable, message)
}

// ServiceUnavailable: 503 сервис останавливается.
func ServiceUnavailable(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusServiceUnavailable, CodeUnavailable, message)
}

// InternalError: 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}

// FromService записывает ответ для ошибки сервисного слоя.
// Возвращает false, если ошибка не распознана и ответ не записан:
// вызывающий логирует её и отвечает InternalError.
func FromService(w http.ResponseWriter, err error) bool {
	var ve *validator.ValidationError
	switch {
	case errors.As(err, &ve):
		ValidationProblems(w, "Данные не прошли проверку", ve)
	case errors.Is(err, service.ErrValidation), errors.Is(err, service.ErrReadOnly):
		ValidationError(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		NotFound(w, err.Error())
	case errors.Is(err, service.ErrJobRunning):
		Conflict(w, err.Error())
	case errors.Is(err, service.ErrAmbiguousMatch):
		WriteError(w, http.StatusConflict, CodeAmbiguousMatch, err.Error())
	case errors.Is(err, service.ErrCatalogConflict):
		WriteError(w, http.StatusConflict, CodeCatalogConflict, err.Error())
	case errors.Is(err, service.ErrApproveTimeout):
		WriteError(w, http.StatusGatewayTimeout, CodeApproveTimeout, err.Error())
	case errors.Is(err, service.ErrCatalogUnavailable):
		CatalogUnavailable(w, err.Error())
	case errors.Is(err, service.ErrRunnerStopped), errors.Is(err, service.ErrQueueUnavailable):
		ServiceUnavailable(w, err.Error())
	default:
		return false
	}
	return true
}
