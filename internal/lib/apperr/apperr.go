// Package apperr описывает единый тип прикладной ошибки, который несёт HTTP-статус
// и сообщение для клиента. Ошибки, не являющиеся *Error, считаются внутренними (500).
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// InternalMessage отдаётся клиенту вместо текста внутренних ошибок.
const InternalMessage = "An internal server error occurred"

// Error — прикладная ошибка со статус-кодом.
type Error struct {
	Code    int    // HTTP-статус
	Message string // Сообщение для клиента
	Err     error  // Исходная ошибка (опционально)
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New создаёт ошибку с кодом и сообщением.
func New(code int, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Wrap создаёт ошибку с кодом, сообщением и исходной причиной.
func Wrap(code int, msg string, err error) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// BadRequest создаёт ошибку некорректного ввода (400).
func BadRequest(format string, args ...any) *Error {
	return New(http.StatusBadRequest, fmt.Sprintf(format, args...))
}

// Validation создаёт ошибку валидации полей (422).
func Validation(format string, args ...any) *Error {
	return New(http.StatusUnprocessableEntity, fmt.Sprintf(format, args...))
}

// NotFound: сущность не найдена (404).
func NotFound(format string, args ...any) *Error {
	return New(http.StatusNotFound, fmt.Sprintf(format, args...))
}

// Conflict: нарушение уникальности (409).
func Conflict(format string, args ...any) *Error {
	return New(http.StatusConflict, fmt.Sprintf(format, args...))
}

// Unauthorized — отсутствует или невалиден контекст пользователя (401).
func Unauthorized(msg string) *Error {
	return New(http.StatusUnauthorized, msg)
}

// PaymentRequired — нет активной подписки (402).
func PaymentRequired(msg string) *Error {
	return New(http.StatusPaymentRequired, msg)
}

// Forbidden: недостаточно прав (403).
func Forbidden(msg string) *Error {
	return New(http.StatusForbidden, msg)
}

// TooManyRequests — исчерпана дневная квота (429).
func TooManyRequests(msg string) *Error {
	return New(http.StatusTooManyRequests, msg)
}

// StatusCode возвращает HTTP-статус ошибки, для посторонних ошибок 500.
func StatusCode(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Code != 0 {
		return appErr.Code
	}
	return http.StatusInternalServerError
}

// PublicMessage возвращает сообщение, которое безопасно показать клиенту.
func PublicMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Code < http.StatusInternalServerError {
		return appErr.Message
	}
	return InternalMessage
}
