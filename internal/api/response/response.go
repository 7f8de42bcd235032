// Package response содержит вспомогательные типы и функции для формирования
// унифицированных JSON-ответов HTTP-обработчиков.
package response

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/ent-insight/internal/lib/apperr"
	"github.com/magabrotheeeer/ent-insight/internal/lib/sl"
)

// Значения поля status.
const (
	StatusOK    = "OK"
	StatusError = "error"
)

// OKResponse описывает успешный JSON-ответ.
type OKResponse struct {
	Status  string `json:"status" example:"OK"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse описывает JSON-ответ с ошибкой.
type ErrorResponse struct {
	Status     string `json:"status" example:"error"`
	StatusCode int    `json:"statusCode" example:"400"`
	Message    string `json:"message" example:"invalid request body"`
}

// OKWithData возвращает успешный ответ с данными.
func OKWithData(data any) OKResponse {
	return OKResponse{Status: StatusOK, Data: data}
}

// OKWithMessage возвращает успешный ответ с данными и сообщением.
func OKWithMessage(data any, msg string) OKResponse {
	return OKResponse{Status: StatusOK, Data: data, Message: msg}
}

// Error возвращает ответ с ошибкой.
func Error(code int, msg string) ErrorResponse {
	return ErrorResponse{Status: StatusError, StatusCode: code, Message: msg}
}

// JSON пишет успешный ответ с кодом code.
func JSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	render.Status(r, code)
	render.JSON(w, r, v)
}

// WriteError переводит любую ошибку в конверт ошибки. Текст внутренних
// ошибок клиенту не отдаётся.
func WriteError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	code := apperr.StatusCode(err)
	if code >= http.StatusInternalServerError {
		log.Error("request failed", slog.Int("status", code), sl.Err(err))
	} else {
		log.Info("request rejected", slog.Int("status", code), sl.Err(err))
	}
	render.Status(r, code)
	render.JSON(w, r, Error(code, apperr.PublicMessage(err)))
}

// DecodeError пишет 400 для нечитаемого тела запроса.
func DecodeError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	WriteError(w, r, log, apperr.Wrap(http.StatusBadRequest, "invalid request body", err))
}

// Validate проверяет структуру и переводит ошибки валидатора в 422.
func Validate(v *validator.Validate, s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var errs validator.ValidationErrors
	if errors.As(err, &errs) {
		return apperr.New(http.StatusUnprocessableEntity, ValidationMessage(errs))
	}
	return apperr.Wrap(http.StatusBadRequest, "invalid request body", err)
}

// ValidationMessage собирает нарушения в одну строку через запятую.
func ValidationMessage(errs validator.ValidationErrors) string {
	msgs := make([]string, 0, len(errs))
	for _, err := range errs {
		switch err.ActualTag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("field %s is a required field", err.Field()))
		case "min":
			msgs = append(msgs, fmt.Sprintf("field %s must be at least %s", err.Field(), err.Param()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("field %s must be at most %s", err.Field(), err.Param()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("field %s must be one of [%s]", err.Field(), err.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("field %s is not valid", err.Field()))
		}
	}
	return strings.Join(msgs, ", ")
}
