// Package httpx provides the JSON envelope and request helpers shared by handlers.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/factory-erp/internal/shared"
)

// Envelope is the response body of every API call.
type Envelope struct {
	Success bool       `json:"success"`
	Message string     `json:"message,omitempty"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// ErrorBody describes a failed call.
type ErrorBody struct {
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

var validate = validator.New()

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// OK writes a success envelope with status 200.
func OK(w http.ResponseWriter, message string, data any) {
	JSON(w, http.StatusOK, Envelope{Success: true, Message: message, Data: data})
}

// Created writes a success envelope with status 201.
func Created(w http.ResponseWriter, message string, data any) {
	JSON(w, http.StatusCreated, Envelope{Success: true, Message: message, Data: data})
}

// Error maps err onto the failure envelope. Errors that are not AppErrors, and
// database errors, become a generic 500.
func Error(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := http.StatusInternalServerError
	body := &ErrorBody{Code: "INTERNAL_ERROR"}
	if appErr, ok := shared.AsAppError(err); ok {
		status = appErr.Status()
		if status < http.StatusInternalServerError {
			body.Code = appErr.Code
			body.Details = appErr.Details
		}
	}
	if status >= http.StatusInternalServerError && logger != nil {
		logger.Error("request failed", slog.Any("error", err))
	}
	msg := shared.UserSafeMessage(err)
	if status >= http.StatusInternalServerError {
		msg = "internal server error"
	}
	JSON(w, status, Envelope{Success: false, Message: msg, Error: body})
}

// FieldError describes one failed validation rule.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// DecodeJSON decodes the body into target and runs struct validation.
func DecodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(target); err != nil {
		return shared.Validation(fmt.Sprintf("invalid JSON body: %v", err))
	}
	return Validate(target)
}

// Validate runs validator tags on v.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return shared.Validation(err.Error())
	}
	fields := make([]FieldError, 0, len(verrs))
	names := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{Field: fe.Namespace(), Rule: fe.Tag()})
		names = append(names, fe.Field())
	}
	return shared.Validation("invalid fields: " + strings.Join(names, ", ")).WithDetails(fields)
}

// IDParam parses a positive int64 URL parameter.
func IDParam(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.Validation(fmt.Sprintf("invalid %s %q", name, raw))
	}
	return id, nil
}
