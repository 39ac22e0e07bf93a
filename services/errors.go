package services

import "net/http"

// Error is a failure the HTTP layer can render directly.
type Error struct {
	Message    string
	StatusCode int
	Code       string
}

func (e *Error) Error() string {
	return e.Message
}

// NewError creates a service error with custom details
func NewError(message string, statusCode int, code string) *Error {
	return &Error{
		Message:    message,
		StatusCode: statusCode,
		Code:       code,
	}
}

func badRequest(message string) *Error {
	return NewError(message, http.StatusBadRequest, "VALIDATION_ERROR")
}

func notFound(message string) *Error {
	return NewError(message, http.StatusNotFound, "NOT_FOUND")
}

func misconfigured(message string) *Error {
	return NewError(message, http.StatusInternalServerError, "CONFIGURATION_ERROR")
}

func internal(message string) *Error {
	return NewError(message, http.StatusInternalServerError, "INTERNAL_ERROR")
}

func unavailable(message string) *Error {
	return NewError(message, http.StatusBadGateway, "LEDGER_UNAVAILABLE")
}
