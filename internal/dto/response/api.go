// Package response defines the JSON envelopes returned by the local agent API.
package response

import (
	"errors"
	"net/http"
	"time"

	apperrors "github.com/jrjohn/arcana-pos-go/pkg/errors"
)

// ApiResponse is a generic response wrapper for all API responses
type ApiResponse[T any] struct {
	Success   bool       `json:"success"`
	Message   string     `json:"message,omitempty"`
	Data      T          `json:"data,omitempty"`
	Error     *ErrorBody `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// ErrorBody carries a machine-readable code next to the message
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewSuccess creates a successful API response
func NewSuccess[T any](data T, message string) ApiResponse[T] {
	return ApiResponse[T]{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	}
}

// NewSuccessWithData creates a successful API response with just data
func NewSuccessWithData[T any](data T) ApiResponse[T] {
	return ApiResponse[T]{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
	}
}

// NewError creates an error API response
func NewError[T any](code, message string) ApiResponse[T] {
	return ApiResponse[T]{
		Success:   false,
		Message:   message,
		Error:     &ErrorBody{Code: code, Message: message},
		Timestamp: time.Now(),
	}
}

// FromError converts err into an error response and the HTTP status to send it with.
// Errors that are not AppErrors become 500s with a generic message.
func FromError[T any](err error) (ApiResponse[T], int) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		status := appErr.Status
		if status == 0 {
			status = http.StatusInternalServerError
		}
		return NewError[T](appErr.Code, appErr.Message), status
	}
	return NewError[T](apperrors.CodeInternalError, "internal server error"), http.StatusInternalServerError
}
