package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/John-Robertt/singsub/internal/assemble"
	"github.com/John-Robertt/singsub/internal/fetch"
	"github.com/John-Robertt/singsub/internal/model"
	"github.com/John-Robertt/singsub/internal/pipeline"
	"github.com/John-Robertt/singsub/internal/store"
)

// APIError is used by the HTTP layer for request validation and a few
// HTTP-specific errors.
type APIError struct {
	Status   int
	AppError model.AppError
	Cause    error
}

func (e *APIError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *APIError) Unwrap() error { return e.Cause }

func apiError(status int, app model.AppError, cause error) error {
	return &APIError{Status: status, AppError: app, Cause: cause}
}

func requestError(code, message, hint string) error {
	return apiError(http.StatusBadRequest, model.AppError{
		Code:    code,
		Message: message,
		Stage:   "validate_request",
		Hint:    hint,
	}, nil)
}

func writeErrorFromErr(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var ae *APIError
	if errors.As(err, &ae) {
		WriteError(w, ae.Status, ae.AppError)
		return
	}

	var fe *fetch.FetchError
	if errors.As(err, &fe) {
		WriteError(w, fe.Status, fe.AppError)
		return
	}

	var asm *assemble.AssembleError
	if errors.As(err, &asm) {
		WriteError(w, http.StatusInternalServerError, asm.AppError)
		return
	}

	var se *store.StoreError
	if errors.As(err, &se) {
		WriteError(w, http.StatusInternalServerError, se.AppError)
		return
	}

	if errors.Is(err, context.DeadlineExceeded) {
		WriteError(w, http.StatusGatewayTimeout, model.AppError{
			Code:    "CONVERT_TIMEOUT",
			Message: "转换超时",
			Stage:   "convert",
		})
		return
	}

	// Parse, profile and template errors are user content errors => 422.
	if app, ok := pipeline.AppErrorOf(err); ok {
		WriteError(w, http.StatusUnprocessableEntity, app)
		return
	}

	// Fallback: internal bug.
	WriteError(w, http.StatusInternalServerError, model.AppError{
		Code:    "INTERNAL_ERROR",
		Message: "服务端内部错误",
		Stage:   "internal",
		Hint:    err.Error(),
	})
}
