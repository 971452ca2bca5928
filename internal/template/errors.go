package template

import (
	"fmt"

	"github.com/John-Robertt/singsub/internal/model"
)

type TemplateError struct {
	AppError model.AppError
	Cause    error
}

func (e *TemplateError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *TemplateError) Unwrap() error { return e.Cause }

// ReadError reports a template location that could not be read.
func ReadError(location string, cause error) error {
	return &TemplateError{
		AppError: model.AppError{
			Code:    "TEMPLATE_READ_ERROR",
			Message: "读取配置模板失败",
			Stage:   "fetch_template",
			URL:     location,
		},
		Cause: cause,
	}
}

func parseError(location, msg string, cause error) error {
	return &TemplateError{
		AppError: model.AppError{
			Code:    "TEMPLATE_PARSE_ERROR",
			Message: msg,
			Stage:   "validate_template",
			URL:     location,
		},
		Cause: cause,
	}
}
