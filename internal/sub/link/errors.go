package link

import (
	"fmt"
	"strings"

	"github.com/John-Robertt/singsub/internal/model"
)

// CodeMalformed marks a descriptor that is missing a mandatory component.
const CodeMalformed = "SUB_MALFORMED_DESCRIPTOR"

type ParseError struct {
	AppError model.AppError
	Cause    error
}

func (e *ParseError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

func newParseError(s Scheme, raw string, message string, cause error) error {
	return &ParseError{
		AppError: model.AppError{
			Code:    CodeMalformed,
			Message: message,
			Stage:   "parse_sub",
			Snippet: TruncateSnippet(raw, 200),
			Hint:    "scheme: " + string(s),
		},
		Cause: cause,
	}
}

// TruncateSnippet flattens s to one line and cuts it to max bytes.
func TruncateSnippet(s string, max int) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	return s[:max]
}
