package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/John-Robertt/singsub/internal/model"
)

func TestWriteError_JSONShapeAndHeaders(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, http.StatusUnprocessableEntity, model.AppError{
		Code:    "SUB_MALFORMED_DESCRIPTOR",
		Message: "invalid descriptor",
		Stage:   "parse_sub",
		URL:     "https://example.com/sub?a=1&b=2",
		Line:    123,
		Snippet: "vmess://<bad>",
		Hint:    "scheme: vmess",
	})

	if got, want := rr.Code, http.StatusUnprocessableEntity; got != want {
		t.Fatalf("status = %d, want %d", got, want)
	}

	if got, want := rr.Header().Get("Content-Type"), "application/json; charset=utf-8"; got != want {
		t.Fatalf("Content-Type = %q, want %q", got, want)
	}

	var resp model.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nbody=%q", err, rr.Body.String())
	}
	if resp.Error.Code != "SUB_MALFORMED_DESCRIPTOR" {
		t.Fatalf("code = %q, want %q", resp.Error.Code, "SUB_MALFORMED_DESCRIPTOR")
	}
	if resp.Error.Stage != "parse_sub" {
		t.Fatalf("stage = %q, want %q", resp.Error.Stage, "parse_sub")
	}
	if resp.Error.Line != 123 {
		t.Fatalf("line = %d, want %d", resp.Error.Line, 123)
	}
	if strings.Contains(rr.Body.String(), `\u0026`) || strings.Contains(rr.Body.String(), `\u003c`) {
		t.Fatalf("body is HTML-escaped: %s", rr.Body.String())
	}
}
