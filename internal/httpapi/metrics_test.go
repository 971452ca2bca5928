package httpapi

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestMetrics_CountsRequestsAndErrors(t *testing.T) {
	metrics = newMetricsStore()
	up := newUpstream(t)

	l := logrus.New()
	l.SetOutput(io.Discard)
	h := NewHandlerWithOptions(Options{Log: l})

	// 1) ok request
	{
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("healthz status=%d body=%q", rr.Code, rr.Body.String())
		}
	}

	// 2) error request
	{
		req := httptest.NewRequest(http.MethodGet, "/sub", nil) // missing sub => validate_request error
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("sub status=%d body=%q", rr.Code, rr.Body.String())
		}
	}

	// 3) conversion
	{
		req := httptest.NewRequest(http.MethodGet, "/sub?sub="+url.QueryEscape(up.URL+"/plain"), nil)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("sub status=%d body=%q", rr.Code, rr.Body.String())
		}
	}

	// 4) metrics snapshot (the /metrics request isn't counted inside its own response).
	{
		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("metrics status=%d body=%q", rr.Code, rr.Body.String())
		}

		body := rr.Body.String()
		for _, want := range []string{
			"singsub_http_requests_total 3\n",
			`pattern="GET /healthz",status="200"} 1`,
			`pattern="GET /sub",status="400"} 1`,
			`pattern="GET /sub",status="200"} 1`,
			`singsub_app_errors_total{stage="validate_request",code="INVALID_ARGUMENT"} 1`,
			"singsub_conversions_total 1\n",
			"singsub_records_total 2\n",
			"singsub_unsupported_schemes_total 1\n",
		} {
			if !strings.Contains(body, want) {
				t.Fatalf("metrics body missing %q, got:\n%s", want, body)
			}
		}
	}
}

func TestPromLabelEscape(t *testing.T) {
	if got, want := promLabelEscape("a\"b\\c\nd"), `a\"b\\c\nd`; got != want {
		t.Fatalf("got=%q, want=%q", got, want)
	}
}
