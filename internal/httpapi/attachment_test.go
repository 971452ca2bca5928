package httpapi

import (
	"net/http"
	"net/url"
	"strings"
	"testing"
)

func TestFileName_ContentDisposition(t *testing.T) {
	up := newUpstream(t)
	mux := testMux()
	sub := "&sub=" + url.QueryEscape(up.URL+"/plain")

	cases := []struct {
		query string
		want  string
	}{
		{"output=config", `filename="sing-box_config.json"`},
		{"output=proxies", `filename="sing-box.json"`},
		{"fileName=my_nodes", `filename="my_nodes.json"`},
		{"fileName=nodes.txt", `filename="nodes.txt"`},
		{"fileName=" + url.QueryEscape("节点 列表"), `filename*=UTF-8''%E8%8A%82%E7%82%B9%20%E5%88%97%E8%A1%A8.json`},
	}
	for _, tc := range cases {
		rr := doGET(t, mux, "/sub?"+tc.query+sub)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: status=%d body=%s", tc.query, rr.Code, rr.Body.String())
		}
		if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, tc.want) {
			t.Fatalf("%s: Content-Disposition=%q, want contains %q", tc.query, cd, tc.want)
		}
	}
}

func TestOutputFileName_Rejects(t *testing.T) {
	for _, name := range []string{"a/b", `a\b`, "a\r\nb", strings.Repeat("x", 201)} {
		if _, err := outputFileName(convertRequest{FileName: name}); err == nil {
			t.Fatalf("fileName=%q: expected error", name)
		}
	}
}
