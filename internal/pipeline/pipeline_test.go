package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/John-Robertt/singsub/internal/config"
	"github.com/John-Robertt/singsub/internal/fetch"
	"github.com/John-Robertt/singsub/internal/model"
	"github.com/John-Robertt/singsub/internal/template"
)

const (
	lineSS     = "ss://YWVzLTEyOC1nY206cGFzc3dvcmQ=@example.com:8388#A"
	lineTrojan = "trojan://pw@us.example.com:443#%F0%9F%87%BA%F0%9F%87%B8%20US-1"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newSubServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintln(w, lineSS)
		_, _ = fmt.Fprintln(w, "tuic://x@h:1#T")
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, lineTrojan+"\n")
	})
	mux.HandleFunc("/down", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusBadGateway)
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

type groupView struct {
	Outbounds []struct {
		Type      string   `json:"type"`
		Tag       string   `json:"tag"`
		Outbounds []string `json:"outbounds"`
	} `json:"outbounds"`
}

func decodeGroups(t *testing.T, doc *template.Document) groupView {
	t.Helper()
	b, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var v groupView
	if err := json.Unmarshal(b, &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return v
}

func TestConvert_SkipsFailedSources(t *testing.T) {
	ts := newSubServer(t)
	res, err := Convert(context.Background(), []string{ts.URL + "/a", ts.URL + "/down", ts.URL + "/b"}, Options{Log: quietLogger()})
	if err != nil {
		t.Fatalf("Convert error: %v", err)
	}
	if res.RunID == "" {
		t.Fatalf("RunID is empty")
	}
	if res.Sources != 3 || res.FailedSources != 1 {
		t.Fatalf("sources=%d failed=%d, want=3/1", res.Sources, res.FailedSources)
	}
	if len(res.Report.Outbounds) != 2 {
		t.Fatalf("records=%d, want=2", len(res.Report.Outbounds))
	}
	if res.Report.Outbounds[0].Tag != "A" || res.Report.Outbounds[1].Tag != "🇺🇸 US-1" {
		t.Fatalf("tags=%q,%q", res.Report.Outbounds[0].Tag, res.Report.Outbounds[1].Tag)
	}
	if got := strings.Join(res.Report.Unsupported, ","); got != "tuic" {
		t.Fatalf("unsupported=%q, want=%q", got, "tuic")
	}
	if res.Config == nil {
		t.Fatalf("Config is nil")
	}

	members := map[string][]string{}
	for _, ob := range decodeGroups(t, res.Config).Outbounds {
		members[ob.Tag] = ob.Outbounds
	}
	if got := strings.Join(members["手动"], ","); got != "A,🇺🇸 US-1" {
		t.Fatalf("manual=%q", got)
	}
	if got := strings.Join(members["US"], ","); got != "🇺🇸 US-1" {
		t.Fatalf("US=%q", got)
	}
	if got := strings.Join(members["RU"], ","); got != "A,🇺🇸 US-1" {
		t.Fatalf("RU=%q, want all records", got)
	}
}

func TestConvert_NoRecordsIsNoop(t *testing.T) {
	ts := newSubServer(t)
	for _, urls := range [][]string{nil, {ts.URL + "/down"}} {
		res, err := Convert(context.Background(), urls, Options{Log: quietLogger()})
		if err != nil {
			t.Fatalf("Convert(%v) error: %v", urls, err)
		}
		if !res.Empty() || res.Config != nil {
			t.Fatalf("Convert(%v) produced a config", urls)
		}
	}
}

func TestConvert_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Convert(ctx, []string{"http://127.0.0.1:1/"}, Options{Log: quietLogger()})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v, want context.Canceled", err)
	}
}

func TestLoadTemplate_FallsBackToDefault(t *testing.T) {
	doc, err := LoadTemplate(context.Background(), filepath.Join(t.TempDir(), "missing.json"), fetch.Options{})
	if err == nil {
		t.Fatalf("expected error")
	}
	app, ok := AppErrorOf(err)
	if !ok || app.Code != "TEMPLATE_READ_ERROR" {
		t.Fatalf("app=%+v ok=%v", app, ok)
	}
	if doc == nil || len(doc.MissingSections()) != 0 {
		t.Fatalf("fallback document is not the built-in template")
	}

	bad := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(bad, []byte("[1,2]"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTemplate(context.Background(), bad, fetch.Options{}); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestLoadTemplate_HTTP(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"log":{},"outbounds":[]}`)
	}))
	defer ts.Close()

	doc, err := LoadTemplate(context.Background(), ts.URL, fetch.Options{Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("LoadTemplate error: %v", err)
	}
	if got := strings.Join(doc.Keys(), ","); got != "log,outbounds" {
		t.Fatalf("keys=%q, want=%q", got, "log,outbounds")
	}
}

func TestLoadProfile(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/profile.yaml":
			_, _ = io.WriteString(w, "version: 1\nmanual: M\nauto: A\nregions:\n  - tag: JP\n    keywords: [japan]\nsystem_types: [direct]\n")
		default:
			http.Error(w, "nope", http.StatusNotFound)
		}
	}))
	defer ts.Close()
	fo := fetch.Options{Timeout: 2 * time.Second}

	p, err := LoadProfile(context.Background(), ts.URL+"/profile.yaml", fo)
	if err != nil {
		t.Fatalf("LoadProfile error: %v", err)
	}
	if p.Manual != "M" || strings.Join(p.RegionTags(), ",") != "JP" {
		t.Fatalf("profile=%+v", p)
	}

	_, err = LoadProfile(context.Background(), ts.URL+"/missing.yaml", fo)
	var fe *fetch.FetchError
	if !errors.As(err, &fe) || fe.AppError.Stage != "fetch_profile" {
		t.Fatalf("err=%v, want fetch_profile FetchError", err)
	}

	p, err = LoadProfile(context.Background(), "", fo)
	if err != nil || p.Manual != "手动" {
		t.Fatalf("built-in profile=%+v, err=%v", p, err)
	}
}

type fakeArchive struct {
	runID string
	n     int
	err   error
}

func (f *fakeArchive) SaveRun(_ context.Context, runID string, obs []model.Outbound) error {
	f.runID, f.n = runID, len(obs)
	return f.err
}

func testSettings(dir string) *config.Settings {
	return &config.Settings{
		Sources:  config.SourcesSettings{File: filepath.Join(dir, "url.yaml")},
		Template: config.TemplateSettings{Path: filepath.Join(dir, "config.json")},
		Output: config.OutputSettings{
			Proxies: filepath.Join(dir, "sing-box.json"),
			Config:  filepath.Join(dir, "sing-box_config.json"),
		},
		Fetch: config.FetchSettings{Timeout: 2 * time.Second, MaxRedirects: 5},
	}
}

func TestRunFiles_WritesOutputs(t *testing.T) {
	ts := newSubServer(t)
	dir := t.TempDir()
	s := testSettings(dir)
	list := "# sources\n- " + ts.URL + "/a\n" + ts.URL + "/b\n"
	if err := os.WriteFile(s.Sources.File, []byte(list), 0o644); err != nil {
		t.Fatal(err)
	}

	arch := &fakeArchive{err: errors.New("db down")}
	res, err := RunFiles(context.Background(), s, RunOptions{Archive: arch, Log: quietLogger()})
	if err != nil {
		t.Fatalf("RunFiles error: %v", err)
	}
	if arch.runID != res.RunID || arch.n != 2 {
		t.Fatalf("archive runID=%q n=%d, want=%q/2", arch.runID, arch.n, res.RunID)
	}

	b, err := os.ReadFile(s.Output.Proxies)
	if err != nil {
		t.Fatalf("read proxies: %v", err)
	}
	var obs []model.Outbound
	if err := json.Unmarshal(b, &obs); err != nil {
		t.Fatalf("proxies not JSON: %v", err)
	}
	if len(obs) != 2 || obs[1].Type != model.TypeTrojan {
		t.Fatalf("proxies=%+v", obs)
	}
	if !strings.Contains(string(b), "🇺🇸 US-1") {
		t.Fatalf("non-ASCII tag escaped:\n%s", b)
	}

	cfg, err := os.ReadFile(s.Output.Config)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if !strings.HasPrefix(string(cfg), "{\n  \"log\"") {
		t.Fatalf("config key order or indent changed:\n%.80s", cfg)
	}
}

func TestRunFiles_SubsOverrideSourceFile(t *testing.T) {
	ts := newSubServer(t)
	dir := t.TempDir()
	s := testSettings(dir)

	res, err := RunFiles(context.Background(), s, RunOptions{Subs: []string{ts.URL + "/b"}, Log: quietLogger()})
	if err != nil {
		t.Fatalf("RunFiles error: %v", err)
	}
	if len(res.Report.Outbounds) != 1 {
		t.Fatalf("records=%d, want=1", len(res.Report.Outbounds))
	}
}

func TestRunFiles_EmptySourcesIsNoop(t *testing.T) {
	dir := t.TempDir()
	s := testSettings(dir)
	if err := os.WriteFile(s.Sources.File, []byte("# nothing\n\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	res, err := RunFiles(context.Background(), s, RunOptions{Log: quietLogger()})
	if err != nil {
		t.Fatalf("RunFiles error: %v", err)
	}
	if !res.Empty() {
		t.Fatalf("expected empty result")
	}
	if _, err := os.Stat(s.Output.Config); !os.IsNotExist(err) {
		t.Fatalf("config written on empty run: %v", err)
	}
}

func TestRunFiles_WriteFailure(t *testing.T) {
	ts := newSubServer(t)
	dir := t.TempDir()
	s := testSettings(dir)
	s.Output.Proxies = filepath.Join(dir, "missing", "sing-box.json")

	_, err := RunFiles(context.Background(), s, RunOptions{Subs: []string{ts.URL + "/a"}, Log: quietLogger()})
	app, ok := AppErrorOf(err)
	if !ok || app.Stage != "persist" {
		t.Fatalf("err=%v, want persist error", err)
	}
}

func TestErrorFields(t *testing.T) {
	_, err := fetch.FetchTextWithOptions(context.Background(), fetch.KindSubscription, "ftp://h/x?token=secret", fetch.Options{})
	f := ErrorFields(err)
	if f["stage"] != "fetch_sub" {
		t.Fatalf("stage=%v, want=fetch_sub", f["stage"])
	}
	if u, _ := f["url"].(string); strings.Contains(u, "secret") {
		t.Fatalf("url not redacted: %q", u)
	}

	f = ErrorFields(errors.New("plain"))
	if f["error"] != "plain" || f["code"] != nil {
		t.Fatalf("fields=%v", f)
	}
}

func TestRedactURL(t *testing.T) {
	if got := RedactURL("https://h/sub?token=x"); got != "https://h/sub?…" {
		t.Fatalf("got=%q", got)
	}
	if got := RedactURL("https://h/sub"); got != "https://h/sub" {
		t.Fatalf("got=%q", got)
	}
}
