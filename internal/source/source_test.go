package source

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestReadList(t *testing.T) {
	in := strings.Join([]string{
		"\uFEFF# subscriptions",
		"https://a.example.com/sub?token=1",
		"",
		"   ",
		"  https://b.example.com/sub  ",
		"# https://disabled.example.com",
		"- \"https://c.example.com/clash.yaml\"",
		"-  ",
	}, "\r\n")
	got, err := ReadList(strings.NewReader(in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{
		"https://a.example.com/sub?token=1",
		"https://b.example.com/sub",
		"https://c.example.com/clash.yaml",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("list=%q, want=%q", got, want)
	}
}

func TestReadList_Empty(t *testing.T) {
	got, err := ReadList(strings.NewReader("\n# only comments\n"))
	if err != nil || len(got) != 0 {
		t.Fatalf("list=%q err=%v, want empty", got, err)
	}
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "url.yaml")
	if err := os.WriteFile(path, []byte("https://a.example.com\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadFile(path)
	if err != nil || !reflect.DeepEqual(got, []string{"https://a.example.com"}) {
		t.Fatalf("list=%q err=%v", got, err)
	}
	if _, err := ReadFile(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
