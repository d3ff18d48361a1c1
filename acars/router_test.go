package acars

import (
	"os"
	"path/filepath"
	"testing"
)

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return string(b)
}

func TestRouterLabelBuckets(t *testing.T) {
	dir := t.TempDir()
	r := &Router{Dir: dir, Scheme: ByLabel}

	for _, m := range []struct{ key, text string }{
		{"52", "first 52"},
		{"Q0", "a Q0 message"},
		{"52", "second 52"},
		{"", "no label here"},
	} {
		if err := r.Route(m.key, m.text); err != nil {
			t.Fatalf("Route: %v", err)
		}
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if got := readFile(t, filepath.Join(dir, "acars_label_52.txt")); got != "first 52\n\nsecond 52" {
		t.Errorf("label 52 file = %q", got)
	}
	if got := readFile(t, filepath.Join(dir, "acars_label_Q0.txt")); got != "a Q0 message" {
		t.Errorf("label Q0 file = %q", got)
	}
	if got := readFile(t, filepath.Join(dir, "acars_unclassified.txt")); got != "no label here" {
		t.Errorf("unclassified file = %q", got)
	}
}

func TestRouterCounts(t *testing.T) {
	dir := t.TempDir()
	r := &Router{Dir: dir, Scheme: ByType}
	r.Route("CPDLC", "one")
	r.Route("CPDLC", "two")
	r.Route("OTHER", "three")

	infos := r.Buckets()
	if len(infos) != 2 {
		t.Fatalf("Buckets returned %d entries, want 2", len(infos))
	}
	// Sorted by path: acars_type_CPDLC.txt before acars_type_OTHER.txt.
	if infos[0].Key != "CPDLC" || infos[0].Count != 2 {
		t.Errorf("first bucket = %+v", infos[0])
	}
	if infos[1].Key != "OTHER" || infos[1].Count != 1 {
		t.Errorf("second bucket = %+v", infos[1])
	}
	r.Close()
}

func TestRouterTruncates(t *testing.T) {
	dir := t.TempDir()

	r := &Router{Dir: dir, Scheme: ByLabel}
	r.Route("52", "old run content")
	r.Close()

	r = &Router{Dir: dir, Scheme: ByLabel}
	r.Route("52", "new run")
	r.Close()

	if got := readFile(t, filepath.Join(dir, "acars_label_52.txt")); got != "new run" {
		t.Errorf("file = %q, want the old run replaced", got)
	}
}

func TestRouterAppend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "acars_52.txt")
	if err := os.WriteFile(path, []byte("from last session"), 0644); err != nil {
		t.Fatal(err)
	}

	r := &Router{Dir: dir, Scheme: ByLabel, Append: true, FlatNames: true}
	if err := r.Route("52", "live message"); err != nil {
		t.Fatalf("Route: %v", err)
	}
	r.Close()

	if got := readFile(t, path); got != "from last session\n\nlive message" {
		t.Errorf("file = %q, want separator between sessions", got)
	}
}

func TestRouterFlatNames(t *testing.T) {
	dir := t.TempDir()
	r := &Router{Dir: dir, Scheme: ByLabel, Append: true, FlatNames: true}
	r.Route("52", "labeled")
	r.Route("", "unlabeled")
	r.Close()

	if _, err := os.Stat(filepath.Join(dir, "acars_52.txt")); err != nil {
		t.Error("acars_52.txt missing")
	}
	if _, err := os.Stat(filepath.Join(dir, "acars_unlabeled.txt")); err != nil {
		t.Error("acars_unlabeled.txt missing")
	}
}

func TestRouterKeywordNames(t *testing.T) {
	dir := t.TempDir()
	r := &Router{Dir: dir, Scheme: ByKeyword, Keyword: "descent"}
	r.Route("descent", "REQUEST DESCENT")
	r.Route("", "nothing relevant")
	r.Close()

	if _, err := os.Stat(filepath.Join(dir, "acars_containing_descent.txt")); err != nil {
		t.Error("containing file missing")
	}
	if _, err := os.Stat(filepath.Join(dir, "acars_not_containing_descent.txt")); err != nil {
		t.Error("not_containing file missing")
	}
}

func TestRouterRejectsPathKeys(t *testing.T) {
	r := &Router{Dir: t.TempDir(), Scheme: ByKeyword, Keyword: "../evil"}
	if err := r.Route("../evil", "text"); err == nil {
		t.Error("key with a path separator was accepted")
	}
	r.Close()
}

func TestRouterRejectsPathKeywords(t *testing.T) {
	dir := t.TempDir()
	r := &Router{Dir: dir, Scheme: ByKeyword, Keyword: "/../../escaped"}

	// The non-containing bucket embeds the keyword, not the key, in its
	// file name.
	if err := r.Route("", "message body"); err == nil {
		t.Error("keyword with path separators was accepted for the non-containing bucket")
	}
	r.Close()

	outside := filepath.Join(dir, "acars_not_containing_"+r.Keyword+".txt")
	if _, err := os.Stat(outside); err == nil {
		t.Errorf("bucket file written outside the output directory: %s", outside)
	}
}

func TestSchemeParse(t *testing.T) {
	for s, want := range map[string]Scheme{
		"":        ByLabel,
		"label":   ByLabel,
		"tail":    ByTail,
		"type":    ByType,
		"keyword": ByKeyword,
		"TAIL":    ByTail,
	} {
		got, err := ParseScheme(s)
		if err != nil || got != want {
			t.Errorf("ParseScheme(%q) = %v, %v", s, got, err)
		}
	}
	if _, err := ParseScheme("registration"); err == nil {
		t.Error("ParseScheme accepted an unknown scheme")
	}
}
