package changeset

import (
	"reflect"
	"strings"
	"testing"
)

func TestUnifiedDiff_SingleLineChange(t *testing.T) {
	orig := "x = 1\ny = 0\nprint(x / y)\n"
	patched := "x = 1\ny = 1\nprint(x / y)\n"
	diff, err := UnifiedDiff(orig, patched, "app.py")
	if err != nil {
		t.Fatalf("UnifiedDiff: %v", err)
	}
	want := strings.Join([]string{
		"--- a/app.py",
		"+++ b/app.py",
		"@@ -1,3 +1,3 @@",
		" x = 1",
		"-y = 0",
		"+y = 1",
		" print(x / y)",
	}, "\n")
	if diff != want {
		t.Fatalf("diff mismatch:\n%s\nwant:\n%s", diff, want)
	}
	if got := Summarize(diff); got != (Summary{LinesAdded: 1, LinesRemoved: 1}) {
		t.Fatalf("summary=%+v", got)
	}
}

func TestUnifiedDiff_IdenticalIsEmpty(t *testing.T) {
	diff, err := UnifiedDiff("a\nb\n", "a\nb\n", "app.py")
	if err != nil {
		t.Fatalf("UnifiedDiff: %v", err)
	}
	if diff != "" {
		t.Fatalf("diff=%q want empty", diff)
	}
	if got := Summarize(diff); got != (Summary{}) {
		t.Fatalf("summary=%+v", got)
	}
}

func TestSummarize_IgnoresHeadersButCountsDashContent(t *testing.T) {
	diff := "--- a/app.py\n+++ b/app.py\n@@ -1,2 +1,1 @@\n--- old separator\n keep\n"
	if got := Summarize(diff); got != (Summary{LinesRemoved: 1}) {
		t.Fatalf("summary=%+v", got)
	}
}

func TestRegions(t *testing.T) {
	orig := "a\nb\nc\nd\n"
	patched := "a\nB\nc\nd\ne\n"
	got := Regions(orig, patched)
	want := []Region{
		{LineNumber: 2, Before: "b", After: "B", Kind: KindReplace},
		{LineNumber: 5, Before: "", After: "e", Kind: KindInsert},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("regions=%#v want %#v", got, want)
	}

	got = Regions("a\nb\nc\n", "a\nc\n")
	want = []Region{{LineNumber: 2, Before: "b", After: "", Kind: KindDelete}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("regions=%#v want %#v", got, want)
	}
}

func TestRegions_IdenticalIsEmptyNonNil(t *testing.T) {
	got := Regions("same\n", "same\n")
	if got == nil || len(got) != 0 {
		t.Fatalf("regions=%#v want empty non-nil", got)
	}
}

func TestSplitLines(t *testing.T) {
	if got := SplitLines(""); len(got) != 0 {
		t.Fatalf("empty: %#v", got)
	}
	if got := SplitLines("a\r\nb"); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("crlf: %#v", got)
	}
	if got := SplitLines("a\n\n"); !reflect.DeepEqual(got, []string{"a", ""}) {
		t.Fatalf("blank tail: %#v", got)
	}
}
