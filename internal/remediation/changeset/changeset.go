// Package changeset derives the textual change between an original source
// file and its patched replacement: a unified diff for machines and an
// ordered list of changed regions for people.
package changeset

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// DiffContext is the number of unchanged lines kept around each hunk.
const DiffContext = 3

type Kind string

const (
	KindReplace Kind = "replace"
	KindInsert  Kind = "insert"
	KindDelete  Kind = "delete"
)

// Region is one non-equal span of the line alignment. LineNumber is the
// 1-based position in the original file where the span begins.
type Region struct {
	LineNumber int    `json:"line_number"`
	Before     string `json:"before"`
	After      string `json:"after"`
	Kind       Kind   `json:"kind"`
}

type Summary struct {
	LinesAdded   int `json:"lines_added"`
	LinesRemoved int `json:"lines_removed"`
}

// SplitLines splits text on line boundaries without keeping terminators.
// A trailing newline does not produce an empty final line.
func SplitLines(text string) []string {
	if text == "" {
		return []string{}
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimSuffix(text, "\n")
	return strings.Split(text, "\n")
}

// UnifiedDiff renders the change from original to patched with a/<file> and
// b/<file> headers. Identical inputs produce an empty string.
func UnifiedDiff(original, patched, file string) (string, error) {
	ud := difflib.UnifiedDiff{
		A:        terminate(SplitLines(original)),
		B:        terminate(SplitLines(patched)),
		FromFile: "a/" + file,
		ToFile:   "b/" + file,
		Context:  DiffContext,
		Eol:      "\n",
	}
	out, err := difflib.GetUnifiedDiffString(ud)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(out, "\n"), nil
}

func terminate(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l + "\n"
	}
	return out
}

// Regions aligns the two files line by line and returns every replace,
// insert and delete span in original order. Equal runs are skipped.
func Regions(original, patched string) []Region {
	a := SplitLines(original)
	b := SplitLines(patched)
	regions := []Region{}
	for _, op := range difflib.NewMatcher(a, b).GetOpCodes() {
		var kind Kind
		switch op.Tag {
		case 'r':
			kind = KindReplace
		case 'i':
			kind = KindInsert
		case 'd':
			kind = KindDelete
		default:
			continue
		}
		regions = append(regions, Region{
			LineNumber: op.I1 + 1,
			Before:     strings.Join(a[op.I1:op.I2], "\n"),
			After:      strings.Join(b[op.J1:op.J2], "\n"),
			Kind:       kind,
		})
	}
	return regions
}

// Summarize counts added and removed lines inside the hunks of a unified
// diff. File headers are not counted.
func Summarize(diff string) Summary {
	var s Summary
	inHunk := false
	for _, line := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "@@"):
			inHunk = true
		case !inHunk:
		case strings.HasPrefix(line, "+"):
			s.LinesAdded++
		case strings.HasPrefix(line, "-"):
			s.LinesRemoved++
		}
	}
	return s
}
