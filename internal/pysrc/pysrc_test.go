package pysrc

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestScan_JoinsBracketsAndContinuations(t *testing.T) {
	src := "x = foo(1,\n        2)\ny = 1 + \\\n    2\n\n# comment\nz = 'a#b'  # trailing\n"
	lines, err := Scan(src)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(lines) != 3 {
		t.Fatalf("lines=%d want 3: %#v", len(lines), lines)
	}
	if lines[0].Number != 1 || !strings.HasPrefix(lines[0].Text, "x = foo(1,") || !strings.HasSuffix(lines[0].Text, "2)") {
		t.Fatalf("line 0: %#v", lines[0])
	}
	if lines[1].Number != 3 {
		t.Fatalf("line 1 number: %d", lines[1].Number)
	}
	if lines[2].Number != 7 || lines[2].Text != "z = 'a#b'" {
		t.Fatalf("line 2: %#v", lines[2])
	}
}

func TestScan_TripleQuotedStringSpansLines(t *testing.T) {
	src := "def f():\n    \"\"\"doc (\n    still doc\n    \"\"\"\n    return 1\n"
	lines, err := Scan(src)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(lines) != 3 {
		t.Fatalf("lines=%d want 3: %#v", len(lines), lines)
	}
	if lines[2].Number != 5 || lines[2].Indent != 4 {
		t.Fatalf("return line: %#v", lines[2])
	}
}

func TestScan_Errors(t *testing.T) {
	cases := []struct {
		name string
		src  string
		line int
	}{
		{"unterminated string", "x = 'abc\ny = 2\n", 1},
		{"unterminated triple", "x = 1\ns = \"\"\"abc\n", 2},
		{"never closed", "x = 1\ny = foo(1,\n", 2},
		{"unmatched closer", "x = 1)\n", 1},
		{"mismatched closer", "x = [1, 2)\n", 1},
		{"backtick", "x = `ls`\n", 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Scan(tc.src)
			var se *SyntaxError
			if !errors.As(err, &se) {
				t.Fatalf("err=%v want *SyntaxError", err)
			}
			if se.Line != tc.line {
				t.Fatalf("line=%d want %d (%v)", se.Line, tc.line, se)
			}
		})
	}
}

func TestCheck_AcceptsWellFormedModule(t *testing.T) {
	src := `import os

class Greeter:
    def __init__(self, name):
        self.name = name

    def greet(self):
        if not self.name:
            raise ValueError("empty")
        else:
            return f"hi {self.name}"


async def main():
    try:
        print(Greeter("x").greet())
    except ValueError:
        pass


if __name__ == "__main__":
    data = {
        "a": 1,
    }
`
	if err := Check(src); err != nil {
		t.Fatalf("Check: %v", err)
	}
}

func TestCheck_RejectsStructuralProblems(t *testing.T) {
	cases := map[string]string{
		"truncated block":  "def f():\n    x = 1\n\ndef g():\n",
		"missing body":     "if x:\ny = 1\n",
		"unexpected":       "x = 1\n    y = 2\n",
		"bad dedent":       "if x:\n        y = 1\n    z = 2\n",
		"prose header":     "Here is the fixed code:\nx = 1\n",
		"cut mid-call":     "def f():\n    return g(1,\n",
		"leading indented": "  x = 1\n",
	}
	for name, src := range cases {
		if err := Check(src); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestCheck_RejectsGrammarErrors(t *testing.T) {
	cases := []struct {
		name string
		src  string
	}{
		{"def without colon", "def ratio(a, b)\n    return a / b\n"},
		{"doubled operator", "def ratio(a, b):\n    return a / / b\n"},
		{"conditional without else value", "def ratio(a, b):\n    return a / b if b else\n"},
		{"if without colon", "def ratio(a, b):\n    if b == 0 return 0\n    return a / b\n"},
		{"python 2 print", "x = 1\nprint \"x is\", x\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Check(tc.src)
			var se *SyntaxError
			if !errors.As(err, &se) {
				t.Fatalf("err=%v want *SyntaxError", err)
			}
			if se.Line < 1 {
				t.Fatalf("line=%d (%v)", se.Line, se)
			}
		})
	}
}

func TestTopLevelDecls(t *testing.T) {
	src := "import x\n\ndef a():\n    def inner():\n        pass\n\nasync  def b(): pass\nclass C(Base):\n    pass\n@dec\ndef d(): return 1\n"
	got := TopLevelDecls(src)
	want := []Decl{
		{DeclFunction, "a"},
		{DeclAsyncFunction, "b"},
		{DeclClass, "C"},
		{DeclFunction, "d"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("decls=%#v want %#v", got, want)
	}
	if TopLevelDecls("def f(:\n") != nil {
		t.Fatalf("unscannable source should yield nil")
	}
}

func TestImportRoots(t *testing.T) {
	src := "import os.path, json as j\nfrom collections import (\n    OrderedDict,\n)\nfrom . import sibling\nfrom .pkg import mod\ntry:\n    import requests\nexcept ImportError:\n    requests = None\nimport a; import b\n"
	got := ImportRoots(src)
	want := []string{"a", "b", "collections", "json", "os", "requests"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("roots=%v want %v", got, want)
	}
}

func TestImportRoots_FutureAndDottedAlias(t *testing.T) {
	src := "from __future__ import annotations\nimport xml.etree.ElementTree as ET\nfrom pkg.sub import thing as other\n"
	got := ImportRoots(src)
	want := []string{"__future__", "pkg", "xml"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("roots=%v want %v", got, want)
	}
}

func TestIsStdlib(t *testing.T) {
	for _, m := range []string{"os", "json", "asyncio", "tomllib", "__future__"} {
		if !IsStdlib(m) {
			t.Fatalf("%s should be stdlib", m)
		}
	}
	for _, m := range []string{"requests", "numpy", "flask"} {
		if IsStdlib(m) {
			t.Fatalf("%s should not be stdlib", m)
		}
	}
}
