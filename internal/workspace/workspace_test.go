package workspace

import (
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestProvision_CopiesTreeWithoutExcludedPaths(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "app.py"), "print(1)\n")
	writeFile(t, filepath.Join(src, "tests", "test_app.py"), "def test_x():\n    pass\n")
	writeFile(t, filepath.Join(src, ".git", "config"), "[core]\n")
	writeFile(t, filepath.Join(src, "pkg", "__pycache__", "m.cpython-311.pyc"), "x")

	ws, err := Provision(src, Options{Root: t.TempDir(), ExcludeGlobs: DefaultExcludeGlobs})
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if !filepath.IsAbs(ws) {
		t.Fatalf("workspace path should be absolute: %s", ws)
	}
	b, err := os.ReadFile(filepath.Join(ws, "app.py"))
	if err != nil || string(b) != "print(1)\n" {
		t.Fatalf("app.py: %q %v", b, err)
	}
	if _, err := os.Stat(filepath.Join(ws, "tests", "test_app.py")); err != nil {
		t.Fatalf("tests not copied: %v", err)
	}
	if _, err := os.Stat(filepath.Join(ws, ".git")); !os.IsNotExist(err) {
		t.Fatalf(".git should be excluded, stat err=%v", err)
	}
	if _, err := os.Stat(filepath.Join(ws, "pkg", "__pycache__")); !os.IsNotExist(err) {
		t.Fatalf("__pycache__ should be excluded, stat err=%v", err)
	}

	// The copy is private: editing it leaves the source alone.
	writeFile(t, filepath.Join(ws, "app.py"), "print(2)\n")
	b, _ = os.ReadFile(filepath.Join(src, "app.py"))
	if string(b) != "print(1)\n" {
		t.Fatalf("source mutated: %q", b)
	}

	if err := Cleanup(ws); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if _, err := os.Stat(ws); !os.IsNotExist(err) {
		t.Fatalf("workspace still exists after cleanup")
	}
	if err := Cleanup(ws); err != nil {
		t.Fatalf("second Cleanup: %v", err)
	}
}

func TestProvision_Errors(t *testing.T) {
	if _, err := Provision(filepath.Join(t.TempDir(), "missing"), Options{Root: t.TempDir()}); err == nil {
		t.Fatalf("expected error for missing target")
	}
	src := t.TempDir()
	if _, err := Provision(src, Options{Root: t.TempDir(), ExcludeGlobs: []string{"[unclosed"}}); err == nil {
		t.Fatalf("expected error for invalid glob")
	}
}

func TestLocalModules(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "app.py"), "")
	writeFile(t, filepath.Join(dir, "helpers.py"), "")
	writeFile(t, filepath.Join(dir, "README.md"), "")
	writeFile(t, filepath.Join(dir, "pkg", "__init__.py"), "")
	writeFile(t, filepath.Join(dir, ".hidden", "x.py"), "")
	got, err := LocalModules(dir)
	if err != nil {
		t.Fatalf("LocalModules: %v", err)
	}
	sort.Strings(got)
	if !reflect.DeepEqual(got, []string{"app", "helpers", "pkg"}) {
		t.Fatalf("got %v", got)
	}
}

func TestSourceRevision(t *testing.T) {
	dir := t.TempDir()
	if rev, err := SourceRevision(dir); err != nil || rev != nil {
		t.Fatalf("non-repo: rev=%v err=%v", rev, err)
	}

	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit: %v", err)
	}
	writeFile(t, filepath.Join(dir, "app.py"), "print(1)\n")
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree: %v", err)
	}
	if _, err := wt.Add("app.py"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	hash, err := wt.Commit("init", &git.CommitOptions{
		Author: &object.Signature{Name: "t", Email: "t@example.com", When: time.Unix(0, 0)},
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	rev, err := SourceRevision(dir)
	if err != nil {
		t.Fatalf("SourceRevision: %v", err)
	}
	if rev == nil || rev.Commit != hash.String() || rev.Branch != "master" {
		t.Fatalf("rev=%+v want commit %s on master", rev, hash)
	}
}

func TestDigest(t *testing.T) {
	p := filepath.Join(t.TempDir(), "f")
	writeFile(t, p, "abc")
	got, err := DigestFile(p)
	if err != nil {
		t.Fatalf("DigestFile: %v", err)
	}
	if got != Digest([]byte("abc")) || len(got) != 64 {
		t.Fatalf("digest=%s", got)
	}
}
