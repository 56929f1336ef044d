// Package workspace provisions the private copy of a target codebase that a
// remediation run is allowed to mutate, and destroys it afterwards.
package workspace

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

var DefaultExcludeGlobs = []string{
	"**/.git/**",
	"**/__pycache__/**",
	"**/.venv/**",
	"**/node_modules/**",
}

type Options struct {
	// Root is the parent directory for workspaces; empty means os.TempDir().
	Root         string
	ExcludeGlobs []string
}

// Provision copies target into a fresh directory under opts.Root and returns
// its absolute path. Paths matching opts.ExcludeGlobs (slash-separated,
// relative to target) are not copied.
func Provision(target string, opts Options) (string, error) {
	src, err := filepath.Abs(target)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(src)
	if err != nil {
		return "", fmt.Errorf("target: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("target %s is not a directory", src)
	}
	for _, g := range opts.ExcludeGlobs {
		if !doublestar.ValidatePattern(g) {
			return "", fmt.Errorf("invalid exclude glob %q", g)
		}
	}

	root := opts.Root
	if strings.TrimSpace(root) == "" {
		root = os.TempDir()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", err
	}
	dst, err := os.MkdirTemp(root, "opsguard-ws-")
	if err != nil {
		return "", err
	}
	dst, err = filepath.Abs(dst)
	if err != nil {
		return "", err
	}
	if err := copyTree(src, dst, opts.ExcludeGlobs); err != nil {
		_ = os.RemoveAll(dst)
		return "", err
	}
	return dst, nil
}

// Cleanup removes a provisioned workspace. Removing a missing workspace is
// not an error.
func Cleanup(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return nil
	}
	return os.RemoveAll(dir)
}

func excluded(globs []string, rel string) bool {
	for _, g := range globs {
		if ok, _ := doublestar.Match(g, rel); ok {
			return true
		}
	}
	return false
}

// dirExcluded also catches patterns such as "**/.git/**" that name only the
// contents of a directory.
func dirExcluded(globs []string, rel string) bool {
	return excluded(globs, rel) || excluded(globs, path.Join(rel, "x"))
}

func copyTree(src, dst string, globs []string) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		slashRel := filepath.ToSlash(rel)
		target := filepath.Join(dst, rel)

		switch {
		case d.IsDir():
			if dirExcluded(globs, slashRel) {
				return filepath.SkipDir
			}
			return os.MkdirAll(target, 0o755)
		case excluded(globs, slashRel):
			return nil
		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(p)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		case d.Type().IsRegular():
			info, err := d.Info()
			if err != nil {
				return err
			}
			return copyFile(p, target, info.Mode().Perm())
		default:
			return nil
		}
	})
}

func copyFile(src, dst string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// LocalModules lists the importable top-level names that live in dir: Python
// files (by stem) and directories.
func LocalModules(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") || name == "__pycache__" {
			continue
		}
		switch {
		case e.IsDir():
			out = append(out, name)
		case strings.HasSuffix(name, ".py"):
			out = append(out, strings.TrimSuffix(name, ".py"))
		}
	}
	return out, nil
}
