package workspace

import (
	"encoding/hex"
	"errors"
	"io"
	"os"

	"github.com/go-git/go-git/v5"
	"github.com/zeebo/blake3"
)

// Revision is the checked-out commit of a git working tree.
type Revision struct {
	Commit string
	Branch string
}

// SourceRevision reports the HEAD of the git repository at or above dir. A
// directory that is not inside a repository yields (nil, nil).
func SourceRevision(dir string) (*Revision, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, nil
		}
		return nil, err
	}
	head, err := repo.Head()
	if err != nil {
		// Unborn HEAD: repository without commits.
		return nil, nil
	}
	rev := &Revision{Commit: head.Hash().String()}
	if head.Name().IsBranch() {
		rev.Branch = head.Name().Short()
	}
	return rev, nil
}

// DigestFile returns the hex BLAKE3-256 digest of the file at path.
func DigestFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Digest returns the hex BLAKE3-256 digest of b.
func Digest(b []byte) string {
	sum := blake3.Sum256(b)
	return hex.EncodeToString(sum[:])
}
