package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/odvcencio/grit/pkg/object"
)

// maxSymbolicRefDepth bounds symbolic ref chains during resolution.
const maxSymbolicRefDepth = 5

const symrefPrefix = "ref: "

// Head reads .git/HEAD. If the content is symbolic it returns the target
// ref name (e.g., "refs/heads/master"). Otherwise it returns the raw
// detached hash string.
func (r *Repo) Head() (string, error) {
	data, err := os.ReadFile(filepath.Join(r.GitDir, "HEAD"))
	if err != nil {
		return "", fmt.Errorf("head: %w", err)
	}
	content := strings.TrimSpace(string(data))
	if target, ok := strings.CutPrefix(content, symrefPrefix); ok {
		return target, nil
	}
	return content, nil
}

// CurrentBranch returns the branch name HEAD is attached to, or "" when
// HEAD is detached.
func (r *Repo) CurrentBranch() (string, error) {
	head, err := r.Head()
	if err != nil {
		return "", fmt.Errorf("current branch: %w", err)
	}
	if name, ok := strings.CutPrefix(head, "refs/heads/"); ok {
		return name, nil
	}
	return "", nil
}

// ResolveRef resolves a ref name to an object hash.
//
// Resolution order:
//  1. "HEAD" reads .git/HEAD.
//  2. Names starting with "refs/" read .git/<name>.
//  3. Anything else tries "refs/heads/<name>".
//
// Symbolic refs are followed up to maxSymbolicRefDepth. A symbolic ref
// whose terminal target file does not exist resolves to ErrUnborn; that is
// the normal state of HEAD between init and the first commit.
func (r *Repo) ResolveRef(name string) (object.Hash, error) {
	return r.resolveRefDepth(name, 0)
}

func (r *Repo) resolveRefDepth(name string, depth int) (object.Hash, error) {
	if depth > maxSymbolicRefDepth {
		return "", fmt.Errorf("resolve ref %q: %w: symbolic chain deeper than %d", name, ErrInvalidRef, maxSymbolicRefDepth)
	}

	data, err := os.ReadFile(r.refPath(name))
	if err != nil {
		if os.IsNotExist(err) && depth > 0 {
			return "", fmt.Errorf("resolve ref %q: %w", name, ErrUnborn)
		}
		return "", fmt.Errorf("resolve ref %q: %w", name, err)
	}

	content := strings.TrimSpace(string(data))
	if target, ok := strings.CutPrefix(content, symrefPrefix); ok {
		return r.resolveRefDepth(target, depth+1)
	}

	h := object.Hash(content)
	if !h.IsValid() {
		return "", fmt.Errorf("resolve ref %q: %w: not a hash: %q", name, ErrInvalidRef, content)
	}
	return h, nil
}

func (r *Repo) refPath(name string) string {
	if name == "HEAD" {
		return filepath.Join(r.GitDir, "HEAD")
	}
	if strings.HasPrefix(name, "refs/") {
		return filepath.Join(r.GitDir, filepath.FromSlash(name))
	}
	return filepath.Join(r.GitDir, "refs", "heads", name)
}

// UpdateRef writes a hash to the named ref without an old-value expectation.
func (r *Repo) UpdateRef(name string, h object.Hash) error {
	return r.UpdateRefCAS(name, h)
}

// UpdateRefCAS writes a hash to the named ref file using lockfile + rename
// atomic semantics. When expectedOld is provided the update only succeeds
// if the current ref value matches it ("" expects the ref to not exist);
// a mismatch fails with ErrRefStale and leaves the ref untouched.
func (r *Repo) UpdateRefCAS(name string, h object.Hash, expectedOld ...object.Hash) error {
	if len(expectedOld) > 1 {
		return fmt.Errorf("update ref %q: expected at most one old hash", name)
	}

	refPath := r.refPath(name)
	if err := os.MkdirAll(filepath.Dir(refPath), 0o755); err != nil {
		return fmt.Errorf("update ref %q: mkdir: %w", name, err)
	}

	lockPath := refPath + ".lock"
	lockFile, err := acquireLockFile(lockPath)
	if err != nil {
		return fmt.Errorf("update ref %q: lock: %w", name, err)
	}
	cleanupLock := true
	defer func() {
		if lockFile != nil {
			_ = lockFile.Close()
		}
		if cleanupLock {
			_ = os.Remove(lockPath)
		}
	}()

	oldHash, err := readRefHash(refPath)
	if err != nil {
		return fmt.Errorf("update ref %q: read old hash: %w", name, err)
	}
	if len(expectedOld) == 1 && oldHash != expectedOld[0] {
		return fmt.Errorf(
			"update ref %q: %w (expected %s, found %s)",
			name, ErrRefStale, expectedOld[0], oldHash,
		)
	}

	if _, err := lockFile.WriteString(string(h) + "\n"); err != nil {
		return fmt.Errorf("update ref %q: write: %w", name, err)
	}
	if err := lockFile.Sync(); err != nil {
		return fmt.Errorf("update ref %q: sync: %w", name, err)
	}
	if err := lockFile.Close(); err != nil {
		lockFile = nil
		return fmt.Errorf("update ref %q: close: %w", name, err)
	}
	lockFile = nil

	if err := os.Rename(lockPath, refPath); err != nil {
		return fmt.Errorf("update ref %q: rename: %w", name, err)
	}
	cleanupLock = false
	return nil
}

// DeleteRef removes the named ref file.
func (r *Repo) DeleteRef(name string) error {
	if err := os.Remove(r.refPath(name)); err != nil {
		return fmt.Errorf("delete ref %q: %w", name, err)
	}
	return nil
}

// SetHeadSymbolic attaches HEAD to the named ref (e.g., "refs/heads/dev").
func (r *Repo) SetHeadSymbolic(refName string) error {
	if !strings.HasPrefix(refName, "refs/") {
		return fmt.Errorf("set HEAD: %w: %q", ErrInvalidRef, refName)
	}
	return r.writeHead(symrefPrefix + refName + "\n")
}

// SetHeadDetached points HEAD directly at a commit hash.
func (r *Repo) SetHeadDetached(h object.Hash) error {
	if !h.IsValid() {
		return fmt.Errorf("set HEAD: %w: %q", ErrInvalidRef, h)
	}
	return r.writeHead(string(h) + "\n")
}

func (r *Repo) writeHead(content string) error {
	return writeRefFileAtomic(filepath.Join(r.GitDir, "HEAD"), content, "HEAD")
}

// SetSymbolicRef writes a symbolic ref file pointing at another ref, the
// form HEAD uses. Fetch maintains refs/remotes/<name>/HEAD with it.
func (r *Repo) SetSymbolicRef(name, target string) error {
	if !strings.HasPrefix(target, "refs/") {
		return fmt.Errorf("symbolic ref %q: %w: %q", name, ErrInvalidRef, target)
	}
	refPath := r.refPath(name)
	if err := os.MkdirAll(filepath.Dir(refPath), 0o755); err != nil {
		return fmt.Errorf("symbolic ref %q: mkdir: %w", name, err)
	}
	return writeRefFileAtomic(refPath, symrefPrefix+target+"\n", name)
}

func writeRefFileAtomic(path, content, what string) error {
	lockPath := path + ".lock"
	lockFile, err := acquireLockFile(lockPath)
	if err != nil {
		return fmt.Errorf("write %s: lock: %w", what, err)
	}
	cleanupLock := true
	defer func() {
		if lockFile != nil {
			_ = lockFile.Close()
		}
		if cleanupLock {
			_ = os.Remove(lockPath)
		}
	}()

	if _, err := lockFile.WriteString(content); err != nil {
		return fmt.Errorf("write %s: %w", what, err)
	}
	if err := lockFile.Sync(); err != nil {
		return fmt.Errorf("write %s: sync: %w", what, err)
	}
	if err := lockFile.Close(); err != nil {
		lockFile = nil
		return fmt.Errorf("write %s: close: %w", what, err)
	}
	lockFile = nil

	if err := os.Rename(lockPath, path); err != nil {
		return fmt.Errorf("write %s: rename: %w", what, err)
	}
	cleanupLock = false
	return nil
}

// ListRefs lists direct references under .git/refs whose full name starts
// with prefix ("" lists everything). Keys are full ref names such as
// "refs/heads/master". Symbolic entries are resolved; unborn ones are
// skipped.
func (r *Repo) ListRefs(prefix string) (map[string]object.Hash, error) {
	root := filepath.Join(r.GitDir, "refs")

	refs := make(map[string]object.Hash)
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || strings.HasSuffix(d.Name(), ".lock") {
			return nil
		}

		rel, err := filepath.Rel(r.GitDir, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if prefix != "" && !strings.HasPrefix(name, prefix) {
			return nil
		}

		h, err := r.ResolveRef(name)
		if err != nil {
			if isUnbornOrMissing(err) {
				return nil
			}
			return err
		}
		refs[name] = h
		return nil
	})
	if os.IsNotExist(err) {
		return refs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list refs: %w", err)
	}
	return refs, nil
}

func isUnbornOrMissing(err error) bool {
	return errors.Is(err, os.ErrNotExist) || errors.Is(err, ErrUnborn)
}

func readRefHash(refPath string) (object.Hash, error) {
	data, err := os.ReadFile(refPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return object.Hash(strings.TrimSpace(string(data))), nil
}
