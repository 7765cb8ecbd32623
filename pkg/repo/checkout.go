package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/odvcencio/grit/pkg/object"
)

// CheckoutResult describes where a checkout landed.
type CheckoutResult struct {
	Branch   string // empty when detached
	Detached bool
	Head     object.Hash
}

// Checkout switches the working tree and index to target: a branch name
// attaches HEAD, anything else that resolves to a commit detaches it.
// It refuses to run over local changes.
func (r *Repo) Checkout(target string) (*CheckoutResult, error) {
	branchRef := "refs/heads/" + target
	isBranch := r.refExists(branchRef)

	var targetCommit object.Hash
	var err error
	if isBranch {
		targetCommit, err = r.ResolveRef(branchRef)
	} else {
		targetCommit, err = r.RevParse(target)
	}
	if err != nil {
		return nil, fmt.Errorf("checkout: %w", err)
	}
	if _, err := r.Store.ReadCommit(targetCommit); err != nil {
		return nil, fmt.Errorf("checkout: %q is not a commit: %w", target, err)
	}

	if err := r.switchToCommit(targetCommit); err != nil {
		return nil, err
	}

	if isBranch {
		if err := r.SetHeadSymbolic(branchRef); err != nil {
			return nil, fmt.Errorf("checkout: %w", err)
		}
		return &CheckoutResult{Branch: target, Head: targetCommit}, nil
	}
	if err := r.SetHeadDetached(targetCommit); err != nil {
		return nil, fmt.Errorf("checkout: %w", err)
	}
	return &CheckoutResult{Detached: true, Head: targetCommit}, nil
}

// CheckoutNewBranch creates a branch at the current HEAD commit and
// attaches HEAD to it. On an unborn HEAD this only re-points the
// symbolic ref.
func (r *Repo) CheckoutNewBranch(name string) (*CheckoutResult, error) {
	head, err := r.headCommit()
	if err != nil {
		return nil, fmt.Errorf("checkout: %w", err)
	}
	if head != "" {
		if err := r.CreateBranch(name, ""); err != nil {
			return nil, fmt.Errorf("checkout: %w", err)
		}
	} else if err := validateBranchName(name); err != nil {
		return nil, fmt.Errorf("checkout: %w", err)
	}
	if err := r.SetHeadSymbolic("refs/heads/" + name); err != nil {
		return nil, fmt.Errorf("checkout: %w", err)
	}
	return &CheckoutResult{Branch: name, Head: head}, nil
}

// CheckoutNewBranchAt creates refs/heads/<name> at commit and switches to
// it. The working tree is reconciled from the current HEAD state before
// any ref moves, so it works from an unborn HEAD (fresh clone, first pull
// of a fetched branch).
func (r *Repo) CheckoutNewBranchAt(name string, commit object.Hash) (*CheckoutResult, error) {
	if err := validateBranchName(name); err != nil {
		return nil, fmt.Errorf("checkout: %w", err)
	}
	if _, err := r.Store.ReadCommit(commit); err != nil {
		return nil, fmt.Errorf("checkout: %q is not a commit: %w", commit, err)
	}

	if err := r.switchToCommit(commit); err != nil {
		return nil, err
	}
	branchRef := "refs/heads/" + name
	if err := r.UpdateRefCAS(branchRef, commit, ""); err != nil {
		return nil, fmt.Errorf("checkout: %w", err)
	}
	if err := r.SetHeadSymbolic(branchRef); err != nil {
		return nil, fmt.Errorf("checkout: %w", err)
	}
	return &CheckoutResult{Branch: name, Head: commit}, nil
}

// switchToCommit reconciles the working tree and index from the current
// HEAD commit to targetCommit, verifying cleanliness first.
func (r *Repo) switchToCommit(targetCommit object.Hash) error {
	currentCommit, err := r.headCommit()
	if err != nil {
		return fmt.Errorf("checkout: %w", err)
	}
	currentFiles, err := r.CommitTree(currentCommit)
	if err != nil {
		return fmt.Errorf("checkout: %w", err)
	}
	targetFiles, err := r.CommitTree(targetCommit)
	if err != nil {
		return fmt.Errorf("checkout: %w", err)
	}

	if err := r.ensureCleanFor(targetFiles); err != nil {
		return err
	}

	for path, tf := range targetFiles {
		cf, tracked := currentFiles[path]
		if tracked && cf.BlobHash == tf.BlobHash && cf.Mode == tf.Mode {
			continue
		}
		if err := r.materializeFile(path, tf); err != nil {
			return fmt.Errorf("checkout: %w", err)
		}
	}
	for path := range currentFiles {
		if _, keep := targetFiles[path]; keep {
			continue
		}
		abs := filepath.Join(r.RootDir, filepath.FromSlash(path))
		if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("checkout: remove %q: %w", path, err)
		}
		r.removeEmptyParents(filepath.Dir(abs))
	}

	if err := r.resetIndexToFiles(targetFiles); err != nil {
		return fmt.Errorf("checkout: %w", err)
	}
	return nil
}

// ensureCleanFor refuses a tree switch when local changes exist, or when
// untracked files would be overwritten by the incoming tree.
func (r *Repo) ensureCleanFor(targetFiles map[string]TreeFile) error {
	st, err := r.Status()
	if err != nil {
		return fmt.Errorf("checkout: %w", err)
	}

	dirtySet := make(map[string]struct{})
	for _, group := range [][]string{
		st.StagedAdded, st.StagedModified, st.StagedDeleted,
		st.WorkModified, st.WorkDeleted, st.Conflicted,
	} {
		for _, p := range group {
			dirtySet[p] = struct{}{}
		}
	}
	for _, p := range st.Untracked {
		if _, clash := targetFiles[p]; clash {
			dirtySet[p] = struct{}{}
		}
	}
	if len(dirtySet) == 0 {
		return nil
	}

	paths := make([]string, 0, len(dirtySet))
	for p := range dirtySet {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return &DirtyWorkingTreeError{Paths: paths}
}

// materializeFile writes a blob to the working tree at path, creating
// parent directories as needed.
func (r *Repo) materializeFile(path string, tf TreeFile) error {
	blob, err := r.Store.ReadBlob(tf.BlobHash)
	if err != nil {
		return fmt.Errorf("blob for %q: %w", path, err)
	}
	abs := filepath.Join(r.RootDir, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("mkdir for %q: %w", path, err)
	}
	if err := os.WriteFile(abs, blob.Data, filePermFromMode(tf.Mode)); err != nil {
		return fmt.Errorf("write %q: %w", path, err)
	}
	// WriteFile does not chmod existing files.
	if err := os.Chmod(abs, filePermFromMode(tf.Mode)); err != nil {
		return fmt.Errorf("chmod %q: %w", path, err)
	}
	return nil
}

// resetIndexToFiles rebuilds the index to exactly mirror the given tree,
// recording fresh stat data for the short-circuit comparison.
func (r *Repo) resetIndexToFiles(files map[string]TreeFile) error {
	ix := &Index{}
	for path, tf := range files {
		e := &IndexEntry{
			Path:     path,
			Mode:     tf.Mode,
			BlobHash: tf.BlobHash,
			Stage:    StageNormal,
		}
		if info, err := os.Stat(filepath.Join(r.RootDir, filepath.FromSlash(path))); err == nil {
			e.Size = info.Size()
			e.ModTime = info.ModTime().UnixNano()
		}
		ix.Entries = append(ix.Entries, e)
	}
	return r.WriteIndex(ix)
}

// removeEmptyParents prunes now-empty directories upward, stopping at the
// repository root.
func (r *Repo) removeEmptyParents(dir string) {
	for {
		if dir == r.RootDir || len(dir) <= len(r.RootDir) {
			return
		}
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if os.Remove(dir) != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// refExists reports whether a ref file is present (even if unborn targets
// would fail to resolve).
func (r *Repo) refExists(name string) bool {
	_, err := os.Stat(filepath.Join(r.GitDir, filepath.FromSlash(name)))
	return err == nil
}
