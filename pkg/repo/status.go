package repo

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/odvcencio/grit/pkg/object"
)

// Status is a snapshot of the repository state: staged changes relative
// to HEAD, working-tree changes relative to the index, untracked files,
// and unresolved conflicts.
type Status struct {
	Branch   string // empty when detached
	Detached bool
	Head     object.Hash // empty when unborn

	StagedAdded    []string
	StagedModified []string
	StagedDeleted  []string

	WorkModified []string
	WorkDeleted  []string
	Untracked    []string

	Conflicted []string
}

// Clean reports whether nothing is staged, modified, untracked, or
// conflicted.
func (s *Status) Clean() bool {
	return len(s.StagedAdded) == 0 && len(s.StagedModified) == 0 &&
		len(s.StagedDeleted) == 0 && len(s.WorkModified) == 0 &&
		len(s.WorkDeleted) == 0 && len(s.Untracked) == 0 &&
		len(s.Conflicted) == 0
}

// Status computes the full repository status.
func (r *Repo) Status() (*Status, error) {
	st := &Status{}

	head, err := r.Head()
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	if branch, ok := strings.CutPrefix(head, "refs/heads/"); ok {
		st.Branch = branch
	} else {
		st.Detached = true
	}
	st.Head, err = r.headCommit()
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}

	ix, err := r.ReadIndex()
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	st.Conflicted = ix.ConflictPaths()

	headFiles, err := r.CommitTree(st.Head)
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}

	conflicted := make(map[string]struct{}, len(st.Conflicted))
	for _, p := range st.Conflicted {
		conflicted[p] = struct{}{}
	}

	// Index vs HEAD.
	staged := make(map[string]*IndexEntry)
	for _, e := range ix.Entries {
		if e.Stage != StageNormal {
			continue
		}
		staged[e.Path] = e
		hf, tracked := headFiles[e.Path]
		switch {
		case !tracked:
			st.StagedAdded = append(st.StagedAdded, e.Path)
		case hf.BlobHash != e.BlobHash || hf.Mode != normalizeFileMode(e.Mode):
			st.StagedModified = append(st.StagedModified, e.Path)
		}
	}
	for p := range headFiles {
		if _, ok := staged[p]; ok {
			continue
		}
		if _, ok := conflicted[p]; ok {
			continue
		}
		st.StagedDeleted = append(st.StagedDeleted, p)
	}

	// Working tree vs index.
	for p, e := range staged {
		changed, missing, err := r.worktreeChanged(e)
		if err != nil {
			return nil, fmt.Errorf("status: %w", err)
		}
		switch {
		case missing:
			st.WorkDeleted = append(st.WorkDeleted, p)
		case changed:
			st.WorkModified = append(st.WorkModified, p)
		}
	}

	// Untracked files.
	inIndex := make(map[string]struct{}, len(ix.Entries))
	for _, e := range ix.Entries {
		inIndex[e.Path] = struct{}{}
	}
	ic := NewIgnoreChecker(r.RootDir)
	err = filepath.WalkDir(r.RootDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(r.RootDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}
		if ic.Match(rel, d.IsDir()) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := inIndex[rel]; !ok {
			st.Untracked = append(st.Untracked, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}

	sort.Strings(st.StagedAdded)
	sort.Strings(st.StagedModified)
	sort.Strings(st.StagedDeleted)
	sort.Strings(st.WorkModified)
	sort.Strings(st.WorkDeleted)
	sort.Strings(st.Untracked)
	return st, nil
}

// worktreeChanged compares a working-tree file against its index entry.
// Matching size and mtime short-circuit as unchanged; a zero recorded
// mtime or any metadata drift forces a content hash.
func (r *Repo) worktreeChanged(e *IndexEntry) (changed, missing bool, err error) {
	absPath := filepath.Join(r.RootDir, filepath.FromSlash(e.Path))
	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, true, nil
		}
		return false, false, fmt.Errorf("stat %q: %w", e.Path, err)
	}
	if info.IsDir() {
		return false, true, nil
	}

	if modeFromFileInfo(info) != normalizeFileMode(e.Mode) {
		return true, false, nil
	}
	if info.Size() != e.Size {
		return true, false, nil
	}
	if e.ModTime != 0 && info.ModTime().UnixNano() == e.ModTime {
		return false, false, nil
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		return false, false, fmt.Errorf("read %q: %w", e.Path, err)
	}
	h := object.HashObject(object.TypeBlob, content)
	return h != e.BlobHash, false, nil
}
