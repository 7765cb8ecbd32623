package repo

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/odvcencio/grit/pkg/object"
)

// ErrBranchExists is returned when creating a branch that already exists.
var ErrBranchExists = errors.New("branch already exists")

// validateBranchName rejects names that would break the ref filesystem
// layout or the symbolic-ref syntax.
func validateBranchName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty branch name", ErrInvalidRef)
	}
	if strings.HasPrefix(name, "-") || strings.HasPrefix(name, "/") ||
		strings.HasSuffix(name, "/") || strings.HasSuffix(name, ".lock") {
		return fmt.Errorf("%w: bad branch name %q", ErrInvalidRef, name)
	}
	for _, bad := range []string{"..", "//", " ", "\t", "\n", ":", "~", "^", "?", "*", "[", "\\"} {
		if strings.Contains(name, bad) {
			return fmt.Errorf("%w: bad branch name %q", ErrInvalidRef, name)
		}
	}
	return nil
}

// CreateBranch points a new branch at startPoint (a revision; empty means
// HEAD). The branch must not already exist.
func (r *Repo) CreateBranch(name, startPoint string) error {
	if err := validateBranchName(name); err != nil {
		return err
	}

	var target object.Hash
	var err error
	if startPoint == "" {
		target, err = r.headCommit()
		if err != nil {
			return fmt.Errorf("branch %q: %w", name, err)
		}
		if target == "" {
			return fmt.Errorf("branch %q: %w: no commits yet", name, ErrUnborn)
		}
	} else {
		target, err = r.RevParse(startPoint)
		if err != nil {
			return fmt.Errorf("branch %q: %w", name, err)
		}
	}
	if _, err := r.Store.ReadCommit(target); err != nil {
		return fmt.Errorf("branch %q: %q is not a commit: %w", name, startPoint, err)
	}

	ref := "refs/heads/" + name
	if err := r.UpdateRefCAS(ref, target, ""); err != nil {
		if errors.Is(err, ErrRefStale) {
			return fmt.Errorf("%w: %q", ErrBranchExists, name)
		}
		return fmt.Errorf("branch %q: %w", name, err)
	}
	return nil
}

// DeleteBranch removes a branch. The currently checked-out branch cannot
// be deleted.
func (r *Repo) DeleteBranch(name string) error {
	ref := "refs/heads/" + name
	if !r.refExists(ref) {
		return fmt.Errorf("branch %q: %w", name, ErrInvalidRef)
	}

	head, err := r.Head()
	if err != nil {
		return fmt.Errorf("branch %q: %w", name, err)
	}
	if head == ref {
		return fmt.Errorf("cannot delete branch %q: checked out", name)
	}

	if err := r.DeleteRef(ref); err != nil {
		return fmt.Errorf("branch %q: %w", name, err)
	}
	return nil
}

// BranchInfo is one row of a branch listing.
type BranchInfo struct {
	Name    string
	Hash    object.Hash
	Current bool
}

// ListBranches returns all local branches sorted by name, marking the one
// HEAD is attached to.
func (r *Repo) ListBranches() ([]BranchInfo, error) {
	refs, err := r.ListRefs("refs/heads/")
	if err != nil {
		return nil, fmt.Errorf("branches: %w", err)
	}
	current, _ := r.CurrentBranch()

	infos := make([]BranchInfo, 0, len(refs))
	for name, hash := range refs {
		short := strings.TrimPrefix(name, "refs/heads/")
		infos = append(infos, BranchInfo{
			Name:    short,
			Hash:    hash,
			Current: short == current,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}
