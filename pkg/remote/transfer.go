package remote

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/odvcencio/grit/pkg/object"
	"github.com/odvcencio/grit/pkg/repo"
)

// RefUpdate records one tracking-ref move observed during a fetch.
type RefUpdate struct {
	Name string // full tracking ref name, e.g. refs/remotes/origin/master
	Old  object.Hash
	New  object.Hash
}

// FetchResult summarizes a fetch from one remote.
type FetchResult struct {
	Remote  string
	Updates []RefUpdate

	// DefaultBranch is the remote's HEAD branch when the bundle advertised
	// one and its tracking ref exists after the fetch.
	DefaultBranch string
}

// Fetch downloads the remote's bundle, stores its objects, and moves the
// refs/remotes/<name>/* tracking refs to the fetched branch tips. Remote
// tags are created locally when absent; an existing local tag is never
// clobbered.
func Fetch(ctx context.Context, r *repo.Repo, remoteName string) (*FetchResult, error) {
	return FetchFrom(ctx, r, remoteName, "")
}

// FetchFrom is Fetch with an explicit URL that bypasses the configured one.
// Tracking refs are still maintained under remoteName.
func FetchFrom(ctx context.Context, r *repo.Repo, remoteName, url string) (*FetchResult, error) {
	url, err := resolveRemoteURL(r, remoteName, url)
	if err != nil {
		return nil, err
	}
	t, err := NewTransport(url)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", remoteName, err)
	}

	b, err := t.FetchBundle(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", remoteName, err)
	}
	tips, err := ApplyBundle(r.Store, b)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", remoteName, err)
	}

	res := &FetchResult{Remote: remoteName}
	for _, name := range sortedRefNames(tips) {
		newHash := tips[name]
		if branch, ok := strings.CutPrefix(name, "refs/heads/"); ok {
			tracking := trackingRef(remoteName, branch)
			oldHash, _ := r.ResolveRef(tracking)
			if oldHash == newHash {
				continue
			}
			if err := r.UpdateRef(tracking, newHash); err != nil {
				return nil, fmt.Errorf("fetch %s: %w", remoteName, err)
			}
			res.Updates = append(res.Updates, RefUpdate{Name: tracking, Old: oldHash, New: newHash})
			continue
		}
		if strings.HasPrefix(name, "refs/tags/") {
			if _, err := r.ResolveRef(name); err == nil {
				continue
			}
			if err := r.UpdateRefCAS(name, newHash, ""); err != nil {
				return nil, fmt.Errorf("fetch %s: %w", remoteName, err)
			}
			res.Updates = append(res.Updates, RefUpdate{Name: name, New: newHash})
		}
	}

	if branch := b.DefaultBranch(); branch != "" {
		tracking := trackingRef(remoteName, branch)
		if _, err := r.ResolveRef(tracking); err == nil {
			if err := r.SetSymbolicRef(trackingRef(remoteName, "HEAD"), tracking); err != nil {
				return nil, fmt.Errorf("fetch %s: %w", remoteName, err)
			}
			res.DefaultBranch = branch
		}
	}
	return res, nil
}

// Push uploads the named local branches to the remote as a bundle and, on
// success, moves the matching tracking refs. An empty branch list pushes
// the current branch. The remote's report is returned even when some refs
// were rejected; in that case err wraps the rejection reason.
func Push(ctx context.Context, r *repo.Repo, remoteName string, branches ...string) (*PushReport, error) {
	return PushTo(ctx, r, remoteName, "", branches...)
}

// PushTo is Push with an explicit URL that bypasses the configured one.
func PushTo(ctx context.Context, r *repo.Repo, remoteName, url string, branches ...string) (*PushReport, error) {
	url, err := resolveRemoteURL(r, remoteName, url)
	if err != nil {
		return nil, err
	}
	t, err := NewTransport(url)
	if err != nil {
		return nil, fmt.Errorf("push %s: %w", remoteName, err)
	}

	if len(branches) == 0 {
		current, err := r.CurrentBranch()
		if err != nil {
			return nil, fmt.Errorf("push %s: %w", remoteName, err)
		}
		if current == "" {
			return nil, fmt.Errorf("push %s: detached HEAD, name a branch to push", remoteName)
		}
		branches = []string{current}
	}

	refs := make(map[string]object.Hash, len(branches))
	var prereqs []Prereq
	for _, branch := range branches {
		refName := "refs/heads/" + branch
		h, err := r.ResolveRef(refName)
		if err != nil {
			return nil, fmt.Errorf("push %s: %w", remoteName, err)
		}
		refs[refName] = h

		// Thin bundle: objects the remote already confirmed having, per
		// the tracking ref, are excluded as prerequisites.
		if known, err := r.ResolveRef(trackingRef(remoteName, branch)); err == nil && r.Store.Has(known) && known != h {
			prereqs = append(prereqs, Prereq{Hash: known, Name: refName})
		}
	}
	sort.Slice(prereqs, func(i, j int) bool { return prereqs[i].Hash < prereqs[j].Hash })

	b, err := CreateBundle(r.Store, refs, prereqs)
	if err != nil {
		return nil, fmt.Errorf("push %s: %w", remoteName, err)
	}
	report, err := t.PushBundle(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("push %s: %w", remoteName, err)
	}

	for _, rs := range report.Refs {
		if !rs.OK {
			continue
		}
		if branch, ok := strings.CutPrefix(rs.Name, "refs/heads/"); ok {
			if err := r.UpdateRef(trackingRef(remoteName, branch), refs[rs.Name]); err != nil {
				return report, fmt.Errorf("push %s: update tracking ref: %w", remoteName, err)
			}
		}
	}
	if err := report.Err(); err != nil {
		return report, fmt.Errorf("push %s: %w", remoteName, err)
	}
	return report, nil
}

// TrackingBranchRef returns the tracking ref fetch maintains for a remote
// branch, for callers that merge after fetching.
func TrackingBranchRef(remoteName, branch string) string {
	return trackingRef(remoteName, branch)
}

func trackingRef(remoteName, branch string) string {
	return "refs/remotes/" + remoteName + "/" + branch
}

// resolveRemoteURL returns the override URL when given, otherwise the
// configured URL for the named remote.
func resolveRemoteURL(r *repo.Repo, remoteName, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	return r.RemoteURL(remoteName)
}

// Clone fetches a remote into a freshly initialized repository and checks
// out the remote's default branch.
func Clone(ctx context.Context, url, dir, remoteName string) (*repo.Repo, error) {
	if remoteName == "" {
		remoteName = "origin"
	}
	r, err := repo.Init(dir)
	if err != nil {
		return nil, fmt.Errorf("clone: %w", err)
	}
	if err := r.AddRemote(remoteName, url); err != nil {
		return nil, fmt.Errorf("clone: %w", err)
	}
	res, err := Fetch(ctx, r, remoteName)
	if err != nil {
		return nil, fmt.Errorf("clone: %w", err)
	}

	branch := res.DefaultBranch
	if branch == "" {
		branch = pickDefaultBranch(res.Updates, remoteName)
	}
	if branch == "" {
		return r, nil // empty remote, leave HEAD unborn
	}
	tip, err := r.ResolveRef(trackingRef(remoteName, branch))
	if err != nil {
		return nil, fmt.Errorf("clone: %w", err)
	}
	// Materialise the worktree before the branch ref exists: checkout
	// reconciles against the current (unborn) HEAD state.
	if _, err := r.CheckoutNewBranchAt(branch, tip); err != nil {
		return nil, fmt.Errorf("clone: %w", err)
	}
	return r, nil
}

// pickDefaultBranch prefers master, then main, then the first branch the
// fetch brought over.
func pickDefaultBranch(updates []RefUpdate, remoteName string) string {
	prefix := "refs/remotes/" + remoteName + "/"
	var first, main string
	for _, u := range updates {
		branch, ok := strings.CutPrefix(u.Name, prefix)
		if !ok {
			continue
		}
		switch branch {
		case "master":
			return "master"
		case "main":
			main = "main"
		default:
			if first == "" {
				first = branch
			}
		}
	}
	if main != "" {
		return main
	}
	return first
}
