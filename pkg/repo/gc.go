package repo

import (
	"errors"
	"fmt"

	"github.com/odvcencio/grit/pkg/object"
)

// GC repacks the object store. Roots are every ref, HEAD, the in-progress
// merge parent, and every blob the index holds; loose objects unreachable
// from those roots are pruned when prune is set.
func (r *Repo) GC(prune bool) (*object.GCSummary, error) {
	roots, hints, err := r.gcRoots()
	if err != nil {
		return nil, fmt.Errorf("gc: %w", err)
	}
	summary, err := r.Store.Repack(roots, hints, prune)
	if err != nil {
		return nil, fmt.Errorf("gc: %w", err)
	}
	return summary, nil
}

// Verify checks every object in the store against its recorded hash.
func (r *Repo) Verify() (*object.VerifySummary, error) {
	return r.Store.Verify()
}

// gcRoots gathers the reachability roots and path hints used to group
// similar blobs during delta compression.
func (r *Repo) gcRoots() ([]object.Hash, map[object.Hash]string, error) {
	seen := map[object.Hash]struct{}{}
	var roots []object.Hash
	add := func(h object.Hash) {
		if h == "" {
			return
		}
		if _, ok := seen[h]; ok {
			return
		}
		seen[h] = struct{}{}
		roots = append(roots, h)
	}

	refs, err := r.ListRefs("refs/")
	if err != nil {
		return nil, nil, err
	}
	for _, h := range refs {
		add(h)
	}

	head, err := r.headCommit()
	if err != nil && !errors.Is(err, ErrUnborn) {
		return nil, nil, err
	}
	add(head)

	if mergeParent, inProgress, err := r.mergeHead(); err != nil {
		return nil, nil, err
	} else if inProgress {
		add(mergeParent)
	}

	hints := map[object.Hash]string{}
	ix, err := r.ReadIndex()
	if err != nil {
		return nil, nil, err
	}
	for _, e := range ix.Entries {
		add(e.BlobHash)
		hints[e.BlobHash] = e.Path
	}

	if head != "" {
		files, err := r.CommitTree(head)
		if err != nil {
			return nil, nil, err
		}
		for path, tf := range files {
			if _, ok := hints[tf.BlobHash]; !ok {
				hints[tf.BlobHash] = path
			}
		}
	}
	return roots, hints, nil
}
