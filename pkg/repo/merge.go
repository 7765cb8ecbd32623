package repo

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/odvcencio/grit/pkg/diff3"
	"github.com/odvcencio/grit/pkg/object"
)

// MergeOutcome classifies the result of Merge.
type MergeOutcome int

const (
	MergeUpToDate    MergeOutcome = iota // theirs already reachable from HEAD
	MergeFastForward                     // HEAD moved forward, no new commit
	MergeCreated                         // merge commit created
	MergeConflicted                      // conflicts recorded, merge left in progress
)

// MergeResult reports what Merge did.
type MergeResult struct {
	Outcome   MergeOutcome
	Hash      object.Hash // new HEAD commit for FastForward/Created
	Conflicts []string    // conflicted paths for Conflicted
}

const binaryProbeSize = 8192

// isBinary applies the NUL-byte heuristic over the first 8 KiB.
func isBinary(data []byte) bool {
	probe := data
	if len(probe) > binaryProbeSize {
		probe = probe[:binaryProbeSize]
	}
	return bytes.IndexByte(probe, 0) >= 0
}

// IsAncestor reports whether ancestor is reachable from descendant by
// following all parents.
func (r *Repo) IsAncestor(ancestor, descendant object.Hash) (bool, error) {
	if ancestor == "" {
		return true, nil
	}
	seen := map[object.Hash]struct{}{}
	queue := []object.Hash{descendant}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == ancestor {
			return true, nil
		}
		if _, ok := seen[cur]; ok {
			continue
		}
		seen[cur] = struct{}{}
		c, err := r.Store.ReadCommit(cur)
		if err != nil {
			return false, fmt.Errorf("commit %s: %w", cur, err)
		}
		queue = append(queue, c.Parents...)
	}
	return false, nil
}

// FindMergeBase returns a best common ancestor of a and b: both frontiers
// are expanded in lockstep, colouring commits by the side that reached
// them; the first commit coloured by both sides wins. Returns the empty
// hash when the histories are unrelated.
func (r *Repo) FindMergeBase(a, b object.Hash) (object.Hash, error) {
	const (
		sideA = 1
		sideB = 2
	)
	colour := map[object.Hash]int{}
	frontierA := []object.Hash{a}
	frontierB := []object.Hash{b}

	expand := func(frontier []object.Hash, side int) ([]object.Hash, object.Hash, error) {
		var next []object.Hash
		for _, h := range frontier {
			if colour[h]&side != 0 {
				continue
			}
			colour[h] |= side
			if colour[h] == sideA|sideB {
				return nil, h, nil
			}
			c, err := r.Store.ReadCommit(h)
			if err != nil {
				return nil, "", fmt.Errorf("commit %s: %w", h, err)
			}
			next = append(next, c.Parents...)
		}
		return next, "", nil
	}

	for len(frontierA) > 0 || len(frontierB) > 0 {
		var base object.Hash
		var err error
		frontierA, base, err = expand(frontierA, sideA)
		if err != nil {
			return "", err
		}
		if base != "" {
			return base, nil
		}
		frontierB, base, err = expand(frontierB, sideB)
		if err != nil {
			return "", err
		}
		if base != "" {
			return base, nil
		}
	}
	return "", nil
}

// Merge merges the named revision into HEAD. Fast-forward when possible;
// otherwise a three-way merge that either commits automatically or leaves
// conflict markers, stage entries, and MERGE_HEAD for manual resolution.
func (r *Repo) Merge(theirsRev string) (*MergeResult, error) {
	if _, inProgress, err := r.mergeHead(); err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	} else if inProgress {
		return nil, fmt.Errorf("merge: merge already in progress, commit or abort it first")
	}

	ours, err := r.headCommit()
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	if ours == "" {
		return nil, fmt.Errorf("merge: %w: no commits yet", ErrUnborn)
	}
	theirs, err := r.RevParse(theirsRev)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}

	if reachable, err := r.IsAncestor(theirs, ours); err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	} else if reachable {
		return &MergeResult{Outcome: MergeUpToDate, Hash: ours}, nil
	}

	st, err := r.Status()
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	if dirty := localChanges(st); len(dirty) > 0 {
		return nil, &DirtyWorkingTreeError{Paths: dirty}
	}

	if ff, err := r.IsAncestor(ours, theirs); err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	} else if ff {
		if err := r.switchToCommit(theirs); err != nil {
			return nil, err
		}
		if _, err := r.advanceHead(theirs, ours); err != nil {
			return nil, fmt.Errorf("merge: %w", err)
		}
		return &MergeResult{Outcome: MergeFastForward, Hash: theirs}, nil
	}

	base, err := r.FindMergeBase(ours, theirs)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}

	return r.threeWayMerge(base, ours, theirs, theirsRev)
}

func localChanges(st *Status) []string {
	set := map[string]struct{}{}
	for _, group := range [][]string{
		st.StagedAdded, st.StagedModified, st.StagedDeleted,
		st.WorkModified, st.WorkDeleted, st.Conflicted,
	} {
		for _, p := range group {
			set[p] = struct{}{}
		}
	}
	paths := make([]string, 0, len(set))
	for p := range set {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// mergedFile is the per-path outcome of the three-way table.
type mergedFile struct {
	content  []byte
	mode     string
	blobHash object.Hash // set when content is an existing blob
	deleted  bool
	conflict bool
	// conflict stage inputs; zero hash means absent on that side
	baseEntry, oursEntry, theirsEntry TreeFile
}

func (r *Repo) threeWayMerge(base, ours, theirs object.Hash, theirsRev string) (*MergeResult, error) {
	baseFiles, err := r.CommitTree(base)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	oursFiles, err := r.CommitTree(ours)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	theirsFiles, err := r.CommitTree(theirs)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}

	paths := map[string]struct{}{}
	for p := range baseFiles {
		paths[p] = struct{}{}
	}
	for p := range oursFiles {
		paths[p] = struct{}{}
	}
	for p := range theirsFiles {
		paths[p] = struct{}{}
	}

	results := map[string]*mergedFile{}
	var conflicts []string
	for p := range paths {
		mf, err := r.mergePath(baseFiles[p], oursFiles[p], theirsFiles[p])
		if err != nil {
			return nil, fmt.Errorf("merge %q: %w", p, err)
		}
		results[p] = mf
		if mf.conflict {
			conflicts = append(conflicts, p)
		}
	}
	sort.Strings(conflicts)

	if err := r.applyMergeResults(results); err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}

	if len(conflicts) > 0 {
		mergeHeadPath := filepath.Join(r.GitDir, mergeHeadFile)
		if err := os.WriteFile(mergeHeadPath, []byte(theirs+"\n"), 0o644); err != nil {
			return nil, fmt.Errorf("merge: record %s: %w", mergeHeadFile, err)
		}
		return &MergeResult{Outcome: MergeConflicted, Conflicts: conflicts}, nil
	}

	hash, err := r.commitMerge(ours, theirs, fmt.Sprintf("Merge %s", theirsRev))
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	return &MergeResult{Outcome: MergeCreated, Hash: hash}, nil
}

// mergePath applies the three-way table for one path. A zero-valued
// TreeFile means the path is absent on that side.
func (r *Repo) mergePath(base, ours, theirs TreeFile) (*mergedFile, error) {
	absent := func(tf TreeFile) bool { return tf.BlobHash == "" }
	same := func(a, b TreeFile) bool {
		return a.BlobHash == b.BlobHash && a.Mode == b.Mode
	}

	switch {
	case same(ours, theirs):
		// Identical on both sides, including both-deleted.
		if absent(ours) {
			return &mergedFile{deleted: true}, nil
		}
		return &mergedFile{blobHash: ours.BlobHash, mode: ours.Mode}, nil
	case same(base, ours):
		// Only theirs changed.
		if absent(theirs) {
			return &mergedFile{deleted: true}, nil
		}
		return &mergedFile{blobHash: theirs.BlobHash, mode: theirs.Mode}, nil
	case same(base, theirs):
		// Only ours changed.
		if absent(ours) {
			return &mergedFile{deleted: true}, nil
		}
		return &mergedFile{blobHash: ours.BlobHash, mode: ours.Mode}, nil
	}

	// Both sides changed, differently.
	mf := &mergedFile{
		conflict:    true,
		baseEntry:   base,
		oursEntry:   ours,
		theirsEntry: theirs,
	}

	if absent(ours) || absent(theirs) {
		// Delete/modify: keep the surviving side's content for inspection.
		kept := ours
		if absent(ours) {
			kept = theirs
		}
		blob, err := r.Store.ReadBlob(kept.BlobHash)
		if err != nil {
			return nil, err
		}
		mf.content = blob.Data
		mf.mode = kept.Mode
		return mf, nil
	}

	oursBlob, err := r.Store.ReadBlob(ours.BlobHash)
	if err != nil {
		return nil, err
	}
	theirsBlob, err := r.Store.ReadBlob(theirs.BlobHash)
	if err != nil {
		return nil, err
	}
	var baseData []byte
	if !absent(base) {
		baseBlob, err := r.Store.ReadBlob(base.BlobHash)
		if err != nil {
			return nil, err
		}
		baseData = baseBlob.Data
	}

	mf.mode = ours.Mode
	if isBinary(baseData) || isBinary(oursBlob.Data) || isBinary(theirsBlob.Data) {
		// Binary files never get markers; ours stays in the tree.
		mf.content = oursBlob.Data
		return mf, nil
	}

	merged := diff3.Merge(baseData, oursBlob.Data, theirsBlob.Data)
	mf.content = merged.Merged
	if !merged.HasConflicts {
		mf.conflict = false
		mf.baseEntry, mf.oursEntry, mf.theirsEntry = TreeFile{}, TreeFile{}, TreeFile{}
	}
	return mf, nil
}

// applyMergeResults writes the merged working tree and rebuilds the index,
// staging conflict entries at stages 1-3 and clean results at stage 0.
func (r *Repo) applyMergeResults(results map[string]*mergedFile) error {
	ix := &Index{}
	for path, mf := range results {
		abs := filepath.Join(r.RootDir, filepath.FromSlash(path))

		if mf.deleted {
			if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("remove %q: %w", path, err)
			}
			r.removeEmptyParents(filepath.Dir(abs))
			continue
		}

		content := mf.content
		blobHash := mf.blobHash
		if blobHash != "" && content == nil {
			blob, err := r.Store.ReadBlob(blobHash)
			if err != nil {
				return fmt.Errorf("blob for %q: %w", path, err)
			}
			content = blob.Data
		}
		if blobHash == "" {
			h, err := r.Store.WriteBlob(&object.Blob{Data: content})
			if err != nil {
				return fmt.Errorf("write blob %q: %w", path, err)
			}
			blobHash = h
		}

		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return fmt.Errorf("mkdir for %q: %w", path, err)
		}
		if err := os.WriteFile(abs, content, filePermFromMode(mf.mode)); err != nil {
			return fmt.Errorf("write %q: %w", path, err)
		}

		if !mf.conflict {
			e := &IndexEntry{Path: path, Mode: mf.mode, BlobHash: blobHash, Stage: StageNormal}
			if info, err := os.Stat(abs); err == nil {
				e.Size = info.Size()
				e.ModTime = info.ModTime().UnixNano()
			}
			ix.Entries = append(ix.Entries, e)
			continue
		}

		for stage, tf := range map[int]TreeFile{
			StageBase:   mf.baseEntry,
			StageOurs:   mf.oursEntry,
			StageTheirs: mf.theirsEntry,
		} {
			if tf.BlobHash == "" {
				continue
			}
			ix.Entries = append(ix.Entries, &IndexEntry{
				Path:     path,
				Mode:     tf.Mode,
				BlobHash: tf.BlobHash,
				Stage:    stage,
			})
		}
	}
	return r.WriteIndex(ix)
}

// commitMerge creates the merge commit with ours as the first parent and
// advances HEAD past it.
func (r *Repo) commitMerge(ours, theirs object.Hash, message string) (object.Hash, error) {
	ix, err := r.ReadIndex()
	if err != nil {
		return "", err
	}
	treeHash, err := r.BuildTreeFromIndex(ix)
	if err != nil {
		return "", err
	}
	author, err := r.AuthorIdentity()
	if err != nil {
		return "", err
	}

	now := time.Now()
	hash, err := r.Store.WriteCommit(&object.CommitObj{
		TreeHash:       treeHash,
		Parents:        []object.Hash{ours, theirs},
		Author:         author,
		Timestamp:      now.Unix(),
		AuthorTimezone: now.Format("-0700"),
		Message:        message,
	})
	if err != nil {
		return "", err
	}
	if _, err := r.advanceHead(hash, ours); err != nil {
		return "", err
	}
	return hash, nil
}

// AbortMerge discards an in-progress conflicted merge, restoring the
// working tree and index to HEAD.
func (r *Repo) AbortMerge() error {
	_, inProgress, err := r.mergeHead()
	if err != nil {
		return fmt.Errorf("merge abort: %w", err)
	}
	if !inProgress {
		return fmt.Errorf("merge abort: no merge in progress")
	}

	head, err := r.headCommit()
	if err != nil {
		return fmt.Errorf("merge abort: %w", err)
	}
	headFiles, err := r.CommitTree(head)
	if err != nil {
		return fmt.Errorf("merge abort: %w", err)
	}

	// Restore every tracked file and drop merge leftovers the index knows
	// about but HEAD does not.
	ix, err := r.ReadIndex()
	if err != nil {
		return fmt.Errorf("merge abort: %w", err)
	}
	for _, e := range ix.Entries {
		if _, tracked := headFiles[e.Path]; tracked {
			continue
		}
		abs := filepath.Join(r.RootDir, filepath.FromSlash(e.Path))
		if err := os.Remove(abs); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("merge abort: remove %q: %w", e.Path, err)
		}
		r.removeEmptyParents(filepath.Dir(abs))
	}
	for path, tf := range headFiles {
		if err := r.materializeFile(path, tf); err != nil {
			return fmt.Errorf("merge abort: %w", err)
		}
	}
	if err := r.resetIndexToFiles(headFiles); err != nil {
		return fmt.Errorf("merge abort: %w", err)
	}

	if err := os.Remove(filepath.Join(r.GitDir, mergeHeadFile)); err != nil {
		return fmt.Errorf("merge abort: %w", err)
	}
	return nil
}
