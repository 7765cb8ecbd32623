package repo

import (
	"testing"
)

func TestGCPreservesReachableObjects(t *testing.T) {
	r := initTestRepo(t)
	var results []*CommitResult
	for _, msg := range []string{"one", "two", "three"} {
		results = append(results, commitFile(t, r, "file.txt", msg+" content\n", msg))
	}
	if _, err := r.CreateTag("v1", string(results[0].Hash), "old release"); err != nil {
		t.Fatal(err)
	}

	summary, err := r.GC(true)
	if err != nil {
		t.Fatalf("GC: %v", err)
	}
	if summary.PackedObjects == 0 {
		t.Error("nothing packed")
	}

	// Every commit must still read back, with its tree and blobs.
	for _, res := range results {
		c, err := r.Store.ReadCommit(res.Hash)
		if err != nil {
			t.Fatalf("ReadCommit %s after gc: %v", res.Hash, err)
		}
		files, err := r.FlattenTree(c.TreeHash)
		if err != nil {
			t.Fatalf("FlattenTree after gc: %v", err)
		}
		if _, err := r.Store.ReadBlob(files["file.txt"].BlobHash); err != nil {
			t.Fatalf("ReadBlob after gc: %v", err)
		}
	}

	// A full verify must pass.
	vs, err := r.Verify()
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if vs.PackObjects == 0 {
		t.Error("verify saw no packed objects")
	}
}

func TestGCAfterPackRepoStillUsable(t *testing.T) {
	r := initTestRepo(t)
	commitFile(t, r, "a.txt", "one\n", "first")
	if _, err := r.GC(true); err != nil {
		t.Fatalf("GC: %v", err)
	}

	// New work after a repack lands loose and coexists with the pack.
	res := commitFile(t, r, "a.txt", "two\n", "second")
	c, err := r.Store.ReadCommit(res.Hash)
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Parents) != 1 {
		t.Errorf("parents = %v", c.Parents)
	}

	st, err := r.Status()
	if err != nil {
		t.Fatal(err)
	}
	if !st.Clean() {
		t.Errorf("status after gc: %+v", st)
	}
}

func TestGCKeepsIndexOnlyBlobs(t *testing.T) {
	r := initTestRepo(t)
	commitFile(t, r, "a.txt", "committed\n", "first")

	// Staged but not yet committed.
	writeWorkFile(t, r, "staged.txt", "staged only\n")
	if err := r.Add([]string{"staged.txt"}); err != nil {
		t.Fatal(err)
	}
	ix, err := r.ReadIndex()
	if err != nil {
		t.Fatal(err)
	}
	stagedBlob := ix.Get("staged.txt").BlobHash

	if _, err := r.GC(true); err != nil {
		t.Fatalf("GC: %v", err)
	}
	if _, err := r.Store.ReadBlob(stagedBlob); err != nil {
		t.Errorf("staged blob pruned: %v", err)
	}
}
