package object

import (
	"bytes"
	"os"
	"testing"
)

// writeCommitChain builds n commits, each with a single file whose content
// grows per revision, and returns the commit hashes oldest first.
func writeCommitChain(t *testing.T, s *Store, n int) []Hash {
	t.Helper()
	var (
		commits []Hash
		parent  Hash
	)
	content := bytes.Repeat([]byte("a line of file content that repeats across revisions\n"), 50)
	for i := 0; i < n; i++ {
		content = append(content, []byte("revision tail\n")...)
		blobHash, err := s.WriteBlob(&Blob{Data: content})
		if err != nil {
			t.Fatalf("WriteBlob: %v", err)
		}
		treeHash, err := s.WriteTree(&TreeObj{Entries: []TreeEntry{
			{Name: "file.txt", Mode: TreeModeFile, BlobHash: blobHash},
		}})
		if err != nil {
			t.Fatalf("WriteTree: %v", err)
		}
		c := &CommitObj{
			TreeHash:  treeHash,
			Author:    "Test <t@example.com>",
			Timestamp: int64(1700000000 + i),
			Message:   "rev",
		}
		if parent != "" {
			c.Parents = []Hash{parent}
		}
		commitHash, err := s.WriteCommit(c)
		if err != nil {
			t.Fatalf("WriteCommit: %v", err)
		}
		commits = append(commits, commitHash)
		parent = commitHash
	}
	return commits
}

func TestReachableSetWalksCommitGraph(t *testing.T) {
	s := tempStore(t)
	commits := writeCommitChain(t, s, 3)

	reachable, err := s.ReachableSet([]Hash{commits[2]})
	if err != nil {
		t.Fatalf("ReachableSet: %v", err)
	}
	// 3 commits + 3 trees + 3 blobs.
	if len(reachable) != 9 {
		t.Errorf("reachable count: got %d, want 9", len(reachable))
	}
	for _, c := range commits {
		if _, ok := reachable[c]; !ok {
			t.Errorf("commit %s not reachable", c)
		}
	}

	// From the first commit only its own objects are reachable.
	partial, err := s.ReachableSet([]Hash{commits[0]})
	if err != nil {
		t.Fatalf("ReachableSet: %v", err)
	}
	if len(partial) != 3 {
		t.Errorf("partial reachable count: got %d, want 3", len(partial))
	}
}

func TestReferencedHashes(t *testing.T) {
	blobRefs, err := ReferencedHashes(TypeBlob, []byte("payload"))
	if err != nil {
		t.Fatalf("blob: %v", err)
	}
	if blobRefs != nil {
		t.Errorf("blob refs: %v", blobRefs)
	}

	c := &CommitObj{
		TreeHash:  fakeHash(1),
		Parents:   []Hash{fakeHash(2)},
		Author:    "A <a@b>",
		Timestamp: 1,
		Message:   "m",
	}
	commitRefs, err := ReferencedHashes(TypeCommit, MarshalCommit(c))
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if len(commitRefs) != 2 {
		t.Errorf("commit refs: %v", commitRefs)
	}
}

func TestRepackRoundTrip(t *testing.T) {
	s := tempStore(t)
	commits := writeCommitChain(t, s, 4)
	tip := commits[len(commits)-1]

	before, err := s.ReachableSet([]Hash{tip})
	if err != nil {
		t.Fatalf("ReachableSet: %v", err)
	}

	summary, err := s.Repack([]Hash{tip}, nil, false)
	if err != nil {
		t.Fatalf("Repack: %v", err)
	}
	if summary.PackedObjects != len(before) {
		t.Errorf("packed %d objects, want %d", summary.PackedObjects, len(before))
	}
	if summary.PackFile == "" || summary.IndexFile == "" {
		t.Errorf("summary: %+v", summary)
	}

	// Loose forms are gone, yet every object still reads back intact.
	loose, err := s.listLooseObjectHashes()
	if err != nil {
		t.Fatalf("listLooseObjectHashes: %v", err)
	}
	if len(loose) != 0 {
		t.Errorf("%d loose objects remain after repack", len(loose))
	}
	for h := range before {
		objType, data, err := s.Read(h)
		if err != nil {
			t.Fatalf("Read %s after repack: %v", h, err)
		}
		if computed := HashObject(objType, data); computed != h {
			t.Errorf("object %s read back as %s", h, computed)
		}
	}
}

func TestRepackDeltaCompression(t *testing.T) {
	s := tempStore(t)
	commits := writeCommitChain(t, s, 5)
	tip := commits[len(commits)-1]

	hints := map[Hash]string{}
	for _, c := range commits {
		commit, err := s.ReadCommit(c)
		if err != nil {
			t.Fatalf("ReadCommit: %v", err)
		}
		tree, err := s.ReadTree(commit.TreeHash)
		if err != nil {
			t.Fatalf("ReadTree: %v", err)
		}
		hints[tree.Entries[0].BlobHash] = "file.txt"
	}

	summary, err := s.Repack([]Hash{tip}, hints, false)
	if err != nil {
		t.Fatalf("Repack: %v", err)
	}
	// The blob revisions are near-identical, so most should delta.
	if summary.DeltaObjects == 0 {
		t.Error("no objects were delta-encoded")
	}
}

func TestRepackPrunesUnreachable(t *testing.T) {
	s := tempStore(t)
	commits := writeCommitChain(t, s, 2)
	tip := commits[len(commits)-1]

	orphan, err := s.Write(TypeBlob, []byte("dangling, referenced by nothing"))
	if err != nil {
		t.Fatalf("Write orphan: %v", err)
	}

	// Without prune the orphan survives.
	if _, err := s.Repack([]Hash{tip}, nil, false); err != nil {
		t.Fatalf("Repack: %v", err)
	}
	if !s.Has(orphan) {
		t.Fatal("orphan deleted without prune")
	}

	summary, err := s.Repack([]Hash{tip}, nil, true)
	if err != nil {
		t.Fatalf("Repack prune: %v", err)
	}
	if summary.PrunedLoose != 1 {
		t.Errorf("pruned %d, want 1", summary.PrunedLoose)
	}
	if s.Has(orphan) {
		t.Error("orphan survived prune")
	}
	// Reachable objects are untouched.
	if !s.Has(tip) {
		t.Error("tip lost during prune")
	}
}

func TestVerifyCleanStore(t *testing.T) {
	s := tempStore(t)
	commits := writeCommitChain(t, s, 3)
	tip := commits[len(commits)-1]

	report, err := s.Verify()
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if report.LooseObjects != 9 || report.PackFiles != 0 {
		t.Errorf("loose report: %+v", report)
	}

	if _, err := s.Repack([]Hash{tip}, nil, false); err != nil {
		t.Fatalf("Repack: %v", err)
	}
	report, err = s.Verify()
	if err != nil {
		t.Fatalf("Verify after repack: %v", err)
	}
	if report.PackFiles != 1 || report.PackObjects != 9 || report.LooseObjects != 0 {
		t.Errorf("packed report: %+v", report)
	}
}

func TestVerifyDetectsCorruptLoose(t *testing.T) {
	s := tempStore(t)
	h, err := s.Write(TypeBlob, []byte("soon to be damaged"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := os.WriteFile(s.loosePath(h), []byte("garbage"), 0o644); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if _, err := s.Verify(); err == nil {
		t.Error("Verify passed a corrupt loose object")
	}
}
