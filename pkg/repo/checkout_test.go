package repo

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/odvcencio/grit/pkg/object"
)

func TestCheckoutSwitchesBranches(t *testing.T) {
	r := initTestRepo(t)
	commitFile(t, r, "shared.txt", "base\n", "base")

	if _, err := r.CheckoutNewBranch("feature"); err != nil {
		t.Fatalf("CheckoutNewBranch: %v", err)
	}
	commitFile(t, r, "feature.txt", "feat\n", "feature work")

	res, err := r.Checkout("master")
	if err != nil {
		t.Fatalf("Checkout master: %v", err)
	}
	if res.Branch != "master" || res.Detached {
		t.Errorf("result = %+v", res)
	}
	if _, err := os.Stat(filepath.Join(r.RootDir, "feature.txt")); !os.IsNotExist(err) {
		t.Error("feature.txt survived checkout of master")
	}
	if got := readWorkFile(t, r, "shared.txt"); got != "base\n" {
		t.Errorf("shared.txt = %q", got)
	}

	if _, err := r.Checkout("feature"); err != nil {
		t.Fatalf("Checkout feature: %v", err)
	}
	if got := readWorkFile(t, r, "feature.txt"); got != "feat\n" {
		t.Errorf("feature.txt = %q", got)
	}
}

func TestCheckoutDetachesOnHash(t *testing.T) {
	r := initTestRepo(t)
	first := commitFile(t, r, "a.txt", "one\n", "first")
	commitFile(t, r, "a.txt", "two\n", "second")

	res, err := r.Checkout(string(first.Hash))
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if !res.Detached || res.Head != first.Hash {
		t.Errorf("result = %+v", res)
	}
	if got := readWorkFile(t, r, "a.txt"); got != "one\n" {
		t.Errorf("a.txt = %q, want rolled back content", got)
	}
}

func TestCheckoutRefusesDirtyTree(t *testing.T) {
	r := initTestRepo(t)
	commitFile(t, r, "a.txt", "one\n", "first")
	if _, err := r.CheckoutNewBranch("feature"); err != nil {
		t.Fatal(err)
	}
	commitFile(t, r, "a.txt", "feature\n", "feature edit")

	if _, err := r.Checkout("master"); err != nil {
		t.Fatal(err)
	}
	writeWorkFile(t, r, "a.txt", "local edit\n")

	_, err := r.Checkout("feature")
	var dirty *DirtyWorkingTreeError
	if !errors.As(err, &dirty) {
		t.Fatalf("Checkout over local edit = %v, want DirtyWorkingTreeError", err)
	}
	if len(dirty.Paths) != 1 || dirty.Paths[0] != "a.txt" {
		t.Errorf("dirty paths = %v", dirty.Paths)
	}
	if got := readWorkFile(t, r, "a.txt"); got != "local edit\n" {
		t.Errorf("refused checkout still touched the file: %q", got)
	}
}

func TestCheckoutRefusesUntrackedOverwrite(t *testing.T) {
	r := initTestRepo(t)
	commitFile(t, r, "a.txt", "one\n", "first")
	if _, err := r.CheckoutNewBranch("feature"); err != nil {
		t.Fatal(err)
	}
	commitFile(t, r, "only-on-feature.txt", "feat\n", "add file")

	if _, err := r.Checkout("master"); err != nil {
		t.Fatal(err)
	}
	// Untracked file that the incoming tree would overwrite.
	writeWorkFile(t, r, "only-on-feature.txt", "precious\n")

	_, err := r.Checkout("feature")
	var dirty *DirtyWorkingTreeError
	if !errors.As(err, &dirty) {
		t.Fatalf("Checkout = %v, want DirtyWorkingTreeError", err)
	}
	if got := readWorkFile(t, r, "only-on-feature.txt"); got != "precious\n" {
		t.Errorf("untracked file clobbered: %q", got)
	}
}

func TestCheckoutAllowsUnrelatedUntracked(t *testing.T) {
	r := initTestRepo(t)
	commitFile(t, r, "a.txt", "one\n", "first")
	if _, err := r.CheckoutNewBranch("feature"); err != nil {
		t.Fatal(err)
	}
	commitFile(t, r, "a.txt", "two\n", "edit")

	writeWorkFile(t, r, "notes.txt", "keep me\n")
	if _, err := r.Checkout("master"); err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if got := readWorkFile(t, r, "notes.txt"); got != "keep me\n" {
		t.Errorf("untracked file lost: %q", got)
	}
}

func TestCheckoutNewBranchOnUnbornHead(t *testing.T) {
	r := initTestRepo(t)

	res, err := r.CheckoutNewBranch("trunk")
	if err != nil {
		t.Fatalf("CheckoutNewBranch: %v", err)
	}
	if res.Branch != "trunk" {
		t.Errorf("Branch = %q", res.Branch)
	}

	out := commitFile(t, r, "a.txt", "x\n", "first on trunk")
	if out.Branch != "trunk" {
		t.Errorf("commit landed on %q, want trunk", out.Branch)
	}
}

func TestCheckoutRemovesEmptiedDirs(t *testing.T) {
	r := initTestRepo(t)
	commitFile(t, r, "a.txt", "one\n", "base")
	if _, err := r.CheckoutNewBranch("deep"); err != nil {
		t.Fatal(err)
	}
	commitFile(t, r, "nested/dir/file.txt", "x\n", "nested")

	if _, err := r.Checkout("master"); err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if _, err := os.Stat(filepath.Join(r.RootDir, "nested")); !os.IsNotExist(err) {
		t.Error("emptied directory tree not pruned")
	}
}

func TestCheckoutUnknownTarget(t *testing.T) {
	r := initTestRepo(t)
	commitFile(t, r, "a.txt", "one\n", "base")

	if _, err := r.Checkout("no-such-branch"); err == nil {
		t.Fatal("checkout of unknown target succeeded")
	}
}

// A commit can land in the store without touching the index or worktree,
// the state a fresh clone is in after fetching. Materialising the first
// branch from there must not trip the dirty-tree gate.
func TestCheckoutNewBranchAtFromUnbornHead(t *testing.T) {
	r := initTestRepo(t)

	blobHash, err := r.Store.WriteBlob(&object.Blob{Data: []byte("one\n")})
	if err != nil {
		t.Fatalf("write blob: %v", err)
	}
	treeHash, err := r.Store.WriteTree(&object.TreeObj{Entries: []object.TreeEntry{
		{Name: "a.txt", Mode: object.TreeModeFile, BlobHash: blobHash},
	}})
	if err != nil {
		t.Fatalf("write tree: %v", err)
	}
	c, err := r.Store.WriteCommit(&object.CommitObj{
		TreeHash:           treeHash,
		Author:             "Test User <test@example.com>",
		Timestamp:          1700000000,
		AuthorTimezone:     "+0000",
		Committer:          "Test User <test@example.com>",
		CommitterTimestamp: 1700000000,
		CommitterTimezone:  "+0000",
		Message:            "fetched",
	})
	if err != nil {
		t.Fatalf("write commit: %v", err)
	}

	res, err := r.CheckoutNewBranchAt("master", c)
	if err != nil {
		t.Fatalf("CheckoutNewBranchAt: %v", err)
	}
	if res.Branch != "master" || res.Head != c {
		t.Errorf("result = %+v", res)
	}
	if got := readWorkFile(t, r, "a.txt"); got != "one\n" {
		t.Errorf("a.txt = %q", got)
	}
	head, err := r.ResolveRef("HEAD")
	if err != nil {
		t.Fatalf("resolve HEAD: %v", err)
	}
	if head != c {
		t.Errorf("HEAD = %s, want %s", head, c)
	}
	st, err := r.Status()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !st.Clean() {
		t.Errorf("status not clean after checkout: %+v", st)
	}
}
