package repo

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestResolveRefUnborn(t *testing.T) {
	r := initTestRepo(t)
	if _, err := r.ResolveRef("HEAD"); !errors.Is(err, ErrUnborn) {
		t.Fatalf("ResolveRef(HEAD) on fresh repo = %v, want ErrUnborn", err)
	}
}

func TestUpdateAndResolveRef(t *testing.T) {
	r := initTestRepo(t)
	h := fakeRepoHash(7)

	if err := r.UpdateRef("refs/heads/master", h); err != nil {
		t.Fatalf("UpdateRef: %v", err)
	}
	got, err := r.ResolveRef("HEAD")
	if err != nil {
		t.Fatalf("ResolveRef: %v", err)
	}
	if got != h {
		t.Errorf("ResolveRef = %s, want %s", got, h)
	}
}

func TestUpdateRefCASStale(t *testing.T) {
	r := initTestRepo(t)
	if err := r.UpdateRef("refs/heads/master", fakeRepoHash(1)); err != nil {
		t.Fatal(err)
	}

	err := r.UpdateRefCAS("refs/heads/master", fakeRepoHash(3), fakeRepoHash(2))
	if !errors.Is(err, ErrRefStale) {
		t.Fatalf("CAS with wrong old value = %v, want ErrRefStale", err)
	}

	// Loser must not have clobbered the ref.
	got, err := r.ResolveRef("refs/heads/master")
	if err != nil {
		t.Fatal(err)
	}
	if got != fakeRepoHash(1) {
		t.Errorf("ref = %s after failed CAS, want %s", got, fakeRepoHash(1))
	}
}

func TestUpdateRefCASCreate(t *testing.T) {
	r := initTestRepo(t)

	if err := r.UpdateRefCAS("refs/heads/new", fakeRepoHash(4), ""); err != nil {
		t.Fatalf("CAS create: %v", err)
	}
	if err := r.UpdateRefCAS("refs/heads/new", fakeRepoHash(5), ""); !errors.Is(err, ErrRefStale) {
		t.Fatalf("CAS create over existing ref = %v, want ErrRefStale", err)
	}
}

func TestLockfileBlocksConcurrentUpdate(t *testing.T) {
	r := initTestRepo(t)

	lockPath := filepath.Join(r.GitDir, "refs", "heads", "master.lock")
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		t.Fatal(err)
	}
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	defer os.Remove(lockPath)

	err = r.UpdateRef("refs/heads/master", fakeRepoHash(1))
	if !errors.Is(err, ErrLockHeld) {
		t.Fatalf("update under held lock = %v, want ErrLockHeld", err)
	}
}

func TestSymbolicResolutionDepthLimit(t *testing.T) {
	r := initTestRepo(t)

	// A ref pointing at itself must not loop forever.
	refPath := filepath.Join(r.GitDir, "refs", "heads", "loop")
	if err := os.WriteFile(refPath, []byte("ref: refs/heads/loop\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := r.ResolveRef("refs/heads/loop"); !errors.Is(err, ErrInvalidRef) {
		t.Fatalf("self-referential ref = %v, want ErrInvalidRef", err)
	}
}

func TestDetachedHead(t *testing.T) {
	r := initTestRepo(t)
	h := fakeRepoHash(9)

	if err := r.SetHeadDetached(h); err != nil {
		t.Fatalf("SetHeadDetached: %v", err)
	}
	head, err := r.Head()
	if err != nil {
		t.Fatal(err)
	}
	if head != string(h) {
		t.Errorf("Head = %q, want detached %s", head, h)
	}
	if branch, err := r.CurrentBranch(); err != nil || branch != "" {
		t.Errorf("CurrentBranch on detached HEAD = %q, %v; want empty", branch, err)
	}

	if err := r.SetHeadSymbolic("refs/heads/master"); err != nil {
		t.Fatalf("SetHeadSymbolic: %v", err)
	}
	branch, err := r.CurrentBranch()
	if err != nil || branch != "master" {
		t.Errorf("CurrentBranch = %q, %v; want master", branch, err)
	}
}

func TestListRefsReturnsFullNames(t *testing.T) {
	r := initTestRepo(t)
	if err := r.UpdateRef("refs/heads/master", fakeRepoHash(1)); err != nil {
		t.Fatal(err)
	}
	if err := r.UpdateRef("refs/heads/dev", fakeRepoHash(2)); err != nil {
		t.Fatal(err)
	}
	if err := r.UpdateRef("refs/tags/v1", fakeRepoHash(3)); err != nil {
		t.Fatal(err)
	}

	heads, err := r.ListRefs("refs/heads/")
	if err != nil {
		t.Fatalf("ListRefs: %v", err)
	}
	if len(heads) != 2 {
		t.Fatalf("got %d heads, want 2: %v", len(heads), heads)
	}
	if heads["refs/heads/dev"] != fakeRepoHash(2) {
		t.Errorf("refs/heads/dev = %s, want %s", heads["refs/heads/dev"], fakeRepoHash(2))
	}

	all, err := r.ListRefs("refs/")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("got %d refs, want 3: %v", len(all), all)
	}
}

func TestListRefsSkipsLockFiles(t *testing.T) {
	r := initTestRepo(t)
	if err := r.UpdateRef("refs/heads/master", fakeRepoHash(1)); err != nil {
		t.Fatal(err)
	}
	lockPath := filepath.Join(r.GitDir, "refs", "heads", "stray.lock")
	if err := os.WriteFile(lockPath, []byte("junk"), 0o644); err != nil {
		t.Fatal(err)
	}

	refs, err := r.ListRefs("refs/heads/")
	if err != nil {
		t.Fatalf("ListRefs: %v", err)
	}
	if len(refs) != 1 {
		t.Errorf("got %d refs, want 1: %v", len(refs), refs)
	}
}
