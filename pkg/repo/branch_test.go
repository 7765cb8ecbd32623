package repo

import (
	"errors"
	"reflect"
	"testing"
)

func TestCreateBranchAtHead(t *testing.T) {
	r := initTestRepo(t)
	res := commitFile(t, r, "a.txt", "one\n", "first")

	if err := r.CreateBranch("dev", ""); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	got, err := r.ResolveRef("refs/heads/dev")
	if err != nil {
		t.Fatal(err)
	}
	if got != res.Hash {
		t.Errorf("dev = %s, want %s", got, res.Hash)
	}
}

func TestCreateBranchAtStartPoint(t *testing.T) {
	r := initTestRepo(t)
	first := commitFile(t, r, "a.txt", "one\n", "first")
	commitFile(t, r, "a.txt", "two\n", "second")

	if err := r.CreateBranch("old", string(first.Hash)); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	got, err := r.ResolveRef("refs/heads/old")
	if err != nil {
		t.Fatal(err)
	}
	if got != first.Hash {
		t.Errorf("old = %s, want %s", got, first.Hash)
	}
}

func TestCreateBranchRejectsDuplicate(t *testing.T) {
	r := initTestRepo(t)
	commitFile(t, r, "a.txt", "one\n", "first")

	if err := r.CreateBranch("dev", ""); err != nil {
		t.Fatal(err)
	}
	if err := r.CreateBranch("dev", ""); !errors.Is(err, ErrBranchExists) {
		t.Fatalf("duplicate create = %v, want ErrBranchExists", err)
	}
}

func TestCreateBranchOnUnbornHead(t *testing.T) {
	r := initTestRepo(t)
	if err := r.CreateBranch("dev", ""); !errors.Is(err, ErrUnborn) {
		t.Fatalf("create on unborn HEAD = %v, want ErrUnborn", err)
	}
}

func TestCreateBranchValidatesName(t *testing.T) {
	r := initTestRepo(t)
	commitFile(t, r, "a.txt", "one\n", "first")

	for _, name := range []string{"", "-lead", "a b", "x..y", "end/", "ref.lock", "a:b"} {
		if err := r.CreateBranch(name, ""); !errors.Is(err, ErrInvalidRef) {
			t.Errorf("CreateBranch(%q) = %v, want ErrInvalidRef", name, err)
		}
	}

	// Slash-separated names are allowed.
	if err := r.CreateBranch("feature/login", ""); err != nil {
		t.Errorf("CreateBranch(feature/login) = %v", err)
	}
}

func TestDeleteBranch(t *testing.T) {
	r := initTestRepo(t)
	commitFile(t, r, "a.txt", "one\n", "first")
	if err := r.CreateBranch("dev", ""); err != nil {
		t.Fatal(err)
	}

	if err := r.DeleteBranch("dev"); err != nil {
		t.Fatalf("DeleteBranch: %v", err)
	}
	if r.refExists("refs/heads/dev") {
		t.Error("branch file still present")
	}
}

func TestDeleteBranchRefusesCurrent(t *testing.T) {
	r := initTestRepo(t)
	commitFile(t, r, "a.txt", "one\n", "first")

	if err := r.DeleteBranch("master"); err == nil {
		t.Fatal("deleted the checked-out branch")
	}
}

func TestListBranchesMarksCurrent(t *testing.T) {
	r := initTestRepo(t)
	commitFile(t, r, "a.txt", "one\n", "first")
	if err := r.CreateBranch("dev", ""); err != nil {
		t.Fatal(err)
	}

	infos, err := r.ListBranches()
	if err != nil {
		t.Fatalf("ListBranches: %v", err)
	}
	var names []string
	current := ""
	for _, b := range infos {
		names = append(names, b.Name)
		if b.Current {
			current = b.Name
		}
	}
	if !reflect.DeepEqual(names, []string{"dev", "master"}) {
		t.Errorf("names = %v", names)
	}
	if current != "master" {
		t.Errorf("current = %q, want master", current)
	}
}

func TestLightweightTagPointsAtCommit(t *testing.T) {
	r := initTestRepo(t)
	res := commitFile(t, r, "a.txt", "one\n", "first")

	refTarget, err := r.CreateTag("v1", "", "")
	if err != nil {
		t.Fatalf("CreateTag: %v", err)
	}
	if refTarget != res.Hash {
		t.Errorf("lightweight tag = %s, want commit %s", refTarget, res.Hash)
	}
}

func TestAnnotatedTagObject(t *testing.T) {
	r := initTestRepo(t)
	res := commitFile(t, r, "a.txt", "one\n", "first")

	refTarget, err := r.CreateTag("v1", "", "first release")
	if err != nil {
		t.Fatalf("CreateTag: %v", err)
	}
	tag, err := r.Store.ReadTag(refTarget)
	if err != nil {
		t.Fatalf("ReadTag: %v", err)
	}
	if tag.TargetHash != res.Hash || tag.Name != "v1" || tag.Message != "first release" {
		t.Errorf("tag = %+v", tag)
	}
}

func TestCreateTagRejectsDuplicate(t *testing.T) {
	r := initTestRepo(t)
	commitFile(t, r, "a.txt", "one\n", "first")

	if _, err := r.CreateTag("v1", "", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := r.CreateTag("v1", "", ""); !errors.Is(err, ErrTagExists) {
		t.Fatalf("duplicate tag = %v, want ErrTagExists", err)
	}
}

func TestListAndDeleteTags(t *testing.T) {
	r := initTestRepo(t)
	commitFile(t, r, "a.txt", "one\n", "first")

	for _, name := range []string{"v2", "v1"} {
		if _, err := r.CreateTag(name, "", ""); err != nil {
			t.Fatal(err)
		}
	}
	tags, err := r.ListTags()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(tags, []string{"v1", "v2"}) {
		t.Errorf("tags = %v", tags)
	}

	if err := r.DeleteTag("v1"); err != nil {
		t.Fatalf("DeleteTag: %v", err)
	}
	tags, _ = r.ListTags()
	if !reflect.DeepEqual(tags, []string{"v2"}) {
		t.Errorf("tags after delete = %v", tags)
	}
}
