package object

import (
	"bytes"
	"strings"
	"testing"
)

func fakeHash(seed byte) Hash {
	raw := bytes.Repeat([]byte{seed}, HashRawLen)
	h, _ := HashFromRaw(raw)
	return h
}

func TestTreeCanonicalOrdering(t *testing.T) {
	// "foo" as a directory must sort after "foo.txt" because subtree names
	// compare as if suffixed with '/'.
	tr := &TreeObj{Entries: []TreeEntry{
		{Name: "foo", IsDir: true, SubtreeHash: fakeHash(1)},
		{Name: "foo.txt", BlobHash: fakeHash(2)},
		{Name: "bar", BlobHash: fakeHash(3)},
	}}
	data, err := MarshalTree(tr)
	if err != nil {
		t.Fatalf("MarshalTree: %v", err)
	}
	back, err := UnmarshalTree(data)
	if err != nil {
		t.Fatalf("UnmarshalTree: %v", err)
	}
	var names []string
	for _, e := range back.Entries {
		names = append(names, e.Name)
	}
	want := []string{"bar", "foo.txt", "foo"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("entry order: got %v, want %v", names, want)
	}
}

func TestTreeMarshalDeterministic(t *testing.T) {
	a := &TreeObj{Entries: []TreeEntry{
		{Name: "x", BlobHash: fakeHash(1)},
		{Name: "y", IsDir: true, SubtreeHash: fakeHash(2)},
	}}
	b := &TreeObj{Entries: []TreeEntry{
		{Name: "y", IsDir: true, SubtreeHash: fakeHash(2)},
		{Name: "x", BlobHash: fakeHash(1)},
	}}
	da, err := MarshalTree(a)
	if err != nil {
		t.Fatalf("MarshalTree: %v", err)
	}
	db, err := MarshalTree(b)
	if err != nil {
		t.Fatalf("MarshalTree: %v", err)
	}
	if !bytes.Equal(da, db) {
		t.Error("same entries in different input order produced different bytes")
	}
}

func TestTreeRejectsBadNames(t *testing.T) {
	for _, name := range []string{"", ".", "..", "a/b", "nul\x00byte"} {
		tr := &TreeObj{Entries: []TreeEntry{{Name: name, BlobHash: fakeHash(9)}}}
		if _, err := MarshalTree(tr); err == nil {
			t.Errorf("MarshalTree accepted entry name %q", name)
		}
	}
}

func TestTreeModes(t *testing.T) {
	tr := &TreeObj{Entries: []TreeEntry{
		{Name: "run.sh", Mode: TreeModeExecutable, BlobHash: fakeHash(1)},
		{Name: "doc.md", BlobHash: fakeHash(2)},
		{Name: "sub", IsDir: true, SubtreeHash: fakeHash(3)},
	}}
	data, err := MarshalTree(tr)
	if err != nil {
		t.Fatalf("MarshalTree: %v", err)
	}
	back, err := UnmarshalTree(data)
	if err != nil {
		t.Fatalf("UnmarshalTree: %v", err)
	}
	modes := map[string]string{}
	for _, e := range back.Entries {
		modes[e.Name] = e.Mode
	}
	if modes["run.sh"] != TreeModeExecutable {
		t.Errorf("run.sh mode: %s", modes["run.sh"])
	}
	if modes["doc.md"] != TreeModeFile {
		t.Errorf("doc.md mode: %s", modes["doc.md"])
	}
	if modes["sub"] != TreeModeDir {
		t.Errorf("sub mode: %s", modes["sub"])
	}
}

func TestTreeUnmarshalTruncated(t *testing.T) {
	tr := &TreeObj{Entries: []TreeEntry{{Name: "a", BlobHash: fakeHash(1)}}}
	data, err := MarshalTree(tr)
	if err != nil {
		t.Fatalf("MarshalTree: %v", err)
	}
	if _, err := UnmarshalTree(data[:len(data)-5]); err == nil {
		t.Error("UnmarshalTree accepted a truncated hash")
	}
}

func TestCommitRoundTrip(t *testing.T) {
	c := &CommitObj{
		TreeHash:           fakeHash(1),
		Parents:            []Hash{fakeHash(2), fakeHash(3)},
		Author:             "Ada Lovelace <ada@example.com>",
		Timestamp:          1690000000,
		AuthorTimezone:     "-0500",
		Committer:          "Alan Turing <alan@example.com>",
		CommitterTimestamp: 1690000100,
		CommitterTimezone:  "+0100",
		Message:            "merge topic into main\n\nlonger body here\n",
	}
	back, err := UnmarshalCommit(MarshalCommit(c))
	if err != nil {
		t.Fatalf("UnmarshalCommit: %v", err)
	}
	if back.TreeHash != c.TreeHash {
		t.Errorf("tree: got %s", back.TreeHash)
	}
	if len(back.Parents) != 2 || back.Parents[0] != c.Parents[0] || back.Parents[1] != c.Parents[1] {
		t.Errorf("parents: %v", back.Parents)
	}
	if back.Author != c.Author || back.Timestamp != c.Timestamp || back.AuthorTimezone != c.AuthorTimezone {
		t.Errorf("author: %q %d %s", back.Author, back.Timestamp, back.AuthorTimezone)
	}
	if back.Committer != c.Committer || back.CommitterTimestamp != c.CommitterTimestamp {
		t.Errorf("committer: %q %d", back.Committer, back.CommitterTimestamp)
	}
	if back.Message != c.Message {
		t.Errorf("message: %q", back.Message)
	}
}

func TestCommitDefaultsCommitterToAuthor(t *testing.T) {
	c := &CommitObj{
		TreeHash:  fakeHash(1),
		Author:    "Someone <s@example.com>",
		Timestamp: 1700000000,
		Message:   "initial",
	}
	back, err := UnmarshalCommit(MarshalCommit(c))
	if err != nil {
		t.Fatalf("UnmarshalCommit: %v", err)
	}
	if back.Committer != c.Author {
		t.Errorf("committer: got %q, want author", back.Committer)
	}
	if back.AuthorTimezone != "+0000" {
		t.Errorf("default tz: %q", back.AuthorTimezone)
	}
}

func TestCommitUnmarshalMalformed(t *testing.T) {
	cases := map[string]string{
		"no separator":  "tree " + string(fakeHash(1)),
		"missing tree":  "author A <a@b> 1 +0000\n\nmsg",
		"unknown key":   "tree " + string(fakeHash(1)) + "\nbogus x\n\nmsg",
		"bad timestamp": "tree " + string(fakeHash(1)) + "\nauthor A <a@b> notanumber +0000\n\nmsg",
	}
	for name, raw := range cases {
		if _, err := UnmarshalCommit([]byte(raw)); err == nil {
			t.Errorf("%s: UnmarshalCommit accepted %q", name, raw)
		}
	}
}

func TestParseIdentityLineSpacesInName(t *testing.T) {
	ident, ts, tz, err := parseIdentityLine("Jean Luc Picard <jl@example.com> 1690000000 +0200")
	if err != nil {
		t.Fatalf("parseIdentityLine: %v", err)
	}
	if ident != "Jean Luc Picard <jl@example.com>" {
		t.Errorf("identity: %q", ident)
	}
	if ts != 1690000000 || tz != "+0200" {
		t.Errorf("ts/tz: %d %s", ts, tz)
	}
}

func TestTagRoundTrip(t *testing.T) {
	tag := &TagObj{
		TargetHash: fakeHash(7),
		TargetType: TypeCommit,
		Name:       "v1.2.0",
		Tagger:     "Release Bot <bot@example.com>",
		Timestamp:  1700001234,
		Timezone:   "+0000",
		Message:    "release v1.2.0\n",
	}
	back, err := UnmarshalTag(MarshalTag(tag))
	if err != nil {
		t.Fatalf("UnmarshalTag: %v", err)
	}
	if back.TargetHash != tag.TargetHash || back.TargetType != tag.TargetType {
		t.Errorf("target: %s %s", back.TargetHash, back.TargetType)
	}
	if back.Name != tag.Name || back.Tagger != tag.Tagger || back.Message != tag.Message {
		t.Errorf("fields: %q %q %q", back.Name, back.Tagger, back.Message)
	}
}

func TestBlobRoundTrip(t *testing.T) {
	b := &Blob{Data: []byte("binary \x00 data")}
	back, err := UnmarshalBlob(MarshalBlob(b))
	if err != nil {
		t.Fatalf("UnmarshalBlob: %v", err)
	}
	if !bytes.Equal(back.Data, b.Data) {
		t.Errorf("data: %q", back.Data)
	}
}
