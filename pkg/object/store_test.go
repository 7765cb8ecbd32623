package object

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestHashBytesDeterminism(t *testing.T) {
	data := []byte("hello world")
	h1 := HashBytes(data)
	h2 := HashBytes(data)
	if h1 != h2 {
		t.Errorf("HashBytes not deterministic: %q != %q", h1, h2)
	}
	if len(h1) != HashHexLen {
		t.Errorf("Hash length: got %d, want %d", len(h1), HashHexLen)
	}
}

func TestHashObjectEnvelope(t *testing.T) {
	data := []byte("hello")
	h1 := HashObject(TypeBlob, data)
	h2 := HashBytes(data)
	if h1 == h2 {
		t.Error("HashObject should differ from HashBytes due to envelope")
	}

	h3 := HashObject(TypeBlob, data)
	if h1 != h3 {
		t.Error("HashObject not deterministic")
	}

	h4 := HashObject(TypeCommit, data)
	if h1 == h4 {
		t.Error("Different types should produce different hashes")
	}
}

func TestHashKnownValue(t *testing.T) {
	// Same framing as git: `echo "hi" | git hash-object --stdin`.
	h := HashObject(TypeBlob, []byte("hi\n"))
	if h != "45b983be36b73c0788dc9cbcb76cbb80fc7bb057" {
		t.Errorf("blob hash: got %s", h)
	}
	h = HashObject(TypeBlob, []byte("hi"))
	if h != "32f95c0d1244a78b2be1bab8de17906fabb2c4a8" {
		t.Errorf("blob hash without newline: got %s", h)
	}
}

func TestHashRawRoundTrip(t *testing.T) {
	h := HashObject(TypeBlob, []byte("roundtrip"))
	raw, err := h.Raw()
	if err != nil {
		t.Fatalf("Raw: %v", err)
	}
	if len(raw) != HashRawLen {
		t.Fatalf("raw length: got %d, want %d", len(raw), HashRawLen)
	}
	back, err := HashFromRaw(raw)
	if err != nil {
		t.Fatalf("HashFromRaw: %v", err)
	}
	if back != h {
		t.Errorf("round trip: got %s, want %s", back, h)
	}
}

func tempStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(t.TempDir())
}

func TestStoreWriteRead(t *testing.T) {
	s := tempStore(t)
	data := []byte("hello world")
	h, err := s.Write(TypeBlob, data)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(h) != HashHexLen {
		t.Errorf("Hash length: got %d, want %d", len(h), HashHexLen)
	}

	gotType, gotData, err := s.Read(h)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if gotType != TypeBlob {
		t.Errorf("Type: got %q, want %q", gotType, TypeBlob)
	}
	if !bytes.Equal(gotData, data) {
		t.Errorf("Data: got %q, want %q", gotData, data)
	}
}

func TestStoreWriteIdempotent(t *testing.T) {
	s := tempStore(t)
	h1, err := s.Write(TypeBlob, []byte("same"))
	if err != nil {
		t.Fatalf("first Write: %v", err)
	}
	h2, err := s.Write(TypeBlob, []byte("same"))
	if err != nil {
		t.Fatalf("second Write: %v", err)
	}
	if h1 != h2 {
		t.Errorf("hashes differ: %s vs %s", h1, h2)
	}
}

func TestStoreLooseFileIsDeflated(t *testing.T) {
	s := tempStore(t)
	data := []byte("some file content\n")
	h, err := s.Write(TypeBlob, data)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	raw, err := os.ReadFile(s.loosePath(h))
	if err != nil {
		t.Fatalf("read loose file: %v", err)
	}
	// zlib streams start with 0x78.
	if len(raw) == 0 || raw[0] != 0x78 {
		t.Errorf("loose file does not look like zlib: % x", raw)
	}
	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("open zlib stream: %v", err)
	}
	defer zr.Close()
	inflated, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("inflate loose file: %v", err)
	}
	want := append([]byte(fmt.Sprintf("blob %d\x00", len(data))), data...)
	if !bytes.Equal(inflated, want) {
		t.Errorf("inflated loose file = %q, want %q", inflated, want)
	}
}

func TestStoreReadMissing(t *testing.T) {
	s := tempStore(t)
	_, _, err := s.Read(HashObject(TypeBlob, []byte("never written")))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreReadCorruptCompression(t *testing.T) {
	s := tempStore(t)
	h, err := s.Write(TypeBlob, []byte("about to be corrupted"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := os.WriteFile(s.loosePath(h), []byte("not a zlib stream"), 0o644); err != nil {
		t.Fatalf("overwrite loose: %v", err)
	}
	_, _, err = s.Read(h)
	if !errors.Is(err, ErrCorrupt) {
		t.Errorf("expected ErrCorrupt, got %v", err)
	}
}

func TestStoreReadHashMismatch(t *testing.T) {
	s := tempStore(t)
	h1, err := s.Write(TypeBlob, []byte("content one"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	h2, err := s.Write(TypeBlob, []byte("content two"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	// Swap h2's file into h1's location.
	data, err := os.ReadFile(s.loosePath(h2))
	if err != nil {
		t.Fatalf("read loose: %v", err)
	}
	if err := os.WriteFile(s.loosePath(h1), data, 0o644); err != nil {
		t.Fatalf("overwrite loose: %v", err)
	}

	_, _, err = s.Read(h1)
	if !errors.Is(err, ErrCorrupt) {
		t.Errorf("expected ErrCorrupt on hash mismatch, got %v", err)
	}
}

func TestStoreHas(t *testing.T) {
	s := tempStore(t)
	h, err := s.Write(TypeBlob, []byte("present"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !s.Has(h) {
		t.Error("Has(written) = false")
	}
	if s.Has(HashObject(TypeBlob, []byte("absent"))) {
		t.Error("Has(absent) = true")
	}
	if s.Has("not a hash") {
		t.Error("Has(malformed) = true")
	}
}

func TestStoreTypedRoundTrips(t *testing.T) {
	s := tempStore(t)

	blobHash, err := s.WriteBlob(&Blob{Data: []byte("blob body")})
	if err != nil {
		t.Fatalf("WriteBlob: %v", err)
	}
	blob, err := s.ReadBlob(blobHash)
	if err != nil {
		t.Fatalf("ReadBlob: %v", err)
	}
	if string(blob.Data) != "blob body" {
		t.Errorf("blob data: %q", blob.Data)
	}

	treeHash, err := s.WriteTree(&TreeObj{Entries: []TreeEntry{
		{Name: "a.txt", Mode: TreeModeFile, BlobHash: blobHash},
	}})
	if err != nil {
		t.Fatalf("WriteTree: %v", err)
	}
	tree, err := s.ReadTree(treeHash)
	if err != nil {
		t.Fatalf("ReadTree: %v", err)
	}
	if len(tree.Entries) != 1 || tree.Entries[0].Name != "a.txt" {
		t.Errorf("tree entries: %+v", tree.Entries)
	}

	commitHash, err := s.WriteCommit(&CommitObj{
		TreeHash:  treeHash,
		Author:    "Test <test@example.com>",
		Timestamp: 1700000000,
		Message:   "initial",
	})
	if err != nil {
		t.Fatalf("WriteCommit: %v", err)
	}
	commit, err := s.ReadCommit(commitHash)
	if err != nil {
		t.Fatalf("ReadCommit: %v", err)
	}
	if commit.TreeHash != treeHash {
		t.Errorf("commit tree: got %s, want %s", commit.TreeHash, treeHash)
	}

	tagHash, err := s.WriteTag(&TagObj{
		TargetHash: commitHash,
		TargetType: TypeCommit,
		Name:       "v1",
		Tagger:     "Test <test@example.com>",
		Timestamp:  1700000000,
		Message:    "release",
	})
	if err != nil {
		t.Fatalf("WriteTag: %v", err)
	}
	tag, err := s.ReadTag(tagHash)
	if err != nil {
		t.Fatalf("ReadTag: %v", err)
	}
	if tag.TargetHash != commitHash {
		t.Errorf("tag target: got %s, want %s", tag.TargetHash, commitHash)
	}

	// Type confusion must error.
	if _, err := s.ReadCommit(blobHash); err == nil {
		t.Error("ReadCommit(blob) did not fail")
	}
}

func TestStoreFanoutLayout(t *testing.T) {
	s := tempStore(t)
	h, err := s.Write(TypeBlob, []byte("fanout"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	want := filepath.Join(s.root, "objects", string(h[:2]), string(h[2:]))
	if _, err := os.Stat(want); err != nil {
		t.Errorf("expected loose file at %s: %v", want, err)
	}
}
