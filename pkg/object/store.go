package object

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/klauspost/compress/zlib"
)

// Sentinel errors for store lookups. ErrCorrupt covers bad zlib streams,
// envelope length mismatches, hash mismatches, and broken delta chains.
var (
	ErrNotFound = errors.New("object not found")
	ErrCorrupt  = errors.New("corrupt object")
)

// Store is a content-addressed object store with a 2-character fan-out
// directory layout for loose objects (objects/ab/cdef0123...) and pack
// files with parallel indexes under objects/pack/.
type Store struct {
	root string

	packMu    sync.Mutex
	packCache map[string]*cachedPack
}

type cachedPack struct {
	idx     *PackIndex
	entries map[uint64]PackEntry
}

// NewStore creates a Store rooted at the given directory. The objects/
// subdirectory is created lazily on first write.
func NewStore(root string) *Store {
	return &Store{root: root, packCache: make(map[string]*cachedPack)}
}

// loosePath returns the filesystem path for a loose object.
func (s *Store) loosePath(h Hash) string {
	return filepath.Join(s.root, "objects", string(h[:2]), string(h[2:]))
}

// Has reports whether the store contains an object with the given hash,
// loose or packed.
func (s *Store) Has(h Hash) bool {
	if !h.IsValid() {
		return false
	}
	if _, err := os.Stat(s.loosePath(h)); err == nil {
		return true
	}
	found, err := s.packedLocation(h)
	return err == nil && found != nil
}

// Write stores an object and returns its content hash. The loose on-disk
// form is the zlib-deflated envelope "type len\0content". Writes are
// atomic: data goes to a temp file which is then renamed into place. An
// object already present (loose or packed) is not rewritten.
func (s *Store) Write(objType ObjectType, data []byte) (Hash, error) {
	h := HashObject(objType, data)
	if s.Has(h) {
		return h, nil
	}

	dir := filepath.Join(s.root, "objects", string(h[:2]))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("object write mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("object write tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	zw := zlib.NewWriter(tmp)
	if _, err := zw.Write(makeObjectEnvelope(objType, data)); err != nil {
		_ = zw.Close()
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("object write deflate: %w", err)
	}
	if err := zw.Close(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("object write deflate close: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("object write close: %w", err)
	}

	if err := os.Rename(tmpName, s.loosePath(h)); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("object write rename: %w", err)
	}

	return h, nil
}

// Read retrieves an object by hash, returning its type and raw content.
// Loose form is searched first, then each pack index. The returned bytes
// are verified against the requested hash; a mismatch is ErrCorrupt.
func (s *Store) Read(h Hash) (ObjectType, []byte, error) {
	if !h.IsValid() {
		return "", nil, fmt.Errorf("object read %q: %w", h, ErrNotFound)
	}

	objType, data, err := s.readLoose(h)
	if err == nil {
		return objType, data, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", nil, err
	}
	return s.readFromPacks(h)
}

// readLoose reads and verifies a loose object file.
func (s *Store) readLoose(h Hash) (ObjectType, []byte, error) {
	f, err := os.Open(s.loosePath(h))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil, fmt.Errorf("object read %s: %w", h, ErrNotFound)
		}
		return "", nil, fmt.Errorf("object read %s: %w", h, err)
	}
	defer f.Close()

	zr, err := zlib.NewReader(f)
	if err != nil {
		return "", nil, fmt.Errorf("object read %s: %w: zlib: %v", h, ErrCorrupt, err)
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		_ = zr.Close()
		return "", nil, fmt.Errorf("object read %s: %w: inflate: %v", h, ErrCorrupt, err)
	}
	if err := zr.Close(); err != nil {
		return "", nil, fmt.Errorf("object read %s: %w: inflate close: %v", h, ErrCorrupt, err)
	}

	objType, data, err := parseObjectEnvelope(raw)
	if err != nil {
		return "", nil, fmt.Errorf("object read %s: %w: %v", h, ErrCorrupt, err)
	}
	if computed := HashObject(objType, data); computed != h {
		return "", nil, fmt.Errorf("object read %s: %w: hash mismatch (computed %s)", h, ErrCorrupt, computed)
	}
	return objType, data, nil
}

func makeObjectEnvelope(objType ObjectType, data []byte) []byte {
	header := fmt.Sprintf("%s %d\x00", objType, len(data))
	out := make([]byte, 0, len(header)+len(data))
	out = append(out, header...)
	out = append(out, data...)
	return out
}

// parseObjectEnvelope splits "type len\0content" and validates the length.
func parseObjectEnvelope(raw []byte) (ObjectType, []byte, error) {
	nulIdx := bytes.IndexByte(raw, 0)
	if nulIdx < 0 {
		return "", nil, fmt.Errorf("invalid envelope (no NUL)")
	}
	header := string(raw[:nulIdx])
	content := raw[nulIdx+1:]

	kind, lenStr, ok := strings.Cut(header, " ")
	if !ok {
		return "", nil, fmt.Errorf("invalid envelope header %q", header)
	}
	length, err := strconv.Atoi(lenStr)
	if err != nil {
		return "", nil, fmt.Errorf("invalid envelope length %q: %w", lenStr, err)
	}
	if len(content) != length {
		return "", nil, fmt.Errorf("envelope length mismatch (header=%d, actual=%d)", length, len(content))
	}
	return ObjectType(kind), content, nil
}

// ---------------------------------------------------------------------------
// Typed convenience methods
// ---------------------------------------------------------------------------

// WriteBlob serializes and stores a Blob.
func (s *Store) WriteBlob(b *Blob) (Hash, error) {
	return s.Write(TypeBlob, MarshalBlob(b))
}

// ReadBlob reads and deserializes a Blob.
func (s *Store) ReadBlob(h Hash) (*Blob, error) {
	objType, data, err := s.Read(h)
	if err != nil {
		return nil, err
	}
	if objType != TypeBlob {
		return nil, fmt.Errorf("object %s: type mismatch: got %q, want %q", h, objType, TypeBlob)
	}
	return UnmarshalBlob(data)
}

// WriteTree serializes and stores a TreeObj.
func (s *Store) WriteTree(tr *TreeObj) (Hash, error) {
	data, err := MarshalTree(tr)
	if err != nil {
		return "", err
	}
	return s.Write(TypeTree, data)
}

// ReadTree reads and deserializes a TreeObj.
func (s *Store) ReadTree(h Hash) (*TreeObj, error) {
	objType, data, err := s.Read(h)
	if err != nil {
		return nil, err
	}
	if objType != TypeTree {
		return nil, fmt.Errorf("object %s: type mismatch: got %q, want %q", h, objType, TypeTree)
	}
	return UnmarshalTree(data)
}

// WriteCommit serializes and stores a CommitObj.
func (s *Store) WriteCommit(c *CommitObj) (Hash, error) {
	return s.Write(TypeCommit, MarshalCommit(c))
}

// ReadCommit reads and deserializes a CommitObj.
func (s *Store) ReadCommit(h Hash) (*CommitObj, error) {
	objType, data, err := s.Read(h)
	if err != nil {
		return nil, err
	}
	if objType != TypeCommit {
		return nil, fmt.Errorf("object %s: type mismatch: got %q, want %q", h, objType, TypeCommit)
	}
	return UnmarshalCommit(data)
}

// WriteTag serializes and stores an annotated TagObj.
func (s *Store) WriteTag(t *TagObj) (Hash, error) {
	return s.Write(TypeTag, MarshalTag(t))
}

// ReadTag reads and deserializes a TagObj.
func (s *Store) ReadTag(h Hash) (*TagObj, error) {
	objType, data, err := s.Read(h)
	if err != nil {
		return nil, err
	}
	if objType != TypeTag {
		return nil, fmt.Errorf("object %s: type mismatch: got %q, want %q", h, objType, TypeTag)
	}
	return UnmarshalTag(data)
}
