package object

import (
	"encoding/hex"
	"fmt"
)

// Hash is a 40-character hex-encoded SHA-1 digest.
type Hash string

// HashHexLen and HashRawLen are the hex and raw widths of a Hash.
const (
	HashHexLen = 40
	HashRawLen = 20
)

// IsValid reports whether h is a well-formed lowercase hex digest.
func (h Hash) IsValid() bool {
	if len(h) != HashHexLen {
		return false
	}
	for _, c := range h {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Raw returns the 20-byte binary form of the hash.
func (h Hash) Raw() ([]byte, error) {
	if len(h) != HashHexLen {
		return nil, fmt.Errorf("hash %q: want %d hex chars", h, HashHexLen)
	}
	raw, err := hex.DecodeString(string(h))
	if err != nil {
		return nil, fmt.Errorf("hash %q: %w", h, err)
	}
	return raw, nil
}

// HashFromRaw converts a 20-byte binary digest to its hex form.
func HashFromRaw(raw []byte) (Hash, error) {
	if len(raw) != HashRawLen {
		return "", fmt.Errorf("raw hash: want %d bytes, got %d", HashRawLen, len(raw))
	}
	return Hash(hex.EncodeToString(raw)), nil
}

// ObjectType identifies the kind of object stored.
type ObjectType string

const (
	TypeBlob   ObjectType = "blob"
	TypeTree   ObjectType = "tree"
	TypeCommit ObjectType = "commit"
	TypeTag    ObjectType = "tag"
)

const (
	// Tree mode constants compatible with Git's canonical mode strings.
	TreeModeDir        = "40000"
	TreeModeFile       = "100644"
	TreeModeExecutable = "100755"
)

// Blob holds raw file data.
type Blob struct {
	Data []byte
}

// TreeEntry is one entry in a tree object.
type TreeEntry struct {
	Name        string
	IsDir       bool
	Mode        string
	BlobHash    Hash
	SubtreeHash Hash
}

// Target returns the hash the entry points at, blob or subtree.
func (e TreeEntry) Target() Hash {
	if e.IsDir {
		return e.SubtreeHash
	}
	return e.BlobHash
}

// TreeObj holds a sorted list of tree entries.
type TreeObj struct {
	Entries []TreeEntry // sorted by Name, subtrees as if suffixed with '/'
}

// CommitObj represents a commit pointing to a tree with metadata.
type CommitObj struct {
	TreeHash           Hash
	Parents            []Hash
	Author             string
	Timestamp          int64
	AuthorTimezone     string
	Committer          string
	CommitterTimestamp int64
	CommitterTimezone  string
	Message            string
}

// TagObj is an annotated tag referencing another object.
type TagObj struct {
	TargetHash Hash
	TargetType ObjectType
	Name       string
	Tagger     string
	Timestamp  int64
	Timezone   string
	Message    string
}
