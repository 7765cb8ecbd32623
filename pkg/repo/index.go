package repo

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/odvcencio/grit/pkg/object"
)

// Merge stages of an index entry. Stage 0 is the normal staged state;
// stages 1-3 exist only while a merge conflict is unresolved.
const (
	StageNormal = 0
	StageBase   = 1
	StageOurs   = 2
	StageTheirs = 3
)

// IndexEntry records the staged state of one path at one stage.
type IndexEntry struct {
	Path     string
	Mode     string // tree mode string: 100644 or 100755
	BlobHash object.Hash
	Size     int64
	ModTime  int64 // unix nanoseconds, 0 when unknown
	Stage    int
}

// Index is the staging area: entries sorted by (path, stage), no duplicate
// (path, stage) pairs.
type Index struct {
	Entries []*IndexEntry
}

// Get returns the stage-0 entry for path, or nil.
func (ix *Index) Get(path string) *IndexEntry {
	for _, e := range ix.Entries {
		if e.Path == path && e.Stage == StageNormal {
			return e
		}
	}
	return nil
}

// StagesFor returns every entry recorded for path, any stage.
func (ix *Index) StagesFor(path string) []*IndexEntry {
	var out []*IndexEntry
	for _, e := range ix.Entries {
		if e.Path == path {
			out = append(out, e)
		}
	}
	return out
}

// Set upserts an entry, replacing any existing entry at the same
// (path, stage). Setting a stage-0 entry clears conflict stages for the
// path; recording a conflict stage clears stage 0.
func (ix *Index) Set(e *IndexEntry) {
	keep := ix.Entries[:0]
	for _, cur := range ix.Entries {
		if cur.Path != e.Path {
			keep = append(keep, cur)
			continue
		}
		if cur.Stage == e.Stage {
			continue
		}
		if e.Stage == StageNormal && cur.Stage != StageNormal {
			continue
		}
		if e.Stage != StageNormal && cur.Stage == StageNormal {
			continue
		}
		keep = append(keep, cur)
	}
	ix.Entries = append(keep, e)
	ix.sort()
}

// Remove drops every stage of path. Reports whether anything was removed.
func (ix *Index) Remove(path string) bool {
	keep := ix.Entries[:0]
	removed := false
	for _, cur := range ix.Entries {
		if cur.Path == path {
			removed = true
			continue
		}
		keep = append(keep, cur)
	}
	ix.Entries = keep
	return removed
}

// HasConflicts reports whether any unresolved merge stages remain.
func (ix *Index) HasConflicts() bool {
	for _, e := range ix.Entries {
		if e.Stage != StageNormal {
			return true
		}
	}
	return false
}

// ConflictPaths returns the sorted set of paths with unresolved stages.
func (ix *Index) ConflictPaths() []string {
	seen := make(map[string]struct{})
	for _, e := range ix.Entries {
		if e.Stage != StageNormal {
			seen[e.Path] = struct{}{}
		}
	}
	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (ix *Index) sort() {
	sort.Slice(ix.Entries, func(i, j int) bool {
		a, b := ix.Entries[i], ix.Entries[j]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		return a.Stage < b.Stage
	})
}

// ---------------------------------------------------------------------------
// Binary persistence
// ---------------------------------------------------------------------------

// On-disk layout: magic, u32 version, u32 entry count, then per entry
// u16 path length, path bytes, u8 stage, u32 octal mode, 20-byte raw blob
// hash, u64 size, u64 mtime (unix nanos), and finally a SHA-1 over all
// preceding bytes. Entries are stored in (path, stage) order.
var indexMagic = [4]byte{'G', 'I', 'D', 'X'}

const indexVersion = 1

func (r *Repo) indexPath() string {
	return filepath.Join(r.GitDir, "index")
}

// ReadIndex loads the staging area from .git/index. A missing file is an
// empty index, not an error.
func (r *Repo) ReadIndex() (*Index, error) {
	data, err := os.ReadFile(r.indexPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Index{}, nil
		}
		return nil, fmt.Errorf("read index: %w", err)
	}
	ix, err := unmarshalIndex(data)
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	return ix, nil
}

// WriteIndex atomically replaces .git/index, serialized through the
// index.lock lockfile.
func (r *Repo) WriteIndex(ix *Index) error {
	ix.sort()
	data, err := marshalIndex(ix)
	if err != nil {
		return fmt.Errorf("write index: %w", err)
	}

	lockPath := r.indexPath() + ".lock"
	lockFile, err := acquireLockFile(lockPath)
	if err != nil {
		return fmt.Errorf("write index: lock: %w", err)
	}
	cleanupLock := true
	defer func() {
		if lockFile != nil {
			_ = lockFile.Close()
		}
		if cleanupLock {
			_ = os.Remove(lockPath)
		}
	}()

	if _, err := lockFile.Write(data); err != nil {
		return fmt.Errorf("write index: write: %w", err)
	}
	if err := lockFile.Sync(); err != nil {
		return fmt.Errorf("write index: sync: %w", err)
	}
	if err := lockFile.Close(); err != nil {
		lockFile = nil
		return fmt.Errorf("write index: close: %w", err)
	}
	lockFile = nil

	if err := os.Rename(lockPath, r.indexPath()); err != nil {
		return fmt.Errorf("write index: rename: %w", err)
	}
	cleanupLock = false
	return nil
}

func marshalIndex(ix *Index) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(indexMagic[:])
	binary.Write(&buf, binary.BigEndian, uint32(indexVersion))
	binary.Write(&buf, binary.BigEndian, uint32(len(ix.Entries)))

	for _, e := range ix.Entries {
		if strings.Contains(e.Path, "\x00") || e.Path == "" {
			return nil, fmt.Errorf("invalid index path %q", e.Path)
		}
		if len(e.Path) > 0xffff {
			return nil, fmt.Errorf("index path too long: %q", e.Path)
		}
		mode, err := strconv.ParseUint(normalizeFileMode(e.Mode), 8, 32)
		if err != nil {
			return nil, fmt.Errorf("entry %q: bad mode %q", e.Path, e.Mode)
		}
		raw, err := e.BlobHash.Raw()
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", e.Path, err)
		}

		binary.Write(&buf, binary.BigEndian, uint16(len(e.Path)))
		buf.WriteString(e.Path)
		buf.WriteByte(byte(e.Stage))
		binary.Write(&buf, binary.BigEndian, uint32(mode))
		buf.Write(raw)
		binary.Write(&buf, binary.BigEndian, uint64(e.Size))
		binary.Write(&buf, binary.BigEndian, uint64(e.ModTime))
	}

	sum := sha1.Sum(buf.Bytes())
	buf.Write(sum[:])
	return buf.Bytes(), nil
}

func unmarshalIndex(data []byte) (*Index, error) {
	if len(data) < len(indexMagic)+8+sha1.Size {
		return nil, fmt.Errorf("index too short: %d bytes", len(data))
	}

	payload := data[:len(data)-sha1.Size]
	trailer := data[len(data)-sha1.Size:]
	sum := sha1.Sum(payload)
	if !bytes.Equal(sum[:], trailer) {
		return nil, fmt.Errorf("index checksum mismatch")
	}

	if !bytes.Equal(payload[:4], indexMagic[:]) {
		return nil, fmt.Errorf("bad index magic %q", payload[:4])
	}
	version := binary.BigEndian.Uint32(payload[4:8])
	if version != indexVersion {
		return nil, fmt.Errorf("unsupported index version %d", version)
	}
	count := binary.BigEndian.Uint32(payload[8:12])

	ix := &Index{}
	off := 12
	for i := uint32(0); i < count; i++ {
		if off+2 > len(payload) {
			return nil, fmt.Errorf("entry %d: truncated", i)
		}
		pathLen := int(binary.BigEndian.Uint16(payload[off : off+2]))
		off += 2

		need := pathLen + 1 + 4 + object.HashRawLen + 8 + 8
		if off+need > len(payload) {
			return nil, fmt.Errorf("entry %d: truncated", i)
		}
		path := string(payload[off : off+pathLen])
		off += pathLen
		stage := int(payload[off])
		off++
		mode := binary.BigEndian.Uint32(payload[off : off+4])
		off += 4
		h, err := object.HashFromRaw(payload[off : off+object.HashRawLen])
		if err != nil {
			return nil, fmt.Errorf("entry %d (%q): %w", i, path, err)
		}
		off += object.HashRawLen
		size := binary.BigEndian.Uint64(payload[off : off+8])
		off += 8
		mtime := binary.BigEndian.Uint64(payload[off : off+8])
		off += 8

		if stage < StageNormal || stage > StageTheirs {
			return nil, fmt.Errorf("entry %d (%q): bad stage %d", i, path, stage)
		}
		ix.Entries = append(ix.Entries, &IndexEntry{
			Path:     path,
			Mode:     strconv.FormatUint(uint64(mode), 8),
			BlobHash: h,
			Size:     int64(size),
			ModTime:  int64(mtime),
			Stage:    stage,
		})
	}
	if off != len(payload) {
		return nil, fmt.Errorf("index has %d trailing bytes", len(payload)-off)
	}

	// The file is required to be sorted; do not trust it blindly.
	ix.sort()
	return ix, nil
}

// ---------------------------------------------------------------------------
// Staging operations
// ---------------------------------------------------------------------------

// Add stages the given files or directories (recursively, honouring ignore
// rules). Each path is resolved relative to the repository root.
func (r *Repo) Add(paths []string) error {
	ix, err := r.ReadIndex()
	if err != nil {
		return fmt.Errorf("add: %w", err)
	}

	ic := NewIgnoreChecker(r.RootDir)
	for _, p := range paths {
		relPath, err := r.repoRelPath(p)
		if err != nil {
			return fmt.Errorf("add: resolve path %q: %w", p, err)
		}

		absPath := filepath.Join(r.RootDir, filepath.FromSlash(relPath))
		info, err := os.Stat(absPath)
		if err != nil {
			return fmt.Errorf("add: stat %q: %w", relPath, err)
		}

		if info.IsDir() {
			if err := r.stageDir(ix, ic, relPath); err != nil {
				return fmt.Errorf("add: %w", err)
			}
			continue
		}
		if err := r.stageFile(ix, relPath); err != nil {
			return fmt.Errorf("add: %w", err)
		}
	}

	if err := r.WriteIndex(ix); err != nil {
		return fmt.Errorf("add: %w", err)
	}
	return nil
}

func (r *Repo) stageDir(ix *Index, ic *IgnoreChecker, relDir string) error {
	root := filepath.Join(r.RootDir, filepath.FromSlash(relDir))
	if relDir == "." {
		root = r.RootDir
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(r.RootDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}
		if ic.Match(rel, d.IsDir()) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		return r.stageFile(ix, rel)
	})
}

// stageFile reads the file, writes its blob, and records a stage-0 entry
// (clearing any conflict stages for the path).
func (r *Repo) stageFile(ix *Index, relPath string) error {
	absPath := filepath.Join(r.RootDir, filepath.FromSlash(relPath))
	content, err := os.ReadFile(absPath)
	if err != nil {
		return fmt.Errorf("read %q: %w", relPath, err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("stat %q: %w", relPath, err)
	}

	blobHash, err := r.Store.WriteBlob(&object.Blob{Data: content})
	if err != nil {
		return fmt.Errorf("write blob %q: %w", relPath, err)
	}

	ix.Set(&IndexEntry{
		Path:     relPath,
		Mode:     modeFromFileInfo(info),
		BlobHash: blobHash,
		Size:     info.Size(),
		ModTime:  info.ModTime().UnixNano(),
		Stage:    StageNormal,
	})
	return nil
}

// RemovePaths unstages the given paths. Unless cached is set, the
// working-tree files are deleted as well.
func (r *Repo) RemovePaths(paths []string, cached bool) error {
	ix, err := r.ReadIndex()
	if err != nil {
		return fmt.Errorf("rm: %w", err)
	}

	for _, p := range paths {
		relPath, err := r.repoRelPath(p)
		if err != nil {
			return fmt.Errorf("rm: resolve path %q: %w", p, err)
		}
		if !ix.Remove(relPath) {
			return fmt.Errorf("rm: %q is not staged", relPath)
		}
		if cached {
			continue
		}
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(relPath))
		if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("rm: remove %q: %w", relPath, err)
		}
		r.removeEmptyParents(filepath.Dir(absPath))
	}

	if err := r.WriteIndex(ix); err != nil {
		return fmt.Errorf("rm: %w", err)
	}
	return nil
}

// repoRelPath converts a path (absolute, or relative to CWD) into a
// slash-separated path relative to the repository root. Paths that cannot
// be resolved against the root are assumed to already be repo-relative.
func (r *Repo) repoRelPath(p string) (string, error) {
	if filepath.IsAbs(p) {
		rel, err := filepath.Rel(r.RootDir, p)
		if err != nil {
			return "", fmt.Errorf("cannot make %q relative to %q: %w", p, r.RootDir, err)
		}
		return filepath.ToSlash(rel), nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return filepath.ToSlash(filepath.Clean(p)), nil
	}

	abs := filepath.Join(cwd, p)
	rel, err := filepath.Rel(r.RootDir, abs)
	if err != nil {
		return filepath.ToSlash(filepath.Clean(p)), nil
	}
	if strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(filepath.Clean(p)), nil
	}
	return filepath.ToSlash(rel), nil
}
