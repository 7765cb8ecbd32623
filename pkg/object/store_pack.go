package object

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

const (
	// repackWindowSize is how many prior same-kind objects are tried as
	// delta bases for each candidate.
	repackWindowSize = 10

	// repackDeltaOverhead approximates the pack entry framing cost charged
	// against a delta before it is accepted.
	repackDeltaOverhead = 32
)

// GCSummary reports the outcome of Store.Repack.
type GCSummary struct {
	PackedObjects int
	DeltaObjects  int
	PrunedLoose   int
	PackFile      string
	IndexFile     string
}

// VerifySummary reports the outcome of Store.Verify.
type VerifySummary struct {
	LooseObjects int
	PackFiles    int
	PackObjects  int
}

// Repack consolidates every object reachable from roots into a single new
// pack with delta compression, then unlinks the loose files it subsumed.
// When prune is set, loose objects not reachable from any root are deleted
// as well. The pack and its index are written via temp-file rename; loose
// objects are only removed after both are durably in place.
func (s *Store) Repack(roots []Hash, hints map[Hash]string, prune bool) (*GCSummary, error) {
	reachable, err := s.ReachableSet(roots)
	if err != nil {
		return nil, fmt.Errorf("repack: %w", err)
	}

	candidates := make([]repackCandidate, 0, len(reachable))
	for h := range reachable {
		objType, data, err := s.Read(h)
		if err != nil {
			return nil, fmt.Errorf("repack: read %s: %w", h, err)
		}
		candidates = append(candidates, repackCandidate{
			hash:    h,
			objType: objType,
			data:    data,
			hint:    repackSortHint(h, hints),
		})
	}

	summary := &GCSummary{}
	if len(candidates) > 0 {
		if err := s.writeRepackedPack(candidates, summary); err != nil {
			return nil, err
		}
	}

	// Unlink loose forms that are now packed, and optionally everything
	// unreachable. Only after the pack+idx pair has been renamed in.
	looseHashes, err := s.listLooseObjectHashes()
	if err != nil {
		return nil, fmt.Errorf("repack: %w", err)
	}
	for _, h := range looseHashes {
		_, packed := reachable[h]
		if !packed && !prune {
			continue
		}
		if err := os.Remove(s.loosePath(h)); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("repack: unlink loose %s: %w", h, err)
		}
		if !packed {
			summary.PrunedLoose++
		}
	}

	return summary, nil
}

type repackCandidate struct {
	hash    Hash
	objType ObjectType
	data    []byte
	hint    string
}

// repackSortHint prefers a caller-supplied path hint (basename) so that
// successive versions of the same file sort adjacently in the delta window.
func repackSortHint(h Hash, hints map[Hash]string) string {
	if p, ok := hints[h]; ok && p != "" {
		return path.Base(p)
	}
	return ""
}

func repackKindRank(t ObjectType) int {
	switch t {
	case TypeCommit:
		return 0
	case TypeTag:
		return 1
	case TypeTree:
		return 2
	default:
		return 3
	}
}

func (s *Store) writeRepackedPack(candidates []repackCandidate, summary *GCSummary) error {
	sources := make([]PackSource, len(candidates))
	for i, cand := range candidates {
		sources[i] = PackSource{Hash: cand.hash, Type: cand.objType, Data: cand.data, Hint: cand.hint}
	}

	packDir := filepath.Join(s.root, "objects", "pack")
	if err := os.MkdirAll(packDir, 0o755); err != nil {
		return fmt.Errorf("repack: mkdir pack dir: %w", err)
	}

	packTmp, err := os.CreateTemp(packDir, ".tmp-pack-*.pack")
	if err != nil {
		return fmt.Errorf("repack: create pack temp file: %w", err)
	}
	packTmpPath := packTmp.Name()
	packTmpRemoved := false
	defer func() {
		if !packTmpRemoved {
			_ = os.Remove(packTmpPath)
		}
	}()

	pw, err := NewPackWriter(packTmp, uint32(len(sources)))
	if err != nil {
		_ = packTmp.Close()
		return fmt.Errorf("repack: create pack writer: %w", err)
	}

	built, err := WriteDeltifiedPack(pw, sources, nil)
	if err != nil {
		_ = packTmp.Close()
		return fmt.Errorf("repack: %w", err)
	}
	summary.DeltaObjects = built.DeltaObjects
	indexEntries := built.Entries

	packChecksum, err := pw.Finish()
	if err != nil {
		_ = packTmp.Close()
		return fmt.Errorf("repack: finalize pack: %w", err)
	}
	if err := packTmp.Close(); err != nil {
		return fmt.Errorf("repack: close pack temp file: %w", err)
	}

	packBase := "pack-" + string(packChecksum)
	packPath := filepath.Join(packDir, packBase+".pack")
	idxPath := filepath.Join(packDir, packBase+".idx")
	if err := os.Rename(packTmpPath, packPath); err != nil {
		return fmt.Errorf("repack: rename pack file: %w", err)
	}
	packTmpRemoved = true

	idxTmp, err := os.CreateTemp(packDir, ".tmp-pack-*.idx")
	if err != nil {
		_ = os.Remove(packPath)
		return fmt.Errorf("repack: create index temp file: %w", err)
	}
	idxTmpPath := idxTmp.Name()
	idxTmpRemoved := false
	defer func() {
		if !idxTmpRemoved {
			_ = os.Remove(idxTmpPath)
		}
	}()

	if _, err := WritePackIndex(idxTmp, indexEntries, packChecksum); err != nil {
		_ = idxTmp.Close()
		_ = os.Remove(packPath)
		return fmt.Errorf("repack: write pack index: %w", err)
	}
	if err := idxTmp.Close(); err != nil {
		_ = os.Remove(packPath)
		return fmt.Errorf("repack: close index temp file: %w", err)
	}
	if err := os.Rename(idxTmpPath, idxPath); err != nil {
		_ = os.Remove(packPath)
		return fmt.Errorf("repack: rename index file: %w", err)
	}
	idxTmpRemoved = true

	summary.PackedObjects = len(candidates)
	summary.PackFile = filepath.Base(packPath)
	summary.IndexFile = filepath.Base(idxPath)
	return nil
}

// Verify checks object integrity across loose objects and pack/index pairs.
func (s *Store) Verify() (*VerifySummary, error) {
	report := &VerifySummary{}

	looseHashes, err := s.listLooseObjectHashes()
	if err != nil {
		return nil, err
	}
	for _, h := range looseHashes {
		if _, _, err := s.readLoose(h); err != nil {
			return nil, fmt.Errorf("verify loose %s: %w", h, err)
		}
		report.LooseObjects++
	}

	idxPaths, err := s.listPackIndexPaths()
	if err != nil {
		return nil, err
	}
	for _, idxPath := range idxPaths {
		cp, err := s.loadPack(idxPath)
		if err != nil {
			return nil, fmt.Errorf("verify pack %s: %w", filepath.Base(idxPath), err)
		}
		for _, indexEntry := range cp.idx.Entries() {
			objType, data, err := s.resolvePackEntryAt(cp, indexEntry.Offset, 0)
			if err != nil {
				return nil, fmt.Errorf("verify pack %s hash %s: %w", filepath.Base(idxPath), indexEntry.Hash, err)
			}
			if computed := HashObject(objType, data); computed != indexEntry.Hash {
				return nil, fmt.Errorf(
					"verify pack %s: %w: hash mismatch for %s (computed %s)",
					filepath.Base(idxPath), ErrCorrupt, indexEntry.Hash, computed,
				)
			}
			report.PackObjects++
		}
		report.PackFiles++
	}

	return report, nil
}

// packedLocation finds the pack index entry for h, if any pack carries it.
func (s *Store) packedLocation(h Hash) (*PackIndexEntry, error) {
	idxPaths, err := s.listPackIndexPaths()
	if err != nil {
		return nil, err
	}
	for _, idxPath := range idxPaths {
		cp, err := s.loadPack(idxPath)
		if err != nil {
			return nil, err
		}
		if entry, ok := cp.idx.Find(h); ok {
			return &entry, nil
		}
	}
	return nil, nil
}

// readFromPacks resolves h from the pack files, following delta chains.
func (s *Store) readFromPacks(h Hash) (ObjectType, []byte, error) {
	idxPaths, err := s.listPackIndexPaths()
	if err != nil {
		return "", nil, err
	}
	for _, idxPath := range idxPaths {
		cp, err := s.loadPack(idxPath)
		if err != nil {
			return "", nil, fmt.Errorf("object read %s: %w", h, err)
		}
		entry, ok := cp.idx.Find(h)
		if !ok {
			continue
		}

		objType, data, err := s.resolvePackEntryAt(cp, entry.Offset, 0)
		if err != nil {
			return "", nil, fmt.Errorf("object read %s: %w", h, err)
		}
		if computed := HashObject(objType, data); computed != h {
			return "", nil, fmt.Errorf("object read %s: %w: hash mismatch (computed %s)", h, ErrCorrupt, computed)
		}
		return objType, data, nil
	}

	return "", nil, fmt.Errorf("object read %s: %w", h, ErrNotFound)
}

// resolvePackEntryAt materialises the entry at a pack offset, recursively
// resolving ofs-delta and ref-delta bases. depth bounds corrupted chains.
func (s *Store) resolvePackEntryAt(cp *cachedPack, offset uint64, depth int) (ObjectType, []byte, error) {
	if depth > maxDeltaChainDepth {
		return "", nil, fmt.Errorf("%w: delta chain deeper than %d", ErrCorrupt, maxDeltaChainDepth)
	}
	entry, ok := cp.entries[offset]
	if !ok {
		return "", nil, fmt.Errorf("%w: no pack entry at offset %d", ErrCorrupt, offset)
	}

	switch entry.Type {
	case PackCommit, PackTree, PackBlob, PackTag:
		objType, _ := ObjectTypeForPackType(entry.Type)
		return objType, entry.Data, nil
	case PackOfsDelta:
		baseType, baseData, err := s.resolvePackEntryAt(cp, entry.Offset-entry.BaseDistance, depth+1)
		if err != nil {
			return "", nil, err
		}
		data, err := applyDelta(baseData, entry.Data)
		if err != nil {
			return "", nil, fmt.Errorf("%w: apply ofs-delta at %d: %v", ErrCorrupt, entry.Offset, err)
		}
		return baseType, data, nil
	case PackRefDelta:
		// The base may live in this pack, another pack, or loose.
		var (
			baseType ObjectType
			baseData []byte
		)
		if baseEntry, ok := cp.idx.Find(entry.BaseHash); ok {
			var err error
			baseType, baseData, err = s.resolvePackEntryAt(cp, baseEntry.Offset, depth+1)
			if err != nil {
				return "", nil, err
			}
		} else {
			var err error
			baseType, baseData, err = s.Read(entry.BaseHash)
			if err != nil {
				return "", nil, fmt.Errorf("%w: ref-delta base %s: %v", ErrCorrupt, entry.BaseHash, err)
			}
		}
		data, err := applyDelta(baseData, entry.Data)
		if err != nil {
			return "", nil, fmt.Errorf("%w: apply ref-delta at %d: %v", ErrCorrupt, entry.Offset, err)
		}
		return baseType, data, nil
	default:
		return "", nil, fmt.Errorf("%w: unknown pack entry type %d", ErrCorrupt, entry.Type)
	}
}

// loadPack parses and caches a pack index plus its pack entries, keyed by
// idx path. Packs are immutable once renamed into place, so the cache is
// never invalidated.
func (s *Store) loadPack(idxPath string) (*cachedPack, error) {
	s.packMu.Lock()
	defer s.packMu.Unlock()
	if cp, ok := s.packCache[idxPath]; ok {
		return cp, nil
	}

	idxData, err := os.ReadFile(idxPath)
	if err != nil {
		return nil, fmt.Errorf("read pack index %s: %w", filepath.Base(idxPath), err)
	}
	idx, err := ReadPackIndex(idxData)
	if err != nil {
		return nil, fmt.Errorf("parse pack index %s: %w", filepath.Base(idxPath), err)
	}

	packPath := packPathForIndex(idxPath)
	packData, err := os.ReadFile(packPath)
	if err != nil {
		return nil, fmt.Errorf("read pack %s: %w", filepath.Base(packPath), err)
	}
	pf, err := ReadPack(packData)
	if err != nil {
		return nil, fmt.Errorf("parse pack %s: %w", filepath.Base(packPath), err)
	}
	if pf.Checksum != idx.PackChecksum {
		return nil, fmt.Errorf(
			"%w: checksum mismatch between idx %s and pack %s",
			ErrCorrupt, filepath.Base(idxPath), filepath.Base(packPath),
		)
	}

	entries := make(map[uint64]PackEntry, len(pf.Entries))
	for _, entry := range pf.Entries {
		entries[entry.Offset] = entry
	}

	cp := &cachedPack{idx: idx, entries: entries}
	s.packCache[idxPath] = cp
	return cp, nil
}

func (s *Store) listPackIndexPaths() ([]string, error) {
	packDir := filepath.Join(s.root, "objects", "pack")
	entries, err := os.ReadDir(packDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read pack dir: %w", err)
	}

	idxPaths := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !strings.HasSuffix(entry.Name(), ".idx") {
			continue
		}
		idxPaths = append(idxPaths, filepath.Join(packDir, entry.Name()))
	}
	sort.Strings(idxPaths)
	return idxPaths, nil
}

func (s *Store) listLooseObjectHashes() ([]Hash, error) {
	objectsDir := filepath.Join(s.root, "objects")
	fanoutDirs, err := os.ReadDir(objectsDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read objects dir: %w", err)
	}

	hashes := make([]Hash, 0)
	for _, fanoutDir := range fanoutDirs {
		if !fanoutDir.IsDir() {
			continue
		}
		prefix := fanoutDir.Name()
		if prefix == "pack" || !isHexHashComponent(prefix, 2) {
			continue
		}

		objectDir := filepath.Join(objectsDir, prefix)
		objectEntries, err := os.ReadDir(objectDir)
		if err != nil {
			return nil, fmt.Errorf("read objects fanout %s: %w", prefix, err)
		}
		for _, objectEntry := range objectEntries {
			if objectEntry.IsDir() {
				continue
			}
			suffix := objectEntry.Name()
			if !isHexHashComponent(suffix, HashHexLen-2) {
				continue
			}
			hashes = append(hashes, Hash(prefix+suffix))
		}
	}

	sort.Slice(hashes, func(i, j int) bool {
		return hashes[i] < hashes[j]
	})
	return hashes, nil
}

func isHexHashComponent(s string, expectedLen int) bool {
	if len(s) != expectedLen {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

func packPathForIndex(idxPath string) string {
	return strings.TrimSuffix(idxPath, ".idx") + ".pack"
}
