package remote

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/odvcencio/grit/pkg/object"
)

// CreateBundle packs every object reachable from the given refs but not
// reachable from the prerequisites, producing a bundle the receiver can
// apply if it already has the prerequisite commits. An empty prereqs
// slice yields a self-contained bundle. Pack entries are delta-compressed
// against each other and, as ref-deltas, against the prerequisite tips.
func CreateBundle(store *object.Store, refs map[string]object.Hash, prereqs []Prereq) (*Bundle, error) {
	if len(refs) == 0 {
		return nil, fmt.Errorf("create bundle: no refs")
	}

	roots := make([]object.Hash, 0, len(refs))
	for name, h := range refs {
		if !store.Has(h) {
			return nil, fmt.Errorf("create bundle: ref %q points at missing object %s", name, h)
		}
		roots = append(roots, h)
	}

	stop := map[object.Hash]struct{}{}
	for _, p := range prereqs {
		if !store.Has(p.Hash) {
			return nil, fmt.Errorf("create bundle: prerequisite %s not present locally", p.Hash)
		}
		reach, err := store.ReachableSet([]object.Hash{p.Hash})
		if err != nil {
			return nil, fmt.Errorf("create bundle: %w", err)
		}
		for h := range reach {
			stop[h] = struct{}{}
		}
	}

	include, err := store.ReachableSet(roots)
	if err != nil {
		return nil, fmt.Errorf("create bundle: %w", err)
	}

	var hashes []object.Hash
	for h := range include {
		if _, excluded := stop[h]; !excluded {
			hashes = append(hashes, h)
		}
	}
	sort.Slice(hashes, func(i, j int) bool { return hashes[i] < hashes[j] })

	sources := make([]object.PackSource, 0, len(hashes))
	for _, h := range hashes {
		objType, data, err := store.Read(h)
		if err != nil {
			return nil, fmt.Errorf("create bundle: read %s: %w", h, err)
		}
		sources = append(sources, object.PackSource{Hash: h, Type: objType, Data: data})
	}
	bases, err := prereqBases(store, prereqs)
	if err != nil {
		return nil, fmt.Errorf("create bundle: %w", err)
	}

	var packBuf bytes.Buffer
	pw, err := object.NewPackWriter(&packBuf, uint32(len(sources)))
	if err != nil {
		return nil, fmt.Errorf("create bundle: %w", err)
	}
	if _, err := object.WriteDeltifiedPack(pw, sources, bases); err != nil {
		return nil, fmt.Errorf("create bundle: %w", err)
	}
	if _, err := pw.Finish(); err != nil {
		return nil, fmt.Errorf("create bundle: %w", err)
	}

	prereqCopy := append([]Prereq(nil), prereqs...)
	refCopy := make(map[string]object.Hash, len(refs))
	for name, h := range refs {
		refCopy[name] = h
	}
	return &Bundle{
		Capabilities: []string{ObjectFormatCapability},
		Prereqs:      prereqCopy,
		Refs:         refCopy,
		Pack:         packBuf.Bytes(),
	}, nil
}

// prereqBases collects the objects at each prerequisite tip: the commit,
// its root tree, and that tree's immediate entries. Receivers hold the
// full prerequisite history, so these are safe ref-delta bases.
func prereqBases(store *object.Store, prereqs []Prereq) ([]object.PackSource, error) {
	seen := map[object.Hash]struct{}{}
	var bases []object.PackSource
	add := func(h object.Hash) error {
		if _, dup := seen[h]; dup {
			return nil
		}
		seen[h] = struct{}{}
		objType, data, err := store.Read(h)
		if err != nil {
			return fmt.Errorf("read base %s: %w", h, err)
		}
		bases = append(bases, object.PackSource{Hash: h, Type: objType, Data: data})
		return nil
	}
	for _, p := range prereqs {
		commit, err := store.ReadCommit(p.Hash)
		if err != nil {
			return nil, fmt.Errorf("prerequisite %s: %w", p.Hash, err)
		}
		if err := add(p.Hash); err != nil {
			return nil, err
		}
		tree, err := store.ReadTree(commit.TreeHash)
		if err != nil {
			return nil, fmt.Errorf("prerequisite %s tree: %w", p.Hash, err)
		}
		if err := add(commit.TreeHash); err != nil {
			return nil, err
		}
		for _, e := range tree.Entries {
			if err := add(e.BlobHash); err != nil {
				return nil, err
			}
		}
	}
	return bases, nil
}

// ApplyBundle verifies the bundle's prerequisites against the store,
// unpacks its objects with hash verification, and returns the ref tips it
// carries. Every ref tip must be present after unpacking.
func ApplyBundle(store *object.Store, b *Bundle) (map[string]object.Hash, error) {
	for _, p := range b.Prereqs {
		if !store.Has(p.Hash) {
			return nil, fmt.Errorf("apply bundle: %w: %s", ErrMissingPrerequisite, p.Hash)
		}
	}

	if len(b.Pack) > 0 {
		pf, err := object.ReadPack(b.Pack)
		if err != nil {
			return nil, fmt.Errorf("apply bundle: %w", err)
		}
		lookup := func(h object.Hash) (object.ObjectType, []byte, bool) {
			objType, data, err := store.Read(h)
			if err != nil {
				return "", nil, false
			}
			return objType, data, true
		}
		resolved, err := object.ResolvePackEntries(pf.Entries, lookup)
		if err != nil {
			return nil, fmt.Errorf("apply bundle: %w", err)
		}
		for _, obj := range resolved {
			written, err := store.Write(obj.Type, obj.Data)
			if err != nil {
				return nil, fmt.Errorf("apply bundle: write %s: %w", obj.Hash, err)
			}
			if written != obj.Hash {
				return nil, fmt.Errorf("apply bundle: hash mismatch: resolved %s, wrote %s", obj.Hash, written)
			}
		}
	}

	tips := make(map[string]object.Hash, len(b.Refs))
	for name, h := range b.Refs {
		if !store.Has(h) {
			return nil, fmt.Errorf("apply bundle: ref %q tip %s missing from pack and store", name, h)
		}
		tips[name] = h
	}
	return tips, nil
}
