package object

import (
	"fmt"
	"sort"
)

// PackSource is one object handed to WriteDeltifiedPack.
type PackSource struct {
	Hash Hash
	Type ObjectType
	Data []byte
	Hint string
}

// PackBuildResult reports what WriteDeltifiedPack emitted.
type PackBuildResult struct {
	Entries      []PackIndexEntry
	DeltaObjects int
}

// WriteDeltifiedPack writes objs to pw, delta-compressing each one against
// a sliding window of previously written same-kind objects. bases are
// objects assumed already present on the reading side: they are never
// written themselves, but a delta against one is emitted as a ref-delta
// entry naming the base by hash. Objects are ordered kind first, then
// path hint, then size descending so larger versions act as bases.
func WriteDeltifiedPack(pw *PackWriter, objs, bases []PackSource) (*PackBuildResult, error) {
	sorted := append([]PackSource(nil), objs...)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if ra, rb := repackKindRank(a.Type), repackKindRank(b.Type); ra != rb {
			return ra < rb
		}
		if a.Hint != b.Hint {
			return a.Hint < b.Hint
		}
		if len(a.Data) != len(b.Data) {
			return len(a.Data) > len(b.Data)
		}
		return a.Hash < b.Hash
	})

	type windowItem struct {
		src      PackSource
		offset   uint64
		depth    int
		external bool
	}
	window := make([]windowItem, 0, len(bases)+len(sorted))
	for _, b := range bases {
		window = append(window, windowItem{src: b, external: true})
	}

	res := &PackBuildResult{Entries: make([]PackIndexEntry, 0, len(sorted))}
	for _, src := range sorted {
		// Search the window of prior same-kind objects for the smallest
		// acceptable delta.
		var (
			bestDelta []byte
			bestBase  *windowItem
		)
		tried := 0
		for i := len(window) - 1; i >= 0 && tried < repackWindowSize; i-- {
			base := &window[i]
			if base.src.Type != src.Type {
				continue
			}
			tried++
			if base.depth+1 > maxDeltaChainDepth {
				continue
			}
			delta := buildDelta(base.src.Data, src.Data)
			if bestDelta != nil && len(delta) >= len(bestDelta) {
				continue
			}
			if (len(delta)+repackDeltaOverhead)*2 >= len(src.Data) {
				continue
			}
			bestDelta = delta
			bestBase = base
		}

		var (
			info  PackEntryInfo
			depth int
			err   error
		)
		switch {
		case bestBase != nil && bestBase.external:
			info, err = pw.WriteRefDelta(bestBase.src.Hash, bestDelta)
			depth = 1
			res.DeltaObjects++
		case bestBase != nil:
			info, err = pw.WriteOfsDelta(bestBase.offset, bestDelta)
			depth = bestBase.depth + 1
			res.DeltaObjects++
		default:
			packType, ok := PackTypeForObjectType(src.Type)
			if !ok {
				return nil, fmt.Errorf("pack build: unsupported object type %q", src.Type)
			}
			info, err = pw.WriteEntry(packType, src.Data)
		}
		if err != nil {
			return nil, fmt.Errorf("pack build: write entry %s: %w", src.Hash, err)
		}

		window = append(window, windowItem{src: src, offset: info.Offset, depth: depth})
		res.Entries = append(res.Entries, PackIndexEntry{
			Hash:   src.Hash,
			Offset: info.Offset,
			CRC32:  info.CRC32,
		})
	}
	return res, nil
}
