package object

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// PackEntry represents one object entry in a pack stream. Delta entries keep
// their instruction stream in Data plus a base pointer (BaseDistance for
// ofs-delta, BaseHash for ref-delta) until resolved.
type PackEntry struct {
	Offset       uint64
	Type         PackObjectType
	Size         uint64
	Data         []byte
	BaseDistance uint64
	BaseHash     Hash
}

// PackFile is the decoded content of a full pack stream.
type PackFile struct {
	Header   PackHeader
	Entries  []PackEntry
	Checksum Hash
}

// ResolvedPackObject is a fully materialised object from a pack.
type ResolvedPackObject struct {
	Hash Hash
	Type ObjectType
	Data []byte
}

// BaseLookupFunc locates a ref-delta base that is not part of the pack being
// resolved (a thin pack). It returns false when the base is unknown.
type BaseLookupFunc func(Hash) (ObjectType, []byte, bool)

// ReadPack parses a full pack file byte slice, verifies the trailer checksum,
// and returns decoded entries with deltas still unresolved.
func ReadPack(data []byte) (*PackFile, error) {
	if len(data) < packHeaderSize+sha1.Size {
		return nil, fmt.Errorf("%w: pack too short: %d", ErrCorrupt, len(data))
	}

	payload := data[:len(data)-sha1.Size]
	trailer := data[len(data)-sha1.Size:]

	sum := sha1.Sum(payload)
	if !bytes.Equal(sum[:], trailer) {
		return nil, fmt.Errorf("%w: pack checksum mismatch", ErrCorrupt)
	}

	header, err := UnmarshalPackHeader(payload[:packHeaderSize])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	offset := packHeaderSize
	entries := make([]PackEntry, 0, header.NumObjects)
	for i := uint32(0); i < header.NumObjects; i++ {
		entryOffset := uint64(offset)
		objType, size, n, err := decodePackEntryHeaderStrict(payload[offset:])
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrCorrupt, i, err)
		}
		offset += n

		entry := PackEntry{
			Offset: entryOffset,
			Type:   objType,
			Size:   size,
		}

		switch objType {
		case PackCommit, PackTree, PackBlob, PackTag:
		case PackOfsDelta:
			distance, n, err := decodeOfsDeltaDistance(payload[offset:])
			if err != nil {
				return nil, fmt.Errorf("%w: entry %d: %v", ErrCorrupt, i, err)
			}
			if distance == 0 || distance > entryOffset {
				return nil, fmt.Errorf("%w: entry %d: ofs-delta distance %d out of range", ErrCorrupt, i, distance)
			}
			entry.BaseDistance = distance
			offset += n
		case PackRefDelta:
			if offset+HashRawLen > len(payload) {
				return nil, fmt.Errorf("%w: entry %d: truncated ref-delta base", ErrCorrupt, i)
			}
			h, err := HashFromRaw(payload[offset : offset+HashRawLen])
			if err != nil {
				return nil, fmt.Errorf("%w: entry %d: %v", ErrCorrupt, i, err)
			}
			entry.BaseHash = h
			offset += HashRawLen
		default:
			return nil, fmt.Errorf("%w: entry %d: unknown pack object type %d", ErrCorrupt, i, objType)
		}

		if offset >= len(payload) {
			return nil, fmt.Errorf("%w: entry %d: missing compressed payload", ErrCorrupt, i)
		}

		sub := bytes.NewReader(payload[offset:])
		zr, err := zlib.NewReader(sub)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: zlib reader: %v", ErrCorrupt, i, err)
		}
		raw, err := io.ReadAll(zr)
		if err != nil {
			_ = zr.Close()
			return nil, fmt.Errorf("%w: entry %d: decompress: %v", ErrCorrupt, i, err)
		}
		if err := zr.Close(); err != nil {
			return nil, fmt.Errorf("%w: entry %d: close zlib stream: %v", ErrCorrupt, i, err)
		}
		if uint64(len(raw)) != size {
			return nil, fmt.Errorf("%w: entry %d: size mismatch header=%d decoded=%d", ErrCorrupt, i, size, len(raw))
		}

		consumed := len(payload[offset:]) - sub.Len()
		offset += consumed

		entry.Data = raw
		entries = append(entries, entry)
	}

	if offset != len(payload) {
		return nil, fmt.Errorf("%w: pack has trailing undecoded bytes: %d", ErrCorrupt, len(payload)-offset)
	}

	return &PackFile{
		Header:   *header,
		Entries:  entries,
		Checksum: Hash(hex.EncodeToString(trailer)),
	}, nil
}

// ReadPackFromReader reads a complete pack stream from r and delegates to
// ReadPack for decode and verification.
func ReadPackFromReader(r io.Reader) (*PackFile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read pack stream: %w", err)
	}
	return ReadPack(data)
}

// ResolvePackEntries materialises every entry of a pack. Full objects resolve
// immediately; delta entries are applied in dependency order, iterating until
// a fixpoint. lookup, when non-nil, supplies ref-delta bases that live outside
// the pack. Unresolvable bases, over-deep chains, and hash-width violations
// all surface as ErrCorrupt.
func ResolvePackEntries(entries []PackEntry, lookup BaseLookupFunc) ([]ResolvedPackObject, error) {
	type resolved struct {
		obj   ResolvedPackObject
		depth int
	}

	byOffset := make(map[uint64]*resolved, len(entries))
	byHash := make(map[Hash]*resolved, len(entries))
	out := make([]ResolvedPackObject, len(entries))
	done := make([]bool, len(entries))

	settle := func(i int, objType ObjectType, data []byte, depth int) error {
		if depth > maxDeltaChainDepth {
			return fmt.Errorf("%w: delta chain deeper than %d", ErrCorrupt, maxDeltaChainDepth)
		}
		r := &resolved{
			obj: ResolvedPackObject{
				Hash: HashObject(objType, data),
				Type: objType,
				Data: data,
			},
			depth: depth,
		}
		byOffset[entries[i].Offset] = r
		byHash[r.obj.Hash] = r
		out[i] = r.obj
		done[i] = true
		return nil
	}

	// First pass: full objects.
	remaining := 0
	for i, entry := range entries {
		if entry.Type.IsDelta() {
			remaining++
			continue
		}
		objType, ok := ObjectTypeForPackType(entry.Type)
		if !ok {
			return nil, fmt.Errorf("%w: unsupported pack type %d", ErrCorrupt, entry.Type)
		}
		if err := settle(i, objType, entry.Data, 0); err != nil {
			return nil, err
		}
	}

	// Delta passes: iterate until fixpoint.
	for remaining > 0 {
		progressed := false
		for i, entry := range entries {
			if done[i] || !entry.Type.IsDelta() {
				continue
			}

			var base *resolved
			switch entry.Type {
			case PackOfsDelta:
				base = byOffset[entry.Offset-entry.BaseDistance]
			case PackRefDelta:
				base = byHash[entry.BaseHash]
				if base == nil && lookup != nil {
					if objType, data, ok := lookup(entry.BaseHash); ok {
						base = &resolved{
							obj: ResolvedPackObject{Hash: entry.BaseHash, Type: objType, Data: data},
						}
					}
				}
			}
			if base == nil {
				continue
			}

			data, err := applyDelta(base.obj.Data, entry.Data)
			if err != nil {
				return nil, fmt.Errorf("%w: entry at offset %d: %v", ErrCorrupt, entry.Offset, err)
			}
			if err := settle(i, base.obj.Type, data, base.depth+1); err != nil {
				return nil, err
			}
			remaining--
			progressed = true
		}
		if !progressed {
			return nil, fmt.Errorf("%w: %d delta entries have no resolvable base", ErrCorrupt, remaining)
		}
	}

	return out, nil
}

func decodePackEntryHeaderStrict(data []byte) (PackObjectType, uint64, int, error) {
	if len(data) == 0 {
		return 0, 0, 0, fmt.Errorf("entry header truncated")
	}

	b := data[0]
	objType := PackObjectType((b >> 4) & 0x7)
	size := uint64(b & 0x0f)
	shift := uint(4)
	consumed := 1

	for b&0x80 != 0 {
		if consumed >= len(data) {
			return 0, 0, 0, fmt.Errorf("entry header truncated")
		}
		b = data[consumed]
		size |= uint64(b&0x7f) << shift
		shift += 7
		consumed++
	}

	return objType, size, consumed, nil
}
