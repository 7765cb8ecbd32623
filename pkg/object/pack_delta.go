package object

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

func encodeDeltaVarint(v uint64) []byte {
	if v == 0 {
		return []byte{0}
	}
	out := make([]byte, 0, 10)
	for v > 0 {
		b := byte(v & 0x7f)
		v >>= 7
		if v > 0 {
			b |= 0x80
		}
		out = append(out, b)
	}
	return out
}

func decodeDeltaVarint(r io.ByteReader) (uint64, error) {
	var (
		value uint64
		shift uint
	)
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		value |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return value, nil
		}
		shift += 7
		if shift > 63 {
			return 0, fmt.Errorf("delta varint too large")
		}
	}
}

// encodeOfsDeltaDistance encodes a backward distance for OFS_DELTA entries.
func encodeOfsDeltaDistance(distance uint64) []byte {
	if distance == 0 {
		return []byte{0}
	}
	b := []byte{byte(distance & 0x7f)}
	for distance >>= 7; distance > 0; distance >>= 7 {
		distance--
		b = append([]byte{byte((distance & 0x7f) | 0x80)}, b...)
	}
	return b
}

func decodeOfsDeltaDistance(data []byte) (uint64, int, error) {
	if len(data) == 0 {
		return 0, 0, fmt.Errorf("ofs-delta distance truncated")
	}
	i := 0
	c := data[i]
	i++
	offset := uint64(c & 0x7f)
	for c&0x80 != 0 {
		if i >= len(data) {
			return 0, 0, fmt.Errorf("ofs-delta distance truncated")
		}
		c = data[i]
		i++
		offset = ((offset + 1) << 7) | uint64(c&0x7f)
	}
	return offset, i, nil
}

const (
	deltaBlockSize  = 16
	deltaMinCopyLen = deltaBlockSize
	// maxDeltaCopySize keeps each copy instruction within three explicit
	// size bytes without relying on the implicit 0x10000 encoding.
	maxDeltaCopySize = 0xffff
)

// buildDelta produces a copy/insert delta stream converting base into target.
// Base content is indexed in fixed-size blocks; target bytes are matched
// greedily against those blocks and unmatched runs become literal inserts.
// The result is always a valid delta, possibly insert-only when the inputs
// share nothing.
func buildDelta(base, target []byte) []byte {
	var out bytes.Buffer
	out.Write(encodeDeltaVarint(uint64(len(base))))
	out.Write(encodeDeltaVarint(uint64(len(target))))

	blocks := indexDeltaBlocks(base)

	var pending []byte
	flushInserts := func() {
		for pos := 0; pos < len(pending); {
			chunk := len(pending) - pos
			if chunk > 127 {
				chunk = 127
			}
			out.WriteByte(byte(chunk))
			out.Write(pending[pos : pos+chunk])
			pos += chunk
		}
		pending = pending[:0]
	}

	pos := 0
	for pos < len(target) {
		baseOff, matchLen := findDeltaMatch(base, blocks, target[pos:])
		if matchLen < deltaMinCopyLen {
			pending = append(pending, target[pos])
			pos++
			continue
		}
		flushInserts()
		emitDeltaCopies(&out, baseOff, matchLen)
		pos += matchLen
	}
	flushInserts()

	return out.Bytes()
}

func indexDeltaBlocks(base []byte) map[uint64][]int {
	blocks := make(map[uint64][]int, len(base)/deltaBlockSize+1)
	for off := 0; off+deltaBlockSize <= len(base); off += deltaBlockSize {
		key := deltaBlockKey(base[off : off+deltaBlockSize])
		blocks[key] = append(blocks[key], off)
	}
	return blocks
}

func deltaBlockKey(block []byte) uint64 {
	// FNV-1a over one block.
	var h uint64 = 14695981039346656037
	for _, b := range block {
		h ^= uint64(b)
		h *= 1099511628211
	}
	return h
}

// findDeltaMatch returns the base offset and length of the longest match for
// a prefix of tail, or (0, 0) when no block-aligned candidate matches.
func findDeltaMatch(base []byte, blocks map[uint64][]int, tail []byte) (int, int) {
	if len(tail) < deltaBlockSize {
		return 0, 0
	}
	key := deltaBlockKey(tail[:deltaBlockSize])
	bestOff, bestLen := 0, 0
	for _, off := range blocks[key] {
		if !bytes.Equal(base[off:off+deltaBlockSize], tail[:deltaBlockSize]) {
			continue
		}
		n := deltaBlockSize
		for off+n < len(base) && n < len(tail) && base[off+n] == tail[n] {
			n++
		}
		if n > bestLen {
			bestOff, bestLen = off, n
		}
	}
	return bestOff, bestLen
}

func emitDeltaCopies(out *bytes.Buffer, baseOff, length int) {
	for length > 0 {
		size := length
		if size > maxDeltaCopySize {
			size = maxDeltaCopySize
		}
		writeDeltaCopy(out, uint32(baseOff), uint32(size))
		baseOff += size
		length -= size
	}
}

func writeDeltaCopy(out *bytes.Buffer, offset, size uint32) {
	var args [7]byte
	cmd := byte(0x80)
	n := 0

	var offBytes [4]byte
	binary.LittleEndian.PutUint32(offBytes[:], offset)
	for i := 0; i < 4; i++ {
		if offBytes[i] != 0 {
			cmd |= 1 << i
			args[n] = offBytes[i]
			n++
		}
	}

	var sizeBytes [4]byte
	binary.LittleEndian.PutUint32(sizeBytes[:], size)
	for i := 0; i < 3; i++ {
		if sizeBytes[i] != 0 {
			cmd |= 0x10 << i
			args[n] = sizeBytes[i]
			n++
		}
	}

	out.WriteByte(cmd)
	out.Write(args[:n])
}

// applyDelta applies delta instructions to base and returns the result.
func applyDelta(base, delta []byte) ([]byte, error) {
	dr := bytes.NewReader(delta)

	baseSize, err := decodeDeltaVarint(dr)
	if err != nil {
		return nil, fmt.Errorf("read base size: %w", err)
	}
	if int(baseSize) != len(base) {
		return nil, fmt.Errorf("delta base size mismatch: got %d want %d", baseSize, len(base))
	}
	resultSize, err := decodeDeltaVarint(dr)
	if err != nil {
		return nil, fmt.Errorf("read result size: %w", err)
	}

	out := make([]byte, 0, resultSize)
	for dr.Len() > 0 {
		cmd, err := dr.ReadByte()
		if err != nil {
			return nil, err
		}
		if cmd&0x80 != 0 {
			var (
				offset int64
				size   int64
			)
			if cmd&0x01 != 0 {
				b, err := readDeltaCopyArgByte(dr, "offset byte 0")
				if err != nil {
					return nil, err
				}
				offset |= int64(b)
			}
			if cmd&0x02 != 0 {
				b, err := readDeltaCopyArgByte(dr, "offset byte 1")
				if err != nil {
					return nil, err
				}
				offset |= int64(b) << 8
			}
			if cmd&0x04 != 0 {
				b, err := readDeltaCopyArgByte(dr, "offset byte 2")
				if err != nil {
					return nil, err
				}
				offset |= int64(b) << 16
			}
			if cmd&0x08 != 0 {
				b, err := readDeltaCopyArgByte(dr, "offset byte 3")
				if err != nil {
					return nil, err
				}
				offset |= int64(b) << 24
			}
			if cmd&0x10 != 0 {
				b, err := readDeltaCopyArgByte(dr, "size byte 0")
				if err != nil {
					return nil, err
				}
				size |= int64(b)
			}
			if cmd&0x20 != 0 {
				b, err := readDeltaCopyArgByte(dr, "size byte 1")
				if err != nil {
					return nil, err
				}
				size |= int64(b) << 8
			}
			if cmd&0x40 != 0 {
				b, err := readDeltaCopyArgByte(dr, "size byte 2")
				if err != nil {
					return nil, err
				}
				size |= int64(b) << 16
			}
			if size == 0 {
				size = 0x10000
			}
			if offset < 0 || size < 0 || offset+size > int64(len(base)) {
				return nil, fmt.Errorf("delta copy out of bounds")
			}
			out = append(out, base[offset:offset+size]...)
			continue
		}

		if cmd == 0 {
			return nil, fmt.Errorf("invalid delta command: 0")
		}
		insert := make([]byte, int(cmd))
		if _, err := io.ReadFull(dr, insert); err != nil {
			return nil, fmt.Errorf("delta insert: %w", err)
		}
		out = append(out, insert...)
	}

	if uint64(len(out)) != resultSize {
		return nil, fmt.Errorf("delta result size mismatch: got %d expected %d", len(out), resultSize)
	}
	return out, nil
}

func readDeltaCopyArgByte(r io.ByteReader, field string) (byte, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, fmt.Errorf("delta copy %s: %w", field, err)
	}
	return b, nil
}
