package object

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"hash"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/zlib"
)

type packCountedWriter struct {
	w io.Writer
	n uint64
}

func (cw *packCountedWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += uint64(n)
	return n, err
}

func (cw *packCountedWriter) Count() uint64 {
	return cw.n
}

func compressPackPayload(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		_ = zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// PackEntryInfo reports where an entry landed in the stream and the CRC32 of
// its on-disk bytes, as recorded by the pack index.
type PackEntryInfo struct {
	Offset uint64
	CRC32  uint32
}

// PackWriter writes pack streams with zlib-compressed object entries. The
// trailer checksum is SHA-1 over all bytes preceding the trailer.
type PackWriter struct {
	out      io.Writer
	hasher   hash.Hash
	hashedW  io.Writer
	counter  *packCountedWriter
	expected uint32
	written  uint32
	finished bool
}

// NewPackWriter initializes a new writer and writes the fixed pack header.
func NewPackWriter(out io.Writer, numObjects uint32) (*PackWriter, error) {
	hasher := sha1.New()
	counter := &packCountedWriter{w: out}
	pw := &PackWriter{
		out:      out,
		hasher:   hasher,
		hashedW:  io.MultiWriter(counter, hasher),
		counter:  counter,
		expected: numObjects,
	}

	header := PackHeader{
		Version:    supportedPackVersion,
		NumObjects: numObjects,
	}
	if _, err := pw.hashedW.Write(header.Marshal()); err != nil {
		return nil, fmt.Errorf("write pack header: %w", err)
	}
	return pw, nil
}

// CurrentOffset returns the current byte offset in the pack stream (from pack
// start), excluding the trailing checksum written by Finish().
func (p *PackWriter) CurrentOffset() uint64 {
	return p.counter.Count()
}

func (p *PackWriter) writeEntryBytes(parts ...[]byte) (PackEntryInfo, error) {
	if p.finished {
		return PackEntryInfo{}, fmt.Errorf("pack writer already finished")
	}
	if p.written >= p.expected {
		return PackEntryInfo{}, fmt.Errorf("pack object count exceeded: expected %d", p.expected)
	}

	var entry bytes.Buffer
	for _, part := range parts {
		entry.Write(part)
	}

	info := PackEntryInfo{
		Offset: p.CurrentOffset(),
		CRC32:  crc32.ChecksumIEEE(entry.Bytes()),
	}
	if _, err := p.hashedW.Write(entry.Bytes()); err != nil {
		return PackEntryInfo{}, fmt.Errorf("write pack entry: %w", err)
	}
	p.written++
	return info, nil
}

// WriteEntry appends one full (non-delta) object entry to the pack stream.
func (p *PackWriter) WriteEntry(objType PackObjectType, data []byte) (PackEntryInfo, error) {
	if objType.IsDelta() {
		return PackEntryInfo{}, fmt.Errorf("WriteEntry cannot encode delta type %d", objType)
	}
	header := encodePackEntryHeader(objType, uint64(len(data)))
	compressed, err := compressPackPayload(data)
	if err != nil {
		return PackEntryInfo{}, fmt.Errorf("compress pack entry: %w", err)
	}
	return p.writeEntryBytes(header, compressed)
}

// WriteOfsDelta writes an OFS_DELTA entry whose base lives at baseOffset
// earlier in this same pack.
func (p *PackWriter) WriteOfsDelta(baseOffset uint64, delta []byte) (PackEntryInfo, error) {
	current := p.CurrentOffset()
	if baseOffset >= current {
		return PackEntryInfo{}, fmt.Errorf("base offset %d must be before current offset %d", baseOffset, current)
	}

	header := encodePackEntryHeader(PackOfsDelta, uint64(len(delta)))
	ofs := encodeOfsDeltaDistance(current - baseOffset)
	compressed, err := compressPackPayload(delta)
	if err != nil {
		return PackEntryInfo{}, fmt.Errorf("compress delta payload: %w", err)
	}
	return p.writeEntryBytes(header, ofs, compressed)
}

// WriteRefDelta writes a REF_DELTA entry whose base is named by hash and may
// live outside this pack.
func (p *PackWriter) WriteRefDelta(baseHash Hash, delta []byte) (PackEntryInfo, error) {
	baseRaw, err := baseHash.Raw()
	if err != nil {
		return PackEntryInfo{}, fmt.Errorf("ref-delta base: %w", err)
	}

	header := encodePackEntryHeader(PackRefDelta, uint64(len(delta)))
	compressed, err := compressPackPayload(delta)
	if err != nil {
		return PackEntryInfo{}, fmt.Errorf("compress delta payload: %w", err)
	}
	return p.writeEntryBytes(header, baseRaw, compressed)
}

// Finish validates object count, writes the trailing pack checksum, and returns
// that checksum as a hex digest.
func (p *PackWriter) Finish() (Hash, error) {
	if p.finished {
		return "", fmt.Errorf("pack writer already finished")
	}
	if p.written != p.expected {
		return "", fmt.Errorf("pack object count mismatch: wrote %d, expected %d", p.written, p.expected)
	}

	sum := p.hasher.Sum(nil)
	if _, err := p.out.Write(sum); err != nil {
		return "", fmt.Errorf("write pack trailer checksum: %w", err)
	}

	p.finished = true
	return Hash(hex.EncodeToString(sum)), nil
}
