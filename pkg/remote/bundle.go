package remote

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/odvcencio/grit/pkg/object"
)

// Bundle is the self-contained sync unit: the refs being transferred, the
// prerequisite commits the receiver must already have, and a pack holding
// every object needed on top of those prerequisites.
//
// Wire layout: the magic and a big-endian u32 version, then a text header
// of capability lines ("@key=value") and prerequisite lines
// ("<hash> <name>"), a blank line, ref lines ("<hash> <refname>"), a
// second blank line, and finally the raw pack stream. Prerequisite and
// ref lines share a shape, so the blank line between the blocks is what
// separates them.
type Bundle struct {
	Capabilities []string
	Prereqs      []Prereq
	Refs         map[string]object.Hash
	Pack         []byte
}

// Prereq names a commit the bundle assumes the receiver already has,
// typically the last known tip of the ref it belongs to.
type Prereq struct {
	Hash object.Hash
	Name string
}

var bundleMagic = [4]byte{'B', 'N', 'D', 'L'}

const bundleVersion = 1

// ObjectFormatCapability pins the hash function used by the pack.
const ObjectFormatCapability = "object-format=sha1"

// defaultBranchCapabilityPrefix advertises the bundle origin's HEAD branch,
// letting fetchers record refs/remotes/<name>/HEAD.
const defaultBranchCapabilityPrefix = "default-branch="

// DefaultBranch returns the branch named by a default-branch capability,
// or "" when the bundle carries none.
func (b *Bundle) DefaultBranch() string {
	for _, c := range b.Capabilities {
		if branch, ok := strings.CutPrefix(c, defaultBranchCapabilityPrefix); ok {
			return branch
		}
	}
	return ""
}

// EncodeBundle writes the bundle to w.
func EncodeBundle(w io.Writer, b *Bundle) error {
	if len(b.Refs) == 0 {
		return fmt.Errorf("encode bundle: no refs")
	}

	if _, err := w.Write(bundleMagic[:]); err != nil {
		return fmt.Errorf("encode bundle: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, uint32(bundleVersion)); err != nil {
		return fmt.Errorf("encode bundle: %w", err)
	}

	var hdr bytes.Buffer
	caps := b.Capabilities
	if len(caps) == 0 {
		caps = []string{ObjectFormatCapability}
	}
	for _, c := range caps {
		fmt.Fprintf(&hdr, "@%s\n", c)
	}

	prereqs := append([]Prereq(nil), b.Prereqs...)
	sort.Slice(prereqs, func(i, j int) bool { return prereqs[i].Hash < prereqs[j].Hash })
	for _, p := range prereqs {
		if !p.Hash.IsValid() {
			return fmt.Errorf("encode bundle: invalid prerequisite %q", p.Hash)
		}
		if strings.ContainsAny(p.Name, " \n") || p.Name == "" {
			return fmt.Errorf("encode bundle: invalid prerequisite name %q", p.Name)
		}
		fmt.Fprintf(&hdr, "%s %s\n", p.Hash, p.Name)
	}
	hdr.WriteByte('\n')

	names := make([]string, 0, len(b.Refs))
	for name := range b.Refs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		h := b.Refs[name]
		if !h.IsValid() {
			return fmt.Errorf("encode bundle: invalid hash for ref %q", name)
		}
		if strings.ContainsAny(name, " \n") || name == "" {
			return fmt.Errorf("encode bundle: invalid ref name %q", name)
		}
		fmt.Fprintf(&hdr, "%s %s\n", h, name)
	}
	hdr.WriteByte('\n')

	if _, err := w.Write(hdr.Bytes()); err != nil {
		return fmt.Errorf("encode bundle: %w", err)
	}
	if _, err := w.Write(b.Pack); err != nil {
		return fmt.Errorf("encode bundle: %w", err)
	}
	return nil
}

// EncodeBundleToBytes is a convenience wrapper.
func EncodeBundleToBytes(b *Bundle) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeBundle(&buf, b); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeBundle parses a bundle from r.
func DecodeBundle(r io.Reader) (*Bundle, error) {
	br := bufio.NewReader(r)

	var magic [4]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return nil, fmt.Errorf("decode bundle: magic: %w", err)
	}
	if magic != bundleMagic {
		return nil, fmt.Errorf("decode bundle: bad magic %q", magic[:])
	}
	var version uint32
	if err := binary.Read(br, binary.BigEndian, &version); err != nil {
		return nil, fmt.Errorf("decode bundle: version: %w", err)
	}
	if version != bundleVersion {
		return nil, fmt.Errorf("decode bundle: unsupported version %d", version)
	}

	b := &Bundle{Refs: map[string]object.Hash{}}
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("decode bundle: header: %w", err)
		}
		line = strings.TrimSuffix(line, "\n")
		if line == "" {
			break
		}

		if strings.HasPrefix(line, "@") {
			b.Capabilities = append(b.Capabilities, line[1:])
			continue
		}
		h, name, err := splitHashLine(line)
		if err != nil {
			return nil, fmt.Errorf("decode bundle: malformed prerequisite line %q", line)
		}
		b.Prereqs = append(b.Prereqs, Prereq{Hash: h, Name: name})
	}

	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("decode bundle: header: %w", err)
		}
		line = strings.TrimSuffix(line, "\n")
		if line == "" {
			break
		}

		h, name, err := splitHashLine(line)
		if err != nil {
			return nil, fmt.Errorf("decode bundle: malformed ref line %q", line)
		}
		if _, dup := b.Refs[name]; dup {
			return nil, fmt.Errorf("decode bundle: duplicate ref %q", name)
		}
		b.Refs[name] = h
	}

	if len(b.Refs) == 0 {
		return nil, fmt.Errorf("decode bundle: no refs")
	}

	pack, err := io.ReadAll(br)
	if err != nil {
		return nil, fmt.Errorf("decode bundle: pack: %w", err)
	}
	b.Pack = pack
	return b, nil
}

func splitHashLine(line string) (object.Hash, string, error) {
	hashStr, name, ok := strings.Cut(line, " ")
	h := object.Hash(hashStr)
	if !ok || !h.IsValid() || name == "" {
		return "", "", fmt.Errorf("malformed line %q", line)
	}
	return h, name, nil
}

// DecodeBundleBytes is a convenience wrapper.
func DecodeBundleBytes(data []byte) (*Bundle, error) {
	return DecodeBundle(bytes.NewReader(data))
}
