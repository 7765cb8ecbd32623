package object

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Blob
// ---------------------------------------------------------------------------

// MarshalBlob serializes a Blob to raw bytes (identity).
func MarshalBlob(b *Blob) []byte {
	out := make([]byte, len(b.Data))
	copy(out, b.Data)
	return out
}

// UnmarshalBlob deserializes raw bytes into a Blob.
func UnmarshalBlob(data []byte) (*Blob, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return &Blob{Data: out}, nil
}

// ---------------------------------------------------------------------------
// TreeObj
// ---------------------------------------------------------------------------

// treeSortKey orders entries the way trees hash them: byte-wise by name,
// with subtree names compared as if they ended in '/'.
func treeSortKey(e TreeEntry) string {
	if e.IsDir {
		return e.Name + "/"
	}
	return e.Name
}

// SortTreeEntries sorts entries in canonical tree order.
func SortTreeEntries(entries []TreeEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return treeSortKey(entries[i]) < treeSortKey(entries[j])
	})
}

// MarshalTree serializes a TreeObj. Entries are sorted canonically for
// deterministic output. Each entry is encoded as
//
//	<mode_ascii> <name>\0<20-byte raw hash>
//
// where mode is one of 40000, 100644, 100755.
func MarshalTree(tr *TreeObj) ([]byte, error) {
	sorted := make([]TreeEntry, len(tr.Entries))
	copy(sorted, tr.Entries)
	SortTreeEntries(sorted)

	var buf bytes.Buffer
	for _, e := range sorted {
		if strings.ContainsAny(e.Name, "/\x00") || e.Name == "" || e.Name == "." || e.Name == ".." {
			return nil, fmt.Errorf("marshal tree: invalid entry name %q", e.Name)
		}
		mode := treeModeOrDefault(e)
		raw, err := e.Target().Raw()
		if err != nil {
			return nil, fmt.Errorf("marshal tree: entry %q: %w", e.Name, err)
		}
		buf.WriteString(mode)
		buf.WriteByte(' ')
		buf.WriteString(e.Name)
		buf.WriteByte(0)
		buf.Write(raw)
	}
	return buf.Bytes(), nil
}

// UnmarshalTree parses a TreeObj from its serialized form.
func UnmarshalTree(data []byte) (*TreeObj, error) {
	tr := &TreeObj{}
	for len(data) > 0 {
		sp := bytes.IndexByte(data, ' ')
		if sp < 0 {
			return nil, fmt.Errorf("unmarshal tree: missing space after mode")
		}
		mode := string(data[:sp])
		isDir, mode, err := parseTreeMode(mode)
		if err != nil {
			return nil, fmt.Errorf("unmarshal tree: %w", err)
		}
		data = data[sp+1:]

		nul := bytes.IndexByte(data, 0)
		if nul < 0 {
			return nil, fmt.Errorf("unmarshal tree: missing NUL after name")
		}
		name := string(data[:nul])
		data = data[nul+1:]

		if len(data) < HashRawLen {
			return nil, fmt.Errorf("unmarshal tree: truncated hash for entry %q", name)
		}
		h, err := HashFromRaw(data[:HashRawLen])
		if err != nil {
			return nil, fmt.Errorf("unmarshal tree: entry %q: %w", name, err)
		}
		data = data[HashRawLen:]

		entry := TreeEntry{Name: name, IsDir: isDir, Mode: mode}
		if isDir {
			entry.SubtreeHash = h
		} else {
			entry.BlobHash = h
		}
		tr.Entries = append(tr.Entries, entry)
	}
	return tr, nil
}

func treeModeOrDefault(e TreeEntry) string {
	if e.IsDir {
		return TreeModeDir
	}
	if strings.TrimSpace(e.Mode) == "" {
		return TreeModeFile
	}
	return e.Mode
}

func parseTreeMode(mode string) (bool, string, error) {
	switch mode {
	case TreeModeDir, "040000":
		return true, TreeModeDir, nil
	case TreeModeFile:
		return false, TreeModeFile, nil
	case TreeModeExecutable:
		return false, TreeModeExecutable, nil
	default:
		return false, "", fmt.Errorf("unknown mode %q", mode)
	}
}

// ---------------------------------------------------------------------------
// CommitObj
// ---------------------------------------------------------------------------

// MarshalCommit serializes a CommitObj:
//
//	tree H
//	parent H     (zero or more, first parent is the mainline)
//	author A <e> TS TZ
//	committer A <e> TS TZ
//
//	message
func MarshalCommit(c *CommitObj) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tree %s\n", string(c.TreeHash))
	for _, p := range c.Parents {
		fmt.Fprintf(&buf, "parent %s\n", string(p))
	}
	fmt.Fprintf(&buf, "author %s %d %s\n", c.Author, c.Timestamp, tzOrDefault(c.AuthorTimezone))
	committer := c.Committer
	cts := c.CommitterTimestamp
	ctz := c.CommitterTimezone
	if committer == "" {
		committer, cts, ctz = c.Author, c.Timestamp, c.AuthorTimezone
	}
	fmt.Fprintf(&buf, "committer %s %d %s\n", committer, cts, tzOrDefault(ctz))
	buf.WriteByte('\n')
	buf.WriteString(c.Message)
	return buf.Bytes()
}

func tzOrDefault(tz string) string {
	if tz == "" {
		return "+0000"
	}
	return tz
}

// UnmarshalCommit parses a CommitObj from its serialized form.
func UnmarshalCommit(data []byte) (*CommitObj, error) {
	idx := bytes.Index(data, []byte("\n\n"))
	if idx < 0 {
		return nil, fmt.Errorf("unmarshal commit: missing header/message separator")
	}
	header := string(data[:idx])
	message := string(data[idx+2:])

	c := &CommitObj{Message: message}
	for _, line := range strings.Split(header, "\n") {
		key, val, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("unmarshal commit: malformed header line %q", line)
		}
		switch key {
		case "tree":
			c.TreeHash = Hash(val)
		case "parent":
			c.Parents = append(c.Parents, Hash(val))
		case "author":
			ident, ts, tz, err := parseIdentityLine(val)
			if err != nil {
				return nil, fmt.Errorf("unmarshal commit: author: %w", err)
			}
			c.Author, c.Timestamp, c.AuthorTimezone = ident, ts, tz
		case "committer":
			ident, ts, tz, err := parseIdentityLine(val)
			if err != nil {
				return nil, fmt.Errorf("unmarshal commit: committer: %w", err)
			}
			c.Committer, c.CommitterTimestamp, c.CommitterTimezone = ident, ts, tz
		default:
			return nil, fmt.Errorf("unmarshal commit: unknown header key %q", key)
		}
	}
	if c.TreeHash == "" {
		return nil, fmt.Errorf("unmarshal commit: missing tree header")
	}
	return c, nil
}

// parseIdentityLine splits "Name <email> TS TZ" into its parts. The identity
// may itself contain spaces, so the line is parsed from the right.
func parseIdentityLine(val string) (string, int64, string, error) {
	lastSp := strings.LastIndexByte(val, ' ')
	if lastSp < 0 {
		return "", 0, "", fmt.Errorf("malformed identity %q", val)
	}
	tz := val[lastSp+1:]
	rest := val[:lastSp]
	prevSp := strings.LastIndexByte(rest, ' ')
	if prevSp < 0 {
		return "", 0, "", fmt.Errorf("malformed identity %q", val)
	}
	ts, err := strconv.ParseInt(rest[prevSp+1:], 10, 64)
	if err != nil {
		return "", 0, "", fmt.Errorf("bad timestamp in %q: %w", val, err)
	}
	return rest[:prevSp], ts, tz, nil
}

// ---------------------------------------------------------------------------
// TagObj
// ---------------------------------------------------------------------------

// MarshalTag serializes an annotated tag:
//
//	object H
//	type K
//	tag NAME
//	tagger A <e> TS TZ
//
//	message
func MarshalTag(t *TagObj) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "object %s\n", string(t.TargetHash))
	fmt.Fprintf(&buf, "type %s\n", string(t.TargetType))
	fmt.Fprintf(&buf, "tag %s\n", t.Name)
	fmt.Fprintf(&buf, "tagger %s %d %s\n", t.Tagger, t.Timestamp, tzOrDefault(t.Timezone))
	buf.WriteByte('\n')
	buf.WriteString(t.Message)
	return buf.Bytes()
}

// UnmarshalTag parses a TagObj from its serialized form.
func UnmarshalTag(data []byte) (*TagObj, error) {
	idx := bytes.Index(data, []byte("\n\n"))
	if idx < 0 {
		return nil, fmt.Errorf("unmarshal tag: missing header/message separator")
	}
	header := string(data[:idx])
	message := string(data[idx+2:])

	t := &TagObj{Message: message}
	for _, line := range strings.Split(header, "\n") {
		key, val, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("unmarshal tag: malformed header line %q", line)
		}
		switch key {
		case "object":
			t.TargetHash = Hash(val)
		case "type":
			t.TargetType = ObjectType(val)
		case "tag":
			t.Name = val
		case "tagger":
			ident, ts, tz, err := parseIdentityLine(val)
			if err != nil {
				return nil, fmt.Errorf("unmarshal tag: tagger: %w", err)
			}
			t.Tagger, t.Timestamp, t.Timezone = ident, ts, tz
		default:
			return nil, fmt.Errorf("unmarshal tag: unknown header key %q", key)
		}
	}
	if t.TargetHash == "" {
		return nil, fmt.Errorf("unmarshal tag: missing object header")
	}
	return t, nil
}
