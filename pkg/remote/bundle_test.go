package remote

import (
	"bytes"
	"strings"
	"testing"

	"github.com/odvcencio/grit/pkg/object"
)

func TestBundleRoundTrip(t *testing.T) {
	in := &Bundle{
		Capabilities: []string{ObjectFormatCapability},
		Prereqs: []Prereq{
			{Hash: fakeHash('b'), Name: "refs/heads/feature"},
			{Hash: fakeHash('a'), Name: "refs/heads/master"},
		},
		Refs: map[string]object.Hash{
			"refs/heads/master":  fakeHash('1'),
			"refs/heads/feature": fakeHash('2'),
			"refs/tags/v1.0":     fakeHash('3'),
		},
		Pack: []byte("not a real pack, round trip only"),
	}

	raw, err := EncodeBundleToBytes(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	// Prerequisite lines share the ref line shape: hash, space, name.
	wantLine := string(fakeHash('a')) + " refs/heads/master\n"
	if !bytes.Contains(raw, []byte(wantLine)) {
		t.Errorf("header missing prerequisite line %q", wantLine)
	}
	out, err := DecodeBundleBytes(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if len(out.Capabilities) != 1 || out.Capabilities[0] != ObjectFormatCapability {
		t.Errorf("capabilities = %v", out.Capabilities)
	}
	// Prereqs come back sorted by hash, names intact.
	want := []Prereq{
		{Hash: fakeHash('a'), Name: "refs/heads/master"},
		{Hash: fakeHash('b'), Name: "refs/heads/feature"},
	}
	if len(out.Prereqs) != 2 || out.Prereqs[0] != want[0] || out.Prereqs[1] != want[1] {
		t.Errorf("prereqs = %v", out.Prereqs)
	}
	if len(out.Refs) != 3 {
		t.Fatalf("refs = %v", out.Refs)
	}
	for name, h := range in.Refs {
		if out.Refs[name] != h {
			t.Errorf("ref %s = %s, want %s", name, out.Refs[name], h)
		}
	}
	if !bytes.Equal(out.Pack, in.Pack) {
		t.Errorf("pack = %q", out.Pack)
	}
}

func TestEncodeBundleRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		b    *Bundle
	}{
		{"no refs", &Bundle{}},
		{"invalid ref hash", &Bundle{Refs: map[string]object.Hash{"refs/heads/master": "nope"}}},
		{"ref name with space", &Bundle{Refs: map[string]object.Hash{"refs/heads/a b": fakeHash('1')}}},
		{"invalid prereq hash", &Bundle{
			Prereqs: []Prereq{{Hash: "xyz", Name: "refs/heads/master"}},
			Refs:    map[string]object.Hash{"refs/heads/master": fakeHash('1')},
		}},
		{"prereq name with space", &Bundle{
			Prereqs: []Prereq{{Hash: fakeHash('4'), Name: "a b"}},
			Refs:    map[string]object.Hash{"refs/heads/master": fakeHash('1')},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := EncodeBundleToBytes(tc.b); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestDecodeBundleRejectsMalformed(t *testing.T) {
	good, err := EncodeBundleToBytes(&Bundle{
		Refs: map[string]object.Hash{"refs/heads/master": fakeHash('1')},
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	cases := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"bad magic", append([]byte("NOPE"), good[4:]...)},
		{"bad version", append([]byte("BNDL\x00\x00\x00\x09"), good[8:]...)},
		{"truncated header", good[:10]},
		{"no refs", []byte("BNDL\x00\x00\x00\x01@object-format=sha1\n\n\n")},
		{"bad prereq line", []byte("BNDL\x00\x00\x00\x01badline\n\n\n")},
		{"bad ref line", []byte("BNDL\x00\x00\x00\x01\nbadline\n\n")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := DecodeBundleBytes(tc.data); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestDecodeBundleRejectsDuplicateRef(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("BNDL\x00\x00\x00\x01")
	buf.WriteString("\n") // empty prerequisite block
	line := string(fakeHash('1')) + " refs/heads/master\n"
	buf.WriteString(line)
	buf.WriteString(line)
	buf.WriteString("\n")

	if _, err := DecodeBundleBytes(buf.Bytes()); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("err = %v, want duplicate ref error", err)
	}
}

// fakeHash builds a syntactically valid hash from one hex digit.
func fakeHash(c byte) object.Hash {
	return object.Hash(strings.Repeat(string(c), object.HashHexLen))
}
