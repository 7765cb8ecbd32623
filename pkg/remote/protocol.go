package remote

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

const (
	// ProtocolVersion is spoken over the bundle transport headers.
	ProtocolVersion = "1"

	// ClientCapabilities lists what this client supports.
	ClientCapabilities = "bundle,zstd"

	headerProtocol     = "Grit-Protocol"
	headerCapabilities = "Grit-Capabilities"
)

// Errors surfaced by push and fetch.
var (
	// ErrNonFastForward rejects a push whose ref updates would discard
	// remote history.
	ErrNonFastForward = errors.New("non-fast-forward")

	// ErrMissingPrerequisite rejects applying a bundle whose prerequisite
	// commits are absent from the receiving store.
	ErrMissingPrerequisite = errors.New("missing prerequisite")
)

// Capabilities is a set of protocol capability tokens.
type Capabilities struct {
	set map[string]struct{}
}

// ParseCapabilities parses a comma-separated capability string.
func ParseCapabilities(raw string) Capabilities {
	caps := Capabilities{set: make(map[string]struct{})}
	for _, c := range strings.Split(raw, ",") {
		c = strings.TrimSpace(c)
		if c != "" {
			caps.set[c] = struct{}{}
		}
	}
	return caps
}

// Has reports whether the capability is present.
func (c Capabilities) Has(name string) bool {
	_, ok := c.set[name]
	return ok
}

// Intersect returns the capabilities present in both sets.
func (c Capabilities) Intersect(other Capabilities) Capabilities {
	result := Capabilities{set: make(map[string]struct{})}
	for k := range c.set {
		if _, ok := other.set[k]; ok {
			result.set[k] = struct{}{}
		}
	}
	return result
}

// String returns a sorted comma-separated capability string.
func (c Capabilities) String() string {
	names := make([]string, 0, len(c.set))
	for k := range c.set {
		names = append(names, k)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

// RefStatus is the per-ref outcome of a push.
type RefStatus struct {
	Name   string
	OK     bool
	Reason string // set when !OK
}

// PushReport is the receiver's answer to a push: an overall verdict plus
// one status line per ref.
type PushReport struct {
	OK   bool
	Refs []RefStatus
}

// Err converts a rejected report into an error, mapping the well-known
// reasons back to their sentinels.
func (r *PushReport) Err() error {
	if r.OK {
		return nil
	}
	for _, ref := range r.Refs {
		if ref.OK {
			continue
		}
		if strings.Contains(ref.Reason, ErrNonFastForward.Error()) {
			return fmt.Errorf("push rejected: ref %q: %w", ref.Name, ErrNonFastForward)
		}
		if strings.Contains(ref.Reason, ErrMissingPrerequisite.Error()) {
			return fmt.Errorf("push rejected: ref %q: %w", ref.Name, ErrMissingPrerequisite)
		}
		return fmt.Errorf("push rejected: ref %q: %s", ref.Name, ref.Reason)
	}
	return fmt.Errorf("push rejected")
}

// EncodePushReport writes the text report: "unpack ok" or "unpack failed",
// then "ok <ref>" / "ng <ref> <reason>" lines in ref order.
func EncodePushReport(w io.Writer, r *PushReport) error {
	verdict := "unpack ok"
	if !r.OK {
		verdict = "unpack failed"
	}
	if _, err := fmt.Fprintf(w, "%s\n", verdict); err != nil {
		return err
	}
	for _, ref := range r.Refs {
		var err error
		if ref.OK {
			_, err = fmt.Fprintf(w, "ok %s\n", ref.Name)
		} else {
			_, err = fmt.Fprintf(w, "ng %s %s\n", ref.Name, ref.Reason)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// DecodePushReport parses the text report.
func DecodePushReport(r io.Reader) (*PushReport, error) {
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("decode push report: %w", err)
		}
		return nil, fmt.Errorf("decode push report: empty")
	}

	report := &PushReport{}
	switch strings.TrimSpace(scanner.Text()) {
	case "unpack ok":
		report.OK = true
	case "unpack failed":
		report.OK = false
	default:
		return nil, fmt.Errorf("decode push report: bad verdict %q", scanner.Text())
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "ok "):
			report.Refs = append(report.Refs, RefStatus{Name: line[3:], OK: true})
		case strings.HasPrefix(line, "ng "):
			rest := line[3:]
			name, reason, _ := strings.Cut(rest, " ")
			report.Refs = append(report.Refs, RefStatus{Name: name, Reason: reason})
		default:
			return nil, fmt.Errorf("decode push report: bad line %q", line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("decode push report: %w", err)
	}
	return report, nil
}
