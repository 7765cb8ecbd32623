// Package diff3 implements line-based three-way merging with diff3-style
// conflict markers.
package diff3

import (
	"bytes"
	"strings"
)

// HunkType classifies one region of the merge output.
type HunkType int

const (
	HunkClean HunkType = iota
	HunkConflict
)

// Hunk is one contiguous region of the merge output, with the inputs that
// produced it. Ours and Theirs are set only when that side changed the
// region; Merged is empty for conflict hunks.
type Hunk struct {
	Type                       HunkType
	Base, Ours, Theirs, Merged []byte
}

// Result is the outcome of a three-way merge. Merged always holds the full
// output; when HasConflicts is set it contains conflict markers.
type Result struct {
	Merged       []byte
	HasConflicts bool
	Hunks        []Hunk
}

const (
	markerOurs      = "<<<<<<< ours\n"
	markerSeparator = "=======\n"
	markerTheirs    = ">>>>>>> theirs\n"
)

// Merge three-way merges ours and theirs against their common base. Each
// side's edit script against the base is converted to a sequence of spans
// over base lines; the two sequences are then walked in lockstep. A region
// changed on one side takes that side's lines; a region changed identically
// on both sides merges clean; differing changes to the same region become
// a conflict hunk with markers.
func Merge(base, ours, theirs []byte) Result {
	baseLines := splitLines(base)
	oursSpans := diffSpans(baseLines, splitLines(ours))
	theirsSpans := diffSpans(baseLines, splitLines(theirs))

	var out bytes.Buffer
	res := Result{}

	oi, ti := 0, 0
	for oi < len(oursSpans) || ti < len(theirsSpans) {
		region := collectRegion(baseLines, oursSpans, &oi, theirsSpans, &ti)
		h := region.resolve()
		if h.Type == HunkConflict {
			res.HasConflicts = true
			out.WriteString(markerOurs)
			out.Write(h.Ours)
			out.WriteString(markerSeparator)
			out.Write(h.Theirs)
			out.WriteString(markerTheirs)
		} else {
			out.Write(h.Merged)
		}
		res.Hunks = append(res.Hunks, h)
	}

	res.Merged = out.Bytes()
	if !res.HasConflicts && !mergedEndsWithNewline(base, ours, theirs) {
		res.Merged = bytes.TrimSuffix(res.Merged, []byte("\n"))
	}
	return res
}

// mergedEndsWithNewline three-way resolves the file terminator: the side
// that changed it relative to the base wins, mirroring the line rule.
func mergedEndsWithNewline(base, ours, theirs []byte) bool {
	nb, no, nt := hasFinalNewline(base), hasFinalNewline(ours), hasFinalNewline(theirs)
	if no != nb {
		return no
	}
	return nt
}

// An empty input counts as newline-terminated so appending lines to an
// empty file does not trim the output.
func hasFinalNewline(data []byte) bool {
	return len(data) == 0 || data[len(data)-1] == '\n'
}

// span is a contiguous run over base lines [start, end) together with the
// side's replacement for it. Pure insertions are zero-width (start == end).
type span struct {
	start, end int
	lines      []string
	changed    bool
}

// diffSpans turns the edit script base -> side into spans: one single-line
// span per unchanged line, and one span per maximal run of edits.
func diffSpans(base, side []string) []span {
	ops := myersDiff(base, side)

	var spans []span
	pos := 0
	for i := 0; i < len(ops); {
		if ops[i].kind == opEqual {
			spans = append(spans, span{start: pos, end: pos + 1, lines: []string{ops[i].line}})
			pos++
			i++
			continue
		}
		edit := span{start: pos, changed: true}
		for i < len(ops) && ops[i].kind != opEqual {
			if ops[i].kind == opDelete {
				pos++
			} else {
				edit.lines = append(edit.lines, ops[i].line)
			}
			i++
		}
		edit.end = pos
		spans = append(spans, edit)
	}
	return spans
}

// region is a base range with both sides' replacements collected over it.
type region struct {
	base         []string
	ours, theirs []string
	oursChanged  bool
	theirsCh     bool
}

// collectRegion absorbs the smallest group of spans from both sides that
// covers a common base range, advancing both cursors. The two sequences
// cover the base in lockstep, so both cursors start at the same base line;
// a span on one side may straddle several on the other, in which case the
// range grows until both sides close over it.
func collectRegion(baseLines []string, ours []span, oi *int, theirs []span, ti *int) region {
	lo, hi := regionBounds(ours, *oi, theirs, *ti)

	r := region{}
	for {
		grew := false
		for *oi < len(ours) && absorbable(ours[*oi], lo, hi) {
			sp := ours[*oi]
			r.ours = append(r.ours, sp.lines...)
			r.oursChanged = r.oursChanged || sp.changed
			if sp.end > hi {
				hi = sp.end
				grew = true
			}
			*oi++
		}
		for *ti < len(theirs) && absorbable(theirs[*ti], lo, hi) {
			sp := theirs[*ti]
			r.theirs = append(r.theirs, sp.lines...)
			r.theirsCh = r.theirsCh || sp.changed
			if sp.end > hi {
				hi = sp.end
				grew = true
			}
			*ti++
		}
		if !grew {
			break
		}
	}

	r.base = baseLines[lo:hi]
	return r
}

func regionBounds(ours []span, oi int, theirs []span, ti int) (lo, hi int) {
	switch {
	case oi >= len(ours):
		return theirs[ti].start, theirs[ti].end
	case ti >= len(theirs):
		return ours[oi].start, ours[oi].end
	default:
		lo = min(ours[oi].start, theirs[ti].start)
		hi = max(ours[oi].end, theirs[ti].end)
		return lo, hi
	}
}

// absorbable reports whether a span belongs to the region [lo, hi). The
// second clause groups simultaneous zero-width insertions at the same
// base position.
func absorbable(sp span, lo, hi int) bool {
	return sp.start < hi || (hi == lo && sp.start == lo)
}

// resolve applies the three-way rule to one region.
func (r region) resolve() Hunk {
	h := Hunk{Type: HunkClean, Base: joinLines(r.base)}
	if r.oursChanged {
		h.Ours = joinLines(r.ours)
	}
	if r.theirsCh {
		h.Theirs = joinLines(r.theirs)
	}

	switch {
	case !r.oursChanged && !r.theirsCh:
		h.Merged = joinLines(r.base)
	case r.oursChanged && !r.theirsCh:
		h.Merged = joinLines(r.ours)
	case !r.oursChanged && r.theirsCh:
		h.Merged = joinLines(r.theirs)
	case linesEqual(r.ours, r.theirs):
		h.Merged = joinLines(r.ours)
	default:
		h.Type = HunkConflict
		h.Ours = joinLines(r.ours)
		h.Theirs = joinLines(r.theirs)
	}
	return h
}

// splitLines splits on newlines without producing a phantom final element
// for a trailing newline.
func splitLines(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	lines := strings.Split(string(data), "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func joinLines(lines []string) []byte {
	if len(lines) == 0 {
		return nil
	}
	var buf bytes.Buffer
	for _, l := range lines {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func linesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
