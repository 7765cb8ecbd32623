package diff3

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
)

func TestMergeClean(t *testing.T) {
	tests := []struct {
		name               string
		base, ours, theirs string
		want               string
	}{
		{
			name:   "no changes",
			base:   "a\nb\nc\n",
			ours:   "a\nb\nc\n",
			theirs: "a\nb\nc\n",
			want:   "a\nb\nc\n",
		},
		{
			name:   "ours only",
			base:   "a\nb\nc\n",
			ours:   "a\nB\nc\n",
			theirs: "a\nb\nc\n",
			want:   "a\nB\nc\n",
		},
		{
			name:   "theirs only",
			base:   "a\nb\nc\n",
			ours:   "a\nb\nc\n",
			theirs: "a\nb\nC\n",
			want:   "a\nb\nC\n",
		},
		{
			name:   "insert at top and bottom",
			base:   "m\n",
			ours:   "top\nm\n",
			theirs: "m\nbottom\n",
			want:   "top\nm\nbottom\n",
		},
		{
			name:   "non-overlapping edits",
			base:   "aaa\nbbb\nccc\nddd\neee\n",
			ours:   "aaa\nOUR-INSERT\nbbb\nccc\nddd\neee\n",
			theirs: "aaa\nbbb\nccc\nddd\nTHEIR-INSERT\neee\n",
			want:   "aaa\nOUR-INSERT\nbbb\nccc\nddd\nTHEIR-INSERT\neee\n",
		},
		{
			name:   "identical change on both sides",
			base:   "a\nb\nc\n",
			ours:   "a\nX\nc\n",
			theirs: "a\nX\nc\n",
			want:   "a\nX\nc\n",
		},
		{
			name:   "ours empties the file",
			base:   "a\nb\n",
			ours:   "",
			theirs: "a\nb\n",
			want:   "",
		},
		{
			name:   "all empty",
			base:   "",
			ours:   "",
			theirs: "",
			want:   "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Merge([]byte(tt.base), []byte(tt.ours), []byte(tt.theirs))
			if res.HasConflicts {
				t.Fatalf("unexpected conflicts, merged:\n%s", res.Merged)
			}
			if got := string(res.Merged); got != tt.want {
				t.Fatalf("merged = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMergeFinalNewline(t *testing.T) {
	tests := []struct {
		name               string
		base, ours, theirs string
		want               string
	}{
		{
			name:   "missing newline preserved",
			base:   "a\nb",
			ours:   "a\nb",
			theirs: "a\nb",
			want:   "a\nb",
		},
		{
			name:   "ours adds newline",
			base:   "a",
			ours:   "a\n",
			theirs: "a",
			want:   "a\n",
		},
		{
			name:   "theirs adds newline",
			base:   "a",
			ours:   "a",
			theirs: "a\n",
			want:   "a\n",
		},
		{
			name:   "ours strips newline",
			base:   "a\n",
			ours:   "a",
			theirs: "a\n",
			want:   "a",
		},
		{
			name:   "edit keeps missing newline",
			base:   "a\nb",
			ours:   "a\nc",
			theirs: "a\nb",
			want:   "a\nc",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Merge([]byte(tt.base), []byte(tt.ours), []byte(tt.theirs))
			if res.HasConflicts {
				t.Fatalf("unexpected conflicts, merged:\n%s", res.Merged)
			}
			if got := string(res.Merged); got != tt.want {
				t.Fatalf("merged = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMergeConflicts(t *testing.T) {
	tests := []struct {
		name               string
		base, ours, theirs string
	}{
		{
			name:   "same line edited differently",
			base:   "a\nb\nc\n",
			ours:   "a\nOURS\nc\n",
			theirs: "a\nTHEIRS\nc\n",
		},
		{
			name:   "delete versus modify",
			base:   "a\nb\nc\n",
			ours:   "a\nc\n",
			theirs: "a\nB\nc\n",
		},
		{
			name:   "both add to empty base",
			base:   "",
			ours:   "mine\n",
			theirs: "yours\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Merge([]byte(tt.base), []byte(tt.ours), []byte(tt.theirs))
			if !res.HasConflicts {
				t.Fatalf("expected conflicts, merged clean:\n%s", res.Merged)
			}
			for _, marker := range []string{markerOurs, markerSeparator, markerTheirs} {
				if !bytes.Contains(res.Merged, []byte(marker)) {
					t.Errorf("merged output missing marker %q:\n%s", marker, res.Merged)
				}
			}
			found := false
			for _, h := range res.Hunks {
				if h.Type == HunkConflict {
					found = true
					if h.Merged != nil {
						t.Errorf("conflict hunk has merged content %q", h.Merged)
					}
				}
			}
			if !found {
				t.Error("no conflict hunk recorded")
			}
		})
	}
}

func TestMergeConflictContent(t *testing.T) {
	res := Merge([]byte("x\n"), []byte("left\n"), []byte("right\n"))
	if !res.HasConflicts {
		t.Fatal("expected conflict")
	}
	want := markerOurs + "left\n" + markerSeparator + "right\n" + markerTheirs
	if got := string(res.Merged); got != want {
		t.Fatalf("merged = %q, want %q", got, want)
	}
}

func TestMergeSurroundingContextPreserved(t *testing.T) {
	base := "one\ntwo\nthree\nfour\nfive\n"
	res := Merge([]byte(base), []byte("one\ntwo\nO3\nfour\nfive\n"), []byte("one\ntwo\nT3\nfour\nfive\n"))
	if !res.HasConflicts {
		t.Fatal("expected conflict")
	}
	merged := string(res.Merged)
	if !strings.HasPrefix(merged, "one\ntwo\n") || !strings.HasSuffix(merged, "four\nfive\n") {
		t.Fatalf("context around conflict lost:\n%s", merged)
	}
}

func TestMergeHunks(t *testing.T) {
	res := Merge([]byte("a\nb\nc\n"), []byte("a\nB\nc\n"), []byte("a\nb\nc\n"))
	if res.HasConflicts {
		t.Fatal("unexpected conflict")
	}
	var changed *Hunk
	for i := range res.Hunks {
		if res.Hunks[i].Ours != nil {
			changed = &res.Hunks[i]
		}
	}
	if changed == nil {
		t.Fatal("no hunk records the ours-side change")
	}
	if string(changed.Base) != "b\n" || string(changed.Ours) != "B\n" || string(changed.Merged) != "B\n" {
		t.Fatalf("hunk = base %q ours %q merged %q", changed.Base, changed.Ours, changed.Merged)
	}
}

func TestMergeLargeFile(t *testing.T) {
	const lines = 2000
	base := make([]string, lines)
	for i := range base {
		base[i] = fmt.Sprintf("line %d", i)
	}
	ours := append([]string(nil), base...)
	ours[100] = "ours edit"
	theirs := append([]string(nil), base...)
	theirs[1900] = "theirs edit"

	res := Merge(joinLines(base), joinLines(ours), joinLines(theirs))
	if res.HasConflicts {
		t.Fatal("distant edits should merge clean")
	}
	want := append([]string(nil), base...)
	want[100] = "ours edit"
	want[1900] = "theirs edit"
	if !bytes.Equal(res.Merged, joinLines(want)) {
		t.Fatal("merged output does not combine both edits")
	}
}

func TestMyersDiff(t *testing.T) {
	ops := myersDiff([]string{"a", "b", "c"}, []string{"a", "x", "c"})
	want := []editOp{
		{opEqual, "a"},
		{opDelete, "b"},
		{opInsert, "x"},
		{opEqual, "c"},
	}
	if len(ops) != len(want) {
		t.Fatalf("got %d ops, want %d: %v", len(ops), len(want), ops)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Errorf("op %d = %v, want %v", i, ops[i], want[i])
		}
	}
}

func TestMyersDiffDegenerate(t *testing.T) {
	if ops := myersDiff(nil, nil); ops != nil {
		t.Errorf("empty inputs: got %v", ops)
	}
	ops := myersDiff(nil, []string{"a", "b"})
	if len(ops) != 2 || ops[0].kind != opInsert || ops[1].kind != opInsert {
		t.Errorf("insert-only script wrong: %v", ops)
	}
	ops = myersDiff([]string{"a", "b"}, nil)
	if len(ops) != 2 || ops[0].kind != opDelete || ops[1].kind != opDelete {
		t.Errorf("delete-only script wrong: %v", ops)
	}
	ops = myersDiff([]string{"a", "b"}, []string{"a", "b"})
	for _, op := range ops {
		if op.kind != opEqual {
			t.Errorf("identical inputs produced edit %v", op)
		}
	}
}

func TestMyersDiffRoundTrip(t *testing.T) {
	a := []string{"a", "b", "c", "d", "e"}
	b := []string{"z", "b", "d", "q", "e", "f"}
	ops := myersDiff(a, b)

	var gotA, gotB []string
	for _, op := range ops {
		switch op.kind {
		case opEqual:
			gotA = append(gotA, op.line)
			gotB = append(gotB, op.line)
		case opDelete:
			gotA = append(gotA, op.line)
		case opInsert:
			gotB = append(gotB, op.line)
		}
	}
	if !linesEqual(gotA, a) || !linesEqual(gotB, b) {
		t.Fatalf("script does not reproduce inputs:\n a=%v\n b=%v\nops=%v", gotA, gotB, ops)
	}
}

func TestSplitJoinLines(t *testing.T) {
	if got := splitLines(nil); got != nil {
		t.Errorf("splitLines(nil) = %v", got)
	}
	if got := splitLines([]byte("a\nb\n")); !linesEqual(got, []string{"a", "b"}) {
		t.Errorf("trailing newline handling: %v", got)
	}
	if got := splitLines([]byte("a\nb")); !linesEqual(got, []string{"a", "b"}) {
		t.Errorf("missing final newline: %v", got)
	}
	if got := joinLines(nil); got != nil {
		t.Errorf("joinLines(nil) = %q", got)
	}
	if got := string(joinLines([]string{"a", "b"})); got != "a\nb\n" {
		t.Errorf("joinLines = %q", got)
	}
}
