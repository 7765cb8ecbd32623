package repo

import "testing"

func TestIgnorePatterns(t *testing.T) {
	r := initTestRepo(t)
	writeWorkFile(t, r, ".gritignore", `
# build output
*.log
build/
/rooted.txt
docs/internal.md
!important.log
`)
	ic := NewIgnoreChecker(r.RootDir)

	cases := []struct {
		path  string
		isDir bool
		want  bool
	}{
		{"debug.log", false, true},
		{"sub/dir/trace.log", false, true},
		{"important.log", false, false}, // negated
		{"build", true, true},
		{"build", false, false}, // dir-only pattern never matches a file
		{"build/a/b.txt", false, true},
		{"rooted.txt", false, true},
		{"sub/rooted.txt", false, false}, // anchored at root
		{"docs/internal.md", false, true},
		{"docs/public.md", false, false},
		{"normal.txt", false, false},
		{".git/config", false, true}, // metadata dir always ignored
	}
	for _, tc := range cases {
		if got := ic.Match(tc.path, tc.isDir); got != tc.want {
			t.Errorf("Match(%q, %v) = %v, want %v", tc.path, tc.isDir, got, tc.want)
		}
	}
}

func TestIgnoreMissingFile(t *testing.T) {
	r := initTestRepo(t)
	ic := NewIgnoreChecker(r.RootDir)
	if ic.IsIgnored("anything.txt") {
		t.Error("empty checker ignored a file")
	}
}

func TestIgnoreNegationInsideIgnoredDir(t *testing.T) {
	r := initTestRepo(t)
	writeWorkFile(t, r, ".gritignore", "vendor/\n!vendor/keep.txt\n")
	ic := NewIgnoreChecker(r.RootDir)

	if !ic.IsIgnored("vendor/anything.txt") {
		t.Error("vendor content not ignored")
	}
	// Content of an ignored directory cannot be re-included.
	if !ic.IsIgnored("vendor/keep.txt") {
		t.Error("negation re-included content of an ignored directory")
	}
}
