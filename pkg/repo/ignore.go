package repo

import (
	"bufio"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const ignoreFileName = ".gritignore"

// ignorePattern is one parsed line of a .gritignore file.
type ignorePattern struct {
	pattern string
	negate  bool // leading '!' re-includes a previously ignored path
	dirOnly bool // trailing '/' restricts the pattern to directories
	rooted  bool // leading '/' anchors the pattern at the repo root
}

// IgnoreChecker evaluates .gritignore rules for a repository. Rules are
// read once from the root ignore file; the last matching rule wins.
type IgnoreChecker struct {
	patterns []ignorePattern
}

// NewIgnoreChecker loads the root .gritignore, if any. A missing or
// unreadable ignore file yields a checker that ignores nothing.
func NewIgnoreChecker(rootDir string) *IgnoreChecker {
	ic := &IgnoreChecker{}
	f, err := os.Open(filepath.Join(rootDir, ignoreFileName))
	if err != nil {
		return ic
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if p, ok := parseIgnoreLine(scanner.Text()); ok {
			ic.patterns = append(ic.patterns, p)
		}
	}
	return ic
}

func parseIgnoreLine(line string) (ignorePattern, bool) {
	line = strings.TrimRight(line, " \t")
	if line == "" || strings.HasPrefix(line, "#") {
		return ignorePattern{}, false
	}

	var p ignorePattern
	if strings.HasPrefix(line, "!") {
		p.negate = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		p.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		p.rooted = true
		line = line[1:]
	}
	if !p.rooted && strings.Contains(line, "/") {
		// A slash anywhere in the pattern anchors it at the root.
		p.rooted = true
	}
	if line == "" {
		return ignorePattern{}, false
	}
	p.pattern = line
	return p, true
}

// IsIgnored reports whether the slash-separated repo-relative file path
// is ignored. Use Match to ask about a directory.
func (ic *IgnoreChecker) IsIgnored(relPath string) bool {
	return ic.Match(relPath, false)
}

// Match reports whether the slash-separated repo-relative path is ignored.
// The repository metadata directory is always ignored, as is the content
// of any ignored directory.
func (ic *IgnoreChecker) Match(relPath string, isDir bool) bool {
	relPath = path.Clean(filepath.ToSlash(relPath))
	if relPath == gitDirName || strings.HasPrefix(relPath, gitDirName+"/") {
		return true
	}

	// Evaluate each path prefix so that ignoring a directory covers
	// everything beneath it.
	segments := strings.Split(relPath, "/")
	ignored := false
	for i := 1; i <= len(segments); i++ {
		prefix := strings.Join(segments[:i], "/")
		prefixIsDir := i < len(segments) || isDir
		for _, p := range ic.patterns {
			if p.dirOnly && !prefixIsDir {
				continue
			}
			if p.matches(prefix) {
				ignored = !p.negate
			}
		}
		if ignored && i < len(segments) {
			// Negations inside an ignored directory have no effect.
			return true
		}
	}
	return ignored
}

func (p ignorePattern) matches(relPath string) bool {
	if p.rooted {
		ok, err := path.Match(p.pattern, relPath)
		return err == nil && ok
	}
	ok, err := path.Match(p.pattern, path.Base(relPath))
	return err == nil && ok
}
