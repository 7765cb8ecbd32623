package repo

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/odvcencio/grit/pkg/object"
)

const (
	gitDirName    = ".git"
	defaultBranch = "master"
)

// Init creates a new repository at path. It lays out the .git/ directory:
// HEAD (symbolic, attached-unborn on refs/heads/master), objects/, the refs
// namespaces, and an empty config. Returns an error if .git/ already exists.
func Init(path string) (*Repo, error) {
	gitDir := filepath.Join(path, gitDirName)

	if _, err := os.Stat(gitDir); err == nil {
		return nil, fmt.Errorf("init: repository already exists at %s", gitDir)
	}

	dirs := []string{
		filepath.Join(gitDir, "objects"),
		filepath.Join(gitDir, "refs", "heads"),
		filepath.Join(gitDir, "refs", "tags"),
		filepath.Join(gitDir, "refs", "remotes"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("init: mkdir %s: %w", d, err)
		}
	}

	headPath := filepath.Join(gitDir, "HEAD")
	if err := os.WriteFile(headPath, []byte("ref: refs/heads/"+defaultBranch+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("init: write HEAD: %w", err)
	}

	if err := os.WriteFile(filepath.Join(gitDir, "config"), nil, 0o644); err != nil {
		return nil, fmt.Errorf("init: write config: %w", err)
	}

	return &Repo{
		RootDir: path,
		GitDir:  gitDir,
		Store:   object.NewStore(gitDir),
	}, nil
}

// Open searches upward from path for a .git/ directory and opens the
// repository. Returns an error if no .git/ directory is found.
func Open(path string) (*Repo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("open: abs path: %w", err)
	}

	cur := abs
	for {
		gitDir := filepath.Join(cur, gitDirName)
		info, err := os.Stat(gitDir)
		if err == nil && info.IsDir() {
			return &Repo{
				RootDir: cur,
				GitDir:  gitDir,
				Store:   object.NewStore(gitDir),
			}, nil
		}

		parent := filepath.Dir(cur)
		if parent == cur {
			return nil, fmt.Errorf("open: not a grit repository (or any parent up to /)")
		}
		cur = parent
	}
}
