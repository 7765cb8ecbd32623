package repo

import (
	"errors"
	"fmt"
	"strings"

	"github.com/odvcencio/grit/pkg/object"
)

// Repo represents an opened Grit repository.
type Repo struct {
	RootDir string        // working directory root
	GitDir  string        // .git/ directory
	Store   *object.Store // content-addressed object store
}

// Sentinel errors shared across repository operations.
var (
	ErrRefStale   = errors.New("ref compare-and-swap mismatch")
	ErrUnborn     = errors.New("ref is unborn")
	ErrInvalidRef = errors.New("invalid ref name")
	ErrLockHeld   = errors.New("lock held")
)

// DirtyWorkingTreeError refuses a destructive operation, naming the paths
// whose uncommitted or untracked state would be lost.
type DirtyWorkingTreeError struct {
	Paths []string
}

func (e *DirtyWorkingTreeError) Error() string {
	return fmt.Sprintf("working tree not clean: %s", strings.Join(e.Paths, ", "))
}
