package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/odvcencio/grit/pkg/object"
)

// Identity overrides, checked before the user section of the config file.
const (
	envAuthorName  = "GRIT_AUTHOR_NAME"
	envAuthorEmail = "GRIT_AUTHOR_EMAIL"
)

const mergeHeadFile = "MERGE_HEAD"

// AuthorIdentity resolves the committer identity: environment first, then
// the config file's user section.
func (r *Repo) AuthorIdentity() (string, error) {
	name := os.Getenv(envAuthorName)
	email := os.Getenv(envAuthorEmail)
	if name == "" || email == "" {
		cfgName, cfgEmail := r.configuredIdentity()
		if name == "" {
			name = cfgName
		}
		if email == "" {
			email = cfgEmail
		}
	}
	if name == "" || email == "" {
		return "", fmt.Errorf("author identity unknown: set %s and %s or configure user.name and user.email",
			envAuthorName, envAuthorEmail)
	}
	return fmt.Sprintf("%s <%s>", name, email), nil
}

// CommitResult reports what a commit created.
type CommitResult struct {
	Hash    object.Hash
	Branch  string // empty when HEAD is detached
	Message string
	IsMerge bool
}

// Commit records the staged tree as a new commit and advances HEAD.
// It refuses to run with unresolved conflicts or an empty staging area,
// and refuses commits that would not change the tree.
func (r *Repo) Commit(message string) (*CommitResult, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, fmt.Errorf("commit: empty message")
	}

	ix, err := r.ReadIndex()
	if err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	if ix.HasConflicts() {
		return nil, fmt.Errorf("commit: unresolved conflicts in %s",
			strings.Join(ix.ConflictPaths(), ", "))
	}
	if len(ix.Entries) == 0 {
		return nil, fmt.Errorf("commit: nothing staged")
	}

	parentHash, err := r.headCommit()
	if err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	treeHash, err := r.BuildTreeFromIndex(ix)
	if err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	parents := []object.Hash{}
	if parentHash != "" {
		parents = append(parents, parentHash)
	}
	mergeParent, isMerge, err := r.mergeHead()
	if err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	if isMerge {
		parents = append(parents, mergeParent)
	}

	if !isMerge && parentHash != "" {
		parent, err := r.Store.ReadCommit(parentHash)
		if err != nil {
			return nil, fmt.Errorf("commit: parent %s: %w", parentHash, err)
		}
		if parent.TreeHash == treeHash {
			return nil, fmt.Errorf("commit: nothing to commit, tree unchanged")
		}
	}

	author, err := r.AuthorIdentity()
	if err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	now := time.Now()
	commitHash, err := r.Store.WriteCommit(&object.CommitObj{
		TreeHash:       treeHash,
		Parents:        parents,
		Author:         author,
		Timestamp:      now.Unix(),
		AuthorTimezone: now.Format("-0700"),
		Message:        message,
	})
	if err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	branch, err := r.advanceHead(commitHash, parentHash)
	if err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	if isMerge {
		if err := os.Remove(filepath.Join(r.GitDir, mergeHeadFile)); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("commit: clear merge state: %w", err)
		}
	}

	return &CommitResult{Hash: commitHash, Branch: branch, Message: message, IsMerge: isMerge}, nil
}

// headCommit resolves HEAD to a commit hash. The unborn state resolves to
// the empty hash.
func (r *Repo) headCommit() (object.Hash, error) {
	h, err := r.ResolveRef("HEAD")
	if err != nil {
		if errors.Is(err, ErrUnborn) {
			return "", nil
		}
		return "", err
	}
	return h, nil
}

// advanceHead moves the current branch (or detached HEAD) to commitHash,
// guarding against concurrent moves with a compare-and-swap on the old
// value. Returns the branch name, or empty when detached.
func (r *Repo) advanceHead(commitHash, oldHash object.Hash) (string, error) {
	head, err := r.Head()
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(head, "refs/") {
		if err := r.UpdateRefCAS(head, commitHash, oldHash); err != nil {
			return "", err
		}
		return strings.TrimPrefix(head, "refs/heads/"), nil
	}
	if err := r.SetHeadDetached(commitHash); err != nil {
		return "", err
	}
	return "", nil
}

// mergeHead reads the in-progress merge parent, if a merge is underway.
func (r *Repo) mergeHead() (object.Hash, bool, error) {
	data, err := os.ReadFile(filepath.Join(r.GitDir, mergeHeadFile))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}
	h := object.Hash(strings.TrimSpace(string(data)))
	if !h.IsValid() {
		return "", false, fmt.Errorf("malformed %s", mergeHeadFile)
	}
	return h, true, nil
}

// LogEntry pairs a commit with its hash for history display.
type LogEntry struct {
	Hash   object.Hash
	Commit *object.CommitObj
}

// Log walks history from the given start (a ref name or hash; empty means
// HEAD), following first parents only, newest first. limit <= 0 means
// unbounded.
func (r *Repo) Log(start string, limit int) ([]LogEntry, error) {
	if start == "" {
		start = "HEAD"
	}
	cur, err := r.RevParse(start)
	if err != nil {
		if errors.Is(err, ErrUnborn) {
			return nil, nil
		}
		return nil, fmt.Errorf("log: %w", err)
	}

	var entries []LogEntry
	for cur != "" {
		if limit > 0 && len(entries) >= limit {
			break
		}
		c, err := r.Store.ReadCommit(cur)
		if err != nil {
			return nil, fmt.Errorf("log: commit %s: %w", cur, err)
		}
		entries = append(entries, LogEntry{Hash: cur, Commit: c})
		if len(c.Parents) == 0 {
			break
		}
		cur = c.Parents[0]
	}
	return entries, nil
}

// RevParse resolves a name to a commit-ish hash: a full hash, HEAD, a
// branch, a tag (peeled through annotated tag objects), or a full ref.
func (r *Repo) RevParse(name string) (object.Hash, error) {
	if h := object.Hash(name); h.IsValid() && r.Store.Has(h) {
		return r.peel(h)
	}

	candidates := []string{name}
	if name != "HEAD" && !strings.HasPrefix(name, "refs/") {
		candidates = []string{
			"refs/heads/" + name,
			"refs/tags/" + name,
			"refs/remotes/" + name,
			name,
		}
	}
	for _, ref := range candidates {
		h, err := r.ResolveRef(ref)
		if err == nil {
			return r.peel(h)
		}
		if errors.Is(err, ErrUnborn) {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: unknown revision %q", ErrInvalidRef, name)
}

// peel follows annotated tag objects down to the object they name.
func (r *Repo) peel(h object.Hash) (object.Hash, error) {
	for depth := 0; depth < maxSymbolicRefDepth; depth++ {
		objType, data, err := r.Store.Read(h)
		if err != nil {
			return "", err
		}
		if objType != object.TypeTag {
			return h, nil
		}
		tag, err := object.UnmarshalTag(data)
		if err != nil {
			return "", err
		}
		h = tag.TargetHash
	}
	return "", fmt.Errorf("%w: tag chain too deep at %s", ErrInvalidRef, h)
}
