package repo

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/odvcencio/grit/pkg/object"
)

// ErrTagExists is returned when creating a tag that already exists.
var ErrTagExists = errors.New("tag already exists")

// CreateTag points refs/tags/<name> at the resolved target (empty means
// HEAD). A non-empty message creates an annotated tag object; otherwise
// the ref points straight at the target.
func (r *Repo) CreateTag(name, target, message string) (object.Hash, error) {
	if err := validateBranchName(name); err != nil {
		return "", fmt.Errorf("tag: %w", err)
	}

	if target == "" {
		target = "HEAD"
	}
	targetHash, err := r.RevParse(target)
	if err != nil {
		return "", fmt.Errorf("tag %q: %w", name, err)
	}
	targetType, _, err := r.Store.Read(targetHash)
	if err != nil {
		return "", fmt.Errorf("tag %q: %w", name, err)
	}

	refTarget := targetHash
	message = strings.TrimSpace(message)
	if message != "" {
		tagger, err := r.AuthorIdentity()
		if err != nil {
			return "", fmt.Errorf("tag %q: %w", name, err)
		}
		now := time.Now()
		refTarget, err = r.Store.WriteTag(&object.TagObj{
			TargetHash: targetHash,
			TargetType: targetType,
			Name:       name,
			Tagger:     tagger,
			Timestamp:  now.Unix(),
			Timezone:   now.Format("-0700"),
			Message:    message,
		})
		if err != nil {
			return "", fmt.Errorf("tag %q: %w", name, err)
		}
	}

	ref := "refs/tags/" + name
	if err := r.UpdateRefCAS(ref, refTarget, ""); err != nil {
		if errors.Is(err, ErrRefStale) {
			return "", fmt.Errorf("%w: %q", ErrTagExists, name)
		}
		return "", fmt.Errorf("tag %q: %w", name, err)
	}
	return refTarget, nil
}

// DeleteTag removes a tag ref. The tag object, if any, stays until gc.
func (r *Repo) DeleteTag(name string) error {
	ref := "refs/tags/" + name
	if !r.refExists(ref) {
		return fmt.Errorf("tag %q: %w", name, ErrInvalidRef)
	}
	return r.DeleteRef(ref)
}

// ListTags returns tag names sorted lexically.
func (r *Repo) ListTags() ([]string, error) {
	refs, err := r.ListRefs("refs/tags/")
	if err != nil {
		return nil, fmt.Errorf("tags: %w", err)
	}
	names := make([]string, 0, len(refs))
	for name := range refs {
		names = append(names, strings.TrimPrefix(name, "refs/tags/"))
	}
	sort.Strings(names)
	return names, nil
}
