package repo

import (
	"fmt"
	"sort"
	"strings"

	"github.com/odvcencio/grit/pkg/object"
)

// TreeFile is a flattened view of one file inside a tree: its mode and
// blob, keyed by slash-separated path.
type TreeFile struct {
	Mode     string
	BlobHash object.Hash
}

// BuildTreeFromIndex writes the nested tree objects for the stage-0
// entries of ix and returns the root tree hash. Conflict stages must be
// resolved before a tree can be built.
func (r *Repo) BuildTreeFromIndex(ix *Index) (object.Hash, error) {
	if ix.HasConflicts() {
		return "", fmt.Errorf("build tree: unresolved conflicts in %s",
			strings.Join(ix.ConflictPaths(), ", "))
	}

	type dirNode struct {
		files map[string]*IndexEntry
		dirs  map[string]*dirNode
	}
	newNode := func() *dirNode {
		return &dirNode{files: map[string]*IndexEntry{}, dirs: map[string]*dirNode{}}
	}

	root := newNode()
	for _, e := range ix.Entries {
		parts := strings.Split(e.Path, "/")
		node := root
		for _, dir := range parts[:len(parts)-1] {
			child, ok := node.dirs[dir]
			if !ok {
				child = newNode()
				node.dirs[dir] = child
			}
			node = child
		}
		node.files[parts[len(parts)-1]] = e
	}

	var writeNode func(n *dirNode) (object.Hash, error)
	writeNode = func(n *dirNode) (object.Hash, error) {
		tr := &object.TreeObj{}
		for name, e := range n.files {
			tr.Entries = append(tr.Entries, object.TreeEntry{
				Name:     name,
				Mode:     normalizeFileMode(e.Mode),
				BlobHash: e.BlobHash,
			})
		}
		dirNames := make([]string, 0, len(n.dirs))
		for name := range n.dirs {
			dirNames = append(dirNames, name)
		}
		sort.Strings(dirNames)
		for _, name := range dirNames {
			subHash, err := writeNode(n.dirs[name])
			if err != nil {
				return "", err
			}
			tr.Entries = append(tr.Entries, object.TreeEntry{
				Name:        name,
				IsDir:       true,
				Mode:        object.TreeModeDir,
				SubtreeHash: subHash,
			})
		}
		return r.Store.WriteTree(tr)
	}

	return writeNode(root)
}

// FlattenTree walks the tree rooted at treeHash and returns every file it
// reaches, keyed by slash-separated path.
func (r *Repo) FlattenTree(treeHash object.Hash) (map[string]TreeFile, error) {
	files := make(map[string]TreeFile)
	if treeHash == "" {
		return files, nil
	}

	var walk func(h object.Hash, prefix string) error
	walk = func(h object.Hash, prefix string) error {
		tr, err := r.Store.ReadTree(h)
		if err != nil {
			return fmt.Errorf("tree %s: %w", h, err)
		}
		for _, e := range tr.Entries {
			p := e.Name
			if prefix != "" {
				p = prefix + "/" + e.Name
			}
			if e.IsDir {
				if err := walk(e.SubtreeHash, p); err != nil {
					return err
				}
				continue
			}
			files[p] = TreeFile{Mode: normalizeFileMode(e.Mode), BlobHash: e.BlobHash}
		}
		return nil
	}
	if err := walk(treeHash, ""); err != nil {
		return nil, err
	}
	return files, nil
}

// CommitTree resolves a commit to its flattened file map. An empty hash
// (the unborn state) flattens to an empty map.
func (r *Repo) CommitTree(commitHash object.Hash) (map[string]TreeFile, error) {
	if commitHash == "" {
		return map[string]TreeFile{}, nil
	}
	c, err := r.Store.ReadCommit(commitHash)
	if err != nil {
		return nil, fmt.Errorf("commit %s: %w", commitHash, err)
	}
	return r.FlattenTree(c.TreeHash)
}
