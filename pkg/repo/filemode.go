package repo

import (
	"io/fs"

	"github.com/odvcencio/grit/pkg/object"
)

// modeFromFileInfo maps a working-tree file to its tree mode string.
// Only the owner execute bit matters; everything else is flattened.
func modeFromFileInfo(info fs.FileInfo) string {
	if info.Mode()&0o100 != 0 {
		return object.TreeModeExecutable
	}
	return object.TreeModeFile
}

// normalizeFileMode collapses a stored mode string to one of the two
// supported file modes. Unknown modes degrade to the regular-file mode.
func normalizeFileMode(mode string) string {
	if mode == object.TreeModeExecutable {
		return object.TreeModeExecutable
	}
	return object.TreeModeFile
}

// filePermFromMode returns the permission bits to use when materializing
// a blob with the given tree mode.
func filePermFromMode(mode string) fs.FileMode {
	if normalizeFileMode(mode) == object.TreeModeExecutable {
		return 0o755
	}
	return 0o644
}
