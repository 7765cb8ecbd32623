package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/odvcencio/grit/pkg/remote"
	"github.com/spf13/cobra"
)

func newCloneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clone <url> [dir]",
		Short: "Fetch a remote repository into a new directory",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := args[0]
			dir := ""
			if len(args) > 1 {
				dir = args[1]
			} else {
				dir = cloneTargetDir(url)
			}
			if dir == "" {
				return fmt.Errorf("cannot derive a directory name from %q; pass one explicitly", url)
			}

			say(cmd, "Cloning into '%s'...\n", dir)
			if _, err := remote.Clone(cmd.Context(), url, dir, defaultRemote); err != nil {
				return err
			}
			return nil
		},
	}
}

// cloneTargetDir derives a directory name from the remote URL, the way
// "clone host/team/project" yields "project".
func cloneTargetDir(url string) string {
	trimmed := strings.TrimRight(url, "/")
	base := filepath.Base(filepath.FromSlash(trimmed))
	base = strings.TrimSuffix(base, ".bundle")
	base = strings.TrimSuffix(base, ".git")
	if base == "." || base == string(filepath.Separator) || base == "" {
		return ""
	}
	return base
}
