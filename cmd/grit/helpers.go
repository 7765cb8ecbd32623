package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/odvcencio/grit/pkg/object"
	"github.com/odvcencio/grit/pkg/repo"
	"github.com/spf13/cobra"
)

// quiet suppresses non-essential output lines; bound to --quiet on the
// root command.
var quiet bool

// say prints a progress line unless quiet mode is on. Primary results
// (log output, cat-file content, status listings) bypass it.
func say(cmd *cobra.Command, format string, args ...any) {
	if quiet {
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}

func openRepo() (*repo.Repo, error) {
	return repo.Open(".")
}

func shortHash(h object.Hash) string {
	s := string(h)
	if len(s) <= 8 {
		return s
	}
	return s[:8]
}

// remoteTarget interprets the leading arguments of fetch/pull/push: an
// optional remote name, optionally followed by a URL or bundle path that
// overrides the configured one. A bare URL in first position targets the
// default remote.
func remoteTarget(args []string) (name, url string, rest []string) {
	name = defaultRemote
	if len(args) == 0 {
		return name, "", nil
	}
	if looksLikeRemoteURL(args[0]) {
		return name, args[0], args[1:]
	}
	name = args[0]
	if len(args) > 1 && looksLikeRemoteURL(args[1]) {
		return name, args[1], args[2:]
	}
	return name, "", args[1:]
}

func looksLikeRemoteURL(s string) bool {
	if strings.Contains(s, "://") || strings.HasSuffix(s, ".bundle") {
		return true
	}
	return strings.HasPrefix(s, "/") || strings.HasPrefix(s, "./") || strings.HasPrefix(s, "../")
}

func printPathList(out io.Writer, header string, paths []string, marker string) {
	if len(paths) == 0 {
		return
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "%s:\n", header)
	for _, p := range paths {
		fmt.Fprintf(out, "  %s %s\n", marker, p)
	}
}
