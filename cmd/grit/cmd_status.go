package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show working tree status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			st, err := r.Status()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case st.Detached:
				fmt.Fprintf(out, "HEAD detached at %s\n", shortHash(st.Head))
			case st.Head == "":
				fmt.Fprintf(out, "On branch %s (no commits yet)\n", st.Branch)
			default:
				fmt.Fprintf(out, "On branch %s\n", st.Branch)
			}

			printPathList(out, "unmerged paths", st.Conflicted, "!")

			var staged []string
			for _, p := range st.StagedAdded {
				staged = append(staged, "new file: "+p)
			}
			for _, p := range st.StagedModified {
				staged = append(staged, "modified: "+p)
			}
			for _, p := range st.StagedDeleted {
				staged = append(staged, "deleted:  "+p)
			}
			printPathList(out, "changes to be committed", staged, " ")

			var unstaged []string
			for _, p := range st.WorkModified {
				unstaged = append(unstaged, "modified: "+p)
			}
			for _, p := range st.WorkDeleted {
				unstaged = append(unstaged, "deleted:  "+p)
			}
			printPathList(out, "changes not staged for commit", unstaged, " ")

			printPathList(out, "untracked files", st.Untracked, " ")

			if st.Clean() {
				fmt.Fprintln(out, "nothing to commit, working tree clean")
			}
			return nil
		},
	}
}
