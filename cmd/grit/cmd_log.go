package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newLogCmd() *cobra.Command {
	var oneline bool
	var limit int

	cmd := &cobra.Command{
		Use:   "log [rev]",
		Short: "Show commit history",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}

			start := ""
			if len(args) > 0 {
				start = args[0]
			}
			entries, err := r.Log(start, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "no commits yet")
				return nil
			}

			branch, _ := r.CurrentBranch()
			for i, e := range entries {
				decoration := ""
				if i == 0 && start == "" {
					if branch != "" {
						decoration = " (HEAD -> " + branch + ")"
					} else {
						decoration = " (HEAD)"
					}
				}

				if oneline {
					fmt.Fprintf(out, "%s%s %s\n", shortHash(e.Hash), decoration, e.Commit.Message)
					continue
				}
				fmt.Fprintf(out, "commit %s%s\n", e.Hash, decoration)
				if len(e.Commit.Parents) > 1 {
					fmt.Fprintf(out, "Merge: %s %s\n", shortHash(e.Commit.Parents[0]), shortHash(e.Commit.Parents[1]))
				}
				fmt.Fprintf(out, "Author: %s\n", e.Commit.Author)
				fmt.Fprintf(out, "Date:   %s\n", time.Unix(e.Commit.Timestamp, 0).UTC().Format("2006-01-02 15:04:05"))
				fmt.Fprintln(out)
				fmt.Fprintf(out, "    %s\n", e.Commit.Message)
				fmt.Fprintln(out)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&oneline, "oneline", false, "compact one-line format")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of commits to show")
	return cmd
}
