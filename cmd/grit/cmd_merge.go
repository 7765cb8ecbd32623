package main

import (
	"fmt"

	"github.com/odvcencio/grit/pkg/repo"
	"github.com/spf13/cobra"
)

func newMergeCmd() *cobra.Command {
	var abort bool

	cmd := &cobra.Command{
		Use:   "merge <ref>",
		Short: "Merge another branch or commit into the current branch",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}

			if abort {
				if len(args) != 0 {
					return fmt.Errorf("merge --abort takes no arguments")
				}
				if err := r.AbortMerge(); err != nil {
					return err
				}
				say(cmd, "Merge aborted\n")
				return nil
			}
			if len(args) != 1 {
				return fmt.Errorf("merge requires a ref to merge")
			}

			res, err := r.Merge(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch res.Outcome {
			case repo.MergeUpToDate:
				say(cmd, "Already up to date.\n")
			case repo.MergeFastForward:
				say(cmd, "Fast-forward to %s\n", shortHash(res.Hash))
			case repo.MergeCreated:
				say(cmd, "Merge made by the three-way strategy: %s\n", shortHash(res.Hash))
			case repo.MergeConflicted:
				for _, p := range res.Conflicts {
					fmt.Fprintf(out, "CONFLICT (content): merge conflict in %s\n", p)
				}
				return fmt.Errorf("automatic merge failed; fix conflicts and commit the result")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&abort, "abort", false, "abandon the in-progress merge and restore HEAD state")
	return cmd
}
