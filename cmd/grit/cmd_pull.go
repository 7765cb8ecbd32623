package main

import (
	"fmt"

	"github.com/odvcencio/grit/pkg/remote"
	"github.com/odvcencio/grit/pkg/repo"
	"github.com/spf13/cobra"
)

func newPullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull [remote] [url]",
		Short: "Fetch from a remote and merge its branch into the current one",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			name, url, _ := remoteTarget(args)

			branch, err := r.CurrentBranch()
			if err != nil {
				return err
			}
			if branch == "" {
				return fmt.Errorf("cannot pull onto a detached HEAD; check out a branch first")
			}

			if _, err := remote.FetchFrom(cmd.Context(), r, name, url); err != nil {
				return err
			}

			tracking := remote.TrackingBranchRef(name, branch)
			tip, err := r.ResolveRef(tracking)
			if err != nil {
				return fmt.Errorf("remote %s has no branch %q", name, branch)
			}

			// Pulling onto an unborn branch materialises it at the remote tip.
			if _, err := r.ResolveRef("refs/heads/" + branch); err != nil {
				if _, err := r.CheckoutNewBranchAt(branch, tip); err != nil {
					return err
				}
				say(cmd, "Fast-forward to %s\n", shortHash(tip))
				return nil
			}

			res, err := r.Merge(tracking)
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
}
