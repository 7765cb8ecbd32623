package main

import (
	"github.com/odvcencio/grit/pkg/repo"
	"github.com/spf13/cobra"
)

func newCheckoutCmd() *cobra.Command {
	var createBranch bool

	cmd := &cobra.Command{
		Use:   "checkout <ref>",
		Short: "Switch branches or detach HEAD at a commit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}

			var res *repo.CheckoutResult
			if createBranch {
				res, err = r.CheckoutNewBranch(args[0])
			} else {
				res, err = r.Checkout(args[0])
			}
			if err != nil {
				return err
			}

			switch {
			case createBranch:
				say(cmd, "Switched to a new branch '%s'\n", res.Branch)
			case res.Detached:
				say(cmd, "HEAD is now at %s\n", shortHash(res.Head))
			default:
				say(cmd, "Switched to branch '%s'\n", res.Branch)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&createBranch, "branch", "b", false, "create and switch to a new branch")
	return cmd
}
