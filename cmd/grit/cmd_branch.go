package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newBranchCmd() *cobra.Command {
	var deleteBranch string

	cmd := &cobra.Command{
		Use:   "branch [name] [start-point]",
		Short: "List, create, or delete branches",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}

			if deleteBranch != "" {
				if err := r.DeleteBranch(deleteBranch); err != nil {
					return err
				}
				say(cmd, "Deleted branch '%s'\n", deleteBranch)
				return nil
			}

			if len(args) > 0 {
				start := ""
				if len(args) > 1 {
					start = args[1]
				}
				if err := r.CreateBranch(args[0], start); err != nil {
					return err
				}
				return nil
			}

			branches, err := r.ListBranches()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, b := range branches {
				if b.Current {
					fmt.Fprintf(out, "* %s\n", b.Name)
				} else {
					fmt.Fprintf(out, "  %s\n", b.Name)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&deleteBranch, "delete", "D", "", "delete the named branch")
	return cmd
}
