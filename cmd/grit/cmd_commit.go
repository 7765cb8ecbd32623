package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCommitCmd() *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Record the staged tree as a new commit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if message == "" {
				return fmt.Errorf("commit message is required (-m)")
			}

			r, err := openRepo()
			if err != nil {
				return err
			}
			res, err := r.Commit(message)
			if err != nil {
				return err
			}

			branch := res.Branch
			if branch == "" {
				branch = "detached HEAD"
			}
			say(cmd, "[%s %s] %s\n", branch, shortHash(res.Hash), res.Message)
			return nil
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "commit message")
	return cmd
}
