package main

import (
	"github.com/odvcencio/grit/pkg/remote"
	"github.com/spf13/cobra"
)

const defaultRemote = "origin"

func newFetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch [remote] [url]",
		Short: "Download objects and update remote-tracking refs",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			name, url, _ := remoteTarget(args)

			res, err := remote.FetchFrom(cmd.Context(), r, name, url)
			if err != nil {
				return err
			}
			if len(res.Updates) == 0 {
				say(cmd, "Already up to date.\n")
				return nil
			}
			for _, u := range res.Updates {
				if u.Old == "" {
					say(cmd, " * [new ref]          %s\n", u.Name)
					continue
				}
				say(cmd, "   %s..%s  %s\n", shortHash(u.Old), shortHash(u.New), u.Name)
			}
			return nil
		},
	}
}
