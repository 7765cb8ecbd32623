package main

import (
	"github.com/odvcencio/grit/pkg/remote"
	"github.com/spf13/cobra"
)

func newPushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push [remote] [url] [branch...]",
		Short: "Upload local branches to a remote",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			name, url, branches := remoteTarget(args)

			report, err := remote.PushTo(cmd.Context(), r, name, url, branches...)
			if report != nil {
				for _, rs := range report.Refs {
					if rs.OK {
						say(cmd, "ok   %s\n", rs.Name)
					} else {
						say(cmd, "ng   %s (%s)\n", rs.Name, rs.Reason)
					}
				}
			}
			return err
		},
	}
}
