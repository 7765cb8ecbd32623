package main

import (
	"github.com/spf13/cobra"
)

func newRmCmd() *cobra.Command {
	var cached bool

	cmd := &cobra.Command{
		Use:   "rm <path>...",
		Short: "Remove files from the index and working tree",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			if err := r.RemovePaths(args, cached); err != nil {
				return err
			}
			for _, p := range args {
				say(cmd, "rm '%s'\n", p)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&cached, "cached", false, "unstage only, keep the working tree file")
	return cmd
}
