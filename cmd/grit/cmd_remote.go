package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRemoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Manage repository remotes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			cfg, err := r.LoadConfig()
			if err != nil {
				return err
			}
			for _, name := range cfg.Remotes() {
				url, err := cfg.RemoteURL(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", name, url)
			}
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <name> <url>",
		Short: "Add a named remote",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			if err := r.AddRemote(args[0], args[1]); err != nil {
				return err
			}
			say(cmd, "Added remote '%s' -> %s\n", args[0], args[1])
			return nil
		},
	})

	return cmd
}
