package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTagCmd() *cobra.Command {
	var message string
	var deleteTag string

	cmd := &cobra.Command{
		Use:   "tag [name] [target]",
		Short: "List, create, or delete tags",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}

			if deleteTag != "" {
				if err := r.DeleteTag(deleteTag); err != nil {
					return err
				}
				say(cmd, "Deleted tag '%s'\n", deleteTag)
				return nil
			}

			if len(args) == 0 {
				tags, err := r.ListTags()
				if err != nil {
					return err
				}
				for _, name := range tags {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			}

			target := ""
			if len(args) > 1 {
				target = args[1]
			}
			if _, err := r.CreateTag(args[0], target, message); err != nil {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "create an annotated tag with this message")
	cmd.Flags().StringVarP(&deleteTag, "delete", "d", "", "delete the named tag")
	return cmd
}
