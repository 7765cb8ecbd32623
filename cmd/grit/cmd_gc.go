package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newGcCmd() *cobra.Command {
	cmd := repackCmd("gc", true)
	cmd.Short = "Pack loose objects and prune unreachable ones"
	return cmd
}

func newRepackCmd() *cobra.Command {
	return repackCmd("repack", false)
}

// repackCmd backs both repack and gc; only the prune default differs.
func repackCmd(use string, pruneDefault bool) *cobra.Command {
	var prune bool

	cmd := &cobra.Command{
		Use:   use,
		Short: "Consolidate loose objects into a pack file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			summary, err := r.GC(prune)
			if err != nil {
				return err
			}

			if summary.PackedObjects == 0 {
				say(cmd, "nothing to pack\n")
				return nil
			}
			say(cmd, "packed %d object(s) (%d deltified) into %s\n",
				summary.PackedObjects, summary.DeltaObjects, summary.PackFile)
			if summary.PrunedLoose > 0 {
				say(cmd, "pruned %d unreachable loose object(s)\n", summary.PrunedLoose)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&prune, "prune", pruneDefault, "delete unreachable loose objects")
	return cmd
}

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check object store integrity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			summary, err := r.Verify()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "verified %d loose object(s), %d pack file(s), %d packed object(s)\n",
				summary.LooseObjects, summary.PackFiles, summary.PackObjects)
			return nil
		},
	}
}
