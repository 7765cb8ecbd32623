package main

import (
	"fmt"

	"github.com/odvcencio/grit/pkg/object"
	"github.com/spf13/cobra"
)

func newCatFileCmd() *cobra.Command {
	var showType bool
	var showSize bool
	var prettyPrint bool

	cmd := &cobra.Command{
		Use:   "cat-file <hash>",
		Short: "Inspect a stored object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			modes := 0
			for _, on := range []bool{showType, showSize, prettyPrint} {
				if on {
					modes++
				}
			}
			if modes != 1 {
				return fmt.Errorf("exactly one of -t, -s, -p is required")
			}

			r, err := openRepo()
			if err != nil {
				return err
			}
			// Exact hashes are inspected as-is; names go through rev
			// resolution (which peels annotated tags).
			h := object.Hash(args[0])
			if !h.IsValid() || !r.Store.Has(h) {
				h, err = r.RevParse(args[0])
				if err != nil {
					return err
				}
			}
			objType, data, err := r.Store.Read(h)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case showType:
				fmt.Fprintln(out, objType)
			case showSize:
				fmt.Fprintln(out, len(data))
			case prettyPrint:
				return prettyPrintObject(cmd, objType, data)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&showType, "type", "t", false, "print the object's type")
	cmd.Flags().BoolVarP(&showSize, "size", "s", false, "print the object's size in bytes")
	cmd.Flags().BoolVarP(&prettyPrint, "pretty", "p", false, "pretty-print the object's content")
	return cmd
}

func prettyPrintObject(cmd *cobra.Command, objType object.ObjectType, data []byte) error {
	out := cmd.OutOrStdout()
	switch objType {
	case object.TypeBlob:
		b, err := object.UnmarshalBlob(data)
		if err != nil {
			return err
		}
		_, err = out.Write(b.Data)
		return err
	case object.TypeTree:
		tr, err := object.UnmarshalTree(data)
		if err != nil {
			return err
		}
		for _, e := range tr.Entries {
			kind := object.TypeBlob
			if e.IsDir {
				kind = object.TypeTree
			}
			fmt.Fprintf(out, "%06s %s %s\t%s\n", e.Mode, kind, e.Target(), e.Name)
		}
		return nil
	case object.TypeCommit:
		c, err := object.UnmarshalCommit(data)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "tree %s\n", c.TreeHash)
		for _, p := range c.Parents {
			fmt.Fprintf(out, "parent %s\n", p)
		}
		fmt.Fprintf(out, "author %s %d %s\n", c.Author, c.Timestamp, c.AuthorTimezone)
		fmt.Fprintf(out, "committer %s %d %s\n", c.Committer, c.CommitterTimestamp, c.CommitterTimezone)
		fmt.Fprintf(out, "\n%s\n", c.Message)
		return nil
	case object.TypeTag:
		t, err := object.UnmarshalTag(data)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "object %s\n", t.TargetHash)
		fmt.Fprintf(out, "type %s\n", t.TargetType)
		fmt.Fprintf(out, "tag %s\n", t.Name)
		fmt.Fprintf(out, "tagger %s %d %s\n", t.Tagger, t.Timestamp, t.Timezone)
		fmt.Fprintf(out, "\n%s\n", t.Message)
		return nil
	}
	return fmt.Errorf("unknown object type %q", objType)
}
