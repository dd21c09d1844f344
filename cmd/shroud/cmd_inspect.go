package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/odvcencio/shroud/pkg/module"
)

func newInspectCmd() *cobra.Command {
	var members bool

	cmd := &cobra.Command{
		Use:   "inspect <image>",
		Short: "Print the declarations of a module image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := module.ReadFile(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "module %s\n", m.Name)
			fmt.Fprintf(out, "mvid %s\n", m.MVID)
			if len(m.References) > 0 {
				fmt.Fprintf(out, "references %s\n", strings.Join(m.References, ", "))
			}
			if m.EntryPoint != nil {
				fmt.Fprintf(out, "entry %s\n", m.EntryPoint.FullName())
			}
			for _, td := range m.Types {
				fmt.Fprintf(out, "type %s (%d fields, %d properties, %d methods)\n",
					td.FullName(), len(td.Fields), len(td.Properties), len(td.Methods))
				if !members {
					continue
				}
				for _, f := range td.Fields {
					fmt.Fprintf(out, "  field %s\n", f.Ref().FullName())
				}
				for _, p := range td.Properties {
					fmt.Fprintf(out, "  property %s\n", p.Ref().FullName())
				}
				for _, md := range td.Methods {
					n := 0
					if md.Body != nil {
						n = len(md.Body.Instructions)
					}
					fmt.Fprintf(out, "  method %s [%d instructions]\n", md.FullName(), n)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&members, "members", "m", false, "list fields, properties and methods")
	return cmd
}
