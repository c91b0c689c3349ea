package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSchemasCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "schemas",
		Short: "List the registered data types and their fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.engine(cmd)
			if err != nil {
				return err
			}
			registry := svc.Registry()

			rows := make([][]string, 0)
			for _, name := range registry.Types() {
				def, _ := registry.Resolve(name)
				marker := ""
				if name == registry.Fallback() {
					marker = "*"
				}
				rows = append(rows, []string{
					name + marker,
					strings.Join(def.Required, ", "),
					strings.Join(def.Optional, ", "),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Type", "Required", "Optional"}, rows, nil))
			fmt.Fprintln(cmd.OutOrStdout(), "* fallback for unknown data types")
			return nil
		},
	}
}
