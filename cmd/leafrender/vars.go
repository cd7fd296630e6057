package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVarsCmd(a *app) *cobra.Command {
	var nested bool
	cmd := &cobra.Command{
		Use:   "vars <template>",
		Short: "List the variables a template reads",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, _, err := a.load(cmd.Context())
			if err != nil {
				return err
			}
			vars, err := rt.FreeVariables(args[0], nested)
			if err != nil {
				return err
			}
			for _, v := range vars {
				fmt.Fprintln(cmd.OutOrStdout(), v)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&nested, "nested", false, "print full dotted paths instead of top-level names")
	return cmd
}
