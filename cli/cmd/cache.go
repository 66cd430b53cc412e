package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"ocm.software/open-component-model/bindings/go/maven/cli/internal/enum"
)

func newCacheCmd(env *Environment) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the persistent resolution cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "drop [group]",
		Short: "Remove cached locations, either all of them or those of one group",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if env.Cache == nil {
				return errCacheDisabled
			}
			if len(args) == 0 {
				if err := env.Cache.DropAll(cmd.Context()); err != nil {
					return err
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "dropped all cached locations")
				return err
			}
			n, err := env.Cache.DropGroup(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "dropped %d cached records of %s\n", n, args[0])
			return err
		},
	})
	list := &cobra.Command{
		Use:   "list [group]",
		Short: "List cached locations, either all of them or those of one group",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if env.Cache == nil {
				return errCacheDisabled
			}
			output, err := enum.Get(cmd.Flags(), FlagOutput)
			if err != nil {
				return fmt.Errorf("getting output flag failed: %w", err)
			}
			group := ""
			if len(args) > 0 {
				group = args[0]
			}
			records, err := env.Cache.List(cmd.Context(), group)
			if err != nil {
				return err
			}
			return renderCacheRecords(cmd.OutOrStdout(), output, env.Cache, records)
		},
	}
	registerOutputFlag(list)
	cmd.AddCommand(list)
	return cmd
}
