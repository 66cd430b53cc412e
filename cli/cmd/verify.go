package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"ocm.software/open-component-model/bindings/go/maven/cli/internal/enum"
	"ocm.software/open-component-model/bindings/go/maven/coordinate"
	"ocm.software/open-component-model/bindings/go/maven/resolver"
)

const FlagUpdates = "updates"

func newVerifyCmd(env *Environment) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify group:artifact:version[:classifier]",
		Short: "Verify the local copies of an artifact and its dependencies",
		Long: `Compare the local copies of an artifact and its transitive dependencies with the
checksums published by their repositories. Missing copies are reported as not verified.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output, err := enum.Get(cmd.Flags(), FlagOutput)
			if err != nil {
				return fmt.Errorf("getting output flag failed: %w", err)
			}
			updatesOnly, err := cmd.Flags().GetBool(FlagUpdates)
			if err != nil {
				return err
			}
			closure, err := flatten(cmd, env, args[0])
			if err != nil {
				return err
			}

			var views []packageView
			if updatesOnly {
				for _, pkg := range env.Verifier.Updates(cmd.Context(), closure) {
					views = append(views, newPackageView(pkg))
				}
				return renderPackages(cmd.OutOrStdout(), output, views, false)
			}
			for _, pkg := range closure.Packages {
				verified := env.Verifier.Verify(cmd.Context(), pkg)
				view := newPackageView(pkg)
				view.Verified = &verified
				views = append(views, view)
			}
			return renderPackages(cmd.OutOrStdout(), output, views, true)
		},
	}
	registerOutputFlag(cmd)
	cmd.Flags().Bool(FlagUpdates, false, "only list packages whose local copy is missing or outdated")
	return cmd
}

func newUpdateCmd(env *Environment) *cobra.Command {
	return &cobra.Command{
		Use:   "update group:artifact:version[:classifier]",
		Short: "Download missing or outdated artifacts into the local repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			closure, err := flatten(cmd, env, args[0])
			if err != nil {
				return err
			}
			var errs []error
			for _, pkg := range env.Verifier.Updates(cmd.Context(), closure) {
				if err := env.Verifier.Download(cmd.Context(), pkg); err != nil {
					errs = append(errs, err)
					continue
				}
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "updated %s\n", pkg.Coordinate()); err != nil {
					return err
				}
			}
			return errors.Join(errs...)
		},
	}
}

func flatten(cmd *cobra.Command, env *Environment, arg string) (*resolver.Closure, error) {
	coord, err := coordinate.Parse(arg)
	if err != nil {
		return nil, err
	}
	return env.Session.Flatten(cmd.Context(), coord)
}
