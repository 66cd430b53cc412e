package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"ocm.software/open-component-model/bindings/go/maven/cli/internal/enum"
	"ocm.software/open-component-model/bindings/go/maven/coordinate"
)

const FlagPackaging = "packaging"

func newResolveCmd(env *Environment) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve group:artifact:version[:classifier]",
		Short: "Print the location of an artifact",
		Example: `mvnresolve resolve org.slf4j:slf4j-api:2.0.13
mvnresolve resolve org.example:app:1.0-SNAPSHOT --packaging war`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			coord, err := coordinate.Parse(args[0])
			if err != nil {
				return err
			}
			packaging, err := cmd.Flags().GetString(FlagPackaging)
			if err != nil {
				return err
			}
			url, err := env.Session.ResolveArtifact(cmd.Context(), coord, packaging)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), url)
			return err
		},
	}
	cmd.Flags().String(FlagPackaging, "", "file extension of the artifact (default jar)")
	return cmd
}

func newDepsCmd(env *Environment) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deps group:artifact:version[:classifier]",
		Short: "Print the transitive runtime dependencies of an artifact",
		Long: `Print the transitive closure of an artifact: the artifact itself followed by
every compile and runtime dependency that is not optional and not excluded.
Dependencies that could not be resolved are listed separately.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			coord, err := coordinate.Parse(args[0])
			if err != nil {
				return err
			}
			output, err := enum.Get(cmd.Flags(), FlagOutput)
			if err != nil {
				return fmt.Errorf("getting output flag failed: %w", err)
			}
			closure, err := env.Session.Flatten(cmd.Context(), coord)
			if err != nil {
				return err
			}
			return renderClosure(cmd.OutOrStdout(), output, closure)
		},
	}
	registerOutputFlag(cmd)
	return cmd
}

func registerOutputFlag(cmd *cobra.Command) {
	enum.VarP(cmd.Flags(), FlagOutput, "o", []string{OutputFormatTable, OutputFormatJSON, OutputFormatYAML}, "output format")
}
