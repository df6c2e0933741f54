package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foliostore/folio/internal/migrate"
)

// NewMigrateCommand creates `folio migrate`, which applies every pending
// schema batch of the configured backend.
func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withServices(cmd.Flags().Changed("config"), func(s *services) error {
				version, err := migrate.New(s.adapter, s.log).Run(
					cmd.Context(), migrate.Schema(s.adapter.Dialect().Name()))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", version)
				return nil
			})
		},
	}
}
