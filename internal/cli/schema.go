package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// NewSchemaCommand creates the `folio schema` command tree.
func NewSchemaCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Manage specification snapshots",
	}
	cmd.AddCommand(newSchemaPutCommand(opts))
	cmd.AddCommand(newSchemaCurrentCommand(opts))
	return cmd
}

func newSchemaPutCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <file.cue>",
		Short: "Validate and store a specification snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "read specification", err)
			}
			return opts.withServices(cmd.Flags().Changed("config"), func(s *services) error {
				snap, err := s.catalog.Put(cmd.Context(), string(raw))
				if err != nil {
					return err
				}
				types, err := snap.Types()
				if err != nil {
					return err
				}
				out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
				return out.Emit(map[string]any{
					"id":    snap.ID,
					"types": types,
				}, func(w io.Writer) {
					fmt.Fprintf(w, "snapshot %d stored, types: %v\n", snap.ID, types)
				})
			})
		},
	}
	return cmd
}

func newSchemaCurrentCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "current",
		Short: "Print the current specification snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withServices(cmd.Flags().Changed("config"), func(s *services) error {
				snap, err := s.catalog.Current(cmd.Context())
				if err != nil {
					return err
				}
				out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
				return out.Emit(map[string]any{
					"id":            snap.ID,
					"createdAt":     snap.CreatedAt,
					"specification": snap.Specification,
				}, func(w io.Writer) {
					fmt.Fprintf(w, "snapshot %d (%s)\n%s", snap.ID,
						snap.CreatedAt.Format("2006-01-02 15:04:05"), snap.Specification)
				})
			})
		},
	}
	return cmd
}
