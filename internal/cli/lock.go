package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/foliostore/folio/internal/lock"
)

// NewLockCommand creates the `folio lock` command tree.
func NewLockCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Manage advisory locks",
	}
	cmd.AddCommand(newLockAcquireCommand(opts))
	cmd.AddCommand(newLockRenewCommand(opts))
	cmd.AddCommand(newLockReleaseCommand(opts))
	cmd.AddCommand(newLockSweepCommand(opts))
	return cmd
}

func emitLock(opts *RootOptions, w io.Writer, l lock.Lock) error {
	out := &OutputFormatter{Format: opts.Format, Writer: w}
	return out.Emit(map[string]any{
		"name":       l.Name,
		"handle":     l.Handle,
		"acquiredAt": l.AcquiredAt,
		"renewedAt":  l.RenewedAt,
		"expiresAt":  l.ExpiresAt(),
	}, func(w io.Writer) {
		fmt.Fprintf(w, "%s held by %s, expires %s\n",
			l.Name, l.Handle, l.ExpiresAt().Format(time.RFC3339))
	})
}

func newLockAcquireCommand(opts *RootOptions) *cobra.Command {
	var (
		handle string
		lease  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "acquire <name>",
		Short: "Acquire a named advisory lock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withServices(cmd.Flags().Changed("config"), func(s *services) error {
				l, err := s.locks.Acquire(cmd.Context(), args[0], handle, lease)
				if err != nil {
					return err
				}
				return emitLock(opts, cmd.OutOrStdout(), l)
			})
		},
	}
	cmd.Flags().StringVar(&handle, "handle", "", "holder handle")
	cmd.Flags().DurationVar(&lease, "lease", 30*time.Second, "lease duration")
	cobra.CheckErr(cmd.MarkFlagRequired("handle"))
	return cmd
}

func newLockRenewCommand(opts *RootOptions) *cobra.Command {
	var handle string
	cmd := &cobra.Command{
		Use:   "renew <name>",
		Short: "Extend a held lock's lease",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withServices(cmd.Flags().Changed("config"), func(s *services) error {
				l, err := s.locks.Renew(cmd.Context(), args[0], handle)
				if err != nil {
					return err
				}
				return emitLock(opts, cmd.OutOrStdout(), l)
			})
		},
	}
	cmd.Flags().StringVar(&handle, "handle", "", "holder handle")
	cobra.CheckErr(cmd.MarkFlagRequired("handle"))
	return cmd
}

func newLockReleaseCommand(opts *RootOptions) *cobra.Command {
	var handle string
	cmd := &cobra.Command{
		Use:   "release <name>",
		Short: "Release a held lock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withServices(cmd.Flags().Changed("config"), func(s *services) error {
				if err := s.locks.Release(cmd.Context(), args[0], handle); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "released %s\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&handle, "handle", "", "holder handle")
	cobra.CheckErr(cmd.MarkFlagRequired("handle"))
	return cmd
}

func newLockSweepCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired locks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withServices(cmd.Flags().Changed("config"), func(s *services) error {
				names, err := s.locks.SweepExpired(cmd.Context())
				if err != nil {
					return err
				}
				out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
				return out.Emit(map[string]any{"swept": names}, func(w io.Writer) {
					for _, n := range names {
						fmt.Fprintln(w, n)
					}
					fmt.Fprintf(w, "swept %d lock(s)\n", len(names))
				})
			})
		},
	}
	return cmd
}
