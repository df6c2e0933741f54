package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/foliostore/folio/internal/adapter"
	"github.com/foliostore/folio/internal/entity"
	"github.com/foliostore/folio/internal/lock"
	"github.com/foliostore/folio/internal/schema"
	"github.com/foliostore/folio/internal/search"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
	Format     string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the folio root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "folio",
		Short:         "Versioned dual-view content entity store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "folio.yaml", "config file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewEntityCommand(opts))
	cmd.AddCommand(NewSearchCommand(opts))
	cmd.AddCommand(NewLockCommand(opts))
	cmd.AddCommand(NewSchemaCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// Logger builds the command logger. Verbose enables debug-level console
// output; the default stays quiet on stderr.
func (o *RootOptions) Logger() (*zap.Logger, error) {
	if o.Verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

// services bundles the wired domain layers of one command invocation.
type services struct {
	adapter adapter.Adapter
	log     *zap.Logger
	catalog *schema.Catalog
	store   *entity.Store
	engine  *search.Engine
	locks   *lock.Manager
}

// withServices opens the configured backend, wires the domain services
// and guarantees the backend is closed when fn returns.
func (o *RootOptions) withServices(explicitConfig bool, fn func(s *services) error) error {
	cfg, err := LoadConfig(o.ConfigPath, explicitConfig)
	if err != nil {
		return WrapExitError(ExitCommandError, "load config", err)
	}
	log, err := o.Logger()
	if err != nil {
		return err
	}
	defer log.Sync()

	a, err := OpenAdapter(cfg, log)
	if err != nil {
		return WrapExitError(ExitCommandError, "open backend", err)
	}
	defer a.Close()

	catalog := schema.NewCatalog(a, log)
	return fn(&services{
		adapter: a,
		log:     log,
		catalog: catalog,
		store:   entity.NewStore(a, log, entity.WithCatalog(catalog)),
		engine:  search.New(a, catalog, log),
		locks:   lock.NewManager(a, log),
	})
}
