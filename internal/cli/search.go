package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/foliostore/folio/internal/model"
	"github.com/foliostore/folio/internal/search"
)

// searchFlags is the shared filter surface of search, count and sample.
type searchFlags struct {
	published bool
	authKeys  []string
	types     []string
	statuses  []string
	text      string
	linksTo   string
	linksFrom string
	bounds    string
	order     string
	reverse   bool
}

func (f *searchFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.published, "published", false, "query the published view")
	cmd.Flags().StringSliceVar(&f.authKeys, "auth-key", nil, "resolved auth key (repeatable)")
	cmd.Flags().StringSliceVar(&f.types, "type", nil, "entity type filter (repeatable)")
	cmd.Flags().StringSliceVar(&f.statuses, "status", nil, "status filter, admin mode only (repeatable)")
	cmd.Flags().StringVar(&f.text, "text", "", "free-text filter")
	cmd.Flags().StringVar(&f.linksTo, "links-to", "", "keep entities referencing this uuid")
	cmd.Flags().StringVar(&f.linksFrom, "links-from", "", "keep entities this uuid references")
	cmd.Flags().StringVar(&f.bounds, "bounds", "", "bounding box minLat,maxLat,minLng,maxLng")
	cmd.Flags().StringVar(&f.order, "order", "created", "ordering: created|updated|name")
	cmd.Flags().BoolVar(&f.reverse, "reverse", false, "reverse the ordering")
}

// parseBounds reads "minLat,maxLat,minLng,maxLng". MinLng > MaxLng is
// legitimate: the box wraps the antimeridian.
func parseBounds(raw string) (*search.Box, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("bounds want 4 comma-separated numbers, got %d", len(parts))
	}
	nums := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("bounds component %q: %w", p, err)
		}
		nums[i] = v
	}
	return &search.Box{MinLat: nums[0], MaxLat: nums[1], MinLng: nums[2], MaxLng: nums[3]}, nil
}

func parseOrder(raw string) (search.Ordering, error) {
	switch raw {
	case "created":
		return search.OrderCreated, nil
	case "updated":
		return search.OrderUpdated, nil
	case "name":
		return search.OrderName, nil
	}
	return 0, fmt.Errorf("unknown order %q: want created, updated or name", raw)
}

func (f *searchFlags) query() (search.Query, error) {
	q := search.Query{
		Mode:     search.ModeAdmin,
		AuthKeys: f.authKeys,
		Types:    f.types,
		Text:     f.text,
		Reverse:  f.reverse,
	}
	if f.published {
		q.Mode = search.ModePublished
	}
	for _, s := range f.statuses {
		q.Statuses = append(q.Statuses, model.Status(s))
	}
	if f.linksTo != "" {
		ref, err := uuid.Parse(f.linksTo)
		if err != nil {
			return search.Query{}, fmt.Errorf("links-to: %w", err)
		}
		q.LinksTo = &ref
	}
	if f.linksFrom != "" {
		ref, err := uuid.Parse(f.linksFrom)
		if err != nil {
			return search.Query{}, fmt.Errorf("links-from: %w", err)
		}
		q.LinksFrom = &ref
	}
	if f.bounds != "" {
		box, err := parseBounds(f.bounds)
		if err != nil {
			return search.Query{}, err
		}
		q.Bounds = box
	}
	order, err := parseOrder(f.order)
	if err != nil {
		return search.Query{}, err
	}
	q.Order = order
	return q, nil
}

// NewSearchCommand creates the `folio search` command tree.
func NewSearchCommand(opts *RootOptions) *cobra.Command {
	flags := &searchFlags{}
	var (
		first  int
		after  string
		last   int
		before string
	)
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Query entities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := flags.query()
			if err != nil {
				return WrapExitError(ExitCommandError, "query", err)
			}
			if cmd.Flags().Changed("first") {
				q.Page.First = &first
			}
			if cmd.Flags().Changed("after") {
				q.Page.After = &after
			}
			if cmd.Flags().Changed("last") {
				q.Page.Last = &last
			}
			if cmd.Flags().Changed("before") {
				q.Page.Before = &before
			}
			return opts.withServices(cmd.Flags().Changed("config"), func(s *services) error {
				conn, err := s.engine.Search(cmd.Context(), q)
				if err != nil {
					return err
				}
				out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
				type hitView struct {
					Entity entityView `json:"entity"`
					Cursor string     `json:"cursor"`
				}
				hits := make([]hitView, len(conn.Entities))
				for i, h := range conn.Entities {
					hits[i] = hitView{Entity: viewOf(h.Entity), Cursor: h.Cursor}
				}
				return out.Emit(map[string]any{
					"entities":        hits,
					"hasNextPage":     conn.HasNextPage,
					"hasPreviousPage": conn.HasPreviousPage,
				}, func(w io.Writer) {
					for _, h := range conn.Entities {
						fmt.Fprintf(w, "%s  %s (%s) status=%s cursor=%s\n",
							h.Entity.UUID, h.Entity.Name, h.Entity.Type, h.Entity.Status, h.Cursor)
					}
					fmt.Fprintf(w, "hasNextPage=%t hasPreviousPage=%t\n",
						conn.HasNextPage, conn.HasPreviousPage)
				})
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVar(&first, "first", 0, "page size, forwards")
	cmd.Flags().StringVar(&after, "after", "", "cursor to continue after")
	cmd.Flags().IntVar(&last, "last", 0, "page size, backwards")
	cmd.Flags().StringVar(&before, "before", "", "cursor to continue before")

	cmd.AddCommand(newSearchCountCommand(opts))
	cmd.AddCommand(newSearchSampleCommand(opts))
	return cmd
}

func newSearchCountCommand(opts *RootOptions) *cobra.Command {
	flags := &searchFlags{}
	cmd := &cobra.Command{
		Use:   "count",
		Short: "Count entities matching a filter set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := flags.query()
			if err != nil {
				return WrapExitError(ExitCommandError, "query", err)
			}
			return opts.withServices(cmd.Flags().Changed("config"), func(s *services) error {
				n, err := s.engine.Count(cmd.Context(), q)
				if err != nil {
					return err
				}
				out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
				return out.Emit(map[string]int64{"count": n}, func(w io.Writer) {
					fmt.Fprintf(w, "%d\n", n)
				})
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newSearchSampleCommand(opts *RootOptions) *cobra.Command {
	flags := &searchFlags{}
	var (
		limit  int
		offset int
	)
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "List matching entities in reproducible order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := flags.query()
			if err != nil {
				return WrapExitError(ExitCommandError, "query", err)
			}
			return opts.withServices(cmd.Flags().Changed("config"), func(s *services) error {
				entities, err := s.engine.Sample(cmd.Context(), q, limit, offset)
				if err != nil {
					return err
				}
				out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
				return out.EmitEntities(entities)
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum entities to return")
	cmd.Flags().IntVar(&offset, "offset", 0, "entities to skip")
	return cmd
}
