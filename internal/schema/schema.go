// Package schema manages specification snapshots: CUE documents that
// declare the entity types the store accepts. Snapshots are append-only
// rows in schema_versions; the newest row is the current specification
// and feeds the type catalog that create and search validate against.
package schema

import (
	"context"
	"sort"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"go.uber.org/zap"

	"github.com/foliostore/folio/internal/adapter"
	"github.com/foliostore/folio/internal/fault"
	"github.com/foliostore/folio/internal/txn"
)

// metaSchema constrains what a specification snapshot may declare.
const metaSchema = `
#Type: {
	displayName?: string
	description?: string
}

types: [string]: #Type
`

// Snapshot is one stored specification.
type Snapshot struct {
	ID            int64
	Specification string
	CreatedAt     time.Time
}

// Types parses the snapshot's entity type names, sorted.
func (s Snapshot) Types() ([]string, error) {
	return parseTypes(s.Specification)
}

// Catalog stores and serves specification snapshots. It implements
// search.TypeCatalog.
type Catalog struct {
	a   adapter.Adapter
	log *zap.Logger
	now func() time.Time
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(c *Catalog) { c.now = now }
}

// NewCatalog creates a Catalog over the given backend.
func NewCatalog(a adapter.Adapter, log *zap.Logger, opts ...Option) *Catalog {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Catalog{a: a, log: log, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Put validates a specification and appends it as the new current
// snapshot. Specifications that do not parse, violate the meta schema,
// or declare no types are rejected.
func (c *Catalog) Put(ctx context.Context, specification string) (Snapshot, error) {
	types, err := parseTypes(specification)
	if err != nil {
		return Snapshot{}, err
	}

	var snap Snapshot
	err = txn.Atomic(ctx, txn.New(c.a), func(tc txn.Context) error {
		d := c.a.Dialect()
		now := c.now().UTC()
		row, err := txn.One(ctx, tc,
			"INSERT INTO schema_versions (specification, created_at) VALUES ("+
				d.Placeholder(1)+", "+d.Placeholder(2)+") RETURNING id, specification, created_at",
			specification, now)
		if err != nil {
			return err
		}
		snap, err = scanSnapshot(row)
		return err
	})
	if err != nil {
		return Snapshot{}, err
	}
	c.log.Info("specification snapshot stored",
		zap.Int64("id", snap.ID), zap.Strings("types", types))
	return snap, nil
}

// Current returns the newest snapshot. NotFound when none was ever put.
func (c *Catalog) Current(ctx context.Context) (Snapshot, error) {
	row, err := txn.MaybeOne(ctx, txn.New(c.a),
		"SELECT id, specification, created_at FROM schema_versions ORDER BY id DESC LIMIT 1")
	if err != nil {
		return Snapshot{}, err
	}
	if row == nil {
		return Snapshot{}, fault.NotFound("no specification snapshot has been stored")
	}
	return scanSnapshot(row)
}

// EntityTypes implements search.TypeCatalog. Before the first snapshot
// the catalog is empty, which makes every type filter and create fail
// validation rather than error out.
func (c *Catalog) EntityTypes(ctx context.Context) (map[string]struct{}, error) {
	snap, err := c.Current(ctx)
	if fault.IsNotFound(err) {
		return map[string]struct{}{}, nil
	}
	if err != nil {
		return nil, err
	}
	types, err := snap.Types()
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return set, nil
}

func scanSnapshot(row adapter.Row) (Snapshot, error) {
	var (
		snap Snapshot
		err  error
	)
	if snap.ID, err = row.Int64("id"); err != nil {
		return Snapshot{}, err
	}
	if snap.Specification, err = row.String("specification"); err != nil {
		return Snapshot{}, err
	}
	if snap.CreatedAt, err = row.Time("created_at"); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

func parseTypes(specification string) ([]string, error) {
	cc := cuecontext.New()

	v := cc.CompileString(specification)
	if err := v.Err(); err != nil {
		return nil, fault.BadRequest("specification does not parse: %s",
			cueerrors.Details(err, nil))
	}

	unified := cc.CompileString(metaSchema).Unify(v)
	if err := unified.Validate(); err != nil {
		return nil, fault.BadRequest("specification violates the meta schema: %s",
			cueerrors.Details(err, nil))
	}

	typesVal := v.LookupPath(cue.ParsePath("types"))
	if !typesVal.Exists() {
		return nil, fault.BadRequest("specification must declare a types struct")
	}
	iter, err := typesVal.Fields()
	if err != nil {
		return nil, fault.BadRequest("types must be a struct: %v", err)
	}

	var types []string
	for iter.Next() {
		types = append(types, iter.Label())
	}
	if len(types) == 0 {
		return nil, fault.BadRequest("specification must declare at least one type")
	}
	sort.Strings(types)
	return types, nil
}
