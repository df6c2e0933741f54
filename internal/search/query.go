// Package search implements the filterable, keyset-paginated query engine
// over the entity tables.
//
// Two query modes share one filter and ordering model: admin reads the
// latest-version view, published reads the published-version view (which
// implicitly requires a non-null published pointer). Every filter is
// optional and filters combine with AND.
//
// SQL generation is split from execution: the builders are pure functions
// of (dialect, resolved query) so their output is covered by golden tests,
// the engine resolves cursors, executes and pages.
package search

import (
	"context"

	"github.com/google/uuid"

	"github.com/foliostore/folio/internal/adapter"
	"github.com/foliostore/folio/internal/fault"
	"github.com/foliostore/folio/internal/model"
)

// Mode selects which version pointer a query reads through.
type Mode int

const (
	// ModeAdmin reads the latest (possibly unpublished) version join.
	ModeAdmin Mode = iota

	// ModePublished reads the published join; entities without a
	// published version are invisible.
	ModePublished
)

// Ordering selects the cursor column. Each ordering binds to exactly one
// column with a fixed native type; this binding drives the cursor codec.
type Ordering int

const (
	// OrderCreated orders by creation (proxy: internal id, integer).
	OrderCreated Ordering = iota

	// OrderUpdated orders by last update (proxy: update sequence,
	// integer). Admin mode only.
	OrderUpdated

	// OrderName orders lexicographically by display name (string).
	OrderName
)

// cursorColumn returns the bound column and its native cursor type.
func (o Ordering) cursorColumn() (string, adapter.CursorType) {
	switch o {
	case OrderUpdated:
		return "e.update_seq", adapter.CursorInt
	case OrderName:
		return "e.name", adapter.CursorString
	default:
		return "e.id", adapter.CursorInt
	}
}

// Box is a geographic bounding box. When MinLng > MaxLng the box wraps
// across the antimeridian: a point matches when lng >= MinLng OR
// lng <= MaxLng.
type Box struct {
	MinLat float64
	MaxLat float64
	MinLng float64
	MaxLng float64
}

// Page holds keyset paging arguments. First/After page forwards,
// Last/Before backwards; mixing directions is rejected.
type Page struct {
	First  *int
	After  *string
	Last   *int
	Before *string
}

// DefaultPageSize applies when neither First nor Last is given.
const DefaultPageSize = 50

// Query is one search request.
type Query struct {
	Mode Mode

	// AuthKeys are the caller's resolved auth keys. Must be non-empty.
	AuthKeys []string

	// Types restricts to a subset of entity types; empty means all.
	// Unknown names are rejected against the schema catalog.
	Types []string

	// Statuses restricts by publishing state. Admin mode only.
	Statuses []model.Status

	// LinksTo keeps entities whose reference edges point at the target.
	LinksTo *uuid.UUID

	// LinksFrom keeps entities the source's reference edges point at.
	LinksFrom *uuid.UUID

	// Bounds keeps entities with an indexed location inside the box.
	Bounds *Box

	// Text is a free-text filter against the mode's text index.
	Text string

	Order   Ordering
	Reverse bool
	Page    Page
}

// Hit is one search result row with its re-encoded position cursor.
type Hit struct {
	Entity model.Entity
	Cursor string
}

// Connection is a page of results.
type Connection struct {
	Entities        []Hit
	HasNextPage     bool
	HasPreviousPage bool
}

// TypeCatalog resolves the set of currently valid entity type names.
// Implemented by the schema package.
type TypeCatalog interface {
	EntityTypes(ctx context.Context) (map[string]struct{}, error)
}

// TypeCatalogFunc adapts a function to TypeCatalog.
type TypeCatalogFunc func(ctx context.Context) (map[string]struct{}, error)

// EntityTypes implements TypeCatalog.
func (f TypeCatalogFunc) EntityTypes(ctx context.Context) (map[string]struct{}, error) {
	return f(ctx)
}

// validate checks everything that does not need the database. The catalog
// check happens in the engine, which owns the TypeCatalog.
func (q *Query) validate() error {
	if len(q.AuthKeys) == 0 {
		return fault.BadRequest("at least one resolved auth key is required")
	}
	if q.Mode == ModePublished && len(q.Statuses) > 0 {
		return fault.BadRequest("status filter is only available in admin mode")
	}
	if q.Mode == ModePublished && q.Order == OrderUpdated {
		return fault.BadRequest("updatedAt ordering is only available in admin mode")
	}
	for _, s := range q.Statuses {
		if !s.Valid() {
			return fault.BadRequest("unknown status %q", s)
		}
	}
	return q.Page.validate()
}

func (p Page) validate() error {
	if p.First != nil && *p.First < 0 {
		return fault.BadRequest("first must not be negative")
	}
	if p.Last != nil && *p.Last < 0 {
		return fault.BadRequest("last must not be negative")
	}
	if p.First != nil && p.Last != nil {
		return fault.BadRequest("first and last are mutually exclusive")
	}
	if p.After != nil && (p.Last != nil || p.Before != nil) {
		return fault.BadRequest("after pages forwards; last/before page backwards")
	}
	if p.Before != nil && p.First != nil {
		return fault.BadRequest("before pages backwards; first pages forwards")
	}
	return nil
}

// backwards reports whether the page request walks against logical order.
func (p Page) backwards() bool {
	return p.Last != nil || p.Before != nil
}

// size returns the requested page size.
func (p Page) size() int {
	if p.First != nil {
		return *p.First
	}
	if p.Last != nil {
		return *p.Last
	}
	return DefaultPageSize
}
