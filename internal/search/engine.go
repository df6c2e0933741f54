package search

import (
	"context"

	"go.uber.org/zap"

	"github.com/foliostore/folio/internal/adapter"
	"github.com/foliostore/folio/internal/fault"
	"github.com/foliostore/folio/internal/model"
	"github.com/foliostore/folio/internal/txn"
)

// Engine executes search, sample and count queries against one backend.
type Engine struct {
	a       adapter.Adapter
	catalog TypeCatalog
	log     *zap.Logger
}

// New creates an Engine. The catalog supplies the valid entity types the
// type filter is validated against.
func New(a adapter.Adapter, catalog TypeCatalog, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{a: a, catalog: catalog, log: log}
}

// Search runs a filtered, keyset-paginated query.
//
// The resolver requests one row more than the page size; a full result
// proves a following page on the paging side without a separate count.
// Backwards pages are fetched in inverted SQL order and reversed in
// memory, so returned entities are always in logical order.
func (e *Engine) Search(ctx context.Context, q Query) (Connection, error) {
	if err := q.validate(); err != nil {
		return Connection{}, err
	}
	if err := e.checkTypes(ctx, q.Types); err != nil {
		return Connection{}, err
	}

	cursor, err := q.decodeCursor()
	if err != nil {
		return Connection{}, err
	}

	size := q.Page.size()
	sql, args := buildSearch(e.a.Dialect(), &q, cursor, size+1)

	rows, err := txn.All(ctx, txn.New(e.a), sql, args...)
	if err != nil {
		return Connection{}, err
	}

	entities := make([]model.Entity, 0, len(rows))
	for _, row := range rows {
		ent, err := model.ScanEntity(row)
		if err != nil {
			return Connection{}, err
		}
		entities = append(entities, ent)
	}

	var conn Connection
	if len(entities) > size {
		entities = entities[:size]
		if q.Page.backwards() {
			conn.HasPreviousPage = true
		} else {
			conn.HasNextPage = true
		}
	}
	if q.Page.backwards() {
		reverse(entities)
	}

	conn.Entities = make([]Hit, len(entities))
	for i, ent := range entities {
		conn.Entities[i] = Hit{
			Entity: ent,
			Cursor: adapter.EncodeCursor(cursorFor(ent, q.Order)),
		}
	}
	return conn, nil
}

// Count returns the number of entities matching the filter set.
func (e *Engine) Count(ctx context.Context, q Query) (int64, error) {
	if err := q.validate(); err != nil {
		return 0, err
	}
	if err := e.checkTypes(ctx, q.Types); err != nil {
		return 0, err
	}

	sql, args := buildCount(e.a.Dialect(), &q)
	row, err := txn.One(ctx, txn.New(e.a), sql, args...)
	if err != nil {
		return 0, err
	}
	return row.Int64("n")
}

// Sample returns matching entities in reproducible order (by external id)
// with plain LIMIT/OFFSET access, bypassing the cursor machinery.
func (e *Engine) Sample(ctx context.Context, q Query, limit, offset int) ([]model.Entity, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	if err := e.checkTypes(ctx, q.Types); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fault.BadRequest("sample limit must be positive")
	}
	if offset < 0 {
		return nil, fault.BadRequest("sample offset must not be negative")
	}

	sql, args := buildSample(e.a.Dialect(), &q, limit, offset)
	rows, err := txn.All(ctx, txn.New(e.a), sql, args...)
	if err != nil {
		return nil, err
	}

	entities := make([]model.Entity, 0, len(rows))
	for _, row := range rows {
		ent, err := model.ScanEntity(row)
		if err != nil {
			return nil, err
		}
		entities = append(entities, ent)
	}
	return entities, nil
}

// checkTypes rejects type names the schema catalog does not know.
func (e *Engine) checkTypes(ctx context.Context, types []string) error {
	if len(types) == 0 {
		return nil
	}
	known, err := e.catalog.EntityTypes(ctx)
	if err != nil {
		return err
	}
	for _, t := range types {
		if _, ok := known[t]; !ok {
			return fault.BadRequest("unknown entity type %q", t)
		}
	}
	return nil
}

// decodeCursor resolves the page's opaque cursor, if present, against the
// ordering's native type.
func (q *Query) decodeCursor() (*adapter.CursorValue, error) {
	var opaque *string
	if q.Page.backwards() {
		opaque = q.Page.Before
	} else {
		opaque = q.Page.After
	}
	if opaque == nil {
		return nil, nil
	}
	_, want := q.Order.cursorColumn()
	v, err := adapter.DecodeCursor(*opaque, want)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// cursorFor re-encodes a result row's cursor-column value.
func cursorFor(e model.Entity, o Ordering) adapter.CursorValue {
	switch o {
	case OrderUpdated:
		return adapter.IntCursor(e.UpdateSeq)
	case OrderName:
		return adapter.StringCursor(e.Name)
	default:
		return adapter.IntCursor(e.ID)
	}
}

func reverse(entities []model.Entity) {
	for i, j := 0, len(entities)-1; i < j; i, j = i+1, j-1 {
		entities[i], entities[j] = entities[j], entities[i]
	}
}
