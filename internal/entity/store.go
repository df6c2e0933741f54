// Package entity implements the versioned, dual-view entity store and its
// publishing state machine.
//
// Every entity has an editable admin timeline of immutable versions and a
// separately-pointed published snapshot. Mutations run as one transaction
// each: read the current pointers and status, write the new version,
// pointer, status and audit rows, recompute the derived projections, and
// commit; no partial pointer update is ever observable.
//
// The derived side tables (reference edges, location index, text index)
// are rebuildable projections of stored payloads, never a second source
// of truth.
package entity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/foliostore/folio/internal/adapter"
	"github.com/foliostore/folio/internal/fault"
	"github.com/foliostore/folio/internal/fields"
	"github.com/foliostore/folio/internal/model"
	"github.com/foliostore/folio/internal/search"
	"github.com/foliostore/folio/internal/txn"
)

// maxNameAttempts bounds the unique-name retry loop: the requested name
// plus this many regenerated candidates.
const maxNameAttempts = 5

// NameMutator produces the next candidate after a name collision.
// attempt starts at 1 for the first regeneration.
type NameMutator func(base string, attempt int) string

// defaultNameMutator appends a short random suffix to the normalized base.
func defaultNameMutator(base string, attempt int) string {
	_ = attempt
	return norm.NFC.String(base) + "-" + uuid.NewString()[:8]
}

// Store is the entity store.
type Store struct {
	a       adapter.Adapter
	codec   fields.Codec
	catalog search.TypeCatalog
	mutate  NameMutator
	now     func() time.Time
	log     *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithCodec replaces the default JSON field codec.
func WithCodec(c fields.Codec) Option {
	return func(s *Store) { s.codec = c }
}

// WithCatalog enables entity-type validation on create/upsert.
func WithCatalog(c search.TypeCatalog) Option {
	return func(s *Store) { s.catalog = c }
}

// WithNameMutator replaces the name-collision candidate generator.
func WithNameMutator(m NameMutator) Option {
	return func(s *Store) { s.mutate = m }
}

// WithNow overrides the clock.
func WithNow(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a Store.
func NewStore(a adapter.Adapter, log *zap.Logger, opts ...Option) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{
		a:      a,
		codec:  fields.JSONCodec{},
		mutate: defaultNameMutator,
		now:    time.Now,
		log:    log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result is one element of a batch read: either an entity or the error
// that kept this reference from resolving.
type Result struct {
	Entity model.Entity
	Err    error
}

// Get resolves one entity by external id.
func (s *Store) Get(ctx context.Context, ref uuid.UUID) (model.Entity, error) {
	return s.getByUUID(ctx, txn.New(s.a), ref)
}

// GetMany resolves a batch of references with partial failure: each
// element is independently an entity or a NotFound; a missing entity
// never fails the whole batch.
func (s *Store) GetMany(ctx context.Context, refs []uuid.UUID) []Result {
	results := make([]Result, len(refs))
	for i, ref := range refs {
		ent, err := s.Get(ctx, ref)
		results[i] = Result{Entity: ent, Err: err}
	}
	return results
}

// GetVersion returns one specific version of an entity.
func (s *Store) GetVersion(ctx context.Context, ref uuid.UUID, version int64) (model.Version, error) {
	c := txn.New(s.a)
	ent, err := s.getByUUID(ctx, c, ref)
	if err != nil {
		return model.Version{}, err
	}
	d := s.a.Dialect()
	row, err := txn.MaybeOne(ctx, c,
		"SELECT id, entities_id, version, created_at, created_by, fields FROM entity_versions"+
			" WHERE entities_id = "+d.Placeholder(1)+" AND version = "+d.Placeholder(2),
		ent.ID, version)
	if err != nil {
		return model.Version{}, err
	}
	if row == nil {
		return model.Version{}, fault.NotFound("entity %s has no version %d", ref, version)
	}
	return model.ScanVersion(row)
}

// History returns every version of an entity, ordered by version number.
func (s *Store) History(ctx context.Context, ref uuid.UUID) ([]model.Version, error) {
	c := txn.New(s.a)
	ent, err := s.getByUUID(ctx, c, ref)
	if err != nil {
		return nil, err
	}
	d := s.a.Dialect()
	rows, err := txn.All(ctx, c,
		"SELECT id, entities_id, version, created_at, created_by, fields FROM entity_versions"+
			" WHERE entities_id = "+d.Placeholder(1)+" ORDER BY version ASC",
		ent.ID)
	if err != nil {
		return nil, err
	}
	versions := make([]model.Version, 0, len(rows))
	for _, row := range rows {
		v, err := model.ScanVersion(row)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, nil
}

// PublishingHistory returns the entity's publishing audit trail in time
// order.
func (s *Store) PublishingHistory(ctx context.Context, ref uuid.UUID) ([]model.PublishingEvent, error) {
	c := txn.New(s.a)
	ent, err := s.getByUUID(ctx, c, ref)
	if err != nil {
		return nil, err
	}
	d := s.a.Dialect()
	rows, err := txn.All(ctx, c,
		"SELECT id, entities_id, version_id, actor, at, kind FROM entity_publishing_events"+
			" WHERE entities_id = "+d.Placeholder(1)+" ORDER BY at ASC, id ASC",
		ent.ID)
	if err != nil {
		return nil, err
	}
	events := make([]model.PublishingEvent, 0, len(rows))
	for _, row := range rows {
		ev, err := model.ScanEvent(row)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// getByUUID loads an entity in the given scope. A missing row is NotFound.
func (s *Store) getByUUID(ctx context.Context, c txn.Context, ref uuid.UUID) (model.Entity, error) {
	d := s.a.Dialect()
	row, err := txn.MaybeOne(ctx, c,
		"SELECT "+model.EntityColumns+" FROM entities e WHERE e.uuid = "+d.Placeholder(1),
		ref.String())
	if err != nil {
		return model.Entity{}, err
	}
	if row == nil {
		return model.Entity{}, fault.NotFound("entity %s does not exist", ref)
	}
	return model.ScanEntity(row)
}

// reload re-reads an entity by internal id after a mutation.
func (s *Store) reload(ctx context.Context, c txn.Context, id int64) (model.Entity, error) {
	d := s.a.Dialect()
	row, err := txn.One(ctx, c,
		"SELECT "+model.EntityColumns+" FROM entities e WHERE e.id = "+d.Placeholder(1), id)
	if err != nil {
		return model.Entity{}, err
	}
	return model.ScanEntity(row)
}

// nextUpdateSeq bumps and returns the global update sequence. It must run
// inside the mutating transaction so the sequence commits atomically with
// the change it orders.
func (s *Store) nextUpdateSeq(ctx context.Context, c txn.Context) (int64, error) {
	row, err := txn.One(ctx, c,
		"UPDATE entity_update_seq SET value = value + 1 RETURNING value")
	if err != nil {
		return 0, err
	}
	return row.Int64("value")
}

// checkType validates the entity type against the schema catalog when one
// is configured.
func (s *Store) checkType(ctx context.Context, typeName string) error {
	if typeName == "" {
		return fault.BadRequest("entity type must not be empty")
	}
	if s.catalog == nil {
		return nil
	}
	known, err := s.catalog.EntityTypes(ctx)
	if err != nil {
		return err
	}
	if _, ok := known[typeName]; !ok {
		return fault.BadRequest("unknown entity type %q", typeName)
	}
	return nil
}

func (s *Store) logTransition(ent model.Entity, op string) {
	s.log.Debug("entity transition",
		zap.String("op", op),
		zap.String("uuid", ent.UUID.String()),
		zap.String("status", string(ent.Status)))
}
