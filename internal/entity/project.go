package entity

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/foliostore/folio/internal/txn"
)

// Derived state is recomputed wholesale inside the owning transaction:
// reference edges for the view being repointed, location rows for the
// new version, and the per-view full-text body.

func (s *Store) projectLatest(ctx context.Context, tc txn.Context, entityID, versionID int64, payload json.RawMessage) error {
	if err := s.refreshEdges(ctx, tc, "entity_reference_edges_latest", entityID, payload); err != nil {
		return err
	}
	if err := s.refreshLocations(ctx, tc, entityID, versionID, payload); err != nil {
		return err
	}
	return s.upsertSearch(ctx, tc, "entity_search_latest", entityID, payload)
}

func (s *Store) projectPublished(ctx context.Context, tc txn.Context, entityID, versionID int64, payload json.RawMessage) error {
	// Location rows are keyed by version and were written when the
	// version was created; only edges and text are per-view.
	if err := s.refreshEdges(ctx, tc, "entity_reference_edges_published", entityID, payload); err != nil {
		return err
	}
	return s.upsertSearch(ctx, tc, "entity_search_published", entityID, payload)
}

func (s *Store) clearPublished(ctx context.Context, tc txn.Context, entityID int64) error {
	dial := s.a.Dialect()
	if _, err := tc.Execute(ctx,
		"DELETE FROM entity_reference_edges_published WHERE from_entities_id = "+dial.Placeholder(1),
		entityID); err != nil {
		return err
	}
	return s.deleteSearch(ctx, tc, "entity_search_published", entityID)
}

// refreshEdges replaces the outgoing edge set of one view. References to
// unknown entities are dropped silently; they re-materialize the next
// time the referrer is written after the target exists.
func (s *Store) refreshEdges(ctx context.Context, tc txn.Context, table string, entityID int64, payload json.RawMessage) error {
	dial := s.a.Dialect()
	if _, err := tc.Execute(ctx,
		"DELETE FROM "+table+" WHERE from_entities_id = "+dial.Placeholder(1),
		entityID); err != nil {
		return err
	}

	refs, err := s.codec.References(payload)
	if err != nil {
		return err
	}
	if len(refs) == 0 {
		return nil
	}

	marks := make([]string, len(refs))
	args := make([]any, len(refs))
	for i, r := range refs {
		marks[i] = dial.Placeholder(i + 1)
		args[i] = r.String()
	}
	rows, err := txn.All(ctx, tc,
		"SELECT id FROM entities WHERE uuid IN ("+strings.Join(marks, ", ")+")", args...)
	if err != nil {
		return err
	}
	for _, row := range rows {
		to, err := row.Int64("id")
		if err != nil {
			return err
		}
		if err := txn.None(ctx, tc,
			"INSERT INTO "+table+" (from_entities_id, to_entities_id) VALUES ("+
				dial.Placeholder(1)+", "+dial.Placeholder(2)+")",
			entityID, to); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) refreshLocations(ctx context.Context, tc txn.Context, entityID, versionID int64, payload json.RawMessage) error {
	dial := s.a.Dialect()
	if _, err := tc.Execute(ctx,
		"DELETE FROM entity_location_index WHERE version_id = "+dial.Placeholder(1),
		versionID); err != nil {
		return err
	}
	locs, err := s.codec.Locations(payload)
	if err != nil {
		return err
	}
	for _, l := range locs {
		if err := txn.None(ctx, tc,
			"INSERT INTO entity_location_index (entities_id, version_id, lat, lng) VALUES ("+
				placeholders(dial, 1, 4)+")",
			entityID, versionID, l.Lat, l.Lng); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) upsertSearch(ctx context.Context, tc txn.Context, table string, entityID int64, payload json.RawMessage) error {
	body, err := s.codec.Text(payload)
	if err != nil {
		return err
	}
	if err := s.deleteSearch(ctx, tc, table, entityID); err != nil {
		return err
	}
	dial := s.a.Dialect()
	key := "entities_id"
	if dial.Name() == "sqlite" {
		// FTS virtual tables address rows through docid.
		key = "docid"
	}
	return txn.None(ctx, tc,
		"INSERT INTO "+table+" ("+key+", body) VALUES ("+dial.Placeholder(1)+", "+dial.Placeholder(2)+")",
		entityID, body)
}

func (s *Store) deleteSearch(ctx context.Context, tc txn.Context, table string, entityID int64) error {
	dial := s.a.Dialect()
	key := "entities_id"
	if dial.Name() == "sqlite" {
		key = "docid"
	}
	_, err := tc.Execute(ctx,
		"DELETE FROM "+table+" WHERE "+key+" = "+dial.Placeholder(1), entityID)
	return err
}
