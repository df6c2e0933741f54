package entity

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/foliostore/folio/internal/fault"
	"github.com/foliostore/folio/internal/model"
	"github.com/foliostore/folio/internal/txn"
)

// Publish makes the named version the entity's published view and records
// a publishing event. Any existing version may be published, not only the
// latest.
func (s *Store) Publish(ctx context.Context, ref uuid.UUID, version int64, actor string) (model.Entity, error) {
	var ent model.Entity
	err := txn.Atomic(ctx, txn.New(s.a), func(tc txn.Context) error {
		dial := s.a.Dialect()

		cur, err := s.getByUUID(ctx, tc, ref)
		if err != nil {
			return err
		}
		if err := checkPublish(cur.Status); err != nil {
			return err
		}

		row, err := txn.MaybeOne(ctx, tc,
			"SELECT id, fields FROM entity_versions WHERE entities_id = "+dial.Placeholder(1)+
				" AND version = "+dial.Placeholder(2),
			cur.ID, version)
		if err != nil {
			return err
		}
		if row == nil {
			return fault.BadRequest("entity %s has no version %d", ref, version)
		}
		versionID, err := row.Int64("id")
		if err != nil {
			return err
		}
		body, err := row.String("fields")
		if err != nil {
			return err
		}

		now := s.now().UTC()
		seq, err := s.nextUpdateSeq(ctx, tc)
		if err != nil {
			return err
		}
		if err := txn.None(ctx, tc,
			"UPDATE entities SET published_version_id = "+dial.Placeholder(1)+
				", status = "+dial.Placeholder(2)+
				", ever_published = "+dial.Placeholder(3)+
				", updated_at = "+dial.Placeholder(4)+
				", update_seq = "+dial.Placeholder(5)+
				" WHERE id = "+dial.Placeholder(6),
			versionID, string(model.StatusPublished), true, now, seq, cur.ID); err != nil {
			return err
		}
		if err := s.recordEvent(ctx, tc, cur.ID, &versionID, actor, model.EventPublish, now); err != nil {
			return err
		}
		if err := s.projectPublished(ctx, tc, cur.ID, versionID, json.RawMessage(body)); err != nil {
			return err
		}
		ent, err = s.reload(ctx, tc, cur.ID)
		return err
	})
	if err != nil {
		return model.Entity{}, err
	}
	s.logTransition(ent, "publish")
	return ent, nil
}

// Unpublish withdraws the published view. It returns, besides the updated
// entity, the external ids of currently published entities whose published
// fields reference this one; callers use the list to flag newly dangling
// references.
func (s *Store) Unpublish(ctx context.Context, ref uuid.UUID, actor string) (model.Entity, []uuid.UUID, error) {
	var (
		ent      model.Entity
		affected []uuid.UUID
	)
	err := txn.Atomic(ctx, txn.New(s.a), func(tc txn.Context) error {
		dial := s.a.Dialect()

		cur, err := s.getByUUID(ctx, tc, ref)
		if err != nil {
			return err
		}
		if err := checkUnpublish(cur.Status); err != nil {
			return err
		}

		// Collect referrers before tearing the published edges down.
		rows, err := txn.All(ctx, tc,
			"SELECT DISTINCT e.uuid FROM entity_reference_edges_published edge"+
				" JOIN entities e ON e.id = edge.from_entities_id"+
				" WHERE edge.to_entities_id = "+dial.Placeholder(1)+
				" AND e.published_version_id IS NOT NULL"+
				" AND e.id != "+dial.Placeholder(2)+
				" ORDER BY e.uuid",
			cur.ID, cur.ID)
		if err != nil {
			return err
		}
		affected = affected[:0]
		for _, row := range rows {
			raw, err := row.String("uuid")
			if err != nil {
				return err
			}
			id, err := uuid.Parse(raw)
			if err != nil {
				return fault.Generic(err, "stored uuid %q is malformed", raw)
			}
			affected = append(affected, id)
		}

		now := s.now().UTC()
		seq, err := s.nextUpdateSeq(ctx, tc)
		if err != nil {
			return err
		}
		if err := txn.None(ctx, tc,
			"UPDATE entities SET published_version_id = NULL"+
				", status = "+dial.Placeholder(1)+
				", updated_at = "+dial.Placeholder(2)+
				", update_seq = "+dial.Placeholder(3)+
				" WHERE id = "+dial.Placeholder(4),
			string(model.StatusWithdrawn), now, seq, cur.ID); err != nil {
			return err
		}
		if err := s.recordEvent(ctx, tc, cur.ID, nil, actor, model.EventUnpublish, now); err != nil {
			return err
		}
		if err := s.clearPublished(ctx, tc, cur.ID); err != nil {
			return err
		}
		ent, err = s.reload(ctx, tc, cur.ID)
		return err
	})
	if err != nil {
		return model.Entity{}, nil, err
	}
	s.logTransition(ent, "unpublish")
	return ent, affected, nil
}

// Archive parks an entity. Whether the entity must be unpublished first is
// the caller's policy; the store only rejects archiving twice.
func (s *Store) Archive(ctx context.Context, ref uuid.UUID, actor string) (model.Entity, error) {
	ent, err := s.transition(ctx, ref, actor, model.EventArchive, func(cur model.Entity) (model.Status, error) {
		if err := checkArchive(cur.Status); err != nil {
			return "", err
		}
		return model.StatusArchived, nil
	})
	if err != nil {
		return model.Entity{}, err
	}
	s.logTransition(ent, "archive")
	return ent, nil
}

// Unarchive restores an archived entity to Draft, or to Withdrawn when it
// has been published at some point in its life.
func (s *Store) Unarchive(ctx context.Context, ref uuid.UUID, actor string) (model.Entity, error) {
	ent, err := s.transition(ctx, ref, actor, model.EventUnarchive, func(cur model.Entity) (model.Status, error) {
		return statusAfterUnarchive(cur.Status, cur.EverPublished)
	})
	if err != nil {
		return model.Entity{}, err
	}
	s.logTransition(ent, "unarchive")
	return ent, nil
}

// transition applies a pointer-preserving status change plus its audit
// event in one transaction.
func (s *Store) transition(ctx context.Context, ref uuid.UUID, actor string, kind model.EventKind, next func(model.Entity) (model.Status, error)) (model.Entity, error) {
	var ent model.Entity
	err := txn.Atomic(ctx, txn.New(s.a), func(tc txn.Context) error {
		dial := s.a.Dialect()

		cur, err := s.getByUUID(ctx, tc, ref)
		if err != nil {
			return err
		}
		status, err := next(cur)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		seq, err := s.nextUpdateSeq(ctx, tc)
		if err != nil {
			return err
		}
		if err := txn.None(ctx, tc,
			"UPDATE entities SET status = "+dial.Placeholder(1)+
				", archived = "+dial.Placeholder(2)+
				", updated_at = "+dial.Placeholder(3)+
				", update_seq = "+dial.Placeholder(4)+
				" WHERE id = "+dial.Placeholder(5),
			string(status), status == model.StatusArchived, now, seq, cur.ID); err != nil {
			return err
		}
		if err := s.recordEvent(ctx, tc, cur.ID, nil, actor, kind, now); err != nil {
			return err
		}
		ent, err = s.reload(ctx, tc, cur.ID)
		return err
	})
	if err != nil {
		return model.Entity{}, err
	}
	return ent, nil
}

func (s *Store) recordEvent(ctx context.Context, tc txn.Context, entityID int64, versionID *int64, actor string, kind model.EventKind, now any) error {
	dial := s.a.Dialect()
	var vid any
	if versionID != nil {
		vid = *versionID
	}
	return txn.None(ctx, tc,
		"INSERT INTO entity_publishing_events (entities_id, version_id, actor, at, kind)"+
			" VALUES ("+placeholders(dial, 1, 5)+")",
		entityID, vid, actor, now, string(kind))
}
