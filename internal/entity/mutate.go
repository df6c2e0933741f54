package entity

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/foliostore/folio/internal/adapter"
	"github.com/foliostore/folio/internal/fault"
	"github.com/foliostore/folio/internal/model"
	"github.com/foliostore/folio/internal/txn"
)

// Draft is the input to Create and Upsert.
type Draft struct {
	// UUID is the external id; allocated when nil. Immutable afterwards.
	UUID *uuid.UUID

	Name            string
	Type            string
	AuthKey         string
	ResolvedAuthKey string
	Fields          json.RawMessage
	CreatedBy       string
}

// UpdateRequest is the input to Update.
type UpdateRequest struct {
	Fields    json.RawMessage
	Rename    *string
	UpdatedBy string
}

// Create inserts a new entity in Draft state with version 1.
//
// Name uniqueness is enforced by the backend, never by locking ahead of
// the insert: on a name collision the whole transaction is retried with a
// regenerated candidate, a bounded number of times.
func (s *Store) Create(ctx context.Context, d Draft) (model.Entity, error) {
	if d.Name == "" {
		return model.Entity{}, fault.BadRequest("entity name must not be empty")
	}
	if err := s.checkType(ctx, d.Type); err != nil {
		return model.Entity{}, err
	}

	ref := uuid.New()
	if d.UUID != nil {
		ref = *d.UUID
	}

	name := d.Name
	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		var ent model.Entity
		err := txn.Atomic(ctx, txn.New(s.a), func(tc txn.Context) error {
			var err error
			ent, err = s.insertEntity(ctx, tc, d, ref, name)
			return err
		})
		if err == nil {
			s.logTransition(ent, "create")
			return ent, nil
		}
		if s.a.UniqueViolation(err, adapter.ConstraintEntityUUID) {
			return model.Entity{}, fault.Conflict("entity %s already exists", ref)
		}
		if s.a.UniqueViolation(err, adapter.ConstraintEntityName) {
			name = s.mutate(d.Name, attempt+1)
			s.log.Debug("entity name collision, retrying",
				zap.String("requested", d.Name), zap.String("candidate", name))
			continue
		}
		return model.Entity{}, err
	}
	return model.Entity{}, fault.Conflict("could not find a unique name for %q after %d attempts",
		d.Name, maxNameAttempts)
}

func (s *Store) insertEntity(ctx context.Context, tc txn.Context, d Draft, ref uuid.UUID, name string) (model.Entity, error) {
	dial := s.a.Dialect()
	now := s.now().UTC()

	seq, err := s.nextUpdateSeq(ctx, tc)
	if err != nil {
		return model.Entity{}, err
	}

	row, err := txn.One(ctx, tc,
		"INSERT INTO entities (uuid, name, type, auth_key, resolved_auth_key, status,"+
			" archived, ever_published, created_at, updated_at, update_seq)"+
			" VALUES ("+placeholders(dial, 1, 11)+") RETURNING id",
		ref.String(), name, d.Type, d.AuthKey, d.ResolvedAuthKey, string(model.StatusDraft),
		false, false, now, now, seq)
	if err != nil {
		return model.Entity{}, err
	}
	entityID, err := row.Int64("id")
	if err != nil {
		return model.Entity{}, err
	}

	versionID, err := s.insertVersion(ctx, tc, entityID, model.InitialVersion, d.CreatedBy, d.Fields, now)
	if err != nil {
		return model.Entity{}, err
	}
	if err := txn.None(ctx, tc,
		"UPDATE entities SET latest_version_id = "+dial.Placeholder(1)+" WHERE id = "+dial.Placeholder(2),
		versionID, entityID); err != nil {
		return model.Entity{}, err
	}
	if err := s.projectLatest(ctx, tc, entityID, versionID, d.Fields); err != nil {
		return model.Entity{}, err
	}
	return s.reload(ctx, tc, entityID)
}

// Update appends a new version and repoints the latest pointer. Versions
// are never mutated in place. An optional rename runs under the same
// unique-name retry discipline as Create.
func (s *Store) Update(ctx context.Context, ref uuid.UUID, req UpdateRequest) (model.Entity, error) {
	attempts := 1
	base := ""
	if req.Rename != nil {
		base = *req.Rename
		if base == "" {
			return model.Entity{}, fault.BadRequest("renamed entity name must not be empty")
		}
		attempts = maxNameAttempts
	}

	name := req.Rename
	for attempt := 0; attempt < attempts; attempt++ {
		var ent model.Entity
		err := txn.Atomic(ctx, txn.New(s.a), func(tc txn.Context) error {
			var err error
			ent, err = s.applyUpdate(ctx, tc, ref, req.Fields, name, req.UpdatedBy)
			return err
		})
		if err == nil {
			s.logTransition(ent, "update")
			return ent, nil
		}
		if req.Rename != nil && s.a.UniqueViolation(err, adapter.ConstraintEntityName) {
			candidate := s.mutate(base, attempt+1)
			name = &candidate
			continue
		}
		return model.Entity{}, err
	}
	return model.Entity{}, fault.Conflict("could not find a unique name for %q after %d attempts",
		base, maxNameAttempts)
}

func (s *Store) applyUpdate(ctx context.Context, tc txn.Context, ref uuid.UUID, payload json.RawMessage, rename *string, updatedBy string) (model.Entity, error) {
	dial := s.a.Dialect()

	ent, err := s.getByUUID(ctx, tc, ref)
	if err != nil {
		return model.Entity{}, err
	}
	next, err := statusAfterUpdate(ent.Status)
	if err != nil {
		return model.Entity{}, err
	}

	// Version numbers are dense: new = latest + 1.
	row, err := txn.One(ctx, tc,
		"SELECT version FROM entity_versions WHERE id = "+dial.Placeholder(1), ent.LatestVersionID)
	if err != nil {
		return model.Entity{}, err
	}
	current, err := row.Int64("version")
	if err != nil {
		return model.Entity{}, err
	}

	now := s.now().UTC()
	seq, err := s.nextUpdateSeq(ctx, tc)
	if err != nil {
		return model.Entity{}, err
	}
	versionID, err := s.insertVersion(ctx, tc, ent.ID, current+1, updatedBy, payload, now)
	if err != nil {
		return model.Entity{}, err
	}

	name := ent.Name
	if rename != nil {
		name = *rename
	}
	if err := txn.None(ctx, tc,
		"UPDATE entities SET latest_version_id = "+dial.Placeholder(1)+
			", status = "+dial.Placeholder(2)+
			", name = "+dial.Placeholder(3)+
			", updated_at = "+dial.Placeholder(4)+
			", update_seq = "+dial.Placeholder(5)+
			" WHERE id = "+dial.Placeholder(6),
		versionID, string(next), name, now, seq, ent.ID); err != nil {
		return model.Entity{}, err
	}
	if err := s.projectLatest(ctx, tc, ent.ID, versionID, payload); err != nil {
		return model.Entity{}, err
	}
	return s.reload(ctx, tc, ent.ID)
}

// Upsert creates the draft when its external id is unknown and updates
// the existing entity otherwise. Created reports which path ran.
func (s *Store) Upsert(ctx context.Context, d Draft) (ent model.Entity, created bool, err error) {
	if d.UUID != nil {
		existing, err := s.Get(ctx, *d.UUID)
		switch {
		case err == nil:
			req := UpdateRequest{Fields: d.Fields, UpdatedBy: d.CreatedBy}
			if d.Name != "" && d.Name != existing.Name {
				req.Rename = &d.Name
			}
			ent, err := s.Update(ctx, *d.UUID, req)
			return ent, false, err
		case !fault.IsNotFound(err):
			return model.Entity{}, false, err
		}
	}
	ent, err = s.Create(ctx, d)
	return ent, true, err
}

func (s *Store) insertVersion(ctx context.Context, tc txn.Context, entityID, version int64, createdBy string, payload json.RawMessage, now any) (int64, error) {
	dial := s.a.Dialect()
	if payload == nil {
		payload = json.RawMessage("{}")
	}
	row, err := txn.One(ctx, tc,
		"INSERT INTO entity_versions (entities_id, version, created_at, created_by, fields)"+
			" VALUES ("+placeholders(dial, 1, 5)+") RETURNING id",
		entityID, version, now, createdBy, string(payload))
	if err != nil {
		return 0, err
	}
	return row.Int64("id")
}

// placeholders renders "p(from), p(from+1), ..., p(to)".
func placeholders(d adapter.Dialect, from, to int) string {
	out := ""
	for i := from; i <= to; i++ {
		if i > from {
			out += ", "
		}
		out += d.Placeholder(i)
	}
	return out
}
