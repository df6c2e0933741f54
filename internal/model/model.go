// Package model defines the persistent domain types shared by the entity
// store and the query engine: entities, their immutable versions, the
// publishing status machine's states, and publishing audit events.
package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/foliostore/folio/internal/adapter"
	"github.com/foliostore/folio/internal/fault"
)

// Status is an entity's publishing state.
type Status string

const (
	// StatusDraft: created, never published.
	StatusDraft Status = "draft"

	// StatusPublished: the published pointer references the latest version.
	StatusPublished Status = "published"

	// StatusModified: published, but edited since (latest != published).
	StatusModified Status = "modified"

	// StatusWithdrawn: was published, currently unpublished.
	StatusWithdrawn Status = "withdrawn"

	// StatusArchived: parked; requires explicit unarchive.
	StatusArchived Status = "archived"
)

// Statuses lists every valid status.
var Statuses = []Status{StatusDraft, StatusPublished, StatusModified, StatusWithdrawn, StatusArchived}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPublished, StatusModified, StatusWithdrawn, StatusArchived:
		return true
	}
	return false
}

// EventKind categorizes a publishing event.
type EventKind string

const (
	EventPublish   EventKind = "publish"
	EventUnpublish EventKind = "unpublish"
	EventArchive   EventKind = "archive"
	EventUnarchive EventKind = "unarchive"
)

// InitialVersion is the version number of an entity's first version row.
const InitialVersion int64 = 1

// Entity is one logical content item. The two pointers realize the dual
// view: LatestVersionID always references the highest-numbered version,
// PublishedVersionID (when non-nil) the explicitly published one.
type Entity struct {
	ID                 int64
	UUID               uuid.UUID
	Name               string
	Type               string
	AuthKey            string
	ResolvedAuthKey    string
	Status             Status
	Archived           bool
	EverPublished      bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
	UpdateSeq          int64
	LatestVersionID    int64
	PublishedVersionID *int64
}

// Version is one immutable edit. Fields is the opaque payload owned by
// the field codec.
type Version struct {
	ID        int64
	EntityID  int64
	Version   int64
	CreatedAt time.Time
	CreatedBy string
	Fields    json.RawMessage
}

// PublishingEvent is one append-only audit row. VersionID is nil for
// kinds that do not reference a version (unpublish, archive, unarchive).
type PublishingEvent struct {
	ID        int64
	EntityID  int64
	VersionID *int64
	Actor     string
	At        time.Time
	Kind      EventKind
}

// EntityColumns is the column list ScanEntity expects, qualified with the
// "e" alias the queries use.
const EntityColumns = "e.id, e.uuid, e.name, e.type, e.auth_key, e.resolved_auth_key, " +
	"e.status, e.archived, e.ever_published, e.created_at, e.updated_at, e.update_seq, " +
	"e.latest_version_id, e.published_version_id"

// ScanEntity converts an adapter row holding EntityColumns into an Entity.
func ScanEntity(row adapter.Row) (Entity, error) {
	var e Entity
	var err error

	if e.ID, err = row.Int64("id"); err != nil {
		return Entity{}, err
	}
	raw, err := row.String("uuid")
	if err != nil {
		return Entity{}, err
	}
	if e.UUID, err = uuid.Parse(raw); err != nil {
		return Entity{}, fault.Generic(err, "entity %d: stored uuid is invalid", e.ID)
	}
	if e.Name, err = row.String("name"); err != nil {
		return Entity{}, err
	}
	if e.Type, err = row.String("type"); err != nil {
		return Entity{}, err
	}
	if e.AuthKey, err = row.String("auth_key"); err != nil {
		return Entity{}, err
	}
	if e.ResolvedAuthKey, err = row.String("resolved_auth_key"); err != nil {
		return Entity{}, err
	}
	status, err := row.String("status")
	if err != nil {
		return Entity{}, err
	}
	e.Status = Status(status)
	if !e.Status.Valid() {
		return Entity{}, fault.Generic(nil, "entity %d: unknown status %q", e.ID, status)
	}
	if e.Archived, err = row.Bool("archived"); err != nil {
		return Entity{}, err
	}
	if e.EverPublished, err = row.Bool("ever_published"); err != nil {
		return Entity{}, err
	}
	if e.CreatedAt, err = row.Time("created_at"); err != nil {
		return Entity{}, err
	}
	if e.UpdatedAt, err = row.Time("updated_at"); err != nil {
		return Entity{}, err
	}
	if e.UpdateSeq, err = row.Int64("update_seq"); err != nil {
		return Entity{}, err
	}
	latest, err := row.NullInt64("latest_version_id")
	if err != nil {
		return Entity{}, err
	}
	if latest == nil {
		return Entity{}, fault.Generic(nil, "entity %d: latest version pointer is null", e.ID)
	}
	e.LatestVersionID = *latest
	if e.PublishedVersionID, err = row.NullInt64("published_version_id"); err != nil {
		return Entity{}, err
	}
	return e, nil
}

// ScanVersion converts an adapter row holding the entity_versions columns
// (id, entities_id, version, created_at, created_by, fields) into a Version.
func ScanVersion(row adapter.Row) (Version, error) {
	var v Version
	var err error

	if v.ID, err = row.Int64("id"); err != nil {
		return Version{}, err
	}
	if v.EntityID, err = row.Int64("entities_id"); err != nil {
		return Version{}, err
	}
	if v.Version, err = row.Int64("version"); err != nil {
		return Version{}, err
	}
	if v.CreatedAt, err = row.Time("created_at"); err != nil {
		return Version{}, err
	}
	if v.CreatedBy, err = row.String("created_by"); err != nil {
		return Version{}, err
	}
	fields, err := row.Bytes("fields")
	if err != nil {
		return Version{}, err
	}
	v.Fields = json.RawMessage(fields)
	return v, nil
}

// ScanEvent converts an adapter row holding the entity_publishing_events
// columns into a PublishingEvent.
func ScanEvent(row adapter.Row) (PublishingEvent, error) {
	var ev PublishingEvent
	var err error

	if ev.ID, err = row.Int64("id"); err != nil {
		return PublishingEvent{}, err
	}
	if ev.EntityID, err = row.Int64("entities_id"); err != nil {
		return PublishingEvent{}, err
	}
	if ev.VersionID, err = row.NullInt64("version_id"); err != nil {
		return PublishingEvent{}, err
	}
	if ev.Actor, err = row.String("actor"); err != nil {
		return PublishingEvent{}, err
	}
	if ev.At, err = row.Time("at"); err != nil {
		return PublishingEvent{}, err
	}
	kind, err := row.String("kind")
	if err != nil {
		return PublishingEvent{}, err
	}
	ev.Kind = EventKind(kind)
	return ev, nil
}
