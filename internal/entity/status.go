package entity

import (
	"github.com/foliostore/folio/internal/fault"
	"github.com/foliostore/folio/internal/model"
)

// The publishing state machine. Operations not listed for a state are
// rejected with a Conflict; the one deliberate exception is Archive,
// which the orchestrating caller gates on unpublish-first and this layer
// does not re-validate against Published/Modified.

// statusAfterUpdate returns the state an update lands on.
func statusAfterUpdate(s model.Status) (model.Status, error) {
	switch s {
	case model.StatusDraft:
		return model.StatusDraft, nil
	case model.StatusPublished, model.StatusModified, model.StatusWithdrawn:
		return model.StatusModified, nil
	case model.StatusArchived:
		return "", fault.Conflict("cannot update an archived entity")
	default:
		return "", fault.Generic(nil, "unknown status %q", s)
	}
}

// checkPublish gates the publish transition.
func checkPublish(s model.Status) error {
	switch s {
	case model.StatusDraft, model.StatusModified, model.StatusWithdrawn:
		return nil
	case model.StatusPublished:
		return fault.Conflict("entity is already published")
	case model.StatusArchived:
		return fault.Conflict("cannot publish an archived entity")
	default:
		return fault.Generic(nil, "unknown status %q", s)
	}
}

// checkUnpublish gates the unpublish transition.
func checkUnpublish(s model.Status) error {
	switch s {
	case model.StatusPublished, model.StatusModified:
		return nil
	case model.StatusDraft, model.StatusWithdrawn:
		return fault.Conflict("entity is not published")
	case model.StatusArchived:
		return fault.Conflict("cannot unpublish an archived entity")
	default:
		return fault.Generic(nil, "unknown status %q", s)
	}
}

// checkArchive gates the archive transition. Published/Modified are let
// through on purpose; the caller layer orchestrating authorization owns
// the unpublish-first rule.
func checkArchive(s model.Status) error {
	switch s {
	case model.StatusDraft, model.StatusWithdrawn, model.StatusPublished, model.StatusModified:
		return nil
	case model.StatusArchived:
		return fault.Conflict("entity is already archived")
	default:
		return fault.Generic(nil, "unknown status %q", s)
	}
}

// statusAfterUnarchive returns the state unarchive lands on: Draft when
// the entity has never been published, Withdrawn otherwise.
func statusAfterUnarchive(s model.Status, everPublished bool) (model.Status, error) {
	if s != model.StatusArchived {
		return "", fault.Conflict("entity is not archived")
	}
	if everPublished {
		return model.StatusWithdrawn, nil
	}
	return model.StatusDraft, nil
}
