package postgresdb

import (
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/foliostore/folio/internal/adapter"
)

func TestDialect_Placeholder(t *testing.T) {
	d := dialect{}
	assert.Equal(t, "$1", d.Placeholder(1))
	assert.Equal(t, "$12", d.Placeholder(12))
}

func TestDialect_TextFilter(t *testing.T) {
	d := dialect{}
	got := d.TextFilter("entity_search_latest", 3)
	assert.Contains(t, got, "entity_search_latest")
	assert.Contains(t, got, "$3")
	assert.Contains(t, got, "plainto_tsquery")
}

func TestUniqueViolation(t *testing.T) {
	db := &DB{}

	dup := &pgconn.PgError{Code: "23505", ConstraintName: "entities_name_key"}
	assert.True(t, db.UniqueViolation(dup, adapter.ConstraintEntityName))
	assert.False(t, db.UniqueViolation(dup, adapter.ConstraintEntityUUID))

	notNull := &pgconn.PgError{Code: "23502", ConstraintName: "entities_name_key"}
	assert.False(t, db.UniqueViolation(notNull, adapter.ConstraintEntityName))

	assert.False(t, db.UniqueViolation(assert.AnError, adapter.ConstraintEntityName))
}
