package postgresdb

import (
	"fmt"

	"github.com/foliostore/folio/internal/adapter"
)

// dialect implements adapter.Dialect for postgres.
type dialect struct{}

// Dialect returns the postgres dialect without opening a database.
func Dialect() adapter.Dialect {
	return dialect{}
}

func (dialect) Name() string {
	return "postgres"
}

// Placeholder returns postgres's numbered placeholder for 1-based n.
func (dialect) Placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

// TextFilter matches against a text index side-table through the tsvector
// expression the migrations index with GIN.
func (dialect) TextFilter(index string, n int) string {
	return fmt.Sprintf(
		"e.id IN (SELECT entities_id FROM %s WHERE to_tsvector('simple', body) @@ plainto_tsquery('simple', $%d))",
		index, n)
}
