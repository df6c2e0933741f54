package sqlitedb

import (
	"errors"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/foliostore/folio/internal/adapter"
)

// dialect implements adapter.Dialect for sqlite.
type dialect struct{}

// Dialect returns the sqlite dialect without opening a database.
func Dialect() adapter.Dialect {
	return dialect{}
}

func (dialect) Name() string {
	return "sqlite"
}

// Placeholder returns sqlite's positional placeholder. The position is
// implicit: placeholders bind to parameters in statement order.
func (dialect) Placeholder(int) string {
	return "?"
}

// TextFilter matches against an FTS virtual table whose rowid mirrors
// entities.id.
func (dialect) TextFilter(index string, n int) string {
	return "e.id IN (SELECT rowid FROM " + index + " WHERE " + index + " MATCH ?)"
}

func asSQLiteError(err error, target *sqlite3.Error) bool {
	return errors.As(err, target)
}

func containsColumn(msg, col string) bool {
	return strings.Contains(msg, col)
}
