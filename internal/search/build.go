package search

import (
	"strings"

	"github.com/foliostore/folio/internal/adapter"
	"github.com/foliostore/folio/internal/model"
)

// builder accumulates bound parameters and hands out dialect placeholders.
type builder struct {
	d    adapter.Dialect
	args []any
}

// bind registers v as the next parameter and returns its placeholder.
func (b *builder) bind(v any) string {
	b.args = append(b.args, v)
	return b.d.Placeholder(len(b.args))
}

// bindList registers a slice of values and returns "(p1, p2, ...)".
func (b *builder) bindList(values []string) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = b.bind(v)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// viewPointer is the version-pointer column of the query's mode.
func viewPointer(m Mode) string {
	if m == ModePublished {
		return "e.published_version_id"
	}
	return "e.latest_version_id"
}

// edgeTable is the reference-edge projection of the query's mode.
func edgeTable(m Mode) string {
	if m == ModePublished {
		return "entity_reference_edges_published"
	}
	return "entity_reference_edges_latest"
}

// textIndex is the free-text index of the query's mode.
func textIndex(m Mode) string {
	if m == ModePublished {
		return "entity_search_published"
	}
	return "entity_search_latest"
}

// filterClauses translates the query's filters into join and predicate
// fragments. The assembly order is fixed so generated SQL is stable.
func filterClauses(b *builder, q *Query) (joins string, preds []string) {
	if q.Mode == ModePublished {
		preds = append(preds, "e.published_version_id IS NOT NULL")
	}

	if len(q.AuthKeys) == 1 {
		preds = append(preds, "e.resolved_auth_key = "+b.bind(q.AuthKeys[0]))
	} else {
		preds = append(preds, "e.resolved_auth_key IN "+b.bindList(q.AuthKeys))
	}

	if len(q.Types) > 0 {
		preds = append(preds, "e.type IN "+b.bindList(q.Types))
	}

	if len(q.Statuses) > 0 {
		statuses := make([]string, len(q.Statuses))
		for i, s := range q.Statuses {
			statuses[i] = string(s)
		}
		preds = append(preds, "e.status IN "+b.bindList(statuses))
	}

	if q.LinksTo != nil {
		preds = append(preds,
			"EXISTS (SELECT 1 FROM "+edgeTable(q.Mode)+" re"+
				" JOIN entities te ON te.id = re.to_entities_id"+
				" WHERE re.from_entities_id = e.id AND te.uuid = "+b.bind(q.LinksTo.String())+")")
	}

	if q.LinksFrom != nil {
		preds = append(preds,
			"EXISTS (SELECT 1 FROM "+edgeTable(q.Mode)+" re"+
				" JOIN entities fe ON fe.id = re.from_entities_id"+
				" WHERE re.to_entities_id = e.id AND fe.uuid = "+b.bind(q.LinksFrom.String())+")")
	}

	if q.Bounds != nil {
		joins = " JOIN entity_location_index li ON li.entities_id = e.id" +
			" AND li.version_id = " + viewPointer(q.Mode)
		box := q.Bounds
		preds = append(preds,
			"li.lat >= "+b.bind(box.MinLat)+" AND li.lat <= "+b.bind(box.MaxLat))
		if box.MinLng <= box.MaxLng {
			preds = append(preds,
				"li.lng >= "+b.bind(box.MinLng)+" AND li.lng <= "+b.bind(box.MaxLng))
		} else {
			// The box wraps across the antimeridian.
			preds = append(preds,
				"(li.lng >= "+b.bind(box.MinLng)+" OR li.lng <= "+b.bind(box.MaxLng)+")")
		}
	}

	if q.Text != "" {
		b.args = append(b.args, q.Text)
		preds = append(preds, b.d.TextFilter(textIndex(q.Mode), len(b.args)))
	}

	return joins, preds
}

// buildSearch produces the paged search statement. The cursor, if any,
// has already been decoded; limit is the fetch size including the
// extra-page probe row.
func buildSearch(d adapter.Dialect, q *Query, cursor *adapter.CursorValue, limit int) (string, []any) {
	b := &builder{d: d}
	joins, preds := filterClauses(b, q)

	col, _ := q.Order.cursorColumn()
	logicalAsc := !q.Reverse
	sqlAsc := logicalAsc != q.Page.backwards()

	if cursor != nil {
		op := ">"
		if logicalAsc == q.Page.backwards() {
			op = "<"
		}
		preds = append(preds, col+" "+op+" "+b.bind(cursor.Param()))
	}

	distinct := ""
	if q.Bounds != nil {
		distinct = "DISTINCT "
	}
	dir := "ASC"
	if !sqlAsc {
		dir = "DESC"
	}

	sql := "SELECT " + distinct + model.EntityColumns +
		" FROM entities e" + joins +
		" WHERE " + strings.Join(preds, " AND ") +
		" ORDER BY " + col + " " + dir +
		" LIMIT " + b.bind(int64(limit))
	return sql, b.args
}

// buildCount produces the counting statement for the same filter set.
// The id column is counted DISTINCT whenever the filters require a
// one-to-many join (currently: bounding box).
func buildCount(d adapter.Dialect, q *Query) (string, []any) {
	b := &builder{d: d}
	joins, preds := filterClauses(b, q)

	agg := "COUNT(*)"
	if q.Bounds != nil {
		agg = "COUNT(DISTINCT e.id)"
	}

	sql := "SELECT " + agg + " AS n FROM entities e" + joins +
		" WHERE " + strings.Join(preds, " AND ")
	return sql, b.args
}

// buildSample produces the sampling statement: fixed ordering on the
// external id with LIMIT/OFFSET, bypassing the cursor machinery.
func buildSample(d adapter.Dialect, q *Query, limit, offset int) (string, []any) {
	b := &builder{d: d}
	joins, preds := filterClauses(b, q)

	distinct := ""
	if q.Bounds != nil {
		distinct = "DISTINCT "
	}

	sql := "SELECT " + distinct + model.EntityColumns +
		" FROM entities e" + joins +
		" WHERE " + strings.Join(preds, " AND ") +
		" ORDER BY e.uuid ASC" +
		" LIMIT " + b.bind(int64(limit)) +
		" OFFSET " + b.bind(int64(offset))
	return sql, b.args
}
