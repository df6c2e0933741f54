package search_test

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foliostore/folio/internal/adapter/sqlitedb"
	"github.com/foliostore/folio/internal/entity"
	"github.com/foliostore/folio/internal/fault"
	"github.com/foliostore/folio/internal/migrate"
	"github.com/foliostore/folio/internal/model"
	"github.com/foliostore/folio/internal/search"
)

var testCatalog = search.TypeCatalogFunc(func(context.Context) (map[string]struct{}, error) {
	return map[string]struct{}{"article": {}, "place": {}}, nil
})

func newTestEngine(t *testing.T) (*search.Engine, *entity.Store) {
	t.Helper()
	db, err := sqlitedb.Open(filepath.Join(t.TempDir(), "search_test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = migrate.New(db, nil).Run(context.Background(), migrate.Schema("sqlite"))
	require.NoError(t, err)

	store := entity.NewStore(db, nil, entity.WithCatalog(testCatalog))
	return search.New(db, testCatalog, nil), store
}

func seed(t *testing.T, store *entity.Store, name, authKey string, fields string) model.Entity {
	t.Helper()
	if fields == "" {
		fields = "{}"
	}
	ent, err := store.Create(context.Background(), entity.Draft{
		Name:            name,
		Type:            "article",
		AuthKey:         authKey,
		ResolvedAuthKey: authKey,
		Fields:          json.RawMessage(fields),
		CreatedBy:       "tester",
	})
	require.NoError(t, err)
	return ent
}

func names(conn search.Connection) []string {
	out := make([]string, len(conn.Entities))
	for i, hit := range conn.Entities {
		out[i] = hit.Entity.Name
	}
	return out
}

func intp(n int) *int { return &n }

func TestSearch_AdminAndPublishedViews(t *testing.T) {
	eng, store := newTestEngine(t)
	ctx := context.Background()

	live := seed(t, store, "live", "org/a", "")
	_, err := store.Publish(ctx, live.UUID, 1, "editor")
	require.NoError(t, err)

	seed(t, store, "draft-only", "org/a", "")

	edited := seed(t, store, "edited", "org/a", "")
	_, err = store.Publish(ctx, edited.UUID, 1, "editor")
	require.NoError(t, err)
	_, err = store.Update(ctx, edited.UUID, entity.UpdateRequest{
		Fields: json.RawMessage(`{"title": "newer"}`), UpdatedBy: "editor",
	})
	require.NoError(t, err)

	admin, err := eng.Search(ctx, search.Query{Mode: search.ModeAdmin, AuthKeys: []string{"org/a"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"live", "draft-only", "edited"}, names(admin))

	published, err := eng.Search(ctx, search.Query{Mode: search.ModePublished, AuthKeys: []string{"org/a"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"live", "edited"}, names(published))
}

func TestSearch_KeysetPagingIsSymmetric(t *testing.T) {
	eng, store := newTestEngine(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		seed(t, store, fmt.Sprintf("item-%d", i), "org/a", "")
	}
	base := search.Query{Mode: search.ModeAdmin, AuthKeys: []string{"org/a"}}

	// Forwards: first/after walks creation order.
	q := base
	q.Page = search.Page{First: intp(2)}
	page, err := eng.Search(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []string{"item-1", "item-2"}, names(page))
	assert.True(t, page.HasNextPage)

	q.Page = search.Page{First: intp(2), After: &page.Entities[1].Cursor}
	page, err = eng.Search(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []string{"item-3", "item-4"}, names(page))
	assert.True(t, page.HasNextPage)

	q.Page = search.Page{First: intp(2), After: &page.Entities[1].Cursor}
	page, err = eng.Search(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []string{"item-5"}, names(page))
	assert.False(t, page.HasNextPage)

	// Backwards: last/before walks the same order from the far end, and
	// pages still come back in logical order.
	q = base
	q.Page = search.Page{Last: intp(2)}
	page, err = eng.Search(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []string{"item-4", "item-5"}, names(page))
	assert.True(t, page.HasPreviousPage)

	q.Page = search.Page{Last: intp(2), Before: &page.Entities[0].Cursor}
	page, err = eng.Search(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []string{"item-2", "item-3"}, names(page))
	assert.True(t, page.HasPreviousPage)

	q.Page = search.Page{Last: intp(2), Before: &page.Entities[0].Cursor}
	page, err = eng.Search(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []string{"item-1"}, names(page))
	assert.False(t, page.HasPreviousPage)
}

func TestSearch_NameOrderingAndReverse(t *testing.T) {
	eng, store := newTestEngine(t)
	ctx := context.Background()

	seed(t, store, "banana", "org/a", "")
	seed(t, store, "apple", "org/a", "")
	seed(t, store, "cherry", "org/a", "")

	q := search.Query{Mode: search.ModeAdmin, AuthKeys: []string{"org/a"}, Order: search.OrderName}
	page, err := eng.Search(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []string{"apple", "banana", "cherry"}, names(page))

	q.Reverse = true
	page, err = eng.Search(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []string{"cherry", "banana", "apple"}, names(page))
}

func TestSearch_UpdatedOrderingFollowsWrites(t *testing.T) {
	eng, store := newTestEngine(t)
	ctx := context.Background()

	first := seed(t, store, "first", "org/a", "")
	seed(t, store, "second", "org/a", "")

	// Touching the older entity moves it to the end of update order.
	_, err := store.Update(ctx, first.UUID, entity.UpdateRequest{
		Fields: json.RawMessage(`{}`), UpdatedBy: "editor",
	})
	require.NoError(t, err)

	page, err := eng.Search(ctx, search.Query{
		Mode: search.ModeAdmin, AuthKeys: []string{"org/a"}, Order: search.OrderUpdated,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"second", "first"}, names(page))
}

func TestSearch_TextFilterPerView(t *testing.T) {
	eng, store := newTestEngine(t)
	ctx := context.Background()

	ent := seed(t, store, "beacon", "org/a", `{"title": "the lighthouse keeper"}`)
	seed(t, store, "other", "org/a", `{"title": "inland farm"}`)

	q := search.Query{Mode: search.ModeAdmin, AuthKeys: []string{"org/a"}, Text: "lighthouse"}
	page, err := eng.Search(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []string{"beacon"}, names(page))

	// Unpublished content is invisible to the published text index.
	q.Mode = search.ModePublished
	page, err = eng.Search(ctx, q)
	require.NoError(t, err)
	assert.Empty(t, names(page))

	_, err = store.Publish(ctx, ent.UUID, 1, "editor")
	require.NoError(t, err)
	page, err = eng.Search(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []string{"beacon"}, names(page))
}

func TestSearch_BoundsWrapAroundAntimeridian(t *testing.T) {
	eng, store := newTestEngine(t)
	ctx := context.Background()

	seed(t, store, "fiji-side", "org/a", `{"loc": {"lat": 10, "lng": 179.5}}`)
	seed(t, store, "samoa-side", "org/a", `{"loc": {"lat": -5, "lng": -179.5}}`)
	seed(t, store, "greenwich", "org/a", `{"loc": {"lat": 0, "lng": 0}}`)

	page, err := eng.Search(ctx, search.Query{
		Mode:     search.ModeAdmin,
		AuthKeys: []string{"org/a"},
		Bounds:   &search.Box{MinLat: -20, MaxLat: 20, MinLng: 170, MaxLng: -170},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"fiji-side", "samoa-side"}, names(page))
}

func TestSearch_LinkFilters(t *testing.T) {
	eng, store := newTestEngine(t)
	ctx := context.Background()

	target := seed(t, store, "target", "org/a", "")
	referrer := seed(t, store, "referrer", "org/a",
		fmt.Sprintf(`{"link": {"$ref": %q}}`, target.UUID))
	seed(t, store, "bystander", "org/a", "")

	page, err := eng.Search(ctx, search.Query{
		Mode: search.ModeAdmin, AuthKeys: []string{"org/a"}, LinksTo: &target.UUID,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"referrer"}, names(page))

	page, err = eng.Search(ctx, search.Query{
		Mode: search.ModeAdmin, AuthKeys: []string{"org/a"}, LinksFrom: &referrer.UUID,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"target"}, names(page))
}

func TestSearch_StatusFilterAndAuthIsolation(t *testing.T) {
	eng, store := newTestEngine(t)
	ctx := context.Background()

	live := seed(t, store, "live", "org/a", "")
	_, err := store.Publish(ctx, live.UUID, 1, "editor")
	require.NoError(t, err)
	seed(t, store, "draft", "org/a", "")
	seed(t, store, "foreign", "org/b", "")

	page, err := eng.Search(ctx, search.Query{
		Mode:     search.ModeAdmin,
		AuthKeys: []string{"org/a"},
		Statuses: []model.Status{model.StatusDraft},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"draft"}, names(page))

	page, err = eng.Search(ctx, search.Query{
		Mode: search.ModeAdmin, AuthKeys: []string{"org/b"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"foreign"}, names(page))
}

func TestSearch_Rejections(t *testing.T) {
	eng, store := newTestEngine(t)
	ctx := context.Background()
	seed(t, store, "anything", "org/a", "")

	cases := []struct {
		name  string
		query search.Query
	}{
		{"no auth keys", search.Query{Mode: search.ModeAdmin}},
		{"unknown type", search.Query{
			Mode: search.ModeAdmin, AuthKeys: []string{"org/a"}, Types: []string{"giraffe"},
		}},
		{"status filter in published mode", search.Query{
			Mode: search.ModePublished, AuthKeys: []string{"org/a"},
			Statuses: []model.Status{model.StatusDraft},
		}},
		{"update order in published mode", search.Query{
			Mode: search.ModePublished, AuthKeys: []string{"org/a"}, Order: search.OrderUpdated,
		}},
		{"first and last together", search.Query{
			Mode: search.ModeAdmin, AuthKeys: []string{"org/a"},
			Page: search.Page{First: intp(1), Last: intp(1)},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := eng.Search(ctx, tc.query)
			assert.True(t, fault.IsBadRequest(err))
		})
	}

	t.Run("malformed cursor", func(t *testing.T) {
		bad := "not-a-cursor!!"
		_, err := eng.Search(ctx, search.Query{
			Mode: search.ModeAdmin, AuthKeys: []string{"org/a"},
			Page: search.Page{After: &bad},
		})
		assert.True(t, fault.IsBadRequest(err))
	})

	t.Run("cursor type mismatch", func(t *testing.T) {
		byName := search.Query{Mode: search.ModeAdmin, AuthKeys: []string{"org/a"}, Order: search.OrderName}
		page, err := eng.Search(ctx, byName)
		require.NoError(t, err)
		require.NotEmpty(t, page.Entities)

		// A name cursor cannot seed an integer ordering.
		_, err = eng.Search(ctx, search.Query{
			Mode: search.ModeAdmin, AuthKeys: []string{"org/a"},
			Page: search.Page{After: &page.Entities[0].Cursor},
		})
		assert.True(t, fault.IsBadRequest(err))
	})
}

func TestCountAndSample(t *testing.T) {
	eng, store := newTestEngine(t)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		seed(t, store, fmt.Sprintf("s-%d", i), "org/a", "")
	}
	seed(t, store, "elsewhere", "org/b", "")

	q := search.Query{Mode: search.ModeAdmin, AuthKeys: []string{"org/a"}}
	n, err := eng.Count(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	all, err := eng.Sample(ctx, q, 10, 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	// Sample order is by external id, so the same offsets always slice
	// the same way.
	head, err := eng.Sample(ctx, q, 2, 0)
	require.NoError(t, err)
	tail, err := eng.Sample(ctx, q, 10, 2)
	require.NoError(t, err)
	require.Len(t, head, 2)
	require.Len(t, tail, 2)
	assert.Equal(t, all[0].UUID, head[0].UUID)
	assert.Equal(t, all[2].UUID, tail[0].UUID)

	_, err = eng.Sample(ctx, q, 0, 0)
	assert.True(t, fault.IsBadRequest(err))
	_, err = eng.Sample(ctx, q, 1, -1)
	assert.True(t, fault.IsBadRequest(err))
}
