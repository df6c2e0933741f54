package entity

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foliostore/folio/internal/adapter/sqlitedb"
	"github.com/foliostore/folio/internal/fault"
	"github.com/foliostore/folio/internal/migrate"
	"github.com/foliostore/folio/internal/model"
	"github.com/foliostore/folio/internal/search"
	"github.com/foliostore/folio/internal/testutil"
)

func newTestStore(t *testing.T, opts ...Option) (*Store, *testutil.ManualClock) {
	t.Helper()
	db, err := sqlitedb.Open(filepath.Join(t.TempDir(), "entity_test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = migrate.New(db, nil).Run(context.Background(), migrate.Schema("sqlite"))
	require.NoError(t, err)

	catalog := search.TypeCatalogFunc(func(context.Context) (map[string]struct{}, error) {
		return map[string]struct{}{"article": {}, "place": {}}, nil
	})
	clock := testutil.NewManualClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	base := []Option{WithCatalog(catalog), WithNow(clock.Now)}
	return NewStore(db, nil, append(base, opts...)...), clock
}

func articleDraft(name string) Draft {
	return Draft{
		Name:            name,
		Type:            "article",
		AuthKey:         "newsroom",
		ResolvedAuthKey: "org/newsroom",
		Fields:          json.RawMessage(`{"title": "hello"}`),
		CreatedBy:       "tester",
	}
}

func TestCreate_StartsAsDraftVersionOne(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	ent, err := s.Create(ctx, articleDraft("welcome"))
	require.NoError(t, err)
	assert.Equal(t, "welcome", ent.Name)
	assert.Equal(t, model.StatusDraft, ent.Status)
	assert.False(t, ent.EverPublished)
	assert.Nil(t, ent.PublishedVersionID)
	assert.NotEqual(t, uuid.Nil, ent.UUID)

	v, err := s.GetVersion(ctx, ent.UUID, 1)
	require.NoError(t, err)
	assert.JSONEq(t, `{"title": "hello"}`, string(v.Fields))
	assert.Equal(t, "tester", v.CreatedBy)
	assert.Equal(t, v.ID, ent.LatestVersionID)
}

func TestCreate_ValidationErrors(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	d := articleDraft("x")
	d.Name = ""
	_, err := s.Create(ctx, d)
	assert.True(t, fault.IsBadRequest(err))

	d = articleDraft("x")
	d.Type = "giraffe"
	_, err = s.Create(ctx, d)
	assert.True(t, fault.IsBadRequest(err))
}

func TestCreate_DuplicateUUIDConflicts(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	ref := uuid.New()
	d := articleDraft("first")
	d.UUID = &ref
	_, err := s.Create(ctx, d)
	require.NoError(t, err)

	d = articleDraft("second")
	d.UUID = &ref
	_, err = s.Create(ctx, d)
	assert.True(t, fault.IsConflict(err))
}

func TestCreate_NameCollisionRetriesWithMutatedName(t *testing.T) {
	mutator := func(base string, attempt int) string {
		return fmt.Sprintf("%s-%d", base, attempt)
	}
	s, _ := newTestStore(t, WithNameMutator(mutator))
	ctx := context.Background()

	_, err := s.Create(ctx, articleDraft("report"))
	require.NoError(t, err)

	ent, err := s.Create(ctx, articleDraft("report"))
	require.NoError(t, err)
	assert.Equal(t, "report-1", ent.Name)
}

func TestCreate_NameRetryExhausted(t *testing.T) {
	// A mutator that never changes the candidate can never converge.
	s, _ := newTestStore(t, WithNameMutator(func(base string, attempt int) string {
		return base
	}))
	ctx := context.Background()

	_, err := s.Create(ctx, articleDraft("report"))
	require.NoError(t, err)

	_, err = s.Create(ctx, articleDraft("report"))
	require.Error(t, err)
	assert.True(t, fault.IsConflict(err))
}

func TestUpdate_AppendsVersions(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	ent, err := s.Create(ctx, articleDraft("notes"))
	require.NoError(t, err)
	firstSeq := ent.UpdateSeq

	ent, err = s.Update(ctx, ent.UUID, UpdateRequest{
		Fields:    json.RawMessage(`{"title": "second"}`),
		UpdatedBy: "editor",
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusDraft, ent.Status)
	assert.Greater(t, ent.UpdateSeq, firstSeq)

	ent, err = s.Update(ctx, ent.UUID, UpdateRequest{
		Fields:    json.RawMessage(`{"title": "third"}`),
		UpdatedBy: "editor",
	})
	require.NoError(t, err)

	versions, err := s.History(ctx, ent.UUID)
	require.NoError(t, err)
	require.Len(t, versions, 3)
	for i, v := range versions {
		assert.Equal(t, int64(i+1), v.Version)
	}
	assert.Equal(t, versions[2].ID, ent.LatestVersionID)
	assert.JSONEq(t, `{"title": "third"}`, string(versions[2].Fields))
}

func TestUpdate_RenameUnderRetry(t *testing.T) {
	s, _ := newTestStore(t, WithNameMutator(func(base string, attempt int) string {
		return fmt.Sprintf("%s-%d", base, attempt)
	}))
	ctx := context.Background()

	_, err := s.Create(ctx, articleDraft("taken"))
	require.NoError(t, err)
	ent, err := s.Create(ctx, articleDraft("free"))
	require.NoError(t, err)

	name := "taken"
	ent, err = s.Update(ctx, ent.UUID, UpdateRequest{
		Fields:    json.RawMessage(`{}`),
		Rename:    &name,
		UpdatedBy: "editor",
	})
	require.NoError(t, err)
	assert.Equal(t, "taken-1", ent.Name)
}

func TestUpsert_CreatesThenUpdates(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	ref := uuid.New()
	d := articleDraft("ingest")
	d.UUID = &ref

	ent, created, err := s.Upsert(ctx, d)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, ref, ent.UUID)

	d.Fields = json.RawMessage(`{"title": "revised"}`)
	ent, created, err = s.Upsert(ctx, d)
	require.NoError(t, err)
	assert.False(t, created)

	versions, err := s.History(ctx, ref)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.JSONEq(t, `{"title": "revised"}`, string(versions[1].Fields))
}

func TestGetMany_PartialFailure(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	ent, err := s.Create(ctx, articleDraft("present"))
	require.NoError(t, err)
	missing := uuid.New()

	results := s.GetMany(ctx, []uuid.UUID{ent.UUID, missing})
	require.Len(t, results, 2)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, ent.UUID, results[0].Entity.UUID)
	assert.True(t, fault.IsNotFound(results[1].Err))
}

func TestGetVersion_MissingVersionNotFound(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	ent, err := s.Create(ctx, articleDraft("single"))
	require.NoError(t, err)

	_, err = s.GetVersion(ctx, ent.UUID, 7)
	assert.True(t, fault.IsNotFound(err))
}
