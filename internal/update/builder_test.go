package update_test

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restbind/restbind/internal/domain"
	"github.com/restbind/restbind/internal/entity"
	"github.com/restbind/restbind/internal/pipeline"
	"github.com/restbind/restbind/internal/runtime"
	"github.com/restbind/restbind/internal/storage/memory"
	"github.com/restbind/restbind/internal/update"
)

type fixture struct {
	rt      *runtime.Runtime
	store   *memory.Store
	artists *entity.Entity
	albums  *entity.Entity
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.New()
	rt := runtime.New(store)

	artists := &entity.Entity{
		Name:       "artists",
		Attributes: []entity.Attribute{{Name: "name", Kind: entity.String}},
	}
	require.NoError(t, rt.Register(artists))

	albums := &entity.Entity{
		Name: "albums",
		Attributes: []entity.Attribute{
			{Name: "title", Kind: entity.String},
			{Name: "year", Kind: entity.Int},
		},
		Relationships: []entity.Relationship{
			{Name: "artist", Target: "artists", FKColumn: "artist_id"},
		},
		AllowClientIDs: true,
	}
	require.NoError(t, rt.Register(albums))

	store.Seed(artists, domain.Record{"id": int64(8), "name": "Miles Davis"})

	return &fixture{rt: rt, store: store, artists: artists, albums: albums}
}

func (f *fixture) artistRel() entity.Relationship {
	rel, _ := f.albums.Relationship("artist")
	return rel
}

func TestCreateWithExistingReference(t *testing.T) {
	f := newFixture(t)

	resp, err := f.rt.Create(f.albums).
		SyncAndSelect(context.Background(), []byte(`{"title":"Kind of Blue","year":1959,"artist":{"id":8}}`))
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.True(t, resp.Success)
	require.Equal(t, 1, resp.Total)
	require.Len(t, resp.Data, 1)

	rec := resp.Data[0]
	assert.NotNil(t, rec["id"])
	assert.Equal(t, "Kind of Blue", rec["title"])
	assert.Equal(t, int64(8), rec["artist_id"])

	assert.Equal(t, 1, f.store.Count("albums"))
}

func TestCreateWithMissingReference(t *testing.T) {
	f := newFixture(t)

	_, err := f.rt.Create(f.albums).
		SyncAndSelect(context.Background(), []byte(`{"title":"Ghost","artist":{"id":15}}`))
	require.Error(t, err)

	assert.Equal(t, domain.KindResolution, domain.KindOf(err))
	assert.Equal(t, http.StatusNotFound, domain.StatusOf(err))
	assert.Equal(t, 0, f.store.Count("albums"), "nothing may be persisted")
}

func TestBulkCreateWithClientIDs(t *testing.T) {
	f := newFixture(t)

	resp, err := f.rt.Create(f.albums).
		SyncAndSelect(context.Background(), []byte(`[
			{"id":101,"title":"A","artist_id":8},
			{"id":102,"title":"B","artist_id":8}
		]`))
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, 2, f.store.Count("albums"))
}

func TestCreateClientIDRejectedWhenNotAllowed(t *testing.T) {
	f := newFixture(t)

	_, err := f.rt.Create(f.artists).
		Sync(context.Background(), []byte(`{"id":50,"name":"X"}`))
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestExplicitIDAllowsSingleObjectOnly(t *testing.T) {
	f := newFixture(t)

	_, err := f.rt.CreateOrUpdate(f.albums).
		ID(int64(1)).
		Sync(context.Background(), []byte(`[{"title":"A"},{"title":"B"}]`))
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestUpdateMissingRecord(t *testing.T) {
	f := newFixture(t)

	_, err := f.rt.Update(f.albums).
		ID(int64(99)).
		Sync(context.Background(), []byte(`{"title":"New"}`))
	require.Error(t, err)
	assert.Equal(t, domain.KindResolution, domain.KindOf(err))
	assert.Equal(t, 0, f.store.Count("albums"))
}

func TestCreateOrUpdateMixes(t *testing.T) {
	f := newFixture(t)
	f.store.Seed(f.albums, domain.Record{"id": int64(1), "title": "Old", "artist_id": int64(8)})

	resp, err := f.rt.CreateOrUpdate(f.albums).
		SyncAndSelect(context.Background(), []byte(`[
			{"id":1,"title":"Renamed"},
			{"id":2,"title":"Fresh"}
		]`))
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, resp.Status, "an insert happened")
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, 2, f.store.Count("albums"))

	titles := map[any]any{}
	for _, rec := range resp.Data {
		titles[rec["id"]] = rec["title"]
	}
	assert.Equal(t, "Renamed", titles[int64(1)])
	assert.Equal(t, "Fresh", titles[int64(2)])
}

func TestFullSyncDeletesUnmatched(t *testing.T) {
	f := newFixture(t)
	f.store.Seed(f.albums, domain.Record{"id": int64(1), "title": "Keep", "artist_id": int64(8)})
	f.store.Seed(f.albums, domain.Record{"id": int64(2), "title": "Drop", "artist_id": int64(8)})

	resp, err := f.rt.FullSync(f.albums).
		SyncAndSelect(context.Background(), []byte(`[{"id":1,"title":"Kept"}]`))
	require.NoError(t, err)

	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, 1, f.store.Count("albums"))
}

func TestFullSyncScopedToParent(t *testing.T) {
	f := newFixture(t)
	f.store.Seed(f.artists, domain.Record{"id": int64(9), "name": "Trane"})
	f.store.Seed(f.albums, domain.Record{"id": int64(1), "title": "Mine", "artist_id": int64(8)})
	f.store.Seed(f.albums, domain.Record{"id": int64(2), "title": "Theirs", "artist_id": int64(9)})

	_, err := f.rt.FullSync(f.albums).
		Parent(f.artists, int64(8), f.artistRel()).
		Sync(context.Background(), []byte(`[]`))
	require.NoError(t, err)

	// Only the parent-scoped album may be deleted.
	assert.Equal(t, 1, f.store.Count("albums"))
}

func TestParentBindingForcesForeignKey(t *testing.T) {
	f := newFixture(t)

	resp, err := f.rt.Create(f.albums).
		Parent(f.artists, int64(8), f.artistRel()).
		SyncAndSelect(context.Background(), []byte(`{"title":"Nested"}`))
	require.NoError(t, err)

	require.Len(t, resp.Data, 1)
	assert.Equal(t, int64(8), resp.Data[0]["artist_id"])
}

func TestParentMissing(t *testing.T) {
	f := newFixture(t)

	_, err := f.rt.Create(f.albums).
		Parent(f.artists, int64(77), f.artistRel()).
		Sync(context.Background(), []byte(`{"title":"Orphan"}`))
	require.Error(t, err)
	assert.Equal(t, domain.KindResolution, domain.KindOf(err))
	assert.Equal(t, 0, f.store.Count("albums"))
}

func TestWriteConstraintRejectsField(t *testing.T) {
	f := newFixture(t)

	_, err := f.rt.Create(f.albums).
		WriteConstraint(entity.Only("title")).
		Sync(context.Background(), []byte(`{"title":"A","year":2000}`))
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestReadConstraintShapesResponse(t *testing.T) {
	f := newFixture(t)

	resp, err := f.rt.Create(f.albums).
		ReadConstraint(entity.Exclude("year")).
		SyncAndSelect(context.Background(), []byte(`{"title":"A","year":2000}`))
	require.NoError(t, err)

	require.Len(t, resp.Data, 1)
	assert.NotContains(t, resp.Data[0], "year")
	assert.Contains(t, resp.Data[0], "title")
}

func TestCustomStagesRunInRegistrationOrder(t *testing.T) {
	f := newFixture(t)

	var order []string
	_, err := f.rt.Create(f.albums).
		Stage(update.StageCommit, func(c *update.Context) { order = append(order, "first") }).
		Stage(update.StageCommit, func(c *update.Context) { order = append(order, "second") }).
		Stage(update.StageParseRequest, func(c *update.Context) { order = append(order, "parse") }).
		Sync(context.Background(), []byte(`{"title":"A"}`))
	require.NoError(t, err)

	assert.Equal(t, []string{"parse", "first", "second"}, order)
}

func TestContextAttributesFlowBetweenStages(t *testing.T) {
	f := newFixture(t)

	var got any
	_, err := f.rt.Create(f.albums).
		Stage(update.StageStart, func(c *update.Context) { c.SetAttribute("marker", 42) }).
		Stage(update.StageCommit, func(c *update.Context) { got, _ = c.Attribute("marker") }).
		Sync(context.Background(), []byte(`{"title":"A"}`))
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestTerminalStageSkipsCommit(t *testing.T) {
	f := newFixture(t)

	var sawUpdates int
	resp, err := f.rt.Create(f.albums).
		TerminalStage(update.StageMapChanges, func(c *update.Context) {
			sawUpdates = len(c.Updates)
		}).
		Sync(context.Background(), []byte(`{"title":"A"}`))
	require.NoError(t, err)

	assert.Equal(t, 1, sawUpdates)
	assert.True(t, resp.Success)
	// The commit stage never ran.
	assert.Equal(t, 0, f.store.Count("albums"))
}

func TestTerminalStageRunsAfterEarlierSameAnchorStage(t *testing.T) {
	f := newFixture(t)

	var order []string
	_, err := f.rt.Create(f.albums).
		Stage(update.StageParseRequest, func(c *update.Context) { order = append(order, "early") }).
		TerminalStage(update.StageParseRequest, func(c *update.Context) { order = append(order, "terminal") }).
		Stage(update.StageCommit, func(c *update.Context) { order = append(order, "late") }).
		Sync(context.Background(), []byte(`{"title":"A"}`))
	require.NoError(t, err)

	assert.Equal(t, []string{"early", "terminal"}, order)
}

func TestRoutingStageCanStopDynamically(t *testing.T) {
	f := newFixture(t)

	_, err := f.rt.Create(f.albums).
		RoutingStage(update.StageMapChanges, pipeline.Func[*update.Context](
			func(c *update.Context) (pipeline.Outcome, error) {
				return pipeline.Stop, nil
			})).
		Sync(context.Background(), []byte(`{"title":"A"}`))
	require.NoError(t, err)

	assert.Equal(t, 0, f.store.Count("albums"))
}

func TestUnknownAnchorFailsBeforeExecution(t *testing.T) {
	f := newFixture(t)

	_, err := f.rt.Create(f.albums).
		Stage(update.Stage(99), func(c *update.Context) {}).
		Sync(context.Background(), []byte(`{"title":"A"}`))
	require.Error(t, err)
	assert.Equal(t, domain.KindConfiguration, domain.KindOf(err))
	assert.Equal(t, 0, f.store.Count("albums"))
}

func TestMapperKeyLocatesByProperty(t *testing.T) {
	f := newFixture(t)
	f.store.Seed(f.albums, domain.Record{"id": int64(1), "title": "Blue", "year": int64(1970), "artist_id": int64(8)})

	resp, err := f.rt.CreateOrUpdate(f.albums).
		MapperKey("title").
		SyncAndSelect(context.Background(), []byte(`{"title":"Blue","year":1971}`))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.Status, "no insert happened")
	assert.Equal(t, 1, f.store.Count("albums"))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, int64(1), resp.Data[0]["id"])
	assert.Equal(t, int64(1971), resp.Data[0]["year"])
}

func TestBadSortParamFailsBeforeAnyWrite(t *testing.T) {
	f := newFixture(t)

	params := url.Values{}
	params.Set("sort", "label")

	_, err := f.rt.Create(f.albums).
		Request(params).
		SyncAndSelect(context.Background(), []byte(`{"title":"A"}`))
	require.Error(t, err)

	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
	assert.Equal(t, 0, f.store.Count("albums"), "nothing may be persisted")
}

func TestRequestSortOrdersResponse(t *testing.T) {
	f := newFixture(t)

	params := url.Values{}
	params.Set("sort", "title")

	resp, err := f.rt.Create(f.albums).
		Request(params).
		SyncAndSelect(context.Background(), []byte(`[{"title":"B"},{"title":"A"}]`))
	require.NoError(t, err)

	require.Len(t, resp.Data, 2)
	assert.Equal(t, "A", resp.Data[0]["title"])
	assert.Equal(t, "B", resp.Data[1]["title"])
}

func TestCallerBuiltUpdateWithParent(t *testing.T) {
	f := newFixture(t)

	// An update literal carries nil maps where nothing was set.
	u := &entity.Update{Values: map[string]any{"title": "Literal"}}
	resp, err := f.rt.Create(f.albums).
		Parent(f.artists, int64(8), f.artistRel()).
		SyncAndSelectOne(context.Background(), u)
	require.NoError(t, err)

	require.Len(t, resp.Data, 1)
	assert.Equal(t, int64(8), resp.Data[0]["artist_id"])
}

func TestZeroValueUpdateWithIDMap(t *testing.T) {
	f := newFixture(t)

	resp, err := f.rt.CreateOrUpdate(f.albums).
		IDMap(map[string]any{"id": int64(31), "year": int64(1900)}).
		SyncAndSelectOne(context.Background(), &entity.Update{})
	require.NoError(t, err)

	require.Len(t, resp.Data, 1)
	assert.Equal(t, int64(31), resp.Data[0]["id"])
	assert.Equal(t, int64(1900), resp.Data[0]["year"])
	assert.Equal(t, 1, f.store.Count("albums"))
}

func TestBuilderIsSingleUse(t *testing.T) {
	f := newFixture(t)

	b := f.rt.Create(f.albums)
	_, err := b.Sync(context.Background(), []byte(`{"title":"A"}`))
	require.NoError(t, err)

	_, err = b.Sync(context.Background(), []byte(`{"title":"B"}`))
	require.Error(t, err)
	assert.Equal(t, domain.KindConfiguration, domain.KindOf(err))
}

func TestSyncReturnsAcknowledgement(t *testing.T) {
	f := newFixture(t)

	resp, err := f.rt.Create(f.albums).
		Sync(context.Background(), []byte(`{"title":"A"}`))
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, http.StatusCreated, resp.Status)
}

func TestSyncOneAndUpdatesOverloads(t *testing.T) {
	f := newFixture(t)

	u := entity.NewUpdate()
	u.Values["title"] = "One"
	resp, err := f.rt.Create(f.albums).SyncAndSelectOne(context.Background(), u)
	require.NoError(t, err)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "One", resp.Data[0]["title"])

	u2 := entity.NewUpdate()
	u2.Values["title"] = "Two"
	u3 := entity.NewUpdate()
	u3.Values["title"] = "Three"
	ack, err := f.rt.Create(f.albums).SyncUpdates(context.Background(), []*entity.Update{u2, u3})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, ack.Status)
	assert.Equal(t, 3, f.store.Count("albums"))
}

func TestChainAssemblyIsIdempotent(t *testing.T) {
	f := newFixture(t)

	b := f.rt.Create(f.albums).
		Stage(update.StageCommit, func(c *update.Context) {})

	first, err := b.Chain()
	require.NoError(t, err)
	second, err := b.Chain()
	require.NoError(t, err)
	assert.Len(t, second, len(first))
}

func TestStandardChainShape(t *testing.T) {
	f := newFixture(t)

	chain, err := f.rt.Create(f.albums).Chain()
	require.NoError(t, err)
	assert.Len(t, chain, len(update.StandardChain()))
}
