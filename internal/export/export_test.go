package export_test

import (
	"context"
	"io"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reelmatch/reelmatch/internal/export"
	"github.com/reelmatch/reelmatch/internal/models"
	"github.com/reelmatch/reelmatch/internal/scoring"
	"github.com/reelmatch/reelmatch/internal/testsupport"
)

type fakeCatalog struct {
	objects map[int64]*models.ExternalObject
	links   map[int64][]models.ObjectLink
	data    map[int64]scoring.EntityData
}

func (c *fakeCatalog) ListIDsByType(_ context.Context, typ models.ObjectType, afterID int64, limit int) ([]int64, error) {
	var ids []int64
	for id, o := range c.objects {
		if o.Type == typ && id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (c *fakeCatalog) GetByID(_ context.Context, id int64) (*models.ExternalObject, error) {
	return c.objects[id], nil
}

func (c *fakeCatalog) Links(_ context.Context, objectID int64) ([]models.ObjectLink, error) {
	return c.links[objectID], nil
}

func (c *fakeCatalog) EntityData(_ context.Context, objectID int64) (scoring.EntityData, error) {
	return c.data[objectID], nil
}

type fakePlatforms struct {
	byID map[int64]*models.Platform
}

func (p *fakePlatforms) GetByID(_ context.Context, id int64) (*models.Platform, error) {
	return p.byID[id], nil
}

func str(s string) *string { return &s }

func fixture() (*fakeCatalog, *fakePlatforms) {
	imdb := &models.Platform{ID: 1, Slug: "imdb", Type: models.PlatformInfo, BaseScore: 200}
	netflix := &models.Platform{ID: 2, Slug: "netflix-fr", Type: models.PlatformSVOD, BaseScore: 300, Country: str("FR")}
	hidden := &models.Platform{ID: 3, Slug: "legacy", Type: models.PlatformAVOD, BaseScore: 50, Country: str("US"), IgnoreInExports: true}

	catalog := &fakeCatalog{
		objects: map[int64]*models.ExternalObject{
			10: {ID: 10, Type: models.ObjectMovie},
		},
		links: map[int64][]models.ObjectLink{
			10: {
				{ID: 100, ObjectID: 10, PlatformID: 1, ExternalID: "tt1"},
				{ID: 101, ObjectID: 10, PlatformID: 2, ExternalID: "n1"},
				{ID: 102, ObjectID: 10, PlatformID: 3, ExternalID: "old1"},
			},
		},
		data: map[int64]scoring.EntityData{
			10: {
				Values: []models.Value{
					{ID: 7, ObjectID: 10, Type: models.ValueTitle, Text: "Alien"},
					{ID: 8, ObjectID: 10, Type: models.ValueGenres, Text: "horror"},
				},
				Sources: map[int64][]models.ValueSource{
					7: {{ValueID: 7, PlatformID: 1, ScoreFactor: 100}},
					8: {{ValueID: 8, PlatformID: 1, ScoreFactor: 100}},
				},
				Platforms: map[int64]models.Platform{1: *imdb},
			},
		},
	}
	platforms := &fakePlatforms{byID: map[int64]*models.Platform{1: imdb, 2: netflix, 3: hidden}}
	return catalog, platforms
}

func TestStreamDefaultRow(t *testing.T) {
	catalog, platforms := fixture()
	exp := export.New(catalog, platforms, testsupport.Logger(t))

	var out strings.Builder
	err := exp.Stream(context.Background(), export.Request{
		Type:      models.ObjectMovie,
		Platforms: []string{"imdb", "mubi"},
	}, &out)
	require.NoError(t, err)
	require.Equal(t, "10\tmovie\tAlien\t\thorror\ttt1\t\n", out.String(),
		"unknown requested platform renders an empty column")
}

func TestIterateRowShape(t *testing.T) {
	catalog, platforms := fixture()
	exp := export.New(catalog, platforms, testsupport.Logger(t))

	it := exp.Iterate(context.Background(), export.Request{
		Type:      models.ObjectMovie,
		Platforms: []string{"netflix-fr"},
	})
	row, err := it.Next()
	require.NoError(t, err)
	require.Equal(t, int64(10), row.ExternalObject.ID)
	require.Len(t, row.Links, 2, "ignored platform links are dropped")
	require.Equal(t, []string{"FR"}, row.Zones, "hidden platform contributes no zone")
	require.Equal(t, map[string]string{"netflix-fr": "n1"}, row.IDs)
	require.Equal(t, []string{"Alien"}, row.Attributes["title"])
	require.Nil(t, row.Platform)

	_, err = it.Next()
	require.Equal(t, io.EOF, err)
}

func TestStreamPerLink(t *testing.T) {
	catalog, platforms := fixture()
	exp := export.New(catalog, platforms, testsupport.Logger(t))

	var out strings.Builder
	err := exp.Stream(context.Background(), export.Request{
		Type:     models.ObjectMovie,
		PerLink:  true,
		Template: "{{.ExternalObject.ID}}:{{.Platform.Slug}}:{{(index .Links 0).ExternalID}}\n",
	}, &out)
	require.NoError(t, err)
	require.Equal(t, "10:imdb:tt1\n10:netflix-fr:n1\n", out.String())
}

func TestIterateBatchesLazily(t *testing.T) {
	catalog, platforms := fixture()
	for id := int64(11); id <= 15; id++ {
		catalog.objects[id] = &models.ExternalObject{ID: id, Type: models.ObjectMovie}
	}
	exp := export.New(catalog, platforms, testsupport.Logger(t))

	it := exp.Iterate(context.Background(), export.Request{Type: models.ObjectMovie, BatchSize: 2})
	var ids []int64
	for {
		row, err := it.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		ids = append(ids, row.ExternalObject.ID)
	}
	require.Equal(t, []int64{10, 11, 12, 13, 14, 15}, ids)
}

func TestStreamBadTemplate(t *testing.T) {
	catalog, platforms := fixture()
	exp := export.New(catalog, platforms, testsupport.Logger(t))

	err := exp.Stream(context.Background(), export.Request{
		Type:     models.ObjectMovie,
		Template: "{{.Broken",
	}, io.Discard)
	require.ErrorContains(t, err, "parse row template")
}
