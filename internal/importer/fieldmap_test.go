package importer_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reelmatch/reelmatch/internal/importer"
	"github.com/reelmatch/reelmatch/internal/models"
)

func TestParseDirective(t *testing.T) {
	cases := []struct {
		raw  string
		want importer.Directive
	}{
		{"", importer.Directive{Kind: ""}},
		{"external_object_id", importer.Directive{Kind: "external_object_id"}},
		{"attribute.title", importer.Directive{Kind: "attribute", ValueType: models.ValueTitle}},
		{"attribute.TITLE", importer.Directive{Kind: "attribute", ValueType: models.ValueTitle}},
		{"attribute_list.genres", importer.Directive{Kind: "attribute_list", ValueType: models.ValueGenres}},
		{"link.imdb", importer.Directive{Kind: "link", Slug: "imdb"}},
	}
	for _, c := range cases {
		got, err := importer.ParseDirective(c.raw)
		require.NoError(t, err, c.raw)
		require.Equal(t, c.want, got, c.raw)
	}
}

func TestParseDirectiveRejectsMalformed(t *testing.T) {
	for _, raw := range []string{
		"attribute",          // missing value type
		"attribute.",         // empty value type
		"attribute.director", // unknown value type
		"attribute_list",
		"link",
		"link.",
		"external_object_id.x", // takes no argument
		"lookup.imdb",          // unknown directive
	} {
		_, err := importer.ParseDirective(raw)
		require.Error(t, err, raw)
	}
}

func TestResolveFieldsMapsColumns(t *testing.T) {
	header := []string{"imdb_id", "name", "genres", "ignored", "obj"}
	fields := map[string]string{
		"imdb_id": "link.imdb",
		"name":    "attribute.title",
		"genres":  "attribute_list.genres",
		"ignored": "",
		"obj":     "external_object_id",
	}

	idx, err := importer.ResolveFields(fields, header)
	require.NoError(t, err)
	require.Equal(t, []int{4}, idx.ObjectID)
	require.Equal(t, []int{0}, idx.Links["imdb"])
	require.Equal(t, []int{1}, idx.Attributes[models.ValueTitle])
	require.Equal(t, []int{2}, idx.AttributeLists[models.ValueGenres])
	require.True(t, idx.HasAttributes())
	require.ElementsMatch(t, []string{"imdb"}, idx.Slugs())
}

func TestResolveFieldsMissingColumn(t *testing.T) {
	_, err := importer.ResolveFields(map[string]string{"nope": "attribute.title"}, []string{"name"})
	require.ErrorContains(t, err, "not present in header")
}

func TestResolveFieldsDuplicateHeaderColumns(t *testing.T) {
	idx, err := importer.ResolveFields(
		map[string]string{"genre": "attribute.genres"},
		[]string{"genre", "genre"},
	)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1}, idx.Attributes[models.ValueGenres])
}

func TestExtract(t *testing.T) {
	idx, err := importer.ResolveFields(map[string]string{
		"imdb_id": "link.imdb",
		"name":    "attribute.title",
		"genres":  "attribute_list.genres",
		"obj":     "external_object_id",
	}, []string{"imdb_id", "name", "genres", "obj"})
	require.NoError(t, err)

	data, err := idx.Extract([]string{" tt0078748 ", "Alien", "horror, sci-fi, ,", "42"})
	require.NoError(t, err)
	require.Equal(t, []int64{42}, data.ObjectIDs)
	require.Equal(t, []string{"tt0078748"}, data.Links["imdb"])
	require.Equal(t, []string{"Alien"}, data.Attributes[models.ValueTitle])
	require.Equal(t, []string{"horror", "sci-fi"}, data.Attributes[models.ValueGenres])
	require.False(t, data.Empty())
}

func TestExtractEmptyRow(t *testing.T) {
	idx, err := importer.ResolveFields(map[string]string{
		"imdb_id": "link.imdb",
		"name":    "attribute.title",
	}, []string{"imdb_id", "name"})
	require.NoError(t, err)

	data, err := idx.Extract([]string{"", "Orphaned Title"})
	require.NoError(t, err)
	require.True(t, data.Empty(), "attributes without identity give an empty row")
}

func TestExtractBadObjectID(t *testing.T) {
	idx, err := importer.ResolveFields(
		map[string]string{"obj": "external_object_id"},
		[]string{"obj"},
	)
	require.NoError(t, err)

	_, err = idx.Extract([]string{"tt123"})
	require.ErrorContains(t, err, "bad external_object_id")
}
