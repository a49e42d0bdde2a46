package scoring_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reelmatch/reelmatch/internal/models"
	"github.com/reelmatch/reelmatch/internal/scoring"
)

func entityData() scoring.EntityData {
	return scoring.EntityData{
		Platforms: map[int64]models.Platform{
			1: {ID: 1, Slug: "imdb", Type: models.PlatformInfo, BaseScore: 200},
			2: {ID: 2, Slug: "netflix", Type: models.PlatformSVOD, BaseScore: 300},
		},
		Sources: map[int64][]models.ValueSource{},
	}
}

func TestScoreSumsProvenance(t *testing.T) {
	data := entityData()
	sources := []models.ValueSource{
		{ValueID: 10, PlatformID: 1, ScoreFactor: 100},
		{ValueID: 10, PlatformID: 2, ScoreFactor: 100},
	}
	require.Equal(t, 50000, scoring.Score(sources, data.Platforms))
}

func TestRankValuesByScore(t *testing.T) {
	// TITLE "A" from P1 with factor 200 → 40000; "B" from P2 with 300 → 90000.
	data := entityData()
	data.Values = []models.Value{
		{ID: 10, ObjectID: 1, Type: models.ValueTitle, Text: "A"},
		{ID: 11, ObjectID: 1, Type: models.ValueTitle, Text: "B"},
	}
	data.Sources[10] = []models.ValueSource{{ValueID: 10, PlatformID: 1, ScoreFactor: 200}}
	data.Sources[11] = []models.ValueSource{{ValueID: 11, PlatformID: 2, ScoreFactor: 300}}

	ranked := scoring.RankValues(data, models.ValueTitle)
	require.Len(t, ranked, 2)
	require.Equal(t, "B", ranked[0].Value.Text)
	require.Equal(t, 90000, ranked[0].Score)
	require.Equal(t, "A", ranked[1].Value.Text)
	require.Equal(t, 40000, ranked[1].Score)

	best := scoring.BestAttributes(scoring.NewContext(), data, models.ValueTitle)
	require.Equal(t, []string{"B", "A"}, best)

	authority, ok := scoring.AuthoritativePlatform(data, models.ValueTitle)
	require.True(t, ok)
	require.Equal(t, int64(2), authority.ID)
}

func TestRankValuesTieKeepsInsertionOrder(t *testing.T) {
	data := entityData()
	data.Values = []models.Value{
		{ID: 10, Type: models.ValueGenres, Text: "Drama"},
		{ID: 11, Type: models.ValueGenres, Text: "Comedy"},
	}
	data.Sources[10] = []models.ValueSource{{ValueID: 10, PlatformID: 1, ScoreFactor: 100}}
	data.Sources[11] = []models.ValueSource{{ValueID: 11, PlatformID: 1, ScoreFactor: 100}}

	ranked := scoring.RankValues(data, models.ValueGenres)
	require.Equal(t, "Drama", ranked[0].Value.Text)
	require.Equal(t, "Comedy", ranked[1].Value.Text)
}

func TestAuthoritativePlatformTieBreaksOnID(t *testing.T) {
	data := entityData()
	data.Platforms[3] = models.Platform{ID: 3, Slug: "other", Type: models.PlatformInfo, BaseScore: 300}
	data.Values = []models.Value{{ID: 10, Type: models.ValueDate, Text: "1999"}}
	data.Sources[10] = []models.ValueSource{
		{ValueID: 10, PlatformID: 3, ScoreFactor: 100},
		{ValueID: 10, PlatformID: 2, ScoreFactor: 100},
	}
	authority, ok := scoring.AuthoritativePlatform(data, models.ValueDate)
	require.True(t, ok)
	require.Equal(t, int64(2), authority.ID) // base 300 tie, lower id wins
}

func TestBestAttributesRequireInfoAuthorityForNonTitles(t *testing.T) {
	ctx := scoring.NewContext()

	data := entityData()
	data.Values = []models.Value{{ID: 10, Type: models.ValueGenres, Text: "Drama"}}
	// netflix (SVOD, base 300) outranks imdb: genre list is suppressed
	data.Sources[10] = []models.ValueSource{
		{ValueID: 10, PlatformID: 1, ScoreFactor: 100},
		{ValueID: 10, PlatformID: 2, ScoreFactor: 100},
	}
	require.Nil(t, scoring.BestAttributes(ctx, data, models.ValueGenres))

	// only imdb contributes: genre list flows through
	data.Sources[10] = []models.ValueSource{{ValueID: 10, PlatformID: 1, ScoreFactor: 100}}
	require.Equal(t, []string{"Drama"}, scoring.BestAttributes(ctx, data, models.ValueGenres))

	// titles aggregate regardless of the authority's platform type
	data.Values = append(data.Values, models.Value{ID: 11, Type: models.ValueTitle, Text: "Foo"})
	data.Sources[11] = []models.ValueSource{{ValueID: 11, PlatformID: 2, ScoreFactor: 100}}
	require.Equal(t, []string{"Foo"}, scoring.BestAttributes(ctx, data, models.ValueTitle))
}

func TestAttributeViewProjections(t *testing.T) {
	ctx := scoring.NewContext()
	data := entityData()
	data.Values = []models.Value{
		{ID: 10, Type: models.ValueTitle, Text: "  Foo (uncut) "},
		{ID: 11, Type: models.ValueDate, Text: "1999"},
		{ID: 12, Type: models.ValueDate, Text: "unknown"},
		{ID: 18, Type: models.ValueDate, Text: "1999-05-20"},
		{ID: 13, Type: models.ValueDuration, Text: "97.5"},
		{ID: 14, Type: models.ValueDuration, Text: "97 min"},
		{ID: 15, Type: models.ValueCountry, Text: "FR"},
		{ID: 16, Type: models.ValueCountry, Text: "XX"},
		{ID: 17, Type: models.ValueCountry, Text: "fr"},
	}
	for _, v := range data.Values {
		data.Sources[v.ID] = []models.ValueSource{{ValueID: v.ID, PlatformID: 1, ScoreFactor: 100}}
	}

	view := scoring.AttributeView(ctx, data)
	require.Equal(t, []string{"Foo"}, view[models.ValueTitle])
	require.Equal(t, []string{"1999"}, view[models.ValueDate])
	require.Equal(t, []string{"97.5"}, view[models.ValueDuration])
	require.Equal(t, []string{"FR"}, view[models.ValueCountry])
}

func TestSearchTermsTopFourWeighted(t *testing.T) {
	data := entityData()
	for i, text := range []string{"One", "Two", "Three", "Four", "Five"} {
		id := int64(10 + i)
		data.Values = append(data.Values, models.Value{ID: id, Type: models.ValueTitle, Text: text})
		// descending factors so insertion order equals rank order
		data.Sources[id] = []models.ValueSource{{ValueID: id, PlatformID: 1, ScoreFactor: 500 - i*100}}
	}

	terms := scoring.SearchTerms(scoring.NewContext(), data)
	require.Len(t, terms, 4)
	require.Equal(t, scoring.SearchTerm{Text: "One", Weight: 'A'}, terms[0])
	require.Equal(t, scoring.SearchTerm{Text: "Two", Weight: 'B'}, terms[1])
	require.Equal(t, scoring.SearchTerm{Text: "Three", Weight: 'C'}, terms[2])
	require.Equal(t, scoring.SearchTerm{Text: "Four", Weight: 'D'}, terms[3])
}
