// Package scoring turns the append-only value/source history into the
// curated view: per-value scores, per-entity ranked attribute lists and the
// weighted search vector. The arithmetic lives here as pure functions; the
// bulk-refreshed materialized views in view.go compute the same thing in SQL.
package scoring

import (
	"sort"

	"github.com/reelmatch/reelmatch/internal/models"
)

// Context carries the read-side dictionaries. Immutable after construction.
type Context struct {
	Countries map[string]string // ISO-2 code → name
}

// NewContext returns a Context with the embedded countries dictionary.
func NewContext() Context {
	return Context{Countries: countries}
}

// EntityData is the raw material for one entity's curated view.
type EntityData struct {
	Values    []models.Value                // insertion (id) order
	Sources   map[int64][]models.ValueSource // value id → sources
	Platforms map[int64]models.Platform
}

// Score is the provenance-weighted total of one value:
// Σ base_score(platform) × score_factor(source).
func Score(sources []models.ValueSource, platforms map[int64]models.Platform) int {
	total := 0
	for _, src := range sources {
		if p, ok := platforms[src.PlatformID]; ok {
			total += p.BaseScore * src.ScoreFactor
		}
	}
	return total
}

// RankedValue is a value with its computed score.
type RankedValue struct {
	Value models.Value
	Score int
}

// RankValues orders the entity's values of one type by score descending.
// Ties keep insertion order, so repeated refreshes rank identically.
func RankValues(data EntityData, typ models.ValueType) []RankedValue {
	var ranked []RankedValue
	for _, v := range data.Values {
		if v.Type != typ {
			continue
		}
		ranked = append(ranked, RankedValue{Value: v, Score: Score(data.Sources[v.ID], data.Platforms)})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	return ranked
}

// AuthoritativePlatform returns the rank-1 platform for (entity, type):
// the contributing platform with the highest base score, ties broken by
// lowest platform id.
func AuthoritativePlatform(data EntityData, typ models.ValueType) (models.Platform, bool) {
	seen := map[int64]bool{}
	var best models.Platform
	found := false
	for _, v := range data.Values {
		if v.Type != typ {
			continue
		}
		for _, src := range data.Sources[v.ID] {
			if seen[src.PlatformID] {
				continue
			}
			seen[src.PlatformID] = true
			p, ok := data.Platforms[src.PlatformID]
			if !ok {
				continue
			}
			if !found || p.BaseScore > best.BaseScore || (p.BaseScore == best.BaseScore && p.ID < best.ID) {
				best = p
				found = true
			}
		}
	}
	return best, found
}

// BestAttributes computes the filtered, projected, score-ranked text list
// for one value type. Non-TITLE types only aggregate when the authoritative
// platform is an information provider: commercial platforms reliably report
// the name they sell under, but not genre, duration or country.
func BestAttributes(ctx Context, data EntityData, typ models.ValueType) []string {
	if typ != models.ValueTitle {
		authority, ok := AuthoritativePlatform(data, typ)
		if !ok || authority.Type != models.PlatformInfo {
			return nil
		}
	}

	var out []string
	seen := map[string]bool{}
	for _, rv := range RankValues(data, typ) {
		text, ok := projectValue(ctx, typ, rv.Value.Text)
		if !ok || seen[text] {
			continue
		}
		seen[text] = true
		out = append(out, text)
	}
	return out
}

// AttributeView computes the full curated view: one ranked list per type.
func AttributeView(ctx Context, data EntityData) map[models.ValueType][]string {
	view := make(map[models.ValueType][]string, len(models.ValueTypes))
	for _, typ := range models.ValueTypes {
		if texts := BestAttributes(ctx, data, typ); len(texts) > 0 {
			view[typ] = texts
		}
	}
	return view
}

// SearchTerm is one weighted component of the full-text vector.
type SearchTerm struct {
	Text   string
	Weight byte // 'A' (best) … 'D'
}

// SearchTerms returns the top-4 titles with descending weights, mirroring
// the setweight() calls the materialized view issues.
func SearchTerms(ctx Context, data EntityData) []SearchTerm {
	titles := BestAttributes(ctx, data, models.ValueTitle)
	weights := [4]byte{'A', 'B', 'C', 'D'}
	var terms []SearchTerm
	for i, title := range titles {
		if i == len(weights) {
			break
		}
		terms = append(terms, SearchTerm{Text: title, Weight: weights[i]})
	}
	return terms
}
