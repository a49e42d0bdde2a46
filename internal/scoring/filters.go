package scoring

import (
	"regexp"
	"strings"

	"github.com/reelmatch/reelmatch/internal/models"
)

var (
	yearRe        = regexp.MustCompile(`^[1-2]\d{3}$`)
	durationRe    = regexp.MustCompile(`^[0-9.]+$`)
	leadingNumRe  = regexp.MustCompile(`^[0-9.]+`)
	countryRe     = regexp.MustCompile(`^[A-Z]{2}$`)
	parentheticRe = regexp.MustCompile(`\([^)]*\)`)
)

// projectValue applies the per-type acceptance filter and projection to one
// stored text. The stored text is always verbatim; this is the only place
// normalization happens.
func projectValue(ctx Context, typ models.ValueType, text string) (string, bool) {
	switch typ {
	case models.ValueTitle:
		t := strings.TrimSpace(parentheticRe.ReplaceAllString(text, ""))
		return t, t != ""
	case models.ValueDate:
		return text, yearRe.MatchString(text)
	case models.ValueDuration:
		if !durationRe.MatchString(text) {
			return "", false
		}
		return leadingNumRe.FindString(text), true
	case models.ValueCountry:
		if !countryRe.MatchString(text) {
			return "", false
		}
		if _, ok := ctx.Countries[text]; !ok {
			return "", false
		}
		return text, true
	case models.ValueGenres, models.ValueName:
		return text, text != ""
	}
	return "", false
}
