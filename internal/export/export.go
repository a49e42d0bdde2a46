// Package export streams catalog entities as rendered rows: the curated
// attribute view plus one external-id column per requested platform. Rows
// are produced lazily in id order so a feed of any size runs in constant
// memory.
package export

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/template"

	"go.uber.org/zap"

	"github.com/reelmatch/reelmatch/internal/models"
	"github.com/reelmatch/reelmatch/internal/scoring"
)

// Source is the catalog slice the exporter reads.
type Source interface {
	ListIDsByType(ctx context.Context, typ models.ObjectType, afterID int64, limit int) ([]int64, error)
	GetByID(ctx context.Context, id int64) (*models.ExternalObject, error)
	Links(ctx context.Context, objectID int64) ([]models.ObjectLink, error)
	EntityData(ctx context.Context, objectID int64) (scoring.EntityData, error)
}

// PlatformLookup resolves the platforms behind an entity's links.
type PlatformLookup interface {
	GetByID(ctx context.Context, id int64) (*models.Platform, error)
}

// Request describes one feed.
type Request struct {
	Type      models.ObjectType
	Platforms []string // slugs, one id column each, in order
	PerLink   bool     // one row per link instead of one per entity
	Template  string   // text/template source; empty uses the default TSV row
	BatchSize int
}

// Row is the template dot. Attributes is keyed by value-type name so
// templates can write .Attributes.title.
type Row struct {
	ExternalObject     *models.ExternalObject
	Links              []models.ObjectLink
	Attributes         map[string][]string
	Zones              []string          // distinct countries of the linked platforms
	IDs                map[string]string // requested slug → first external id, "" when absent
	RequestedPlatforms []string
	Platform           *models.Platform // set in per-link mode only
}

// One TSV line per row: id, type, best title, best date, genres, then the
// requested platform columns.
const defaultRowTemplate = `{{.ExternalObject.ID}}	{{.ExternalObject.Type}}	{{first .Attributes.title}}	{{first .Attributes.date}}	{{join .Attributes.genres ","}}{{range .RequestedPlatforms}}	{{index $.IDs .}}{{end}}
`

var templateFuncs = template.FuncMap{
	"first": func(values []string) string {
		if len(values) == 0 {
			return ""
		}
		return values[0]
	},
	"join": strings.Join,
}

const defaultBatchSize = 500

type Exporter struct {
	source    Source
	platforms PlatformLookup
	scoring   scoring.Context
	log       *zap.SugaredLogger
}

func New(source Source, platforms PlatformLookup, log *zap.SugaredLogger) *Exporter {
	return &Exporter{source: source, platforms: platforms, scoring: scoring.NewContext(), log: log}
}

// Iterator walks a feed one row at a time.
type Iterator struct {
	exp *Exporter
	req Request
	ctx context.Context

	afterID int64
	ids     []int64
	pending []*Row
	done    bool
}

// Stream renders the whole feed through the request's template into w.
func (e *Exporter) Stream(ctx context.Context, req Request, w io.Writer) error {
	src := req.Template
	if src == "" {
		src = defaultRowTemplate
	}
	tmpl, err := template.New("row").Funcs(templateFuncs).Parse(src)
	if err != nil {
		return fmt.Errorf("parse row template: %w", err)
	}

	it := e.Iterate(ctx, req)
	for {
		row, err := it.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := tmpl.Execute(w, row); err != nil {
			return fmt.Errorf("render object %d: %w", row.ExternalObject.ID, err)
		}
	}
}

// Iterate returns a lazy row iterator; Next reports io.EOF after the last
// row.
func (e *Exporter) Iterate(ctx context.Context, req Request) *Iterator {
	if req.BatchSize <= 0 {
		req.BatchSize = defaultBatchSize
	}
	return &Iterator{exp: e, req: req, ctx: ctx}
}

func (it *Iterator) Next() (*Row, error) {
	for {
		if len(it.pending) > 0 {
			row := it.pending[0]
			it.pending = it.pending[1:]
			return row, nil
		}
		if len(it.ids) == 0 {
			if it.done {
				return nil, io.EOF
			}
			ids, err := it.exp.source.ListIDsByType(it.ctx, it.req.Type, it.afterID, it.req.BatchSize)
			if err != nil {
				return nil, fmt.Errorf("list %s ids after %d: %w", it.req.Type, it.afterID, err)
			}
			if len(ids) < it.req.BatchSize {
				it.done = true
			}
			if len(ids) == 0 {
				return nil, io.EOF
			}
			it.ids = ids
			it.afterID = ids[len(ids)-1]
		}

		id := it.ids[0]
		it.ids = it.ids[1:]
		rows, err := it.exp.rowsFor(it.ctx, it.req, id)
		if err != nil {
			return nil, err
		}
		it.pending = rows
	}
}

// rowsFor builds the row (or, per-link, rows) of one entity. Links whose
// platform is flagged ignore_in_exports contribute nothing to the feed.
func (e *Exporter) rowsFor(ctx context.Context, req Request, id int64) ([]*Row, error) {
	obj, err := e.source.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch object %d: %w", id, err)
	}
	if obj == nil {
		return nil, nil // deleted between batch listing and read
	}

	allLinks, err := e.source.Links(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch links of %d: %w", id, err)
	}

	var links []models.ObjectLink
	linkPlatforms := map[int64]*models.Platform{}
	for _, l := range allLinks {
		p, ok := linkPlatforms[l.PlatformID]
		if !ok {
			p, err = e.platforms.GetByID(ctx, l.PlatformID)
			if err != nil {
				return nil, fmt.Errorf("fetch platform %d: %w", l.PlatformID, err)
			}
			linkPlatforms[l.PlatformID] = p
		}
		if p == nil || p.IgnoreInExports {
			continue
		}
		links = append(links, l)
	}

	data, err := e.source.EntityData(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load entity data of %d: %w", id, err)
	}

	attrs := map[string][]string{}
	for typ, values := range scoring.AttributeView(e.scoring, data) {
		attrs[string(typ)] = values
	}

	base := &Row{
		ExternalObject:     obj,
		Links:              links,
		Attributes:         attrs,
		Zones:              zones(links, linkPlatforms),
		IDs:                idColumns(req.Platforms, links, linkPlatforms),
		RequestedPlatforms: req.Platforms,
	}

	if !req.PerLink {
		return []*Row{base}, nil
	}

	rows := make([]*Row, 0, len(links))
	for _, l := range links {
		row := *base
		row.Links = []models.ObjectLink{l}
		row.Platform = linkPlatforms[l.PlatformID]
		rows = append(rows, &row)
	}
	return rows, nil
}

func zones(links []models.ObjectLink, platforms map[int64]*models.Platform) []string {
	seen := map[string]bool{}
	var out []string
	for _, l := range links {
		p := platforms[l.PlatformID]
		if p == nil || p.Country == nil || *p.Country == "" || seen[*p.Country] {
			continue
		}
		seen[*p.Country] = true
		out = append(out, *p.Country)
	}
	sort.Strings(out)
	return out
}

// idColumns picks, per requested slug, the first external id the entity
// carries on that platform.
func idColumns(slugs []string, links []models.ObjectLink, platforms map[int64]*models.Platform) map[string]string {
	out := make(map[string]string, len(slugs))
	for _, slug := range slugs {
		out[slug] = ""
	}
	for _, l := range links {
		p := platforms[l.PlatformID]
		if p == nil {
			continue
		}
		if current, wanted := out[p.Slug]; wanted && current == "" {
			out[p.Slug] = l.ExternalID
		}
	}
	return out
}
