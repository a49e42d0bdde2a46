package scoring

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/reelmatch/reelmatch/internal/models"
)

// View is the SQL-backed snapshot of the curated attributes: three
// materialized views recomputed in bulk. Reads between refreshes are stale
// by design; writers never block on a refresh.
type View struct {
	db  *sql.DB
	log *zap.SugaredLogger
}

func NewView(db *sql.DB, log *zap.SugaredLogger) *View {
	return &View{db: db, log: log}
}

var viewNames = []string{"value_scores", "object_attributes", "object_search"}

// Refresh recomputes the snapshot. With concurrently set, Postgres swaps
// each view without taking out readers; the first refresh after a schema
// load must run non-concurrently to populate the views.
func (v *View) Refresh(ctx context.Context, concurrently bool) error {
	keyword := ""
	if concurrently {
		keyword = "CONCURRENTLY "
	}
	for _, name := range viewNames {
		if _, err := v.db.ExecContext(ctx, "REFRESH MATERIALIZED VIEW "+keyword+name); err != nil {
			return fmt.Errorf("refresh %s: %w", name, err)
		}
	}
	v.log.Infow("scoring view refreshed", "concurrently", concurrently)
	return nil
}

// SyncCountries upserts the embedded dictionary into the countries table so
// the object_attributes view can join against it.
func (v *View) SyncCountries(ctx context.Context) error {
	for code, name := range countries {
		_, err := v.db.ExecContext(ctx, `
			INSERT INTO countries (code, name) VALUES ($1, $2)
			ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name`, code, name)
		if err != nil {
			return fmt.Errorf("sync country %s: %w", code, err)
		}
	}
	return nil
}

// AttributesFor reads the snapshot's curated lists for one object.
func (v *View) AttributesFor(ctx context.Context, objectID int64) (map[models.ValueType][]string, error) {
	rows, err := v.db.QueryContext(ctx, `
		SELECT type, texts FROM object_attributes WHERE object_id = $1`, objectID)
	if err != nil {
		return nil, fmt.Errorf("query object_attributes: %w", err)
	}
	defer rows.Close()

	view := map[models.ValueType][]string{}
	for rows.Next() {
		var typ models.ValueType
		var texts pq.StringArray
		if err := rows.Scan(&typ, &texts); err != nil {
			return nil, err
		}
		view[typ] = []string(texts)
	}
	return view, rows.Err()
}

// SearchResult is one full-text hit.
type SearchResult struct {
	ObjectID int64             `json:"object_id"`
	Type     models.ObjectType `json:"type"`
	Rank     float64           `json:"rank"`
}

// Search runs a websearch-style query against the weighted title vector.
func (v *View) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 25
	}
	rows, err := v.db.QueryContext(ctx, `
		SELECT s.object_id, o.type, ts_rank(s.vector, q) AS rank
		FROM object_search s
		JOIN external_objects o ON o.id = s.object_id,
		     websearch_to_tsquery('simple', $1) q
		WHERE s.vector @@ q
		ORDER BY rank DESC, s.object_id
		LIMIT $2`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.ObjectID, &r.Type, &r.Rank); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
