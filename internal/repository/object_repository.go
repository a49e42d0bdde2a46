package repository

import (
	"context"
	"database/sql"

	"github.com/reelmatch/reelmatch/internal/models"
	"github.com/reelmatch/reelmatch/internal/scoring"
)

// ObjectRepository is the read side for external objects outside of
// resolution transactions: entity reads for the API and raw material for
// the export stream. Writes go through TxStore under the resolver's locks.
type ObjectRepository struct {
	db *sql.DB
}

func NewObjectRepository(db *sql.DB) *ObjectRepository {
	return &ObjectRepository{db: db}
}

func (r *ObjectRepository) GetByID(ctx context.Context, id int64) (*models.ExternalObject, error) {
	obj, err := scanObject(r.db.QueryRowContext(ctx,
		`SELECT `+objectColumns+` FROM external_objects WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return obj, err
}

func (r *ObjectRepository) Links(ctx context.Context, objectID int64) ([]models.ObjectLink, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+linkColumns+` FROM object_links WHERE object_id = $1 ORDER BY id`, objectID)
	if err != nil {
		return nil, err
	}
	return scanLinks(rows)
}

// ListIDsByType pages through object ids of one type for the export stream.
func (r *ObjectRepository) ListIDsByType(ctx context.Context, typ models.ObjectType, afterID int64, limit int) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM external_objects
		WHERE type = $1 AND id > $2 ORDER BY id LIMIT $3`, typ, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// EntityData loads the live values, sources and contributing platforms of
// one object: the input of the pure scoring functions when a caller needs a
// fresh (non-snapshot) view, e.g. in tests against a real database.
func (r *ObjectRepository) EntityData(ctx context.Context, objectID int64) (scoring.EntityData, error) {
	data := scoring.EntityData{
		Sources:   map[int64][]models.ValueSource{},
		Platforms: map[int64]models.Platform{},
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, object_id, type, text FROM object_values
		WHERE object_id = $1 ORDER BY id`, objectID)
	if err != nil {
		return data, err
	}
	defer rows.Close()
	for rows.Next() {
		var v models.Value
		if err := rows.Scan(&v.ID, &v.ObjectID, &v.Type, &v.Text); err != nil {
			return data, err
		}
		data.Values = append(data.Values, v)
	}
	if err := rows.Err(); err != nil {
		return data, err
	}

	srcRows, err := r.db.QueryContext(ctx, `
		SELECT s.value_id, s.platform_id, s.score_factor, s.comment
		FROM value_sources s
		JOIN object_values v ON v.id = s.value_id
		WHERE v.object_id = $1
		ORDER BY s.value_id, s.platform_id`, objectID)
	if err != nil {
		return data, err
	}
	defer srcRows.Close()
	for srcRows.Next() {
		var s models.ValueSource
		if err := srcRows.Scan(&s.ValueID, &s.PlatformID, &s.ScoreFactor, &s.Comment); err != nil {
			return data, err
		}
		data.Sources[s.ValueID] = append(data.Sources[s.ValueID], s)
	}
	if err := srcRows.Err(); err != nil {
		return data, err
	}

	pRows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT `+prefixedPlatformColumns("p")+`
		FROM platforms p
		JOIN value_sources s ON s.platform_id = p.id
		JOIN object_values v ON v.id = s.value_id
		WHERE v.object_id = $1`, objectID)
	if err != nil {
		return data, err
	}
	defer pRows.Close()
	for pRows.Next() {
		p, err := scanPlatform(pRows)
		if err != nil {
			return data, err
		}
		data.Platforms[p.ID] = *p
	}
	return data, pRows.Err()
}

func prefixedPlatformColumns(alias string) string {
	return alias + `.id, ` + alias + `.slug, ` + alias + `.name, ` + alias + `.type, ` +
		alias + `.country, ` + alias + `.base_score, ` + alias + `.group_id, ` +
		alias + `.ignore_in_exports, ` + alias + `.allow_links_overlap, ` +
		alias + `.created_at, ` + alias + `.updated_at`
}
