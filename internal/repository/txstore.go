package repository

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/reelmatch/reelmatch/internal/models"
	"github.com/reelmatch/reelmatch/internal/resolver"
)

// TxStore implements resolver.Store on one open transaction. The resolution
// engine takes its row locks through LockObjects; everything else is plain
// statement execution against the same tx.
type TxStore struct {
	tx *sql.Tx
}

func NewTxStore(tx *sql.Tx) *TxStore {
	return &TxStore{tx: tx}
}

const objectColumns = `id, type, created_at, updated_at`

func scanObject(row interface{ Scan(dest ...interface{}) error }) (*models.ExternalObject, error) {
	obj := &models.ExternalObject{}
	err := row.Scan(&obj.ID, &obj.Type, &obj.CreatedAt, &obj.UpdatedAt)
	return obj, err
}

func (s *TxStore) GetObject(ctx context.Context, id int64) (*models.ExternalObject, error) {
	query := `SELECT ` + objectColumns + ` FROM external_objects WHERE id = $1`
	obj, err := scanObject(s.tx.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return obj, err
}

func (s *TxStore) CreateObject(ctx context.Context, typ models.ObjectType) (*models.ExternalObject, error) {
	obj := &models.ExternalObject{Type: typ}
	err := s.tx.QueryRowContext(ctx, `
		INSERT INTO external_objects (type) VALUES ($1)
		RETURNING id, created_at, updated_at`, typ,
	).Scan(&obj.ID, &obj.CreatedAt, &obj.UpdatedAt)
	return obj, err
}

func (s *TxStore) DeleteObject(ctx context.Context, id int64) error {
	_, err := s.tx.ExecContext(ctx, `DELETE FROM external_objects WHERE id = $1`, id)
	return err
}

// LockObjects takes FOR UPDATE locks in ascending id order regardless of the
// order ids were passed in, so concurrent merges cannot deadlock on each
// other.
func (s *TxStore) LockObjects(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	rows, err := s.tx.QueryContext(ctx, `
		SELECT id FROM external_objects WHERE id = ANY($1) ORDER BY id FOR UPDATE`,
		pq.Array(ids))
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return err
		}
	}
	return rows.Err()
}

const linkColumns = `id, object_id, platform_id, external_id`

func scanLinks(rows *sql.Rows) ([]models.ObjectLink, error) {
	defer rows.Close()
	var out []models.ObjectLink
	for rows.Next() {
		var l models.ObjectLink
		if err := rows.Scan(&l.ID, &l.ObjectID, &l.PlatformID, &l.ExternalID); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *TxStore) LinksByRefs(ctx context.Context, refs []resolver.LinkRef) ([]models.ObjectLink, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	conds := make([]string, 0, len(refs))
	args := make([]interface{}, 0, len(refs)*2)
	for i, ref := range refs {
		conds = append(conds, "(platform_id = $"+strconv.Itoa(i*2+1)+" AND external_id = $"+strconv.Itoa(i*2+2)+")")
		args = append(args, ref.PlatformID, ref.ExternalID)
	}
	query := `SELECT ` + linkColumns + ` FROM object_links WHERE ` + strings.Join(conds, " OR ")
	rows, err := s.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanLinks(rows)
}

func (s *TxStore) LinksByObject(ctx context.Context, objectID int64) ([]models.ObjectLink, error) {
	rows, err := s.tx.QueryContext(ctx,
		`SELECT `+linkColumns+` FROM object_links WHERE object_id = $1 ORDER BY id`, objectID)
	if err != nil {
		return nil, err
	}
	return scanLinks(rows)
}

func (s *TxStore) CreateLink(ctx context.Context, objectID, platformID int64, externalID string) (*models.ObjectLink, error) {
	link := &models.ObjectLink{ObjectID: objectID, PlatformID: platformID, ExternalID: externalID}
	err := s.tx.QueryRowContext(ctx, `
		INSERT INTO object_links (object_id, platform_id, external_id)
		VALUES ($1, $2, $3) RETURNING id`,
		objectID, platformID, externalID,
	).Scan(&link.ID)
	if err != nil {
		return nil, err
	}
	return link, nil
}

func (s *TxStore) ReassignLinks(ctx context.Context, fromObjectID, toObjectID int64) error {
	_, err := s.tx.ExecContext(ctx,
		`UPDATE object_links SET object_id = $2 WHERE object_id = $1`, fromObjectID, toObjectID)
	return err
}

func (s *TxStore) ValuesByObject(ctx context.Context, objectID int64) ([]models.Value, error) {
	rows, err := s.tx.QueryContext(ctx, `
		SELECT id, object_id, type, text FROM object_values
		WHERE object_id = $1 ORDER BY id`, objectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Value
	for rows.Next() {
		var v models.Value
		if err := rows.Scan(&v.ID, &v.ObjectID, &v.Type, &v.Text); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *TxStore) FindValue(ctx context.Context, objectID int64, typ models.ValueType, text string) (*models.Value, error) {
	v := &models.Value{}
	err := s.tx.QueryRowContext(ctx, `
		SELECT id, object_id, type, text FROM object_values
		WHERE object_id = $1 AND type = $2 AND text = $3`,
		objectID, typ, text,
	).Scan(&v.ID, &v.ObjectID, &v.Type, &v.Text)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return v, err
}

func (s *TxStore) CreateValue(ctx context.Context, objectID int64, typ models.ValueType, text string) (*models.Value, error) {
	v := &models.Value{ObjectID: objectID, Type: typ, Text: text}
	err := s.tx.QueryRowContext(ctx, `
		INSERT INTO object_values (object_id, type, text)
		VALUES ($1, $2, $3) RETURNING id`,
		objectID, typ, text,
	).Scan(&v.ID)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *TxStore) ReassignValue(ctx context.Context, valueID, toObjectID int64) error {
	_, err := s.tx.ExecContext(ctx,
		`UPDATE object_values SET object_id = $2 WHERE id = $1`, valueID, toObjectID)
	return err
}

func (s *TxStore) SourcesByValue(ctx context.Context, valueID int64) ([]models.ValueSource, error) {
	rows, err := s.tx.QueryContext(ctx, `
		SELECT value_id, platform_id, score_factor, comment FROM value_sources
		WHERE value_id = $1 ORDER BY platform_id`, valueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.ValueSource
	for rows.Next() {
		var src models.ValueSource
		if err := rows.Scan(&src.ValueID, &src.PlatformID, &src.ScoreFactor, &src.Comment); err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

func (s *TxStore) UpsertSource(ctx context.Context, valueID, platformID int64, scoreFactor int, comment *string) error {
	_, err := s.tx.ExecContext(ctx, `
		INSERT INTO value_sources (value_id, platform_id, score_factor, comment)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (value_id, platform_id)
		DO UPDATE SET score_factor = EXCLUDED.score_factor, comment = EXCLUDED.comment`,
		valueID, platformID, scoreFactor, comment)
	return err
}

// MoveSources repoints fromValue's sources to toValue. Platforms that
// already assert toValue keep their existing assertion; the leftovers are
// swept so the source value can be deleted cleanly.
func (s *TxStore) MoveSources(ctx context.Context, fromValueID, toValueID int64) error {
	_, err := s.tx.ExecContext(ctx, `
		UPDATE value_sources SET value_id = $2
		WHERE value_id = $1
		  AND platform_id NOT IN (SELECT platform_id FROM value_sources WHERE value_id = $2)`,
		fromValueID, toValueID)
	if err != nil {
		return err
	}
	_, err = s.tx.ExecContext(ctx, `DELETE FROM value_sources WHERE value_id = $1`, fromValueID)
	return err
}

func (s *TxStore) PlatformByID(ctx context.Context, id int64) (*models.Platform, error) {
	p, err := scanPlatform(s.tx.QueryRowContext(ctx,
		`SELECT `+platformColumns+` FROM platforms WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (s *TxStore) PlatformBySlug(ctx context.Context, slug string) (*models.Platform, error) {
	p, err := scanPlatform(s.tx.QueryRowContext(ctx,
		`SELECT `+platformColumns+` FROM platforms WHERE slug = $1`, slug))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (s *TxStore) EpisodeByObject(ctx context.Context, objectID int64) (*models.Episode, error) {
	ep := &models.Episode{}
	err := s.tx.QueryRowContext(ctx, `
		SELECT object_id, series_id, season, episode FROM episodes WHERE object_id = $1`,
		objectID,
	).Scan(&ep.ObjectID, &ep.SeriesID, &ep.Season, &ep.Episode)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return ep, err
}

func (s *TxStore) UpsertEpisode(ctx context.Context, objectID, seriesID int64, season, episode int) error {
	_, err := s.tx.ExecContext(ctx, `
		INSERT INTO episodes (object_id, series_id, season, episode)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (object_id)
		DO UPDATE SET series_id = EXCLUDED.series_id, season = EXCLUDED.season, episode = EXCLUDED.episode`,
		objectID, seriesID, season, episode)
	return err
}

func (s *TxStore) ReassignSeries(ctx context.Context, fromSeriesID, toSeriesID int64) error {
	_, err := s.tx.ExecContext(ctx,
		`UPDATE episodes SET series_id = $2 WHERE series_id = $1`, fromSeriesID, toSeriesID)
	return err
}

func (s *TxStore) AttachScrap(ctx context.Context, linkID int64, scrapID uuid.UUID) error {
	_, err := s.tx.ExecContext(ctx, `
		INSERT INTO link_scraps (link_id, scrap_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, linkID, scrapID)
	return err
}

// AttachImportFile records that an import file touched a link.
func (s *TxStore) AttachImportFile(ctx context.Context, fileID uuid.UUID, linkID int64) error {
	_, err := s.tx.ExecContext(ctx, `
		INSERT INTO import_file_links (file_id, link_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, fileID, linkID)
	return err
}

var _ resolver.Store = (*TxStore)(nil)
