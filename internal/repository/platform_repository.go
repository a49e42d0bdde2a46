package repository

import (
	"database/sql"
	"strconv"

	"github.com/reelmatch/reelmatch/internal/models"
	"github.com/reelmatch/reelmatch/internal/resolver"
)

type PlatformRepository struct {
	db *sql.DB
}

func NewPlatformRepository(db *sql.DB) *PlatformRepository {
	return &PlatformRepository{db: db}
}

// platformColumns is the standard SELECT list for platforms
const platformColumns = `id, slug, name, type, country, base_score, group_id,
	ignore_in_exports, allow_links_overlap, created_at, updated_at`

func scanPlatform(row interface{ Scan(dest ...interface{}) error }) (*models.Platform, error) {
	p := &models.Platform{}
	err := row.Scan(
		&p.ID, &p.Slug, &p.Name, &p.Type, &p.Country, &p.BaseScore, &p.GroupID,
		&p.IgnoreInExports, &p.AllowLinksOverlap, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

func (r *PlatformRepository) Create(p *models.Platform) error {
	return r.db.QueryRow(`
		INSERT INTO platforms (slug, name, type, country, base_score, group_id,
			ignore_in_exports, allow_links_overlap)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`,
		p.Slug, p.Name, p.Type, p.Country, p.BaseScore, p.GroupID,
		p.IgnoreInExports, p.AllowLinksOverlap,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

func (r *PlatformRepository) Update(p *models.Platform) error {
	return r.db.QueryRow(`
		UPDATE platforms
		SET slug = $2, name = $3, type = $4, country = $5, base_score = $6,
			group_id = $7, ignore_in_exports = $8, allow_links_overlap = $9,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.Slug, p.Name, p.Type, p.Country, p.BaseScore, p.GroupID,
		p.IgnoreInExports, p.AllowLinksOverlap,
	).Scan(&p.UpdatedAt)
}

// Delete removes the platform; the schema cascades to its links and value
// sources but leaves the external objects alone.
func (r *PlatformRepository) Delete(id int64) error {
	_, err := r.db.Exec(`DELETE FROM platforms WHERE id = $1`, id)
	return err
}

func (r *PlatformRepository) GetByID(id int64) (*models.Platform, error) {
	p, err := scanPlatform(r.db.QueryRow(
		`SELECT `+platformColumns+` FROM platforms WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (r *PlatformRepository) GetBySlug(slug string) (*models.Platform, error) {
	p, err := scanPlatform(r.db.QueryRow(
		`SELECT `+platformColumns+` FROM platforms WHERE slug = $1`, slug))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

// Lookup resolves a selector that is either a numeric id or a slug. A
// numeric id that matches nothing is an error; an unknown slug returns
// (nil, nil) so callers can tell the cases apart.
func (r *PlatformRepository) Lookup(selector string) (*models.Platform, error) {
	if id, err := strconv.ParseInt(selector, 10, 64); err == nil {
		p, err := r.GetByID(id)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, &resolver.PlatformNotFoundError{Selector: selector}
		}
		return p, nil
	}
	return r.GetBySlug(selector)
}

func (r *PlatformRepository) List() ([]*models.Platform, error) {
	rows, err := r.db.Query(`SELECT ` + platformColumns + ` FROM platforms ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Platform
	for rows.Next() {
		p, err := scanPlatform(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ──────────────────── Groups ────────────────────

func (r *PlatformRepository) CreateGroup(g *models.PlatformGroup) error {
	return r.db.QueryRow(
		`INSERT INTO platform_groups (name) VALUES ($1) RETURNING id`, g.Name,
	).Scan(&g.ID)
}

func (r *PlatformRepository) DeleteGroup(id int64) error {
	_, err := r.db.Exec(`DELETE FROM platform_groups WHERE id = $1`, id)
	return err
}

func (r *PlatformRepository) ListGroups() ([]*models.PlatformGroup, error) {
	rows, err := r.db.Query(`SELECT id, name FROM platform_groups ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.PlatformGroup
	for rows.Next() {
		g := &models.PlatformGroup{}
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// GroupMembers lists the platforms attached to one group.
func (r *PlatformRepository) GroupMembers(groupID int64) ([]*models.Platform, error) {
	rows, err := r.db.Query(
		`SELECT `+platformColumns+` FROM platforms WHERE group_id = $1 ORDER BY id`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Platform
	for rows.Next() {
		p, err := scanPlatform(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
