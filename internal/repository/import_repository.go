package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/reelmatch/reelmatch/internal/models"
)

type ImportRepository struct {
	db *sql.DB
}

func NewImportRepository(db *sql.DB) *ImportRepository {
	return &ImportRepository{db: db}
}

const importFileColumns = `id, filename, status, fields, imported_type, platform_id, created_at, updated_at`

func scanImportFile(row interface{ Scan(dest ...interface{}) error }) (*models.ImportFile, error) {
	f := &models.ImportFile{}
	var fields []byte
	err := row.Scan(&f.ID, &f.Filename, &f.Status, &fields, &f.ImportedType,
		&f.PlatformID, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &f.Fields); err != nil {
			return nil, fmt.Errorf("decode field map: %w", err)
		}
	}
	return f, nil
}

func (r *ImportRepository) Create(ctx context.Context, f *models.ImportFile) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if f.Status == "" {
		f.Status = models.ImportUploaded
	}
	fields, err := json.Marshal(f.Fields)
	if err != nil {
		return fmt.Errorf("encode field map: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := tx.QueryRowContext(ctx, `
		INSERT INTO import_files (id, filename, status, fields, imported_type, platform_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		f.ID, f.Filename, f.Status, fields, f.ImportedType, f.PlatformID,
	).Scan(&f.CreatedAt, &f.UpdatedAt); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO import_file_logs (file_id, status, message) VALUES ($1, $2, $3)`,
		f.ID, f.Status, nil); err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	return tx.Commit()
}

func (r *ImportRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ImportFile, error) {
	f, err := scanImportFile(r.db.QueryRowContext(ctx,
		`SELECT `+importFileColumns+` FROM import_files WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return f, err
}

func (r *ImportRepository) List(ctx context.Context, limit, offset int) ([]*models.ImportFile, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+importFileColumns+` FROM import_files
		ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.ImportFile
	for rows.Next() {
		f, err := scanImportFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// SetStatus persists a status the state machine already validated and
// appends the matching log line in the same transaction.
func (r *ImportRepository) SetStatus(ctx context.Context, id uuid.UUID, status models.ImportFileStatus, message *string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE import_files SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, status); err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO import_file_logs (file_id, status, message) VALUES ($1, $2, $3)`,
		id, status, message); err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	return tx.Commit()
}

func (r *ImportRepository) Logs(ctx context.Context, fileID uuid.UUID) ([]models.ImportFileLog, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, file_id, status, message, created_at
		FROM import_file_logs WHERE file_id = $1 ORDER BY id`, fileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ImportFileLog
	for rows.Next() {
		var l models.ImportFileLog
		if err := rows.Scan(&l.ID, &l.FileID, &l.Status, &l.Message, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// CreateScrap registers one crawl record for a platform.
func (r *ImportRepository) CreateScrap(ctx context.Context, platformID int64) (*models.Scrap, error) {
	scrap := &models.Scrap{ID: uuid.New(), PlatformID: platformID, Date: time.Now()}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO scraps (id, platform_id, date) VALUES ($1, $2, $3)`,
		scrap.ID, scrap.PlatformID, scrap.Date)
	if err != nil {
		return nil, err
	}
	return scrap, nil
}

// TouchedLinks lists the object links an import file attached during row
// processing, for the audit view.
func (r *ImportRepository) TouchedLinks(ctx context.Context, fileID uuid.UUID) ([]models.ObjectLink, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT l.id, l.object_id, l.platform_id, l.external_id
		FROM object_links l
		JOIN import_file_links fl ON fl.link_id = l.id
		WHERE fl.file_id = $1 ORDER BY l.id`, fileID)
	if err != nil {
		return nil, err
	}
	return scanLinks(rows)
}
