package importer

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reelmatch/reelmatch/internal/db"
	"github.com/reelmatch/reelmatch/internal/models"
	"github.com/reelmatch/reelmatch/internal/repository"
	"github.com/reelmatch/reelmatch/internal/resolver"
)

// RowStore is what one row's worth of work needs: the resolution store plus
// the file→link bookkeeping table.
type RowStore interface {
	resolver.Store
	AttachImportFile(ctx context.Context, fileID uuid.UUID, linkID int64) error
}

// Runner executes fn against a RowStore. The production runner gives each
// call its own transaction with bounded retry on transient failures, so fn
// must be idempotent.
type Runner interface {
	Run(ctx context.Context, fn func(store RowStore) error) error
}

// TxRunner is the production Runner: one transaction per row.
type TxRunner struct {
	DB         *db.DB
	MaxRetries int
}

func (r *TxRunner) Run(ctx context.Context, fn func(store RowStore) error) error {
	return r.DB.WithRetry(ctx, r.MaxRetries, func(tx *sql.Tx) error {
		return fn(repository.NewTxStore(tx))
	})
}

// FileStore is the slice of the import repository the driver needs. Create
// and SetStatus both append the log line of the transition they persist.
type FileStore interface {
	Create(ctx context.Context, f *models.ImportFile) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ImportFile, error)
	SetStatus(ctx context.Context, id uuid.UUID, status models.ImportFileStatus, message *string) error
}

// PlatformLookup resolves the platform slugs a field map references.
type PlatformLookup interface {
	GetBySlug(ctx context.Context, slug string) (*models.Platform, error)
	GetByID(ctx context.Context, id int64) (*models.Platform, error)
}

// Progress is a per-row heartbeat for live status reporting.
type Progress struct {
	FileID  uuid.UUID `json:"file_id"`
	Row     int       `json:"row"`
	OK      int       `json:"ok"`
	Skipped int       `json:"skipped"`
	Errored int       `json:"errored"`
}

// Importer drives one file through the lifecycle: PROCESS transition, header
// resolution, row-by-row resolution and attribute assertion, then DONE or
// FAILED. Row-level domain errors are logged and counted; only structural
// problems (unreadable file, bad field map, unknown platform, exhausted
// transient retries) fail the file.
type Importer struct {
	runner    Runner
	files     FileStore
	platforms PlatformLookup
	machine   *StateMachine
	dataDir   string
	log       *zap.SugaredLogger

	// OnProgress, when set, is invoked after every data row.
	OnProgress func(Progress)
}

func New(runner Runner, files FileStore, platforms PlatformLookup, dataDir string, log *zap.SugaredLogger) *Importer {
	return &Importer{
		runner:    runner,
		files:     files,
		platforms: platforms,
		machine:   NewStateMachine(log),
		dataDir:   dataDir,
		log:       log,
	}
}

// Machine exposes the state machine for hook registration.
func (i *Importer) Machine() *StateMachine { return i.machine }

// Upload registers a fresh file: the "upload" transition, the store row,
// and the payload under <dataDir>/<file id>.
func (i *Importer) Upload(ctx context.Context, file *models.ImportFile, payload io.Reader) error {
	if _, err := i.machine.Apply(ctx, file, "upload"); err != nil {
		return err
	}
	if err := i.files.Create(ctx, file); err != nil {
		return err
	}
	return i.save(file.ID, payload)
}

// Reupload replaces a failed file's payload and re-enters UPLOADED. Any
// other current status is refused by the machine.
func (i *Importer) Reupload(ctx context.Context, file *models.ImportFile, payload io.Reader) error {
	if _, err := i.machine.Apply(ctx, file, "upload"); err != nil {
		return err
	}
	if err := i.save(file.ID, payload); err != nil {
		return err
	}
	return i.files.SetStatus(ctx, file.ID, file.Status, nil)
}

func (i *Importer) save(id uuid.UUID, payload io.Reader) error {
	dst, err := os.Create(filepath.Join(i.dataDir, id.String()))
	if err != nil {
		return fmt.Errorf("store upload %s: %w", id, err)
	}
	if _, err := io.Copy(dst, payload); err != nil {
		dst.Close()
		return fmt.Errorf("store upload %s: %w", id, err)
	}
	return dst.Close()
}

// Process runs the full lifecycle for one uploaded file. The file's on-disk
// copy is expected at <dataDir>/<file id>.
func (i *Importer) Process(ctx context.Context, fileID uuid.UUID) error {
	file, err := i.files.GetByID(ctx, fileID)
	if err != nil {
		return fmt.Errorf("load import file %s: %w", fileID, err)
	}
	if file == nil {
		return fmt.Errorf("import file %s not found", fileID)
	}

	if err := i.transition(ctx, file, "process", nil); err != nil {
		return err
	}

	f, err := os.Open(filepath.Join(i.dataDir, file.ID.String()))
	if err != nil {
		return i.fail(ctx, file, fmt.Sprintf("open upload: %v", err))
	}
	defer f.Close()

	return i.run(ctx, file, f)
}

// run processes the file's rows from r. Split out from Process so tests can
// feed rows without touching disk.
func (i *Importer) run(ctx context.Context, file *models.ImportFile, r io.Reader) error {
	rows, err := NewRowReader(r)
	if err != nil {
		return i.fail(ctx, file, fmt.Sprintf("read header: %v", err))
	}

	idx, err := ResolveFields(file.Fields, rows.Header())
	if err != nil {
		return i.fail(ctx, file, fmt.Sprintf("field map: %v", err))
	}
	if idx.HasAttributes() && file.PlatformID == nil {
		return i.fail(ctx, file, "file maps attribute columns but has no source platform")
	}

	// Resolve every referenced slug once, up front. A slug nothing matches
	// is a field-map mistake, not a row problem.
	platformsBySlug := map[string]*models.Platform{}
	for _, slug := range idx.Slugs() {
		p, err := i.platforms.GetBySlug(ctx, slug)
		if err != nil {
			return i.fail(ctx, file, fmt.Sprintf("resolve platform %q: %v", slug, err))
		}
		if p == nil {
			return i.fail(ctx, file, fmt.Sprintf("unknown platform slug %q in field map", slug))
		}
		platformsBySlug[slug] = p
	}

	var ok, skipped, errored, rowNum int
	for {
		row, err := rows.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return i.fail(ctx, file, fmt.Sprintf("row %d: %v", rowNum+1, err))
		}
		rowNum++

		data, err := idx.Extract(row)
		if err != nil {
			errored++
			i.log.Warnw("import row rejected", "file", file.ID, "row", rowNum, "error", err)
			i.progress(file.ID, rowNum, ok, skipped, errored)
			continue
		}
		if data.Empty() {
			skipped++
			i.progress(file.ID, rowNum, ok, skipped, errored)
			continue
		}

		err = i.runner.Run(ctx, func(store RowStore) error {
			return i.processRow(ctx, store, file, platformsBySlug, data)
		})
		switch {
		case err == nil:
			ok++
		case db.IsTransient(err):
			// Retries exhausted: the store is unhealthy, stop the file.
			return i.fail(ctx, file, fmt.Sprintf("row %d: store unavailable: %v", rowNum, err))
		case ctx.Err() != nil:
			return i.fail(ctx, file, fmt.Sprintf("canceled at row %d", rowNum))
		default:
			errored++
			i.log.Warnw("import row failed", "file", file.ID, "row", rowNum, "error", err)
		}
		i.progress(file.ID, rowNum, ok, skipped, errored)
	}

	message := fmt.Sprintf("%d rows: %d imported, %d skipped, %d errors", rowNum, ok, skipped, errored)
	return i.transition(ctx, file, "done", &message)
}

// processRow resolves one row to a canonical object, folds explicit object
// ids into it, asserts the mapped attributes, and records which links the
// file touched. Runs inside one transaction.
func (i *Importer) processRow(ctx context.Context, store RowStore, file *models.ImportFile, platformsBySlug map[string]*models.Platform, data RowData) error {
	engine := resolver.New(store, i.log)

	var refs []resolver.LinkRef
	for _, slug := range sortedSlugs(data.Links) {
		p := platformsBySlug[slug]
		for _, externalID := range data.Links[slug] {
			refs = append(refs, resolver.LinkRef{PlatformID: p.ID, ExternalID: externalID})
		}
	}

	var obj *models.ExternalObject
	var err error
	if len(refs) == 0 {
		// Identity given only by explicit ids: the first one is the target.
		obj, err = store.GetObject(ctx, data.ObjectIDs[0])
		if err != nil {
			return fmt.Errorf("fetch object %d: %w", data.ObjectIDs[0], err)
		}
		if obj == nil {
			return &resolver.ObjectNotFoundError{ObjectID: data.ObjectIDs[0]}
		}
	} else {
		obj, err = engine.LookupOrCreate(ctx, file.ImportedType, refs)
		if err != nil {
			return err
		}
	}

	for _, id := range data.ObjectIDs {
		if id == obj.ID {
			continue
		}
		if err := engine.MergeAndDelete(ctx, id, obj.ID); err != nil {
			return err
		}
	}

	if len(data.Attributes) > 0 {
		for _, typ := range models.ValueTypes {
			for _, text := range data.Attributes[typ] {
				attr := resolver.Attribute{Type: string(typ), Text: text}
				if err := engine.AddAttribute(ctx, obj.ID, attr, *file.PlatformID); err != nil {
					return err
				}
			}
		}
	}

	if len(refs) > 0 {
		links, err := store.LinksByRefs(ctx, refs)
		if err != nil {
			return fmt.Errorf("fetch touched links: %w", err)
		}
		for _, link := range links {
			if err := store.AttachImportFile(ctx, file.ID, link.ID); err != nil {
				return fmt.Errorf("attach link %d to file %s: %w", link.ID, file.ID, err)
			}
		}
	}
	return nil
}

// transition applies a state-machine edge and persists the new status plus
// its log line.
func (i *Importer) transition(ctx context.Context, file *models.ImportFile, name string, message *string) error {
	if _, err := i.machine.Apply(ctx, file, name); err != nil {
		return err
	}
	if err := i.files.SetStatus(ctx, file.ID, file.Status, message); err != nil {
		return fmt.Errorf("persist status %q of %s: %w", file.Status, file.ID, err)
	}
	return nil
}

// fail moves the file to FAILED with reason and reports reason as the
// processing error.
func (i *Importer) fail(ctx context.Context, file *models.ImportFile, reason string) error {
	i.log.Errorw("import failed", "file", file.ID, "reason", reason)
	if err := i.transition(ctx, file, "failed", &reason); err != nil {
		return fmt.Errorf("%s (and failing the file: %v)", reason, err)
	}
	return fmt.Errorf("import %s failed: %s", file.ID, reason)
}

func (i *Importer) progress(fileID uuid.UUID, row, ok, skipped, errored int) {
	if i.OnProgress == nil {
		return
	}
	i.OnProgress(Progress{FileID: fileID, Row: row, OK: ok, Skipped: skipped, Errored: errored})
}

func sortedSlugs(links map[string][]string) []string {
	out := make([]string, 0, len(links))
	for slug := range links {
		out = append(out, slug)
	}
	sort.Strings(out)
	return out
}
