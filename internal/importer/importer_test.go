package importer_test

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/reelmatch/reelmatch/internal/importer"
	"github.com/reelmatch/reelmatch/internal/models"
	"github.com/reelmatch/reelmatch/internal/testsupport"
)

// memRunner runs row work directly against the shared MemStore, without
// transactions or retries.
type memRunner struct {
	store *testsupport.MemStore
}

func (r memRunner) Run(_ context.Context, fn func(store importer.RowStore) error) error {
	return fn(r.store)
}

type memFiles struct {
	files    map[uuid.UUID]*models.ImportFile
	statuses []models.ImportFileStatus
	messages []*string
}

func newMemFiles(files ...*models.ImportFile) *memFiles {
	m := &memFiles{files: map[uuid.UUID]*models.ImportFile{}}
	for _, f := range files {
		m.files[f.ID] = f
	}
	return m
}

func (m *memFiles) Create(_ context.Context, f *models.ImportFile) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	m.files[f.ID] = f
	m.statuses = append(m.statuses, f.Status)
	m.messages = append(m.messages, nil)
	return nil
}

func (m *memFiles) GetByID(_ context.Context, id uuid.UUID) (*models.ImportFile, error) {
	f, ok := m.files[id]
	if !ok {
		return nil, nil
	}
	cp := *f
	return &cp, nil
}

func (m *memFiles) SetStatus(_ context.Context, id uuid.UUID, status models.ImportFileStatus, message *string) error {
	m.files[id].Status = status
	m.statuses = append(m.statuses, status)
	m.messages = append(m.messages, message)
	return nil
}

func (m *memFiles) lastMessage() string {
	for i := len(m.messages) - 1; i >= 0; i-- {
		if m.messages[i] != nil {
			return *m.messages[i]
		}
	}
	return ""
}

type memPlatforms struct {
	store *testsupport.MemStore
}

func (m memPlatforms) GetBySlug(ctx context.Context, slug string) (*models.Platform, error) {
	return m.store.PlatformBySlug(ctx, slug)
}

func (m memPlatforms) GetByID(ctx context.Context, id int64) (*models.Platform, error) {
	return m.store.PlatformByID(ctx, id)
}

type harness struct {
	store    *testsupport.MemStore
	files    *memFiles
	importer *importer.Importer
	dataDir  string
}

func newHarness(t *testing.T, files ...*models.ImportFile) *harness {
	t.Helper()
	store := testsupport.NewMemStore()
	store.SeedPlatform(models.Platform{ID: 1, Slug: "imdb", Type: models.PlatformInfo, BaseScore: 200})
	store.SeedPlatform(models.Platform{ID: 2, Slug: "netflix", Type: models.PlatformSVOD, BaseScore: 300})

	fs := newMemFiles(files...)
	dir := t.TempDir()
	imp := importer.New(memRunner{store}, fs, memPlatforms{store}, dir, testsupport.Logger(t))
	return &harness{store: store, files: fs, importer: imp, dataDir: dir}
}

func (h *harness) upload(t *testing.T, fileID uuid.UUID, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(h.dataDir, fileID.String()), []byte(content), 0o644))
}

func ptrI64(v int64) *int64 { return &v }

func TestProcessImportsRows(t *testing.T) {
	file := &models.ImportFile{
		ID:           uuid.New(),
		Filename:     "movies.csv",
		Status:       models.ImportUploaded,
		ImportedType: models.ObjectMovie,
		PlatformID:   ptrI64(2),
		Fields: map[string]string{
			"imdb_id": "link.imdb",
			"title":   "attribute.title",
			"genres":  "attribute_list.genres",
		},
	}
	h := newHarness(t, file)
	h.upload(t, file.ID,
		"imdb_id,title,genres\n"+
			"tt1,Alien,\"horror, sci-fi\"\n"+
			"tt1,Alien,\n"+ // idempotent re-assertion
			",,\n"+ // no identity at all
			"tt2,Blade Runner,sci-fi\n")

	require.NoError(t, h.importer.Process(context.Background(), file.ID))

	require.Equal(t, models.ImportDone, h.files.files[file.ID].Status)
	require.Equal(t, "4 rows: 3 imported, 1 skipped, 0 errors", h.files.lastMessage())

	require.Equal(t, 2, h.store.ObjectCount())
	links := h.store.AllLinks()
	require.Len(t, links, 2)

	// every value is credited to the file's source platform
	for _, src := range h.store.AllSources() {
		require.Equal(t, int64(2), src.PlatformID)
		require.Equal(t, models.DefaultScoreFactor, src.ScoreFactor)
	}

	var texts []string
	for _, v := range h.store.AllValues() {
		texts = append(texts, string(v.Type)+":"+v.Text)
	}
	require.ElementsMatch(t, []string{
		"title:Alien", "genres:horror", "genres:sci-fi",
		"title:Blade Runner", "genres:sci-fi",
	}, texts)

	touched := h.store.FileLinks(file.ID)
	require.Len(t, touched, 2, "both created links belong to the file")
}

func TestProcessMergesExplicitObjectIDs(t *testing.T) {
	ctx := context.Background()
	file := &models.ImportFile{
		ID:           uuid.New(),
		Status:       models.ImportUploaded,
		ImportedType: models.ObjectMovie,
		Fields: map[string]string{
			"imdb_id": "link.imdb",
			"dupe":    "external_object_id",
		},
	}
	h := newHarness(t, file)

	canonical, err := h.store.CreateObject(ctx, models.ObjectMovie)
	require.NoError(t, err)
	_, err = h.store.CreateLink(ctx, canonical.ID, 1, "tt1")
	require.NoError(t, err)

	dupe, err := h.store.CreateObject(ctx, models.ObjectMovie)
	require.NoError(t, err)
	_, err = h.store.CreateLink(ctx, dupe.ID, 2, "n9")
	require.NoError(t, err)

	h.upload(t, file.ID, "imdb_id,dupe\ntt1,"+itoa(dupe.ID)+"\n")
	require.NoError(t, h.importer.Process(ctx, file.ID))

	require.Equal(t, 1, h.store.ObjectCount(), "the duplicate is folded away")
	for _, l := range h.store.AllLinks() {
		require.Equal(t, canonical.ID, l.ObjectID)
	}
}

func TestProcessObjectIDOnlyRows(t *testing.T) {
	ctx := context.Background()
	file := &models.ImportFile{
		ID:           uuid.New(),
		Status:       models.ImportUploaded,
		ImportedType: models.ObjectMovie,
		PlatformID:   ptrI64(1),
		Fields: map[string]string{
			"obj":   "external_object_id",
			"title": "attribute.title",
		},
	}
	h := newHarness(t, file)

	obj, err := h.store.CreateObject(ctx, models.ObjectMovie)
	require.NoError(t, err)

	h.upload(t, file.ID, "obj,title\n"+itoa(obj.ID)+",Stalker\n")
	require.NoError(t, h.importer.Process(ctx, file.ID))

	values := h.store.AllValues()
	require.Len(t, values, 1)
	require.Equal(t, obj.ID, values[0].ObjectID)
	require.Equal(t, "Stalker", values[0].Text)
}

func TestProcessCountsRowErrors(t *testing.T) {
	file := &models.ImportFile{
		ID:           uuid.New(),
		Status:       models.ImportUploaded,
		ImportedType: models.ObjectMovie,
		Fields: map[string]string{
			"imdb_id": "link.imdb",
			"obj":     "external_object_id",
		},
	}
	h := newHarness(t, file)
	h.upload(t, file.ID,
		"imdb_id,obj\n"+
			"tt1,\n"+
			",999\n"+ // dangling object id: domain error
			"tt2,not-a-number\n") // extraction error

	require.NoError(t, h.importer.Process(context.Background(), file.ID))
	require.Equal(t, models.ImportDone, h.files.files[file.ID].Status)
	require.Equal(t, "3 rows: 1 imported, 0 skipped, 2 errors", h.files.lastMessage())
}

func TestProcessFailsOnUnknownPlatformSlug(t *testing.T) {
	file := &models.ImportFile{
		ID:           uuid.New(),
		Status:       models.ImportUploaded,
		ImportedType: models.ObjectMovie,
		Fields:       map[string]string{"id": "link.blockbuster"},
	}
	h := newHarness(t, file)
	h.upload(t, file.ID, "id\nx1\n")

	err := h.importer.Process(context.Background(), file.ID)
	require.ErrorContains(t, err, `unknown platform slug "blockbuster"`)
	require.Equal(t, models.ImportFailed, h.files.files[file.ID].Status)
	require.Contains(t, h.files.lastMessage(), "blockbuster")
}

func TestProcessFailsWithoutSourcePlatform(t *testing.T) {
	file := &models.ImportFile{
		ID:           uuid.New(),
		Status:       models.ImportUploaded,
		ImportedType: models.ObjectMovie,
		Fields: map[string]string{
			"imdb_id": "link.imdb",
			"title":   "attribute.title",
		},
	}
	h := newHarness(t, file)
	h.upload(t, file.ID, "imdb_id,title\ntt1,Alien\n")

	err := h.importer.Process(context.Background(), file.ID)
	require.ErrorContains(t, err, "no source platform")
	require.Equal(t, models.ImportFailed, h.files.files[file.ID].Status)
}

func TestProcessRefusesNonUploadedFile(t *testing.T) {
	file := &models.ImportFile{
		ID:     uuid.New(),
		Status: models.ImportDone,
		Fields: map[string]string{},
	}
	h := newHarness(t, file)

	err := h.importer.Process(context.Background(), file.ID)
	var invalid *importer.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, models.ImportDone, h.files.files[file.ID].Status)
}

func TestProcessReportsProgress(t *testing.T) {
	file := &models.ImportFile{
		ID:           uuid.New(),
		Status:       models.ImportUploaded,
		ImportedType: models.ObjectMovie,
		Fields:       map[string]string{"imdb_id": "link.imdb"},
	}
	h := newHarness(t, file)
	h.upload(t, file.ID, "imdb_id\ntt1\ntt2\n")

	var ticks []importer.Progress
	h.importer.OnProgress = func(p importer.Progress) { ticks = append(ticks, p) }

	require.NoError(t, h.importer.Process(context.Background(), file.ID))
	require.Len(t, ticks, 2)
	require.Equal(t, importer.Progress{FileID: file.ID, Row: 2, OK: 2}, ticks[1])
}

func TestUploadStoresPayloadAndLogsStatus(t *testing.T) {
	h := newHarness(t)
	file := &models.ImportFile{
		Filename:     "movies.csv",
		ImportedType: models.ObjectMovie,
		Fields:       map[string]string{"imdb_id": "link.imdb"},
	}

	err := h.importer.Upload(context.Background(), file, strings.NewReader("imdb_id\ntt1\n"))
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, file.ID)
	require.Equal(t, models.ImportUploaded, file.Status)
	require.Equal(t, []models.ImportFileStatus{models.ImportUploaded}, h.files.statuses,
		"entering uploaded must leave a log line")

	content, err := os.ReadFile(filepath.Join(h.dataDir, file.ID.String()))
	require.NoError(t, err)
	require.Equal(t, "imdb_id\ntt1\n", string(content))
}

func TestReuploadReentersUploadedFromFailed(t *testing.T) {
	ctx := context.Background()
	file := &models.ImportFile{
		ID:           uuid.New(),
		Status:       models.ImportFailed,
		ImportedType: models.ObjectMovie,
		Fields:       map[string]string{"imdb_id": "link.imdb"},
	}
	h := newHarness(t, file)

	require.NoError(t, h.importer.Reupload(ctx, file, strings.NewReader("imdb_id\ntt9\n")))
	require.Equal(t, models.ImportUploaded, file.Status)
	require.Equal(t, []models.ImportFileStatus{models.ImportUploaded}, h.files.statuses)

	require.NoError(t, h.importer.Process(ctx, file.ID))
	require.Equal(t, models.ImportDone, h.files.files[file.ID].Status)
}

func TestReuploadRefusedUnlessFailed(t *testing.T) {
	file := &models.ImportFile{
		ID:     uuid.New(),
		Status: models.ImportDone,
	}
	h := newHarness(t, file)

	err := h.importer.Reupload(context.Background(), file, strings.NewReader("x\n"))
	var invalid *importer.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, models.ImportDone, file.Status)
	require.Empty(t, h.files.statuses)
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
