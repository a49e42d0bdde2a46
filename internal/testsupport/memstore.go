// Package testsupport provides shared fixtures for package tests: an
// in-memory implementation of resolver.Store and small helpers. It lives
// outside _test files so every package's tests can share it.
package testsupport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reelmatch/reelmatch/internal/models"
	"github.com/reelmatch/reelmatch/internal/resolver"
)

// MemStore is an in-memory resolver.Store with the same uniqueness rules the
// Postgres schema enforces. It is not transactional: tests exercise engine
// semantics, not rollback behavior.
type MemStore struct {
	mu sync.Mutex

	nextID    int64
	objects   map[int64]*models.ExternalObject
	links     []*models.ObjectLink
	values    []*models.Value
	sources   []*models.ValueSource
	platforms map[int64]*models.Platform
	episodes  map[int64]*models.Episode
	scraps    map[int64][]uuid.UUID // link id → scrap ids
	fileLinks map[uuid.UUID][]int64 // import file id → touched link ids
}

func NewMemStore() *MemStore {
	return &MemStore{
		objects:   map[int64]*models.ExternalObject{},
		platforms: map[int64]*models.Platform{},
		episodes:  map[int64]*models.Episode{},
		scraps:    map[int64][]uuid.UUID{},
		fileLinks: map[uuid.UUID][]int64{},
	}
}

func (s *MemStore) id() int64 {
	s.nextID++
	return s.nextID
}

// SeedPlatform registers a platform under a fixed id.
func (s *MemStore) SeedPlatform(p models.Platform) *models.Platform {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.id()
	} else if p.ID > s.nextID {
		s.nextID = p.ID
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	s.platforms[p.ID] = &p
	return &p
}

// ──────────────────── resolver.Store ────────────────────

func (s *MemStore) GetObject(_ context.Context, id int64) (*models.ExternalObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.objects[id]; ok {
		cp := *o
		return &cp, nil
	}
	return nil, nil
}

func (s *MemStore) CreateObject(_ context.Context, typ models.ObjectType) (*models.ExternalObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := &models.ExternalObject{ID: s.id(), Type: typ, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	s.objects[o.ID] = o
	cp := *o
	return &cp, nil
}

func (s *MemStore) DeleteObject(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, id)
	delete(s.episodes, id)

	var keptLinks []*models.ObjectLink
	for _, l := range s.links {
		if l.ObjectID == id {
			delete(s.scraps, l.ID)
			continue
		}
		keptLinks = append(keptLinks, l)
	}
	s.links = keptLinks

	doomed := map[int64]bool{}
	var keptValues []*models.Value
	for _, v := range s.values {
		if v.ObjectID == id {
			doomed[v.ID] = true
			continue
		}
		keptValues = append(keptValues, v)
	}
	s.values = keptValues

	var keptSources []*models.ValueSource
	for _, src := range s.sources {
		if doomed[src.ValueID] {
			continue
		}
		keptSources = append(keptSources, src)
	}
	s.sources = keptSources
	return nil
}

func (s *MemStore) LockObjects(_ context.Context, _ ...int64) error { return nil }

func (s *MemStore) LinksByRefs(_ context.Context, refs []resolver.LinkRef) ([]models.ObjectLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ObjectLink
	for _, l := range s.links {
		for _, ref := range refs {
			if l.PlatformID == ref.PlatformID && l.ExternalID == ref.ExternalID {
				out = append(out, *l)
				break
			}
		}
	}
	return out, nil
}

func (s *MemStore) LinksByObject(_ context.Context, objectID int64) ([]models.ObjectLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ObjectLink
	for _, l := range s.links {
		if l.ObjectID == objectID {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (s *MemStore) CreateLink(_ context.Context, objectID, platformID int64, externalID string) (*models.ObjectLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.links {
		if l.PlatformID == platformID && l.ExternalID == externalID {
			return nil, fmt.Errorf("duplicate link (%d, %q)", platformID, externalID)
		}
	}
	l := &models.ObjectLink{ID: s.id(), ObjectID: objectID, PlatformID: platformID, ExternalID: externalID}
	s.links = append(s.links, l)
	cp := *l
	return &cp, nil
}

func (s *MemStore) ReassignLinks(_ context.Context, fromObjectID, toObjectID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.links {
		if l.ObjectID == fromObjectID {
			l.ObjectID = toObjectID
		}
	}
	return nil
}

func (s *MemStore) ValuesByObject(_ context.Context, objectID int64) ([]models.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Value
	for _, v := range s.values {
		if v.ObjectID == objectID {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (s *MemStore) FindValue(_ context.Context, objectID int64, typ models.ValueType, text string) (*models.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.values {
		if v.ObjectID == objectID && v.Type == typ && v.Text == text {
			cp := *v
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemStore) CreateValue(_ context.Context, objectID int64, typ models.ValueType, text string) (*models.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.values {
		if v.ObjectID == objectID && v.Type == typ && v.Text == text {
			return nil, fmt.Errorf("duplicate value (%d, %s, %q)", objectID, typ, text)
		}
	}
	v := &models.Value{ID: s.id(), ObjectID: objectID, Type: typ, Text: text}
	s.values = append(s.values, v)
	cp := *v
	return &cp, nil
}

func (s *MemStore) ReassignValue(_ context.Context, valueID, toObjectID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.values {
		if v.ID == valueID {
			v.ObjectID = toObjectID
			return nil
		}
	}
	return fmt.Errorf("value %d not found", valueID)
}

func (s *MemStore) SourcesByValue(_ context.Context, valueID int64) ([]models.ValueSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ValueSource
	for _, src := range s.sources {
		if src.ValueID == valueID {
			out = append(out, *src)
		}
	}
	return out, nil
}

func (s *MemStore) UpsertSource(_ context.Context, valueID, platformID int64, scoreFactor int, comment *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, src := range s.sources {
		if src.ValueID == valueID && src.PlatformID == platformID {
			src.ScoreFactor = scoreFactor
			src.Comment = comment
			return nil
		}
	}
	s.sources = append(s.sources, &models.ValueSource{
		ValueID: valueID, PlatformID: platformID, ScoreFactor: scoreFactor, Comment: comment,
	})
	return nil
}

func (s *MemStore) MoveSources(_ context.Context, fromValueID, toValueID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := map[int64]bool{}
	for _, src := range s.sources {
		if src.ValueID == toValueID {
			existing[src.PlatformID] = true
		}
	}
	var kept []*models.ValueSource
	for _, src := range s.sources {
		if src.ValueID != fromValueID {
			kept = append(kept, src)
			continue
		}
		if existing[src.PlatformID] {
			continue // destination assertion wins
		}
		src.ValueID = toValueID
		kept = append(kept, src)
	}
	s.sources = kept
	return nil
}

func (s *MemStore) PlatformByID(_ context.Context, id int64) (*models.Platform, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.platforms[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (s *MemStore) PlatformBySlug(_ context.Context, slug string) (*models.Platform, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.platforms {
		if p.Slug == slug {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemStore) EpisodeByObject(_ context.Context, objectID int64) (*models.Episode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ep, ok := s.episodes[objectID]; ok {
		cp := *ep
		return &cp, nil
	}
	return nil, nil
}

func (s *MemStore) UpsertEpisode(_ context.Context, objectID, seriesID int64, season, episode int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.episodes[objectID] = &models.Episode{ObjectID: objectID, SeriesID: seriesID, Season: season, Episode: episode}
	return nil
}

func (s *MemStore) ReassignSeries(_ context.Context, fromSeriesID, toSeriesID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ep := range s.episodes {
		if ep.SeriesID == fromSeriesID {
			ep.SeriesID = toSeriesID
		}
	}
	return nil
}

func (s *MemStore) AttachScrap(_ context.Context, linkID int64, scrapID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.scraps[linkID] {
		if existing == scrapID {
			return nil
		}
	}
	s.scraps[linkID] = append(s.scraps[linkID], scrapID)
	return nil
}

func (s *MemStore) AttachImportFile(_ context.Context, fileID uuid.UUID, linkID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.fileLinks[fileID] {
		if existing == linkID {
			return nil
		}
	}
	s.fileLinks[fileID] = append(s.fileLinks[fileID], linkID)
	return nil
}

// ──────────────────── Test accessors ────────────────────

func (s *MemStore) ObjectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

func (s *MemStore) AllLinks() []models.ObjectLink {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ObjectLink, 0, len(s.links))
	for _, l := range s.links {
		out = append(out, *l)
	}
	return out
}

func (s *MemStore) AllValues() []models.Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Value, 0, len(s.values))
	for _, v := range s.values {
		out = append(out, *v)
	}
	return out
}

func (s *MemStore) AllSources() []models.ValueSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ValueSource, 0, len(s.sources))
	for _, src := range s.sources {
		out = append(out, *src)
	}
	return out
}

func (s *MemStore) AllPlatforms() []models.Platform {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Platform, 0, len(s.platforms))
	for _, p := range s.platforms {
		out = append(out, *p)
	}
	return out
}

func (s *MemStore) ScrapsOnLink(linkID int64) []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uuid.UUID(nil), s.scraps[linkID]...)
}

func (s *MemStore) FileLinks(fileID uuid.UUID) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.fileLinks[fileID]...)
}
