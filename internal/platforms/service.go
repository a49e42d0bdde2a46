// Package platforms is the registry of data sources. Platforms are
// read-mostly: every import row consults them, operators touch them rarely.
// A small redis read-through cache keeps the hot lookups off the database;
// the service degrades to plain repository reads when redis is absent.
package platforms

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/reelmatch/reelmatch/internal/models"
	"github.com/reelmatch/reelmatch/internal/repository"
)

const cacheTTL = 5 * time.Minute

type Service struct {
	repo  *repository.PlatformRepository
	cache *redis.Client // nil disables caching
	log   *zap.SugaredLogger
}

func NewService(repo *repository.PlatformRepository, cache *redis.Client, log *zap.SugaredLogger) *Service {
	return &Service{repo: repo, cache: cache, log: log}
}

// Lookup resolves a numeric id or slug selector. Numeric ids that match
// nothing fail with PlatformNotFoundError; unknown slugs return (nil, nil).
func (s *Service) Lookup(ctx context.Context, selector string) (*models.Platform, error) {
	return s.repo.Lookup(selector)
}

func (s *Service) GetByID(ctx context.Context, id int64) (*models.Platform, error) {
	return s.cached(ctx, fmt.Sprintf("platform:id:%d", id), func() (*models.Platform, error) {
		return s.repo.GetByID(id)
	})
}

func (s *Service) GetBySlug(ctx context.Context, slug string) (*models.Platform, error) {
	return s.cached(ctx, "platform:slug:"+slug, func() (*models.Platform, error) {
		return s.repo.GetBySlug(slug)
	})
}

func (s *Service) List(ctx context.Context) ([]*models.Platform, error) {
	return s.repo.List()
}

func (s *Service) Create(ctx context.Context, p *models.Platform) error {
	if !p.Type.Valid() {
		return fmt.Errorf("invalid platform type %q", p.Type)
	}
	if p.BaseScore < 0 {
		return fmt.Errorf("base_score must be non-negative")
	}
	if err := s.repo.Create(p); err != nil {
		return err
	}
	s.invalidate(ctx, p)
	return nil
}

func (s *Service) Update(ctx context.Context, p *models.Platform) error {
	if !p.Type.Valid() {
		return fmt.Errorf("invalid platform type %q", p.Type)
	}
	if p.BaseScore < 0 {
		return fmt.Errorf("base_score must be non-negative")
	}
	if err := s.repo.Update(p); err != nil {
		return err
	}
	s.invalidate(ctx, p)
	return nil
}

// Delete removes a platform; links and value sources cascade away, the
// external objects stay.
func (s *Service) Delete(ctx context.Context, id int64) error {
	p, err := s.repo.GetByID(id)
	if err != nil {
		return err
	}
	if p == nil {
		return nil
	}
	if err := s.repo.Delete(id); err != nil {
		return err
	}
	s.invalidate(ctx, p)
	return nil
}

func (s *Service) CreateGroup(ctx context.Context, g *models.PlatformGroup) error {
	return s.repo.CreateGroup(g)
}

func (s *Service) DeleteGroup(ctx context.Context, id int64) error {
	return s.repo.DeleteGroup(id)
}

func (s *Service) ListGroups(ctx context.Context) ([]*models.PlatformGroup, error) {
	return s.repo.ListGroups()
}

func (s *Service) GroupMembers(ctx context.Context, groupID int64) ([]*models.Platform, error) {
	return s.repo.GroupMembers(groupID)
}

func (s *Service) cached(ctx context.Context, key string, load func() (*models.Platform, error)) (*models.Platform, error) {
	if s.cache == nil {
		return load()
	}
	if raw, err := s.cache.Get(ctx, key).Bytes(); err == nil {
		p := &models.Platform{}
		if err := json.Unmarshal(raw, p); err == nil {
			return p, nil
		}
	}
	p, err := load()
	if err != nil || p == nil {
		return p, err
	}
	if raw, err := json.Marshal(p); err == nil {
		if err := s.cache.Set(ctx, key, raw, cacheTTL).Err(); err != nil {
			s.log.Debugw("platform cache write failed", "key", key, "error", err)
		}
	}
	return p, nil
}

func (s *Service) invalidate(ctx context.Context, p *models.Platform) {
	if s.cache == nil {
		return
	}
	keys := []string{fmt.Sprintf("platform:id:%d", p.ID), "platform:slug:" + p.Slug}
	if err := s.cache.Del(ctx, keys...).Err(); err != nil {
		s.log.Debugw("platform cache invalidation failed", "platform", p.ID, "error", err)
	}
}
