package resolver

import (
	"context"

	"github.com/google/uuid"

	"github.com/reelmatch/reelmatch/internal/models"
)

// LinkRef identifies an object on one platform: the (platform, external_id)
// half of an ObjectLink, before we know which object it belongs to.
type LinkRef struct {
	PlatformID int64
	ExternalID string
}

// Store is the transactional surface the engine drives. Production code
// backs it with a repository bound to one *sql.Tx; tests back it with the
// in-memory store from internal/testsupport. All methods that look up a
// single row return (nil, nil) when the row does not exist.
type Store interface {
	// Objects.
	GetObject(ctx context.Context, id int64) (*models.ExternalObject, error)
	CreateObject(ctx context.Context, typ models.ObjectType) (*models.ExternalObject, error)
	// DeleteObject cascades to the object's links, values and their sources.
	DeleteObject(ctx context.Context, id int64) error
	// LockObjects takes row locks on the given objects. Callers must pass
	// ids in ascending order so concurrent merges cannot deadlock.
	LockObjects(ctx context.Context, ids ...int64) error

	// Links.
	LinksByRefs(ctx context.Context, refs []LinkRef) ([]models.ObjectLink, error)
	LinksByObject(ctx context.Context, objectID int64) ([]models.ObjectLink, error)
	CreateLink(ctx context.Context, objectID, platformID int64, externalID string) (*models.ObjectLink, error)
	ReassignLinks(ctx context.Context, fromObjectID, toObjectID int64) error

	// Values and sources.
	ValuesByObject(ctx context.Context, objectID int64) ([]models.Value, error)
	FindValue(ctx context.Context, objectID int64, typ models.ValueType, text string) (*models.Value, error)
	CreateValue(ctx context.Context, objectID int64, typ models.ValueType, text string) (*models.Value, error)
	ReassignValue(ctx context.Context, valueID, toObjectID int64) error
	SourcesByValue(ctx context.Context, valueID int64) ([]models.ValueSource, error)
	// UpsertSource creates the (value, platform) source or, when it already
	// exists, updates its score factor and comment.
	UpsertSource(ctx context.Context, valueID, platformID int64, scoreFactor int, comment *string) error
	// MoveSources repoints every source of fromValue to toValue. Sources
	// whose platform already asserted toValue are dropped: the destination
	// assertion wins.
	MoveSources(ctx context.Context, fromValueID, toValueID int64) error

	// Platforms (read-only here; the registry owns writes).
	PlatformByID(ctx context.Context, id int64) (*models.Platform, error)
	PlatformBySlug(ctx context.Context, slug string) (*models.Platform, error)

	// Episodes.
	EpisodeByObject(ctx context.Context, objectID int64) (*models.Episode, error)
	UpsertEpisode(ctx context.Context, objectID, seriesID int64, season, episode int) error
	// ReassignSeries repoints episodes of one series to another; used when a
	// SERIES object is merged away.
	ReassignSeries(ctx context.Context, fromSeriesID, toSeriesID int64) error

	// Audit.
	AttachScrap(ctx context.Context, linkID int64, scrapID uuid.UUID) error
}
