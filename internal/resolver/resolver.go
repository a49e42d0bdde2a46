// Package resolver implements the entity resolution engine: the
// lookup-or-create / merge machinery that guarantees one canonical object
// per real-world work, and the attribute assertions that feed the scoring
// view. All operations run inside the caller's transaction via the Store
// interface; per-object row locks give per-entity linearizability.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/reelmatch/reelmatch/internal/models"
)

// Attribute is one assertion of an attribute value. Type is the raw name as
// submitted; it is coerced to a ValueType at assertion time so unknown names
// surface as UnknownAttributeError rather than silently creating garbage.
type Attribute struct {
	Type        string  `json:"type"`
	Text        string  `json:"text"`
	ScoreFactor *int    `json:"score_factor,omitempty"`
	Comment     *string `json:"comment,omitempty"`
}

// LinkInput is a (platform, external_id) pair with the platform given either
// by numeric id or by slug.
type LinkInput struct {
	PlatformID   int64  `json:"platform,omitempty"`
	PlatformSlug string `json:"platform_slug,omitempty"`
	ExternalID   string `json:"external_id"`
}

// InsertData is one scraped record: the declared type, the identity links,
// and the attributes the source asserted.
type InsertData struct {
	Type       models.ObjectType `json:"type"`
	Links      []LinkInput       `json:"links"`
	Attributes []Attribute       `json:"attributes,omitempty"`
	AnyType    bool              `json:"any_type,omitempty"`
}

// Engine drives resolution against one Store. Engines are cheap; create one
// per transaction.
type Engine struct {
	store Store
	log   *zap.SugaredLogger
}

func New(store Store, log *zap.SugaredLogger) *Engine {
	return &Engine{store: store, log: log}
}

// LookupFromLinks fetches every existing link matching any of refs and
// returns the single object they agree on. Zero matches returns (nil, nil);
// matches spread over several objects return an AmbiguousLinkError listing
// them in ascending id order.
func (e *Engine) LookupFromLinks(ctx context.Context, refs []LinkRef) (*models.ExternalObject, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	links, err := e.store.LinksByRefs(ctx, refs)
	if err != nil {
		return nil, fmt.Errorf("fetch links: %w", err)
	}
	if len(links) == 0 {
		return nil, nil
	}

	seen := map[int64]bool{}
	var ids []int64
	for _, l := range links {
		if !seen[l.ObjectID] {
			seen[l.ObjectID] = true
			ids = append(ids, l.ObjectID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	if err := e.store.LockObjects(ctx, ids...); err != nil {
		return nil, fmt.Errorf("lock objects: %w", err)
	}
	if len(ids) > 1 {
		return nil, &AmbiguousLinkError{ObjectIDs: ids}
	}
	obj, err := e.store.GetObject(ctx, ids[0])
	if err != nil {
		return nil, fmt.Errorf("fetch object %d: %w", ids[0], err)
	}
	return obj, nil
}

// LookupOrCreate resolves refs to exactly one object of the declared type,
// creating it when nothing matches and merging when the refs span several
// existing objects. On success every ref is present as a link of the result.
func (e *Engine) LookupOrCreate(ctx context.Context, typ models.ObjectType, refs []LinkRef) (*models.ExternalObject, error) {
	return e.lookupOrCreate(ctx, typ, refs, false)
}

func (e *Engine) lookupOrCreate(ctx context.Context, typ models.ObjectType, refs []LinkRef, anyType bool) (*models.ExternalObject, error) {
	if !typ.Valid() {
		return nil, fmt.Errorf("invalid object type %q", typ)
	}

	existing, err := e.LookupFromLinks(ctx, refs)
	var ambiguous *AmbiguousLinkError
	if errors.As(err, &ambiguous) {
		target := ambiguous.ObjectIDs[0]
		for _, id := range ambiguous.ObjectIDs[1:] {
			if err := e.MergeAndDelete(ctx, id, target); err != nil {
				return nil, err
			}
		}
		e.log.Infow("resolved ambiguous links by merge",
			"target", target, "merged", ambiguous.ObjectIDs[1:])
		existing, err = e.store.GetObject(ctx, target)
		if err != nil {
			return nil, fmt.Errorf("fetch merge target %d: %w", target, err)
		}
	} else if err != nil {
		return nil, err
	}

	if existing == nil {
		existing, err = e.store.CreateObject(ctx, typ)
		if err != nil {
			return nil, fmt.Errorf("create object: %w", err)
		}
		e.log.Debugw("created object", "id", existing.ID, "type", typ)
	} else if existing.Type != typ && !anyType {
		return nil, &TypeMismatchError{ObjectID: existing.ID, Have: existing.Type, Want: typ}
	}

	if err := e.AddMissingLinks(ctx, existing, refs); err != nil {
		return nil, err
	}
	return existing, nil
}

// AddMissingLinks appends every ref the object does not yet carry. A ref
// whose platform already links the object under a different external id
// fails with ExternalIDMismatchError unless the platform allows overlap.
func (e *Engine) AddMissingLinks(ctx context.Context, obj *models.ExternalObject, refs []LinkRef) error {
	links, err := e.store.LinksByObject(ctx, obj.ID)
	if err != nil {
		return fmt.Errorf("fetch links of %d: %w", obj.ID, err)
	}
	byPlatform := map[int64][]models.ObjectLink{}
	for _, l := range links {
		byPlatform[l.PlatformID] = append(byPlatform[l.PlatformID], l)
	}

	for _, ref := range refs {
		existing := byPlatform[ref.PlatformID]
		if hasExternalID(existing, ref.ExternalID) {
			continue
		}
		if len(existing) > 0 {
			platform, err := e.store.PlatformByID(ctx, ref.PlatformID)
			if err != nil {
				return fmt.Errorf("fetch platform %d: %w", ref.PlatformID, err)
			}
			if platform == nil || !platform.AllowLinksOverlap {
				return &ExternalIDMismatchError{
					ObjectID:   obj.ID,
					PlatformID: ref.PlatformID,
					Have:       existing[0].ExternalID,
					Want:       ref.ExternalID,
				}
			}
		}
		link, err := e.store.CreateLink(ctx, obj.ID, ref.PlatformID, ref.ExternalID)
		if err != nil {
			return fmt.Errorf("create link (%d, %q) on object %d: %w",
				ref.PlatformID, ref.ExternalID, obj.ID, err)
		}
		byPlatform[ref.PlatformID] = append(byPlatform[ref.PlatformID], *link)
	}
	return nil
}

// MergeAndDelete folds the object selfID into otherID: links move over,
// values move over or, when other already asserts the same (type, text),
// contribute their sources to the existing value. self is then deleted and
// the cascade removes whatever is left. Both objects must share a type and
// must not share platforms that forbid link overlap.
func (e *Engine) MergeAndDelete(ctx context.Context, selfID, otherID int64) error {
	lo, hi := selfID, otherID
	if lo > hi {
		lo, hi = hi, lo
	}
	if err := e.store.LockObjects(ctx, lo, hi); err != nil {
		return fmt.Errorf("lock merge pair: %w", err)
	}

	self, err := e.store.GetObject(ctx, selfID)
	if err != nil {
		return fmt.Errorf("fetch object %d: %w", selfID, err)
	}
	other, err := e.store.GetObject(ctx, otherID)
	if err != nil {
		return fmt.Errorf("fetch object %d: %w", otherID, err)
	}
	if self == nil {
		return &ObjectNotFoundError{ObjectID: selfID}
	}
	if other == nil {
		return &ObjectNotFoundError{ObjectID: otherID}
	}
	if self.Type != other.Type {
		return &TypeMismatchError{ObjectID: other.ID, Have: other.Type, Want: self.Type}
	}

	if err := e.checkMergeable(ctx, self, other); err != nil {
		return err
	}

	if err := e.store.ReassignLinks(ctx, self.ID, other.ID); err != nil {
		return fmt.Errorf("reassign links %d→%d: %w", self.ID, other.ID, err)
	}

	values, err := e.store.ValuesByObject(ctx, self.ID)
	if err != nil {
		return fmt.Errorf("fetch values of %d: %w", self.ID, err)
	}
	for _, v := range values {
		dup, err := e.store.FindValue(ctx, other.ID, v.Type, v.Text)
		if err != nil {
			return fmt.Errorf("find value (%s, %q) on %d: %w", v.Type, v.Text, other.ID, err)
		}
		if dup != nil {
			if err := e.store.MoveSources(ctx, v.ID, dup.ID); err != nil {
				return fmt.Errorf("move sources %d→%d: %w", v.ID, dup.ID, err)
			}
			continue
		}
		if err := e.store.ReassignValue(ctx, v.ID, other.ID); err != nil {
			return fmt.Errorf("reassign value %d→%d: %w", v.ID, other.ID, err)
		}
	}

	if err := e.mergeEpisodeMetadata(ctx, self, other); err != nil {
		return err
	}

	if err := e.store.DeleteObject(ctx, self.ID); err != nil {
		return fmt.Errorf("delete merged object %d: %w", self.ID, err)
	}
	e.log.Infow("merged objects", "from", self.ID, "into", other.ID, "type", self.Type)
	return nil
}

// checkMergeable enforces the link-overlap precondition. Platforms with
// allow_links_overlap are exempt and may end up with several links on the
// merged object.
func (e *Engine) checkMergeable(ctx context.Context, self, other *models.ExternalObject) error {
	selfLinks, err := e.store.LinksByObject(ctx, self.ID)
	if err != nil {
		return fmt.Errorf("fetch links of %d: %w", self.ID, err)
	}
	otherLinks, err := e.store.LinksByObject(ctx, other.ID)
	if err != nil {
		return fmt.Errorf("fetch links of %d: %w", other.ID, err)
	}

	otherPlatforms := map[int64]bool{}
	for _, l := range otherLinks {
		otherPlatforms[l.PlatformID] = true
	}

	var shared []int64
	seen := map[int64]bool{}
	for _, l := range selfLinks {
		if !otherPlatforms[l.PlatformID] || seen[l.PlatformID] {
			continue
		}
		seen[l.PlatformID] = true
		platform, err := e.store.PlatformByID(ctx, l.PlatformID)
		if err != nil {
			return fmt.Errorf("fetch platform %d: %w", l.PlatformID, err)
		}
		if platform != nil && platform.AllowLinksOverlap {
			continue
		}
		shared = append(shared, l.PlatformID)
	}
	if len(shared) > 0 {
		sort.Slice(shared, func(i, j int) bool { return shared[i] < shared[j] })
		return &IncompatibleMergeError{SelfID: self.ID, OtherID: other.ID, PlatformIDs: shared}
	}
	return nil
}

func (e *Engine) mergeEpisodeMetadata(ctx context.Context, self, other *models.ExternalObject) error {
	switch self.Type {
	case models.ObjectEpisode:
		ep, err := e.store.EpisodeByObject(ctx, self.ID)
		if err != nil {
			return fmt.Errorf("fetch episode row of %d: %w", self.ID, err)
		}
		if ep == nil {
			return nil
		}
		existing, err := e.store.EpisodeByObject(ctx, other.ID)
		if err != nil {
			return fmt.Errorf("fetch episode row of %d: %w", other.ID, err)
		}
		if existing != nil {
			return nil // the surviving object's numbering wins
		}
		if err := e.store.UpsertEpisode(ctx, other.ID, ep.SeriesID, ep.Season, ep.Episode); err != nil {
			return fmt.Errorf("move episode row %d→%d: %w", self.ID, other.ID, err)
		}
	case models.ObjectSeries:
		if err := e.store.ReassignSeries(ctx, self.ID, other.ID); err != nil {
			return fmt.Errorf("reassign series %d→%d: %w", self.ID, other.ID, err)
		}
	}
	return nil
}

// AddAttribute asserts one attribute value from one platform. The value is
// located or created under its natural key; the (value, platform) source is
// created or, on re-assertion, its score factor updated. Text is stored
// verbatim; normalization is a read-side concern of the scoring view.
func (e *Engine) AddAttribute(ctx context.Context, objectID int64, attr Attribute, platformID int64) error {
	typ, ok := models.ParseValueType(attr.Type)
	if !ok {
		return &UnknownAttributeError{Name: attr.Type}
	}
	if attr.Text == "" {
		return nil
	}

	value, err := e.store.FindValue(ctx, objectID, typ, attr.Text)
	if err != nil {
		return fmt.Errorf("find value (%s, %q) on %d: %w", typ, attr.Text, objectID, err)
	}
	if value == nil {
		value, err = e.store.CreateValue(ctx, objectID, typ, attr.Text)
		if err != nil {
			return fmt.Errorf("create value (%s, %q) on %d: %w", typ, attr.Text, objectID, err)
		}
	}

	factor := models.DefaultScoreFactor
	if attr.ScoreFactor != nil {
		factor = *attr.ScoreFactor
	}
	if err := e.store.UpsertSource(ctx, value.ID, platformID, factor, attr.Comment); err != nil {
		return fmt.Errorf("upsert source (%d, %d): %w", value.ID, platformID, err)
	}
	return nil
}

// InsertDict is the end-to-end import of one scraped record: resolve the
// identity, assert the attributes, attach the scrap to the link it came
// through. Unknown attribute names are logged and skipped; every other
// failure aborts the record. With a nil scrap the attributes are credited
// to the platform of the first link and no audit row is attached.
func (e *Engine) InsertDict(ctx context.Context, data InsertData, scrap *models.Scrap) (*models.ExternalObject, error) {
	refs, err := e.ResolveRefs(ctx, data.Links)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, fmt.Errorf("insert needs at least one link")
	}

	obj, err := e.lookupOrCreate(ctx, data.Type, refs, data.AnyType)
	if err != nil {
		return nil, err
	}

	sourceID := refs[0].PlatformID
	if scrap != nil {
		sourceID = scrap.PlatformID
	}
	for _, attr := range data.Attributes {
		err := e.AddAttribute(ctx, obj.ID, attr, sourceID)
		var unknown *UnknownAttributeError
		if errors.As(err, &unknown) {
			e.log.Warnw("skipping unknown attribute", "object", obj.ID, "name", unknown.Name)
			continue
		}
		if err != nil {
			return nil, err
		}
	}

	if scrap == nil {
		return obj, nil
	}

	links, err := e.store.LinksByObject(ctx, obj.ID)
	if err != nil {
		return nil, fmt.Errorf("fetch links of %d: %w", obj.ID, err)
	}
	var scrapLink *models.ObjectLink
	for i, l := range links {
		if l.PlatformID == scrap.PlatformID {
			scrapLink = &links[i]
			break
		}
	}
	if scrapLink == nil {
		return nil, &LinkNotFoundError{ObjectID: obj.ID, PlatformID: scrap.PlatformID}
	}
	if err := e.store.AttachScrap(ctx, scrapLink.ID, scrap.ID); err != nil {
		return nil, fmt.Errorf("attach scrap %s to link %d: %w", scrap.ID, scrapLink.ID, err)
	}
	return obj, nil
}

// ResolveRefs turns link inputs (platform by id or slug) into LinkRefs.
// Numeric selectors that do not exist fail with PlatformNotFoundError;
// unknown slugs fail the same way; at this layer the caller cannot act on
// the distinction the registry offers.
func (e *Engine) ResolveRefs(ctx context.Context, links []LinkInput) ([]LinkRef, error) {
	refs := make([]LinkRef, 0, len(links))
	for _, in := range links {
		var platform *models.Platform
		var err error
		var selector string
		if in.PlatformSlug != "" {
			selector = in.PlatformSlug
			platform, err = e.store.PlatformBySlug(ctx, in.PlatformSlug)
		} else {
			selector = fmt.Sprintf("%d", in.PlatformID)
			platform, err = e.store.PlatformByID(ctx, in.PlatformID)
		}
		if err != nil {
			return nil, fmt.Errorf("resolve platform %s: %w", selector, err)
		}
		if platform == nil {
			return nil, &PlatformNotFoundError{Selector: selector}
		}
		refs = append(refs, LinkRef{PlatformID: platform.ID, ExternalID: in.ExternalID})
	}
	return refs, nil
}

func hasExternalID(links []models.ObjectLink, externalID string) bool {
	for _, l := range links {
		if l.ExternalID == externalID {
			return true
		}
	}
	return false
}
