package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ──────────────────── Enums ────────────────────

// PlatformType classifies a data source by how it distributes content.
type PlatformType string

const (
	PlatformInfo   PlatformType = "info"   // information provider
	PlatformGlobal PlatformType = "global" // global identifier registry
	PlatformTVOD   PlatformType = "tvod"   // transactional VOD
	PlatformSVOD   PlatformType = "svod"   // subscription VOD
	PlatformAVOD   PlatformType = "avod"   // ad-supported VOD
)

func (t PlatformType) Valid() bool {
	switch t {
	case PlatformInfo, PlatformGlobal, PlatformTVOD, PlatformSVOD, PlatformAVOD:
		return true
	}
	return false
}

// ObjectType is the kind of real-world work an external object stands for.
type ObjectType string

const (
	ObjectPerson  ObjectType = "person"
	ObjectMovie   ObjectType = "movie"
	ObjectEpisode ObjectType = "episode"
	ObjectSeries  ObjectType = "series"
)

func (t ObjectType) Valid() bool {
	switch t {
	case ObjectPerson, ObjectMovie, ObjectEpisode, ObjectSeries:
		return true
	}
	return false
}

// ParseObjectType maps a case-insensitive name to an ObjectType.
func ParseObjectType(name string) (ObjectType, bool) {
	t := ObjectType(strings.ToLower(name))
	return t, t.Valid()
}

// ValueType is the kind of attribute a Value asserts.
type ValueType string

const (
	ValueTitle    ValueType = "title"
	ValueDate     ValueType = "date"
	ValueGenres   ValueType = "genres"
	ValueDuration ValueType = "duration"
	ValueName     ValueType = "name"
	ValueCountry  ValueType = "country"
)

// ValueTypes lists every attribute kind in declaration order.
var ValueTypes = []ValueType{ValueTitle, ValueDate, ValueGenres, ValueDuration, ValueName, ValueCountry}

func (t ValueType) Valid() bool {
	switch t {
	case ValueTitle, ValueDate, ValueGenres, ValueDuration, ValueName, ValueCountry:
		return true
	}
	return false
}

// ParseValueType maps a case-insensitive name to a ValueType.
func ParseValueType(name string) (ValueType, bool) {
	t := ValueType(strings.ToLower(name))
	return t, t.Valid()
}

// ImportFileStatus is the lifecycle state of an uploaded import file.
type ImportFileStatus string

const (
	ImportUploaded   ImportFileStatus = "uploaded"
	ImportProcessing ImportFileStatus = "processing"
	ImportDone       ImportFileStatus = "done"
	ImportFailed     ImportFileStatus = "failed"
)

// ──────────────────── Platform ────────────────────

// Platform is one data source: a VOD service, an information provider or a
// global identifier registry. BaseScore is its relative provenance weight.
type Platform struct {
	ID                int64        `json:"id" db:"id"`
	Slug              string       `json:"slug" db:"slug"`
	Name              string       `json:"name" db:"name"`
	Type              PlatformType `json:"type" db:"type"`
	Country           *string      `json:"country,omitempty" db:"country"`
	BaseScore         int          `json:"base_score" db:"base_score"`
	GroupID           *int64       `json:"group_id,omitempty" db:"group_id"`
	IgnoreInExports   bool         `json:"ignore_in_exports" db:"ignore_in_exports"`
	AllowLinksOverlap bool         `json:"allow_links_overlap" db:"allow_links_overlap"`
	CreatedAt         time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at" db:"updated_at"`
}

// PlatformGroup bundles related platforms (e.g. one operator's country feeds).
type PlatformGroup struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// ──────────────────── ExternalObject ────────────────────

// ExternalObject is a canonical catalog entity. Its type never changes once
// set; the object disappears only by being merged into another one.
type ExternalObject struct {
	ID        int64      `json:"id" db:"id"`
	Type      ObjectType `json:"type" db:"type"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// ObjectLink asserts that an external object is known on a platform under a
// given external id. (platform_id, external_id) is unique catalog-wide.
type ObjectLink struct {
	ID         int64  `json:"id" db:"id"`
	ObjectID   int64  `json:"object_id" db:"object_id"`
	PlatformID int64  `json:"platform_id" db:"platform_id"`
	ExternalID string `json:"external_id" db:"external_id"`
}

// Value is one asserted attribute text for an object.
// (object_id, type, text) is the natural key; re-assertions add sources.
type Value struct {
	ID       int64     `json:"id" db:"id"`
	ObjectID int64     `json:"object_id" db:"object_id"`
	Type     ValueType `json:"type" db:"type"`
	Text     string    `json:"text" db:"text"`
}

// ValueSource records that a platform asserted a value, with a per-assertion
// weight. The value's total score is Σ base_score × score_factor.
type ValueSource struct {
	ValueID     int64   `json:"value_id" db:"value_id"`
	PlatformID  int64   `json:"platform_id" db:"platform_id"`
	ScoreFactor int     `json:"score_factor" db:"score_factor"`
	Comment     *string `json:"comment,omitempty" db:"comment"`
}

// DefaultScoreFactor applies when an assertion does not carry its own factor.
const DefaultScoreFactor = 100

// Episode ties an EPISODE object to its SERIES object with season/episode
// numbers. The series reference is weak: resolved by id on demand.
type Episode struct {
	ObjectID int64 `json:"object_id" db:"object_id"`
	SeriesID int64 `json:"series_id" db:"series_id"`
	Season   int   `json:"season" db:"season"`
	Episode  int   `json:"episode" db:"episode"`
}

// ──────────────────── Scrap ────────────────────

// Scrap is one crawl of one platform. Object links touched by the crawl are
// attached to it for audit.
type Scrap struct {
	ID         uuid.UUID `json:"id" db:"id"`
	PlatformID int64     `json:"platform_id" db:"platform_id"`
	Date       time.Time `json:"date" db:"date"`
}

// ──────────────────── Import files ────────────────────

// ImportFile is an uploaded tabular file plus the metadata that drives its
// processing: a column→directive field map, the object type its rows
// describe, and the platform credited as source for asserted attributes.
type ImportFile struct {
	ID           uuid.UUID         `json:"id" db:"id"`
	Filename     string            `json:"filename" db:"filename"`
	Status       ImportFileStatus  `json:"status" db:"status"`
	Fields       map[string]string `json:"fields" db:"fields"`
	ImportedType ObjectType        `json:"imported_type" db:"imported_type"`
	PlatformID   *int64            `json:"platform_id,omitempty" db:"platform_id"`
	CreatedAt    time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at" db:"updated_at"`
}

// ImportFileLog is one audit line: the status an import file entered, when,
// and an optional message (error detail, row counts).
type ImportFileLog struct {
	ID        int64            `json:"id" db:"id"`
	FileID    uuid.UUID        `json:"file_id" db:"file_id"`
	Status    ImportFileStatus `json:"status" db:"status"`
	Message   *string          `json:"message,omitempty" db:"message"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
}
