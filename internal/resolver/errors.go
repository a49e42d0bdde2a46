package resolver

import (
	"fmt"

	"github.com/reelmatch/reelmatch/internal/models"
)

// Stable error kinds. API handlers map these to HTTP classes; everything
// else (transient store errors included) is treated as internal.
const (
	KindAmbiguousLink       = "AMBIGUOUS_LINK"
	KindObjectTypeMismatch  = "OBJECT_TYPE_MISMATCH"
	KindExternalIDMismatch  = "EXTERNAL_ID_MISMATCH"
	KindUnknownAttribute    = "UNKNOWN_ATTRIBUTE"
	KindLinkNotFound        = "LINK_NOT_FOUND"
	KindIncompatibleMerge   = "INCOMPATIBLE_MERGE"
	KindObjectNotFound      = "OBJECT_NOT_FOUND"
	KindPlatformNotFound    = "PLATFORM_NOT_FOUND"
)

// Kinder is implemented by every error that carries a stable kind tag.
// The import pipeline's InvalidStatusTransition implements it too, so the
// API layer can classify failures without knowing each concrete type.
type Kinder interface {
	Kind() string
}

// AmbiguousLinkError reports that a submitted link set matched two or more
// distinct objects. LookupOrCreate resolves it internally by merging; it
// escapes to callers only when a merge precondition fails.
type AmbiguousLinkError struct {
	ObjectIDs []int64 // ascending
}

func (e *AmbiguousLinkError) Error() string {
	return fmt.Sprintf("links match %d distinct objects %v", len(e.ObjectIDs), e.ObjectIDs)
}

func (e *AmbiguousLinkError) Kind() string { return KindAmbiguousLink }

// TypeMismatchError reports that a resolved object's type differs from the
// declared one.
type TypeMismatchError struct {
	ObjectID int64
	Have     models.ObjectType
	Want     models.ObjectType
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("object %d is %s, not %s", e.ObjectID, e.Have, e.Want)
}

func (e *TypeMismatchError) Kind() string { return KindObjectTypeMismatch }

// ExternalIDMismatchError reports that an object already carries a different
// external id on a platform that forbids link overlap.
type ExternalIDMismatchError struct {
	ObjectID   int64
	PlatformID int64
	Have       string
	Want       string
}

func (e *ExternalIDMismatchError) Error() string {
	return fmt.Sprintf("object %d already linked on platform %d as %q, refusing %q",
		e.ObjectID, e.PlatformID, e.Have, e.Want)
}

func (e *ExternalIDMismatchError) Kind() string { return KindExternalIDMismatch }

// UnknownAttributeError reports an attribute name outside the ValueType enum.
type UnknownAttributeError struct {
	Name string
}

func (e *UnknownAttributeError) Error() string {
	return fmt.Sprintf("unknown attribute type %q", e.Name)
}

func (e *UnknownAttributeError) Kind() string { return KindUnknownAttribute }

// LinkNotFoundError reports that the link a scrap record should attach to
// does not exist.
type LinkNotFoundError struct {
	ObjectID   int64
	PlatformID int64
}

func (e *LinkNotFoundError) Error() string {
	return fmt.Sprintf("object %d has no link on platform %d", e.ObjectID, e.PlatformID)
}

func (e *LinkNotFoundError) Kind() string { return KindLinkNotFound }

// IncompatibleMergeError reports that two objects share platforms that forbid
// link overlap, so merging them would break link uniqueness.
type IncompatibleMergeError struct {
	SelfID      int64
	OtherID     int64
	PlatformIDs []int64
}

func (e *IncompatibleMergeError) Error() string {
	return fmt.Sprintf("objects %d and %d share platforms %v", e.SelfID, e.OtherID, e.PlatformIDs)
}

func (e *IncompatibleMergeError) Kind() string { return KindIncompatibleMerge }

// ObjectNotFoundError reports a dangling object id, e.g. an
// external_object_id import column referencing a deleted object.
type ObjectNotFoundError struct {
	ObjectID int64
}

func (e *ObjectNotFoundError) Error() string {
	return fmt.Sprintf("external object %d not found", e.ObjectID)
}

func (e *ObjectNotFoundError) Kind() string { return KindObjectNotFound }

// PlatformNotFoundError reports an unresolvable platform selector.
type PlatformNotFoundError struct {
	Selector string
}

func (e *PlatformNotFoundError) Error() string {
	return fmt.Sprintf("platform %q not found", e.Selector)
}

func (e *PlatformNotFoundError) Kind() string { return KindPlatformNotFound }
