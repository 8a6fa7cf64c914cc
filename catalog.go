package reveal

import (
	"context"
	"time"
)

// Asset is an opaque handle to one photo in the library.
// ID is meaningful only to the Library and ImageSource that produced it.
type Asset struct {
	ID      string
	Created time.Time
}

// Catalog is a read-only ordered collection of assets.
// A catalog is never mutated; a new authorization produces a new Catalog.
type Catalog interface {
	Len() int
	At(i int) Asset
}

// sliceCatalog is the Catalog returned by NewCatalog.
type sliceCatalog []Asset

func (c sliceCatalog) Len() int       { return len(c) }
func (c sliceCatalog) At(i int) Asset { return c[i] }

// NewCatalog returns a Catalog over a copy of assets.
func NewCatalog(assets []Asset) Catalog {
	c := make(sliceCatalog, len(assets))
	copy(c, assets)
	return c
}

// EmptyCatalog is the catalog of an unauthorized or empty library.
var EmptyCatalog Catalog = sliceCatalog(nil)

// catalogLen returns the length of c, treating nil as empty.
func catalogLen(c Catalog) int {
	if c == nil {
		return 0
	}
	return c.Len()
}

// AuthStatus is the outcome of a library authorization request.
type AuthStatus uint8

const (
	// AuthDenied means no assets may be read.
	AuthDenied AuthStatus = iota
	// AuthLimited means a user-selected subset may be read.
	AuthLimited
	// AuthGranted means the whole library may be read.
	AuthGranted
)

// String returns a string representation of the status.
func (s AuthStatus) String() string {
	switch s {
	case AuthDenied:
		return "denied"
	case AuthLimited:
		return "limited"
	case AuthGranted:
		return "granted"
	default:
		return "unknown"
	}
}

// Readable reports whether the status allows fetching a catalog.
func (s AuthStatus) Readable() bool {
	return s == AuthGranted || s == AuthLimited
}

// SortOrder selects catalog ordering.
type SortOrder uint8

const (
	// SortCreationDesc orders newest first.
	SortCreationDesc SortOrder = iota
	// SortCreationAsc orders oldest first.
	SortCreationAsc
)

// Library is the platform photo library.
type Library interface {
	Authorize(ctx context.Context) (AuthStatus, error)
	FetchCatalog(ctx context.Context, order SortOrder) (Catalog, error)
}
