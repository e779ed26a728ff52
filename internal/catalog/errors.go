package catalog

import "errors"

var (
	// ErrCatalogNotFound is returned when a channel has no backing index file.
	ErrCatalogNotFound = errors.New("catalog not found")
	// ErrInvalidCatalog is returned for malformed entries or a catalog whose
	// total duration is not positive.
	ErrInvalidCatalog = errors.New("invalid catalog")
	// ErrEmptyCatalog is returned when a catalog lists no segments.
	ErrEmptyCatalog = errors.New("empty catalog")
)
