package export

import "errors"

var (
	// ErrCatalogUnavailable means the prompt catalog could not be consulted,
	// so no export record could be computed.
	ErrCatalogUnavailable = errors.New("prompt catalog unavailable")

	// ErrInvalidRecord means a serializer was handed a structurally incomplete record.
	ErrInvalidRecord = errors.New("invalid export record")

	// ErrUnknownFormat means the requested output format is not supported.
	ErrUnknownFormat = errors.New("unknown export format")
)
