package event

import "errors"

var (
	// ErrListingUnsupported is returned when the configured storage backend
	// has no read path (the file backend).
	ErrListingUnsupported = errors.New("listing is not supported by this storage backend")

	// ErrStoreFailed wraps backend write failures that are surfaced to the
	// caller (blob and postgres backends).
	ErrStoreFailed = errors.New("failed to store event")
)
