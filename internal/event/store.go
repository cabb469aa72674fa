package event

import "context"

// Receipt is the backend acknowledgement for one stored record. Confirmed
// distinguishes durably written records from fire-and-forget appends whose
// failure is only logged.
type Receipt struct {
	Backend   string
	Location  string
	Confirmed bool
}

// Store persists one canonical record under a page partition. Exactly one
// implementation is configured per deployment; backends are never mixed.
type Store interface {
	Store(ctx context.Context, page string, rec *Record) (*Receipt, error)
}

// Lister is the optional read capability of a Store. The file backend does
// not implement it.
type Lister interface {
	// List returns up to limit stored records, optionally filtered by page
	// category (empty page lists everything). Order is whatever the backend
	// returns; individually unreadable records are dropped, not errors.
	List(ctx context.Context, page string, limit int) ([]*StoredRecord, error)
}
