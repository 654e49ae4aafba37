package domain

import "context"

// ProfileStore is the document store holding one profile record per user.
type ProfileStore interface {
	// Get returns the record for uid, or nil and no error when none exists.
	Get(ctx context.Context, uid string) (*Profile, error)
	// Merge writes fields into the record for uid, creating it if needed.
	Merge(ctx context.Context, uid string, fields ProfileFields) error
}
