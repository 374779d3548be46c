package entity

import "errors"

// Domain errors for the entity package.
//
// Check with errors.Is; the underlying driver error stays in the chain.
var (
	// ErrStoreWrite is returned when an upsert fails.
	ErrStoreWrite = errors.New("entity: store write failed")

	// ErrStoreRead is returned when reading records fails.
	ErrStoreRead = errors.New("entity: store read failed")

	// ErrUnknownKey is returned when a key does not name a known entity.
	ErrUnknownKey = errors.New("entity: unknown key")
)
