package models

import "github.com/google/uuid"

// NewLocalID generates a local entity identifier. Local ids are minted
// client-side before the remote has seen the entity.
func NewLocalID() string {
	return uuid.NewString()
}

// NewToken generates an opaque mutation id.
func NewToken() string {
	return uuid.NewString()
}
