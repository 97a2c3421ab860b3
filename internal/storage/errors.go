package storage

import "errors"

var (
	// ErrNotFound is returned when no registration exists for the external id.
	ErrNotFound = errors.New("storage: registration not found")
	// ErrAlreadyRegistered is returned when the external id already has a registration.
	ErrAlreadyRegistered = errors.New("storage: already registered")
	// ErrEventNotFound is returned when the referenced event does not exist.
	ErrEventNotFound = errors.New("storage: event not found")
)
