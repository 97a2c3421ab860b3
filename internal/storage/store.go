// Package storage defines the persistence contract for registrations and events.
package storage

import "context"

// Store persists completed registrations, events and event sign-ups.
type Store interface {
	// AddRegistration inserts a registration atomically and returns its id.
	// A second call for the same external id fails with ErrAlreadyRegistered and leaves the first row intact.
	AddRegistration(ctx context.Context, reg NewRegistration) (int64, error)
	// GetRegistration returns ErrNotFound when the external id is unknown.
	GetRegistration(ctx context.Context, externalID int64) (Registration, error)
	// UpdateRegistration overwrites the profile fields; absent rows are left untouched without error.
	UpdateRegistration(ctx context.Context, externalID int64, p Profile) error
	Stats(ctx context.Context) (Stats, error)

	AddEvent(ctx context.Context, ev NewEvent) (int64, error)
	// ListEvents returns events ordered by date, earliest first.
	ListEvents(ctx context.Context) ([]Event, error)
	// RegisterForEvent signs a registration up for an event. Repeating a pair is a no-op.
	RegisterForEvent(ctx context.Context, registrationID, eventID int64) error
	RegistrationsForUser(ctx context.Context, registrationID int64) ([]UserEvent, error)
	RegistrationsForEvent(ctx context.Context, eventID int64) ([]Attendee, error)

	Close() error
}
