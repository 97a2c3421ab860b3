package storage

import "time"

// Profile holds the mutable fields collected by the registration dialog.
type Profile struct {
	FullName  string `db:"full_name"`
	Email     string `db:"email"`
	Phone     string `db:"phone"`
	BirthDate string `db:"birth_date"`
}

// NewRegistration is the payload committed when a user confirms the dialog.
type NewRegistration struct {
	ExternalID int64
	Profile
}

// Registration is a stored user record.
type Registration struct {
	ID           int64     `db:"id"`
	ExternalID   int64     `db:"external_id"`
	Profile                // flattened columns
	RegisteredAt time.Time `db:"registered_at"`
}

// NewEvent describes an event to be created.
type NewEvent struct {
	Title       string
	Description string
	Date        time.Time
	Location    string
}

// Event is a stored event.
type Event struct {
	ID          int64     `db:"id"`
	Title       string    `db:"title"`
	Description string    `db:"description"`
	Date        time.Time `db:"date"`
	Location    string    `db:"location"`
	CreatedAt   time.Time `db:"created_at"`
}

// UserEvent is an event joined by a user.
type UserEvent struct {
	EventID      int64     `db:"event_id"`
	Title        string    `db:"title"`
	Description  string    `db:"description"`
	Date         time.Time `db:"date"`
	Location     string    `db:"location"`
	RegisteredAt time.Time `db:"registered_at"`
}

// Attendee is a registered user signed up for an event.
type Attendee struct {
	Profile
	RegisteredAt time.Time `db:"registered_at"`
}

// Stats holds aggregate counters; all zero on an empty store.
type Stats struct {
	TotalUsers         int `db:"total_users"`
	TotalEvents        int `db:"total_events"`
	TotalRegistrations int `db:"total_registrations"`
}
