// Package sqlstore implements storage.Store on top of sqlx for PostgreSQL and SQLite.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/m3rciful/regbot/internal/storage"
)

// Store is a storage.Store backed by a SQL database. Queries are written with
// '?' placeholders and rebound for the connected driver.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the clock used for registration and sign-up timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New wraps an open connection whose schema is already migrated.
func New(db *sqlx.DB, opts ...Option) *Store {
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) q(query string) string {
	return s.db.Rebind(query)
}

func (s *Store) stamp() time.Time {
	return s.now().UTC()
}

// AddRegistration implements storage.Store. The conflict clause makes the
// duplicate check and the insert one atomic statement.
func (s *Store) AddRegistration(ctx context.Context, reg storage.NewRegistration) (int64, error) {
	var id int64
	err := s.db.QueryRowxContext(ctx, s.q(`
		INSERT INTO users (external_id, full_name, email, phone, birth_date, registered_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (external_id) DO NOTHING
		RETURNING id`),
		reg.ExternalID, reg.FullName, reg.Email, reg.Phone, reg.BirthDate, s.stamp(),
	).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows), isUniqueViolation(err):
		return 0, storage.ErrAlreadyRegistered
	case err != nil:
		return 0, fmt.Errorf("add registration: %w", err)
	}
	return id, nil
}

// GetRegistration implements storage.Store.
func (s *Store) GetRegistration(ctx context.Context, externalID int64) (storage.Registration, error) {
	var reg storage.Registration
	err := s.db.GetContext(ctx, &reg, s.q(`
		SELECT id, external_id, full_name, email, phone, birth_date, registered_at
		FROM users WHERE external_id = ?`), externalID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return storage.Registration{}, storage.ErrNotFound
	case err != nil:
		return storage.Registration{}, fmt.Errorf("get registration: %w", err)
	}
	return reg, nil
}

// UpdateRegistration implements storage.Store.
func (s *Store) UpdateRegistration(ctx context.Context, externalID int64, p storage.Profile) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		UPDATE users SET full_name = ?, email = ?, phone = ?, birth_date = ?
		WHERE external_id = ?`),
		p.FullName, p.Email, p.Phone, p.BirthDate, externalID,
	)
	if err != nil {
		return fmt.Errorf("update registration: %w", err)
	}
	return nil
}

// Stats implements storage.Store.
func (s *Store) Stats(ctx context.Context) (storage.Stats, error) {
	var st storage.Stats
	err := s.db.GetContext(ctx, &st, `
		SELECT
			(SELECT COUNT(*) FROM users) AS total_users,
			(SELECT COUNT(*) FROM events) AS total_events,
			(SELECT COUNT(*) FROM event_registrations) AS total_registrations`)
	if err != nil {
		return storage.Stats{}, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}

// AddEvent implements storage.Store.
func (s *Store) AddEvent(ctx context.Context, ev storage.NewEvent) (int64, error) {
	var id int64
	err := s.db.QueryRowxContext(ctx, s.q(`
		INSERT INTO events (title, description, date, location, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`),
		ev.Title, ev.Description, ev.Date.UTC(), ev.Location, s.stamp(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("add event: %w", err)
	}
	return id, nil
}

// ListEvents implements storage.Store.
func (s *Store) ListEvents(ctx context.Context) ([]storage.Event, error) {
	evs := []storage.Event{}
	err := s.db.SelectContext(ctx, &evs, `
		SELECT id, title, description, date, location, created_at
		FROM events ORDER BY date, id`)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return evs, nil
}

// RegisterForEvent implements storage.Store. Both references are checked in
// the same transaction as the insert so the sentinel errors stay accurate.
func (s *Store) RegisterForEvent(ctx context.Context, registrationID, eventID int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("register for event: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.GetContext(ctx, &exists, tx.Rebind(`SELECT EXISTS (SELECT 1 FROM users WHERE id = ?)`), registrationID); err != nil {
		return fmt.Errorf("register for event: user lookup: %w", err)
	}
	if !exists {
		return storage.ErrNotFound
	}
	if err := tx.GetContext(ctx, &exists, tx.Rebind(`SELECT EXISTS (SELECT 1 FROM events WHERE id = ?)`), eventID); err != nil {
		return fmt.Errorf("register for event: event lookup: %w", err)
	}
	if !exists {
		return storage.ErrEventNotFound
	}

	_, err = tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO event_registrations (user_id, event_id, registered_at)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id, event_id) DO NOTHING`),
		registrationID, eventID, s.stamp(),
	)
	if err != nil && !isUniqueViolation(err) {
		return fmt.Errorf("register for event: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("register for event: commit: %w", err)
	}
	return nil
}

// RegistrationsForUser implements storage.Store.
func (s *Store) RegistrationsForUser(ctx context.Context, registrationID int64) ([]storage.UserEvent, error) {
	out := []storage.UserEvent{}
	err := s.db.SelectContext(ctx, &out, s.q(`
		SELECT e.id AS event_id, e.title, e.description, e.date, e.location, er.registered_at
		FROM events e
		JOIN event_registrations er ON e.id = er.event_id
		WHERE er.user_id = ?
		ORDER BY e.date, e.id`), registrationID)
	if err != nil {
		return nil, fmt.Errorf("registrations for user: %w", err)
	}
	return out, nil
}

// RegistrationsForEvent implements storage.Store.
func (s *Store) RegistrationsForEvent(ctx context.Context, eventID int64) ([]storage.Attendee, error) {
	out := []storage.Attendee{}
	err := s.db.SelectContext(ctx, &out, s.q(`
		SELECT u.full_name, u.email, u.phone, u.birth_date, er.registered_at
		FROM users u
		JOIN event_registrations er ON u.id = er.user_id
		WHERE er.event_id = ?
		ORDER BY er.registered_at, er.id`), eventID)
	if err != nil {
		return nil, fmt.Errorf("registrations for event: %w", err)
	}
	return out, nil
}

// Close implements storage.Store.
func (s *Store) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *msqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
