package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

type signup struct {
	registrationID int64
	eventID        int64
	registeredAt   time.Time
}

// Memory is a Store kept in process memory. A single mutex serializes writers,
// which keeps AddRegistration atomic per external id.
type Memory struct {
	mu  sync.RWMutex
	now func() time.Time

	nextUserID  int64
	nextEventID int64

	users   map[int64]Registration // keyed by external id
	byID    map[int64]int64        // registration id -> external id
	events  map[int64]Event
	signups []signup
}

// NewMemory constructs an empty in-memory store. A nil clock falls back to time.Now.
func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{
		now:    now,
		users:  make(map[int64]Registration),
		byID:   make(map[int64]int64),
		events: make(map[int64]Event),
	}
}

// AddRegistration implements Store.
func (m *Memory) AddRegistration(ctx context.Context, reg NewRegistration) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.users[reg.ExternalID]; exists {
		return 0, ErrAlreadyRegistered
	}
	m.nextUserID++
	m.users[reg.ExternalID] = Registration{
		ID:           m.nextUserID,
		ExternalID:   reg.ExternalID,
		Profile:      reg.Profile,
		RegisteredAt: m.now().UTC(),
	}
	m.byID[m.nextUserID] = reg.ExternalID
	return m.nextUserID, nil
}

// GetRegistration implements Store.
func (m *Memory) GetRegistration(ctx context.Context, externalID int64) (Registration, error) {
	if err := ctx.Err(); err != nil {
		return Registration{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	reg, ok := m.users[externalID]
	if !ok {
		return Registration{}, ErrNotFound
	}
	return reg, nil
}

// UpdateRegistration implements Store.
func (m *Memory) UpdateRegistration(ctx context.Context, externalID int64, p Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	reg, ok := m.users[externalID]
	if !ok {
		return nil
	}
	reg.Profile = p
	m.users[externalID] = reg
	return nil
}

// Stats implements Store.
func (m *Memory) Stats(ctx context.Context) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{
		TotalUsers:         len(m.users),
		TotalEvents:        len(m.events),
		TotalRegistrations: len(m.signups),
	}, nil
}

// AddEvent implements Store.
func (m *Memory) AddEvent(ctx context.Context, ev NewEvent) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextEventID++
	m.events[m.nextEventID] = Event{
		ID:          m.nextEventID,
		Title:       ev.Title,
		Description: ev.Description,
		Date:        ev.Date.UTC(),
		Location:    ev.Location,
		CreatedAt:   m.now().UTC(),
	}
	return m.nextEventID, nil
}

// ListEvents implements Store.
func (m *Memory) ListEvents(ctx context.Context) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	out := make([]Event, 0, len(m.events))
	for _, ev := range m.events {
		out = append(out, ev)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].ID < out[j].ID
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out, nil
}

// RegisterForEvent implements Store.
func (m *Memory) RegisterForEvent(ctx context.Context, registrationID, eventID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[registrationID]; !ok {
		return ErrNotFound
	}
	if _, ok := m.events[eventID]; !ok {
		return ErrEventNotFound
	}
	for _, s := range m.signups {
		if s.registrationID == registrationID && s.eventID == eventID {
			return nil
		}
	}
	m.signups = append(m.signups, signup{
		registrationID: registrationID,
		eventID:        eventID,
		registeredAt:   m.now().UTC(),
	})
	return nil
}

// RegistrationsForUser implements Store.
func (m *Memory) RegistrationsForUser(ctx context.Context, registrationID int64) ([]UserEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	out := []UserEvent{}
	for _, s := range m.signups {
		if s.registrationID != registrationID {
			continue
		}
		ev := m.events[s.eventID]
		out = append(out, UserEvent{
			EventID:      ev.ID,
			Title:        ev.Title,
			Description:  ev.Description,
			Date:         ev.Date,
			Location:     ev.Location,
			RegisteredAt: s.registeredAt,
		})
	}
	m.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// RegistrationsForEvent implements Store.
func (m *Memory) RegistrationsForEvent(ctx context.Context, eventID int64) ([]Attendee, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Attendee{}
	// signups are appended in time order already
	for _, s := range m.signups {
		if s.eventID != eventID {
			continue
		}
		reg := m.users[m.byID[s.registrationID]]
		out = append(out, Attendee{Profile: reg.Profile, RegisteredAt: s.registeredAt})
	}
	return out, nil
}

// Close implements Store.
func (m *Memory) Close() error { return nil }
