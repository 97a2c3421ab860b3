package storage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/m3rciful/regbot/core/logger"
)

var tracer = otel.Tracer("github.com/m3rciful/regbot/internal/storage")

type tracedStore struct {
	next   Store
	driver string
}

// WithTracing wraps a Store so every call opens a span and emits one debug log line.
// Expected outcomes (ErrNotFound, ErrAlreadyRegistered) are not recorded as span errors.
func WithTracing(next Store, driver string) Store {
	return &tracedStore{next: next, driver: driver}
}

func (t *tracedStore) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	attrs = append(attrs,
		attribute.String("db.system", t.driver),
		attribute.String("db.operation", op),
	)
	ctx, span := tracer.Start(ctx, "storage."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
	began := time.Now()
	return ctx, func(err error) {
		status := "ok"
		level := slog.LevelDebug
		switch {
		case err == nil:
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrAlreadyRegistered), errors.Is(err, ErrEventNotFound):
			status = "skip"
		default:
			status = "fail"
			level = slog.LevelWarn
			span.RecordError(err)
			span.SetStatus(codes.Error, logger.SanitizeLimit(err.Error(), 128))
		}
		span.End()

		logAttrs := []slog.Attr{
			slog.String("status", status),
			slog.String("op", op),
			slog.String("driver", t.driver),
			slog.Int64("duration_ms", logger.RoundMS(time.Since(began)).Milliseconds()),
		}
		if err != nil {
			logAttrs = append(logAttrs, slog.String("err", logger.SanitizeLimit(err.Error(), 256)))
		}
		logger.Event(ctx, "storage", level, "store.call", logAttrs...)
	}
}

func (t *tracedStore) AddRegistration(ctx context.Context, reg NewRegistration) (int64, error) {
	ctx, done := t.start(ctx, "add_registration", attribute.Int64("regbot.external_id", reg.ExternalID))
	id, err := t.next.AddRegistration(ctx, reg)
	done(err)
	return id, err
}

func (t *tracedStore) GetRegistration(ctx context.Context, externalID int64) (Registration, error) {
	ctx, done := t.start(ctx, "get_registration", attribute.Int64("regbot.external_id", externalID))
	reg, err := t.next.GetRegistration(ctx, externalID)
	done(err)
	return reg, err
}

func (t *tracedStore) UpdateRegistration(ctx context.Context, externalID int64, p Profile) error {
	ctx, done := t.start(ctx, "update_registration", attribute.Int64("regbot.external_id", externalID))
	err := t.next.UpdateRegistration(ctx, externalID, p)
	done(err)
	return err
}

func (t *tracedStore) Stats(ctx context.Context) (Stats, error) {
	ctx, done := t.start(ctx, "stats")
	st, err := t.next.Stats(ctx)
	done(err)
	return st, err
}

func (t *tracedStore) AddEvent(ctx context.Context, ev NewEvent) (int64, error) {
	ctx, done := t.start(ctx, "add_event")
	id, err := t.next.AddEvent(ctx, ev)
	done(err)
	return id, err
}

func (t *tracedStore) ListEvents(ctx context.Context) ([]Event, error) {
	ctx, done := t.start(ctx, "list_events")
	evs, err := t.next.ListEvents(ctx)
	done(err)
	return evs, err
}

func (t *tracedStore) RegisterForEvent(ctx context.Context, registrationID, eventID int64) error {
	ctx, done := t.start(ctx, "register_for_event",
		attribute.Int64("regbot.registration_id", registrationID),
		attribute.Int64("regbot.event_id", eventID),
	)
	err := t.next.RegisterForEvent(ctx, registrationID, eventID)
	done(err)
	return err
}

func (t *tracedStore) RegistrationsForUser(ctx context.Context, registrationID int64) ([]UserEvent, error) {
	ctx, done := t.start(ctx, "registrations_for_user", attribute.Int64("regbot.registration_id", registrationID))
	out, err := t.next.RegistrationsForUser(ctx, registrationID)
	done(err)
	return out, err
}

func (t *tracedStore) RegistrationsForEvent(ctx context.Context, eventID int64) ([]Attendee, error) {
	ctx, done := t.start(ctx, "registrations_for_event", attribute.Int64("regbot.event_id", eventID))
	out, err := t.next.RegistrationsForEvent(ctx, eventID)
	done(err)
	return out, err
}

func (t *tracedStore) Close() error {
	return t.next.Close()
}
