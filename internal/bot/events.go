package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/m3rciful/regbot/core/logger"
	"github.com/m3rciful/regbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/regbot/core/telegram/helpers"
	"github.com/m3rciful/regbot/core/telegram/keyboard"
	"github.com/m3rciful/regbot/internal/storage"

	tele "gopkg.in/telebot.v4"
)

const eventsComponent = "service.events"

func (a *App) formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(a.loc).Format(eventTimeLayout)
}

func (a *App) eventLine(title string, date time.Time, location string) string {
	return a.t("event_line", map[string]any{
		"Title":    title,
		"Date":     a.formatTime(date),
		"Location": location,
	})
}

func (a *App) handleEvents(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	events, err := a.store.ListEvents(ctx)
	if err != nil {
		return a.fail(c, err)
	}
	if len(events) == 0 {
		return tghelpers.SendText(c, a.t("events_empty", nil))
	}

	lines := []string{a.t("events_header", nil)}
	buttons := make([]keyboard.Button, 0, len(events))
	for _, ev := range events {
		lines = append(lines, a.eventLine(ev.Title, ev.Date, ev.Location))
		buttons = append(buttons, keyboard.Button{
			Text:   a.t("event_join_button", map[string]any{"Title": ev.Title}),
			Unique: cbEventJoin,
			Data:   strconv.FormatInt(ev.ID, 10),
		})
	}
	return tghelpers.SendReply(c, strings.Join(lines, "\n"), keyboard.Column(buttons...))
}

func (a *App) handleEventsList(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	events, err := a.store.ListEvents(ctx)
	if err != nil {
		return a.fail(c, err)
	}
	if len(events) == 0 {
		return tghelpers.SendText(c, a.t("events_empty", nil))
	}

	buttons := make([]keyboard.Button, 0, len(events))
	for _, ev := range events {
		buttons = append(buttons, keyboard.Button{
			Text: a.t("attendees_button", map[string]any{
				"Title": ev.Title,
				"Date":  a.formatTime(ev.Date),
			}),
			Unique: cbEventAttendees,
			Data:   strconv.FormatInt(ev.ID, 10),
		})
	}
	return tghelpers.SendReply(c, a.t("events_list_header", nil), keyboard.Column(buttons...))
}

func (a *App) findEvent(ctx context.Context, id int64) (storage.Event, error) {
	events, err := a.store.ListEvents(ctx)
	if err != nil {
		return storage.Event{}, err
	}
	for _, ev := range events {
		if ev.ID == id {
			return ev, nil
		}
	}
	return storage.Event{}, storage.ErrEventNotFound
}

func (a *App) handleEventJoin(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	eventID, err := callbacks.ID(c)
	if err != nil {
		return a.unknownCallback(c)
	}

	reg, err := tghelpers.CurrentUser(ctx, c, a.store.GetRegistration)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return tghelpers.SendText(c, a.t("event_join_requires_registration", nil))
	case err != nil:
		return a.fail(c, err)
	}

	ev, err := a.findEvent(ctx, eventID)
	if err == nil {
		err = a.store.RegisterForEvent(ctx, reg.ID, eventID)
	}
	switch {
	case errors.Is(err, storage.ErrEventNotFound):
		return tghelpers.SendText(c, a.t("event_not_found", nil))
	case err != nil:
		return a.fail(c, fmt.Errorf("join event %d: %w", eventID, err))
	}

	logger.Info(ctx, eventsComponent, "event.join",
		slog.String("status", "ok"),
		slog.Int64("registration_id", reg.ID),
		slog.Int64("event_id", eventID),
	)
	return tghelpers.SendText(c, a.t("event_joined", map[string]any{"Title": ev.Title}))
}

func (a *App) handleEventAttendees(c tele.Context) error {
	if !a.isAdmin(c) {
		return a.noAdminRights(c)
	}
	ctx := tghelpers.BuildContext(c)
	eventID, err := callbacks.ID(c)
	if err != nil {
		return a.unknownCallback(c)
	}

	ev, err := a.findEvent(ctx, eventID)
	if errors.Is(err, storage.ErrEventNotFound) {
		return tghelpers.SendText(c, a.t("event_not_found", nil))
	}
	if err != nil {
		return a.fail(c, err)
	}
	attendees, err := a.store.RegistrationsForEvent(ctx, eventID)
	if err != nil {
		return a.fail(c, err)
	}
	if len(attendees) == 0 {
		return tghelpers.SendText(c, a.t("attendees_empty", nil))
	}

	lines := []string{a.t("attendees_header", map[string]any{
		"Title": ev.Title,
		"Count": len(attendees),
	})}
	for _, at := range attendees {
		lines = append(lines, a.t("attendees_line", map[string]any{
			"Name":  at.FullName,
			"Email": at.Email,
			"Phone": at.Phone,
		}))
	}
	return tghelpers.SendText(c, strings.Join(lines, "\n"))
}
