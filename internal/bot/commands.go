package bot

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/m3rciful/regbot/core/logger"
	coretelegram "github.com/m3rciful/regbot/core/telegram"
	tghelpers "github.com/m3rciful/regbot/core/telegram/helpers"
	"github.com/m3rciful/regbot/core/telegram/keyboard"
	"github.com/m3rciful/regbot/core/telegram/router"
	"github.com/m3rciful/regbot/internal/registration"
	"github.com/m3rciful/regbot/internal/storage"

	tele "gopkg.in/telebot.v4"
)

type namedCommand struct {
	name string
	cmd  coretelegram.Command
}

func (a *App) commandTable() []namedCommand {
	return []namedCommand{
		{"/start", coretelegram.Command{Handler: a.handleStart, Description: a.t("cmd_start", nil)}},
		{"/help", coretelegram.Command{Handler: a.handleHelp, Description: a.t("cmd_help", nil)}},
		{"/register", coretelegram.Command{Handler: a.handleRegister, Description: a.t("cmd_register", nil)}},
		{"/cancel", coretelegram.Command{Handler: a.handleCancel, Description: a.t("cmd_cancel", nil)}},
		{"/my_info", coretelegram.Command{Handler: a.handleMyInfo, Description: a.t("cmd_my_info", nil)}},
		{"/events", coretelegram.Command{Handler: a.handleEvents, Description: a.t("cmd_events", nil)}},
		{"/admin", coretelegram.Command{Handler: a.handleAdmin, Description: a.t("cmd_admin", nil), AdminOnly: true}},
		{"/stats", coretelegram.Command{Handler: a.handleStats, Description: a.t("cmd_stats", nil), AdminOnly: true}},
		{"/new_event", coretelegram.Command{Handler: a.handleNewEvent, Description: a.t("cmd_new_event", nil), AdminOnly: true}},
		{"/events_list", coretelegram.Command{Handler: a.handleEventsList, Description: a.t("cmd_events_list", nil), AdminOnly: true}},
	}
}

func (a *App) handleStart(c tele.Context) error {
	return tghelpers.SendReply(c, a.t("welcome", nil), keyboard.Reply(
		[]string{"/register", "/my_info"},
		[]string{"/events", "/help"},
	))
}

func (a *App) handleHelp(c tele.Context) error {
	return tghelpers.SendText(c, a.t("help", nil))
}

func (a *App) handleRegister(c tele.Context) error {
	if c.Sender() == nil {
		return tghelpers.ErrNoSender
	}
	ctx := tghelpers.BuildContext(c)
	reply, err := a.flow.Start(ctx, c.Sender().ID)
	if err != nil {
		return a.fail(c, err)
	}
	return a.sendReply(c, reply)
}

func (a *App) handleCancel(c tele.Context) error {
	if c.Sender() == nil {
		return tghelpers.ErrNoSender
	}
	ctx := tghelpers.BuildContext(c)
	return a.sendReply(c, a.flow.Cancel(ctx, c.Sender().ID))
}

func (a *App) handleMyInfo(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	reg, err := tghelpers.CurrentUser(ctx, c, a.store.GetRegistration)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return tghelpers.SendText(c, a.t("not_registered", nil))
	case err != nil:
		return a.fail(c, err)
	}

	var b strings.Builder
	b.WriteString(a.t("my_info", map[string]any{
		"Name":         reg.FullName,
		"Email":        reg.Email,
		"Phone":        reg.Phone,
		"BirthDate":    registration.FormatBirthDate(reg.BirthDate, a.msg.MonthName),
		"RegisteredAt": a.formatTime(reg.RegisteredAt),
	}))

	joined, err := a.store.RegistrationsForUser(ctx, reg.ID)
	if err != nil {
		return a.fail(c, err)
	}
	if len(joined) > 0 {
		b.WriteString("\n\n")
		b.WriteString(a.t("my_info_events", nil))
		for _, ev := range joined {
			b.WriteString("\n")
			b.WriteString(a.eventLine(ev.Title, ev.Date, ev.Location))
		}
	}
	return tghelpers.SendText(c, b.String())
}

func (a *App) handleAdmin(c tele.Context) error {
	return tghelpers.SendReply(c, a.t("admin_menu", nil), keyboard.Reply(
		[]string{"/stats", "/new_event"},
		[]string{"/events_list"},
	))
}

func (a *App) handleStats(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	st, err := a.store.Stats(ctx)
	if err != nil {
		return a.fail(c, err)
	}
	return tghelpers.SendText(c, a.t("stats", map[string]any{
		"Users":         st.TotalUsers,
		"Events":        st.TotalEvents,
		"Registrations": st.TotalRegistrations,
	}))
}

func (a *App) handleNewEvent(c tele.Context) error {
	return tghelpers.SendText(c, a.t("new_event_stub", nil))
}

func (a *App) noAdminRights(c tele.Context) error {
	return tghelpers.SendText(c, a.t("no_admin_rights", nil))
}

func (a *App) unknownText(c tele.Context) error {
	return tghelpers.SendText(c, a.t("unknown_text", nil))
}

func (a *App) unknownDocument(c tele.Context) error {
	return tghelpers.SendText(c, a.t("unknown_document", nil))
}

func (a *App) unknownCallback(c tele.Context) error {
	return c.Respond(&tele.CallbackResponse{Text: a.t("unsupported_action", nil)})
}

func (a *App) rateLimited(c tele.Context) error {
	if c.Callback() != nil {
		return c.Respond(&tele.CallbackResponse{Text: a.t("rate_limited", nil)})
	}
	return tghelpers.SendText(c, a.t("rate_limited", nil))
}

// sendReply renders a dialog reply with its suggested answers as a reply keyboard.
func (a *App) sendReply(c tele.Context, r registration.Reply) error {
	var markup *tele.ReplyMarkup
	switch {
	case r.RemoveKeyboard:
		markup = keyboard.Hide()
	case len(r.Options) > 0:
		markup = keyboard.Reply(r.Options...)
	}
	return tghelpers.SendReply(c, r.Text, markup)
}

// fail tells the user something went wrong and hands err to the router summary.
func (a *App) fail(c tele.Context, err error) error {
	if sendErr := tghelpers.SendText(c, a.t("error_generic", nil)); sendErr != nil {
		logger.Warn(tghelpers.BuildContext(c), "tg", "error.notify",
			slog.String("status", "fail"),
			slog.String("err", sendErr.Error()),
		)
	}
	return err
}

// conversation routes free text to the registration dialog.
type conversation struct {
	app *App
}

func (cv conversation) InProgress(userID int64) bool {
	return cv.app.flow.Active(userID)
}

func (cv conversation) HandleUpdate(c tele.Context) error {
	a := cv.app
	if c.Sender() == nil {
		return tghelpers.ErrNoSender
	}
	ctx := tghelpers.BuildContext(c)
	reply, err := a.flow.Handle(ctx, c.Sender().ID, c.Text())
	switch {
	case errors.Is(err, registration.ErrNoSession):
		// evicted between routing and handling
		return a.unknownText(c)
	case err != nil:
		return a.fail(c, fmt.Errorf("dialog step: %w", err))
	}
	return a.sendReply(c, reply)
}

var _ router.Conversation = conversation{}
