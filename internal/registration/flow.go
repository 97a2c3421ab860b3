package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/regbot/core/logger"
	"github.com/m3rciful/regbot/core/telegram/state"
	"github.com/m3rciful/regbot/internal/storage"
)

const component = "service.registration"

// ErrNoSession is returned by Handle when the user has no active dialog.
var ErrNoSession = errors.New("registration: no active session")

// Messages renders catalog entries for one locale.
type Messages interface {
	T(key string, data map[string]any) string
	MonthName(m time.Month) string
}

// Registrar is the part of storage.Store the dialog needs.
type Registrar interface {
	GetRegistration(ctx context.Context, externalID int64) (storage.Registration, error)
	AddRegistration(ctx context.Context, reg storage.NewRegistration) (int64, error)
}

// Options configures a Flow.
type Options struct {
	Store    Registrar
	Messages Messages
	// Now defaults to time.Now.
	Now func() time.Time
	// Location decides what "today" means for birth dates. Defaults to time.Local.
	Location *time.Location
	// Sessions defaults to a fresh in-memory store using Now.
	Sessions *state.Memory[Session]
}

// Flow is the registration state machine.
type Flow struct {
	store    Registrar
	msg      Messages
	now      func() time.Time
	loc      *time.Location
	sessions *state.Memory[Session]

	confirmButton string
	cancelButton  string
	confirmWords  []string
	cancelWords   []string
}

// New validates opts and builds a Flow.
func New(opts Options) (*Flow, error) {
	if opts.Store == nil {
		return nil, errors.New("registration: store is required")
	}
	if opts.Messages == nil {
		return nil, errors.New("registration: messages are required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Sessions == nil {
		opts.Sessions = state.NewMemory[Session](opts.Now)
	}

	f := &Flow{
		store:         opts.Store,
		msg:           opts.Messages,
		now:           opts.Now,
		loc:           opts.Location,
		sessions:      opts.Sessions,
		confirmButton: opts.Messages.T("button_confirm", nil),
		cancelButton:  opts.Messages.T("button_cancel", nil),
	}
	f.confirmWords = indicators(f.confirmButton, opts.Messages.T("word_confirm", nil))
	f.cancelWords = indicators(f.cancelButton, opts.Messages.T("word_cancel", nil))
	return f, nil
}

func indicators(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// CancelToken is the exact text that aborts the dialog before Confirm.
func (f *Flow) CancelToken() string { return f.cancelButton }

// ConfirmToken is the label of the confirmation button.
func (f *Flow) ConfirmToken() string { return f.confirmButton }

// Active reports whether the user is inside the dialog.
func (f *Flow) Active(userID int64) bool {
	return f.sessions.InProgress(userID)
}

// Session returns a copy of the user's session.
func (f *Flow) Session(userID int64) (Session, bool) {
	return f.sessions.Get(userID)
}

// Len returns the number of open sessions.
func (f *Flow) Len() int {
	return f.sessions.Len()
}

// Evict drops sessions idle for longer than idle.
func (f *Flow) Evict(ctx context.Context, idle time.Duration) int {
	n := f.sessions.Evict(idle)
	if n > 0 {
		logger.Info(ctx, component, "session.evict",
			slog.String("status", "ok"),
			slog.Int("evicted", n),
			slog.Int("sessions", f.sessions.Len()),
		)
	}
	return n
}

// Start enters the dialog. A registered user gets a terminal notice and no
// session. A user already inside the dialog gets the current prompt again.
func (f *Flow) Start(ctx context.Context, userID int64) (Reply, error) {
	if sess, ok := f.sessions.Get(userID); ok {
		f.log(ctx, slog.LevelDebug, "dialog.start", sess,
			slog.String("status", "skip"),
			slog.String("outcome", "reprompt"),
		)
		return f.prompt(sess), nil
	}

	_, err := f.store.GetRegistration(ctx, userID)
	switch {
	case err == nil:
		logger.Info(ctx, component, "dialog.start",
			slog.String("status", "duplicate"),
			slog.String("reason", "already_registered"),
		)
		return f.reply("already_registered", nil, nil, true), nil
	case !errors.Is(err, storage.ErrNotFound):
		return Reply{}, fmt.Errorf("registration: lookup %d: %w", userID, err)
	}

	now := f.now()
	sess := Session{
		ID:        uuid.New(),
		Step:      StepName,
		StartedAt: now,
		UpdatedAt: now,
	}
	f.sessions.Set(userID, sess)
	f.log(ctx, slog.LevelInfo, "dialog.start", sess, slog.String("status", "ok"))
	return f.prompt(sess), nil
}

// Handle feeds one text message into the user's dialog.
func (f *Flow) Handle(ctx context.Context, userID int64, text string) (Reply, error) {
	sess, ok := f.sessions.Get(userID)
	if !ok {
		return Reply{}, ErrNoSession
	}

	switch sess.Step {
	case StepName, StepEmail, StepPhone, StepBirthDate:
		if text == f.cancelButton {
			return f.cancel(ctx, userID, sess), nil
		}
		return f.collect(ctx, userID, sess, text), nil
	case StepConfirm:
		return f.confirm(ctx, userID, sess, text)
	default:
		f.sessions.Clear(userID)
		return Reply{}, fmt.Errorf("registration: session in step %s", sess.Step)
	}
}

// Cancel aborts the dialog from any step.
func (f *Flow) Cancel(ctx context.Context, userID int64) Reply {
	sess, ok := f.sessions.Get(userID)
	if !ok {
		return f.reply("nothing_to_cancel", nil, nil, true)
	}
	return f.cancel(ctx, userID, sess)
}

func (f *Flow) cancel(ctx context.Context, userID int64, sess Session) Reply {
	f.sessions.Clear(userID)
	f.log(ctx, slog.LevelInfo, "dialog.cancel", sess,
		slog.String("status", "cancelled"),
		slog.String("outcome", "cancelled"),
	)
	return f.reply("registration_cancelled", nil, nil, true)
}

func (f *Flow) collect(ctx context.Context, userID int64, sess Session, text string) Reply {
	var (
		err  error
		next Step
	)
	switch sess.Step {
	case StepName:
		if err = ValidateName(text); err == nil {
			sess.Fields.FullName = text
			next = StepEmail
		}
	case StepEmail:
		if err = ValidateEmail(text); err == nil {
			sess.Fields.Email = text
			next = StepPhone
		}
	case StepPhone:
		if err = ValidatePhone(text); err == nil {
			sess.Fields.Phone = text
			next = StepBirthDate
		}
	case StepBirthDate:
		if err = ValidateBirthDate(text, f.now().In(f.loc)); err == nil {
			sess.Fields.BirthDate = text
			next = StepConfirm
		}
	}

	if err != nil {
		var verr *ValidationError
		reason := "invalid"
		if errors.As(err, &verr) {
			reason = string(verr.Reason)
		}
		f.log(ctx, slog.LevelDebug, "dialog.step", sess,
			slog.String("status", "invalid"),
			slog.String("outcome", "reprompt"),
			slog.String("reason", reason),
		)
		return f.rejection(err)
	}

	prev := sess.Step
	sess.Step = next
	sess.UpdatedAt = f.now()
	f.sessions.Set(userID, sess)
	f.log(ctx, slog.LevelDebug, "dialog.step", sess,
		slog.String("status", "ok"),
		slog.String("outcome", "advanced"),
		slog.String("step", prev.String()),
		slog.String("next_step", next.String()),
	)
	return f.prompt(sess)
}

func (f *Flow) confirm(ctx context.Context, userID int64, sess Session, text string) (Reply, error) {
	lowered := strings.ToLower(strings.TrimSpace(text))
	switch {
	case containsAny(lowered, f.confirmWords):
		return f.commit(ctx, userID, sess)
	case containsAny(lowered, f.cancelWords):
		return f.cancel(ctx, userID, sess), nil
	default:
		f.log(ctx, slog.LevelDebug, "dialog.confirm", sess,
			slog.String("status", "skip"),
			slog.String("outcome", "reprompt"),
		)
		return f.reply("confirm_choice", f.buttonData(), f.confirmOptions(), false), nil
	}
}

func (f *Flow) commit(ctx context.Context, userID int64, sess Session) (Reply, error) {
	id, err := f.store.AddRegistration(ctx, storage.NewRegistration{
		ExternalID: userID,
		Profile:    sess.Fields.profile(),
	})
	switch {
	case err == nil:
		f.sessions.Clear(userID)
		f.log(ctx, slog.LevelInfo, "dialog.commit", sess,
			slog.String("status", "ok"),
			slog.String("outcome", "committed"),
			slog.Int64("registration_id", id),
		)
		return f.reply("registration_success", nil, nil, true), nil
	case errors.Is(err, storage.ErrAlreadyRegistered):
		f.sessions.Clear(userID)
		f.log(ctx, slog.LevelWarn, "dialog.commit", sess,
			slog.String("status", "duplicate"),
			slog.String("outcome", "duplicate"),
		)
		return f.reply("registration_duplicate", nil, nil, true), nil
	default:
		f.log(ctx, slog.LevelError, "dialog.commit", sess,
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return Reply{}, fmt.Errorf("registration: commit %d: %w", userID, err)
	}
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func (f *Flow) prompt(sess Session) Reply {
	switch sess.Step {
	case StepName:
		return f.reply("name_request", nil, f.cancelOptions(), false)
	case StepEmail:
		return f.reply("email_request", nil, f.cancelOptions(), false)
	case StepPhone:
		return f.reply("phone_request", nil, f.cancelOptions(), false)
	case StepBirthDate:
		return f.reply("birth_date_request", nil, f.cancelOptions(), false)
	default:
		data := f.buttonData()
		data["Name"] = sess.Fields.FullName
		data["Email"] = sess.Fields.Email
		data["Phone"] = sess.Fields.Phone
		data["BirthDate"] = FormatBirthDate(sess.Fields.BirthDate, f.msg.MonthName)
		return f.reply("confirm_summary", data, f.confirmOptions(), false)
	}
}

func (f *Flow) rejection(err error) Reply {
	key := "invalid_name"
	var verr *ValidationError
	if errors.As(err, &verr) {
		switch verr.Field {
		case FieldEmail:
			key = "invalid_email"
		case FieldPhone:
			key = "invalid_phone"
		case FieldBirthDate:
			key = "invalid_date"
			if verr.Reason == ReasonFuture {
				key = "invalid_date_future"
			}
		}
	}
	return f.reply(key, nil, f.cancelOptions(), false)
}

func (f *Flow) reply(key string, data map[string]any, options [][]string, done bool) Reply {
	return Reply{
		Key:            key,
		Text:           f.msg.T(key, data),
		Options:        options,
		RemoveKeyboard: done,
		Done:           done,
	}
}

func (f *Flow) buttonData() map[string]any {
	return map[string]any{
		"Confirm": f.confirmButton,
		"Cancel":  f.cancelButton,
	}
}

func (f *Flow) cancelOptions() [][]string {
	return [][]string{{f.cancelButton}}
}

func (f *Flow) confirmOptions() [][]string {
	return [][]string{{f.confirmButton, f.cancelButton}}
}

func (f *Flow) log(ctx context.Context, level slog.Level, event string, sess Session, attrs ...slog.Attr) {
	base := []slog.Attr{
		slog.String("session_id", sess.ID.String()),
		slog.String("step", sess.Step.String()),
	}
	// later attrs override earlier keys in the structured handler
	logger.Event(ctx, component, level, event, append(base, attrs...)...)
}
