package registration

import (
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/regbot/internal/storage"
)

// Step is a dialog state.
type Step int

const (
	StepName Step = iota + 1
	StepEmail
	StepPhone
	StepBirthDate
	StepConfirm
	StepTerminated
)

func (s Step) String() string {
	switch s {
	case StepName:
		return "name"
	case StepEmail:
		return "email"
	case StepPhone:
		return "phone"
	case StepBirthDate:
		return "birth_date"
	case StepConfirm:
		return "confirm"
	case StepTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Fields are the values collected so far.
type Fields struct {
	FullName  string
	Email     string
	Phone     string
	BirthDate string
}

func (f Fields) profile() storage.Profile {
	return storage.Profile{
		FullName:  f.FullName,
		Email:     f.Email,
		Phone:     f.Phone,
		BirthDate: f.BirthDate,
	}
}

// Session is the transient dialog state of one user.
type Session struct {
	ID        uuid.UUID
	Step      Step
	Fields    Fields
	StartedAt time.Time
	UpdatedAt time.Time
}

// Reply is an outbound message with the suggested replies to show under it.
// Done marks the end of the dialog; RemoveKeyboard asks the transport to hide
// any previously shown reply keyboard.
type Reply struct {
	Key            string
	Text           string
	Options        [][]string
	RemoveKeyboard bool
	Done           bool
}
