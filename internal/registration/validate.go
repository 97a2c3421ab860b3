package registration

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Reason classifies why an input was rejected.
type Reason string

const (
	ReasonEmpty    Reason = "EMPTY"
	ReasonFormat   Reason = "FORMAT"
	ReasonCalendar Reason = "CALENDAR"
	ReasonFuture   Reason = "FUTURE"
)

// Field names used in ValidationError.
const (
	FieldName      = "full_name"
	FieldEmail     = "email"
	FieldPhone     = "phone"
	FieldBirthDate = "birth_date"
)

// BirthDateLayout is the accepted birth date input format (DD.MM.YYYY).
const BirthDateLayout = "02.01.2006"

var (
	emailPattern     = regexp.MustCompile(`^[^@]+@[^@]+\.[^@]+$`)
	phonePattern     = regexp.MustCompile(`^[+]?[1-9][0-9]{3,14}$`)
	birthDatePattern = regexp.MustCompile(`^[0-9]{2}\.[0-9]{2}\.[0-9]{4}$`)
	phoneSeparators  = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "")
)

// ValidationError reports a rejected dialog input. It is never fatal: the
// dialog re-prompts the same step.
type ValidationError struct {
	Field  string
	Reason Reason
	Input  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("registration: invalid %s (%s)", e.Field, e.Reason)
}

// Code returns a stable error code for log summaries.
func (e *ValidationError) Code() string {
	return "VALIDATION_" + string(e.Reason)
}

func invalid(field string, reason Reason, input string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason, Input: input}
}

// ValidateName accepts any non-empty text.
func ValidateName(text string) error {
	if text == "" {
		return invalid(FieldName, ReasonEmpty, text)
	}
	return nil
}

// ValidateEmail checks text against the email pattern.
func ValidateEmail(text string) error {
	if text == "" {
		return invalid(FieldEmail, ReasonEmpty, text)
	}
	if !emailPattern.MatchString(text) {
		return invalid(FieldEmail, ReasonFormat, text)
	}
	return nil
}

// NormalizePhone strips spaces, hyphens and parentheses.
func NormalizePhone(text string) string {
	return phoneSeparators.Replace(text)
}

// ValidatePhone checks the normalized form of text. The raw text is what gets stored.
func ValidatePhone(text string) error {
	normalized := NormalizePhone(text)
	if normalized == "" {
		return invalid(FieldPhone, ReasonEmpty, text)
	}
	if !phonePattern.MatchString(normalized) {
		return invalid(FieldPhone, ReasonFormat, text)
	}
	return nil
}

// ValidateBirthDate checks the DD.MM.YYYY shape, that the date exists on the
// Gregorian calendar and that it is not after the calendar date of now.
func ValidateBirthDate(text string, now time.Time) error {
	if text == "" {
		return invalid(FieldBirthDate, ReasonEmpty, text)
	}
	if !birthDatePattern.MatchString(text) {
		return invalid(FieldBirthDate, ReasonFormat, text)
	}
	date, err := parseBirthDate(text, now.Location())
	if err != nil {
		return invalid(FieldBirthDate, ReasonCalendar, text)
	}
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	if date.After(today) {
		return invalid(FieldBirthDate, ReasonFuture, text)
	}
	return nil
}

func parseBirthDate(text string, loc *time.Location) (time.Time, error) {
	date, err := time.ParseInLocation(BirthDateLayout, text, loc)
	if err != nil {
		return time.Time{}, err
	}
	if date.Year() < 1 {
		return time.Time{}, fmt.Errorf("year %d out of range", date.Year())
	}
	return date, nil
}

// FormatBirthDate renders a valid DD.MM.YYYY date as "D <Month> YYYY" using
// monthName. Text that does not parse is returned unchanged.
func FormatBirthDate(text string, monthName func(time.Month) string) string {
	if !birthDatePattern.MatchString(text) {
		return text
	}
	date, err := parseBirthDate(text, time.UTC)
	if err != nil {
		return text
	}
	return strconv.Itoa(date.Day()) + " " + monthName(date.Month()) + " " + fmt.Sprintf("%04d", date.Year())
}
