package helpers

import (
	"strings"
	"time"
)

// dateLayouts accepts ISO and dotted day-first dates, with or without a time.
var dateLayouts = []string{
	"2006-1-2 15:04",
	"2006-1-2",
	"2.1.2006 15:04",
	"2.1.2006",
}

// ParseFlexibleDate parses input in loc (time.Local when nil) using the first
// layout that fits. Leading zeros are optional.
func ParseFlexibleDate(input string, loc *time.Location) (time.Time, bool) {
	input = strings.Join(strings.Fields(input), " ")
	if input == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, input, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
