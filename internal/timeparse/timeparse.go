// Package timeparse extracts clock times from request text. Both the
// validator and the repair engine parse times from the same grammar so a
// repaired call can never disagree with what validation expects.
package timeparse

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	clockWithMinutes = regexp.MustCompile(`(\d{1,2}):(\d{2})\s*([ap]\.?m\.?)`)
	clockHourOnly    = regexp.MustCompile(`(\d{1,2})\s*([ap]\.?m\.?)`)

	// timeShape is the loose test for "does this string look like a time
	// at all", used on string-typed time arguments.
	timeShape = regexp.MustCompile(`(?i)\d+:\d+|[ap]\.?m\.?`)
)

// Clock is a parsed time of day in 24-hour form.
type Clock struct {
	Hour   int
	Minute int
}

// Extract parses the first clock time in text, converting 12-hour AM/PM
// notation to 24-hour ("9 AM" → 9:00, "6:45 PM" → 18:45, "12 AM" → 0:00).
func Extract(text string) (Clock, bool) {
	lower := strings.ToLower(text)

	if m := clockWithMinutes.FindStringSubmatch(lower); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		return Clock{Hour: to24h(hour, m[3]), Minute: minute}, true
	}
	if m := clockHourOnly.FindStringSubmatch(lower); m != nil {
		hour, _ := strconv.Atoi(m[1])
		return Clock{Hour: to24h(hour, m[2]), Minute: 0}, true
	}
	return Clock{}, false
}

func to24h(hour int, meridiem string) int {
	switch {
	case strings.HasPrefix(meridiem, "p") && hour != 12:
		return hour + 12
	case strings.HasPrefix(meridiem, "a") && hour == 12:
		return 0
	default:
		return hour
	}
}

// LooksLikeTime reports whether s plausibly denotes a time of day.
func LooksLikeTime(s string) bool {
	return timeShape.MatchString(s)
}
