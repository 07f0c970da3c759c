package ledger

import (
	"strings"
	"time"
)

// Day-first layouts come before month-first ones; statements in this
// domain print dates as DD/MM/YYYY.
var dateLayouts = []string{
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2-1-2006",
	"02.01.2006",
	"2006-01-02",
	"2006/01/02",
	"02/01/06",
	"2/1/06",
	"02-01-06",
	"02 Jan 2006",
	"2 Jan 2006",
	"02-Jan-2006",
	"02-Jan-06",
	"Jan 2, 2006",
	"2 January 2006",
	time.RFC3339,
}

// ParseDate parses a statement date. Buddhist-era years are converted to
// the Gregorian calendar. ok is false when no layout matches.
func ParseDate(s string) (t time.Time, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	candidates := []string{s}
	// "01/02/2024 10:15" and similar carry a time we do not need
	if fields := strings.Fields(s); len(fields) > 1 {
		candidates = append(candidates, fields[0])
	}
	for _, c := range candidates {
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, c); err == nil {
				if parsed.Year() > 2400 {
					parsed = parsed.AddDate(-543, 0, 0)
				}
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

// NormalizeDate renders a parseable date as DD/MM/YYYY and returns other
// values trimmed.
func NormalizeDate(s string) string {
	if t, ok := ParseDate(s); ok {
		return t.Format("02/01/2006")
	}
	return strings.TrimSpace(s)
}
