// Package datefmt turns the date representations found in exam-authority
// exports into the canonical forms stored on student records.
//
// Canonical dates look like "2000.01.31." and event timestamps like
// "2025.05.01. 10:00".
package datefmt

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	dateLayout      = "2006.01.02."
	timestampLayout = "2006.01.02. 15:04"

	// Two-digit years below the pivot belong to the 2000s.
	twoDigitYearPivot = 30
)

var (
	isoLikeRegex = regexp.MustCompile(`^(\d{4})[.-](\d{1,2})[.-](\d{1,2})\.?$`)
	usRegex      = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{2}|\d{4})$`)
)

// Value is a raw date cell: either a native date decoded from the workbook
// or the cell text.
type Value struct {
	Native bool      `json:"native,omitempty"`
	Time   time.Time `json:"time,omitempty"`
	Text   string    `json:"text,omitempty"`
}

func FromTime(t time.Time) Value {
	return Value{Native: true, Time: t}
}

func FromText(s string) Value {
	return Value{Text: s}
}

// IsZero reports an absent cell.
func (v Value) IsZero() bool {
	return !v.Native && strings.TrimSpace(v.Text) == ""
}

func (v Value) String() string {
	if v.Native {
		return v.Time.Format(timestampLayout)
	}
	return strings.TrimSpace(v.Text)
}

// Normalize returns the canonical date for v. The boolean is false when the
// value cannot be read as a date; callers treat that as "cannot verify".
func Normalize(v Value) (string, bool) {
	if v.Native {
		// Serial dates decoded from float cells can land a hair before
		// midnight; rounding to the second absorbs that without moving real
		// times of day.
		return v.Time.Round(time.Second).Format(dateLayout), true
	}

	s := strings.TrimSpace(v.Text)
	if m := isoLikeRegex.FindStringSubmatch(s); m != nil {
		year, _ := strconv.Atoi(m[1])
		return canonical(year, m[2], m[3])
	}

	if m := usRegex.FindStringSubmatch(s); m != nil {
		year, _ := strconv.Atoi(m[3])
		if len(m[3]) == 2 {
			if year < twoDigitYearPivot {
				year += 2000
			} else {
				year += 1900
			}
		}
		return canonical(year, m[1], m[2])
	}

	return "", false
}

func canonical(year int, month, day string) (string, bool) {
	m, _ := strconv.Atoi(month)
	d, _ := strconv.Atoi(day)
	if m < 1 || m > 12 || d < 1 {
		return "", false
	}
	t := time.Date(year, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Month() != time.Month(m) || t.Day() != d {
		return "", false
	}
	return t.Format(dateLayout), true
}

// EventTimestamp renders an exam date-time. Native values are rounded to
// the nearest minute, half up on the seconds, since exports carry seconds
// noise that would otherwise split one exam into two de-duplication keys.
// Text is passed through trimmed.
func EventTimestamp(v Value) string {
	if !v.Native {
		return strings.TrimSpace(v.Text)
	}
	return RoundToMinute(v.Time).Format(timestampLayout)
}

// RoundToMinute rounds t to the closest minute, 30 seconds rounding up.
func RoundToMinute(t time.Time) time.Time {
	return t.Add(30 * time.Second).Truncate(time.Minute)
}
