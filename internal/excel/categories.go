package excel

import (
	"strings"

	"driving-school-admin/internal/model"
)

type column int

const (
	colIdentifier column = iota
	colBirthDate
	colSubject
	colEventDate
	colResult
	colLocation
)

func (c column) String() string {
	switch c {
	case colIdentifier:
		return "student identifier"
	case colBirthDate:
		return "birth date"
	case colSubject:
		return "subject"
	case colEventDate:
		return "exam date"
	case colResult:
		return "result"
	case colLocation:
		return "location"
	default:
		return "unknown"
	}
}

// locale lists the sheet-title fragments and header labels one export
// language uses.
type locale struct {
	name    string
	sheets  map[model.Category][]string
	headers map[column][]string
}

var locales = []locale{
	{
		name: "en",
		sheets: map[model.Category][]string{
			model.CategoryBooked:    {"booked", "booking", "appointment"},
			model.CategoryResult:    {"result"},
			model.CategoryCancelled: {"cancel"},
			model.CategoryCaseFiled: {"case", "filed", "filing"},
		},
		headers: map[column][]string{
			colIdentifier: {"student id", "student identifier", "identifier"},
			colBirthDate:  {"birth date", "date of birth"},
			colSubject:    {"subject", "exam subject"},
			colEventDate:  {"exam date", "date", "exam time"},
			colResult:     {"result", "status"},
			colLocation:   {"location", "venue"},
		},
	},
	{
		name: "hu",
		sheets: map[model.Category][]string{
			model.CategoryBooked:    {"foglal", "bejelent"},
			model.CategoryResult:    {"eredmény"},
			model.CategoryCancelled: {"törölt", "törlés", "lemond"},
			model.CategoryCaseFiled: {"iktat", "ügyirat"},
		},
		headers: map[column][]string{
			colIdentifier: {"tanuló azonosító", "azonosító"},
			colBirthDate:  {"születési dátum", "születési idő"},
			colSubject:    {"vizsgatárgy", "tárgy"},
			colEventDate:  {"vizsga időpont", "vizsga dátuma", "időpont"},
			colResult:     {"eredmény"},
			colLocation:   {"helyszín"},
		},
	},
}

// detectionOrder checks the more specific titles first: "Cancelled
// bookings" is a cancellation sheet, not a booking sheet.
var detectionOrder = []model.Category{
	model.CategoryCancelled,
	model.CategoryCaseFiled,
	model.CategoryResult,
	model.CategoryBooked,
}

var requiredColumns = map[model.Category][]column{
	model.CategoryBooked:    {colIdentifier, colSubject, colEventDate},
	model.CategoryResult:    {colIdentifier, colSubject, colEventDate},
	model.CategoryCancelled: {colIdentifier, colSubject, colEventDate},
	model.CategoryCaseFiled: {colIdentifier},
}

// CategoryForSheet maps a worksheet title to its category using a
// case-insensitive substring match.
func CategoryForSheet(title string) (model.Category, bool) {
	t := strings.ToLower(title)
	for _, c := range detectionOrder {
		for _, l := range locales {
			for _, fragment := range l.sheets[c] {
				if strings.Contains(t, fragment) {
					return c, true
				}
			}
		}
	}
	return "", false
}

// columnForLabel resolves a header cell to a known column.
func columnForLabel(label string) (column, bool) {
	key := normalizeLabel(label)
	if key == "" {
		return 0, false
	}
	for _, l := range locales {
		for c, labels := range l.headers {
			for _, candidate := range labels {
				if key == candidate {
					return c, true
				}
			}
		}
	}
	return 0, false
}

func normalizeLabel(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, ":")
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
