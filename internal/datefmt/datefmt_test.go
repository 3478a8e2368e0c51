package datefmt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name   string
		input  Value
		want   string
		wantOK bool
	}{
		{"native date", FromTime(time.Date(2000, 1, 31, 0, 0, 0, 0, time.UTC)), "2000.01.31.", true},
		{"native date ignores time of day", FromTime(time.Date(2001, 12, 5, 23, 59, 0, 0, time.UTC)), "2001.12.05.", true},
		{"native late evening stays on its day", FromTime(time.Date(2001, 12, 5, 23, 59, 45, 0, time.UTC)), "2001.12.05.", true},
		{"native serial noise before midnight", FromTime(time.Date(2001, 12, 6, 0, 0, 0, 0, time.UTC).Add(-time.Millisecond)), "2001.12.06.", true},
		{"canonical", FromText("2000.01.01."), "2000.01.01.", true},
		{"dotted without trailing dot", FromText("2000.01.01"), "2000.01.01.", true},
		{"dashed", FromText("1999-07-14"), "1999.07.14.", true},
		{"single digit parts are padded", FromText("1999.7.4."), "1999.07.04.", true},
		{"surrounding whitespace", FromText("  2003-02-28 "), "2003.02.28.", true},
		{"us short year below pivot", FromText("3/7/05"), "2005.03.07.", true},
		{"us short year at pivot", FromText("3/7/30"), "1930.03.07.", true},
		{"us short year above pivot", FromText("12/31/99"), "1999.12.31.", true},
		{"us four digit year", FromText("1/2/2004"), "2004.01.02.", true},
		{"empty", FromText(""), "", false},
		{"free text", FromText("born in spring"), "", false},
		{"month out of range", FromText("2000.13.01."), "", false},
		{"day zero", FromText("2000.01.00"), "", false},
		{"day past end of month", FromText("2000.02.31."), "", false},
		{"april has thirty days", FromText("4/31/99"), "", false},
		{"leap day", FromText("2000.02.29."), "2000.02.29.", true},
		{"leap day in a common year", FromText("1999-02-29"), "", false},
		{"timestamp is not a date", FromText("2025.05.01. 10:00"), "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Normalize(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	inputs := []Value{
		FromText("2000.01.01."),
		FromText("1999-7-4"),
		FromText("4/7/99"),
		FromText("10/11/2012"),
		FromTime(time.Date(1987, 6, 15, 0, 0, 0, 0, time.UTC)),
	}

	for _, in := range inputs {
		once, ok := Normalize(in)
		assert.True(t, ok, "input %v", in)

		twice, ok := Normalize(FromText(once))
		assert.True(t, ok)
		assert.Equal(t, once, twice)
	}
}

func TestEventTimestamp(t *testing.T) {
	base := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		input Value
		want  string
	}{
		{"exact minute", FromTime(base), "2025.05.01. 10:00"},
		{"seconds below half round down", FromTime(base.Add(29*time.Second + 999*time.Millisecond)), "2025.05.01. 10:00"},
		{"half minute rounds up", FromTime(base.Add(30 * time.Second)), "2025.05.01. 10:01"},
		{"noise just below the minute", FromTime(base.Add(-time.Millisecond)), "2025.05.01. 10:00"},
		{"rounding crosses midnight", FromTime(time.Date(2025, 5, 1, 23, 59, 45, 0, time.UTC)), "2025.05.02. 00:00"},
		{"text passes through", FromText("2025.05.01. 10:00"), "2025.05.01. 10:00"},
		{"text is only trimmed", FromText(" 5/1/25 10:00:31 "), "5/1/25 10:00:31"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EventTimestamp(tt.input))
		})
	}
}

func TestValueIsZero(t *testing.T) {
	assert.True(t, Value{}.IsZero())
	assert.True(t, FromText("   ").IsZero())
	assert.False(t, FromText("2000.01.01.").IsZero())
	assert.False(t, FromTime(time.Time{}).IsZero())
}
