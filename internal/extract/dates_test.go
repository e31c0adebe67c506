package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/JakeFAU/festival-crawler/internal/clock"
)

func TestDateParserParse(t *testing.T) {
	t.Parallel()

	parser := NewDateParser(clock.NewFixed(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)))
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{in: "March 31, 2025", want: "2025-03-31", ok: true},
		{in: "  March   31,\n 2025 ", want: "2025-03-31", ok: true},
		{in: "2025-03-31", want: "2025-03-31", ok: true},
		{in: "Deadline is 31st March 2026 (late)", want: "2026-03-31", ok: true},
		{in: "the 2nd of Feb, 2027", want: "2027-02-02", ok: true},
		{in: "Sept. 9, 2024", want: "2024-09-09", ok: true},
		{in: "Jan 5", want: "2025-01-05", ok: true},
		{in: "March 31,", want: "2025-03-31", ok: true},
		{in: "Posted On May 2, 2025 by admin", want: "2025-05-02", ok: true},
		{in: "3/14/2025", want: "2025-03-14", ok: true},
		{in: "Mon, 02 Jan 2006 15:04:05 MST", want: "2006-01-02", ok: true},
		{in: "opens 2025-01-10, closes March 1, 2025", want: "2025-01-10", ok: true},
		{in: "20250331", want: "2025-03-31", ok: true},
		{in: "TBA"},
		{in: "2025"},
		{in: "Rolling submissions"},
		{in: ""},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()
			got, ok := parser.Parse(tc.in)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDateParserNilClock(t *testing.T) {
	t.Parallel()

	got, ok := NewDateParser(nil).Parse("Jan 5")
	assert.True(t, ok)
	assert.Equal(t, time.Now().UTC().Format("2006")+"-01-05", got)
}

func TestBuildDateRejectsOverflow(t *testing.T) {
	t.Parallel()

	_, ok := buildDate("2025", time.February, "30", 2024)
	assert.False(t, ok)
	_, ok = buildDate("", 0, "1", 2024)
	assert.False(t, ok)

	d, ok := buildDate("", time.February, "29", 2024)
	assert.True(t, ok)
	assert.Equal(t, "2024-02-29", d.Format(isoDate))
}
