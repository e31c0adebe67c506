package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/JakeFAU/festival-crawler/internal/clock"
	"github.com/JakeFAU/festival-crawler/internal/crawler"
)

const isoDate = "2006-01-02"

const monthPattern = `(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)`

var (
	isoPattern        = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	monthFirstPattern = regexp.MustCompile(`(?i)\b` + monthPattern + `\b\.?\s+(\d{1,2})(?:st|nd|rd|th)?\b(?:,?\s*(\d{4})\b)?`)
	dayFirstPattern   = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?` + monthPattern + `\b\.?(?:,?\s*(\d{4})\b)?`)
	slashPattern      = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
)

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

// DateParser turns human-written dates into YYYY-MM-DD. It searches the
// text for the earliest recognizable date, so surrounding words are
// tolerated, and fails closed when nothing parses. Dates without a year take
// the year of the reference clock.
type DateParser struct {
	clock crawler.Clock
}

// NewDateParser returns a parser using clk for year-less dates. A nil clock
// falls back to the system clock.
func NewDateParser(clk crawler.Clock) *DateParser {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &DateParser{clock: clk}
}

// Parse returns the ISO date found in text.
func (p *DateParser) Parse(text string) (string, bool) {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return "", false
	}
	if d, ok := p.search(text); ok {
		return d.Format(isoDate), true
	}
	if d, ok := parseWhole(text); ok {
		return d.Format(isoDate), true
	}
	return "", false
}

type candidate struct {
	start int
	date  time.Time
}

func (p *DateParser) search(text string) (time.Time, bool) {
	refYear := p.clock.Now().Year()
	var best *candidate
	consider := func(start int, d time.Time, ok bool) {
		if !ok {
			return
		}
		if best == nil || start < best.start {
			best = &candidate{start: start, date: d}
		}
	}

	if m := isoPattern.FindStringSubmatchIndex(text); m != nil {
		d, ok := buildDate(group(text, m, 1), monthNumber(group(text, m, 2)), group(text, m, 3), refYear)
		consider(m[0], d, ok)
	}
	if m := monthFirstPattern.FindStringSubmatchIndex(text); m != nil {
		d, ok := buildDate(group(text, m, 3), monthByName(group(text, m, 1)), group(text, m, 2), refYear)
		consider(m[0], d, ok)
	}
	if m := dayFirstPattern.FindStringSubmatchIndex(text); m != nil {
		d, ok := buildDate(group(text, m, 3), monthByName(group(text, m, 2)), group(text, m, 1), refYear)
		consider(m[0], d, ok)
	}
	if m := slashPattern.FindStringSubmatchIndex(text); m != nil {
		d, ok := buildDate(group(text, m, 3), monthNumber(group(text, m, 1)), group(text, m, 2), refYear)
		consider(m[0], d, ok)
	}

	if best == nil {
		return time.Time{}, false
	}
	return best.date, true
}

// parseWhole hands the full string to dateparse for layouts the patterns do
// not cover. dateparse has panicked on pathological input before.
func parseWhole(text string) (t time.Time, ok bool) {
	// Bare numbers such as "2025" or "15" are not dates on their own.
	if len(text) < 6 {
		return time.Time{}, false
	}
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	parsed, err := dateparse.ParseIn(text, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

func group(text string, m []int, i int) string {
	if 2*i+1 >= len(m) || m[2*i] < 0 {
		return ""
	}
	return text[m[2*i]:m[2*i+1]]
}

func monthByName(name string) time.Month {
	name = strings.ToLower(name)
	if len(name) < 3 {
		return 0
	}
	return months[name[:3]]
}

func monthNumber(s string) time.Month {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 12 {
		return 0
	}
	return time.Month(n)
}

func buildDate(yearText string, month time.Month, dayText string, refYear int) (time.Time, bool) {
	if month == 0 {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(dayText)
	if err != nil || day < 1 || day > 31 {
		return time.Time{}, false
	}
	year := refYear
	if yearText != "" {
		if year, err = strconv.Atoi(yearText); err != nil {
			return time.Time{}, false
		}
	}
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes overflow such as Feb 30; reject instead.
	if d.Month() != month || d.Day() != day {
		return time.Time{}, false
	}
	return d, true
}
