package scraper

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xhad/minutemate/internal/models"
)

var (
	monthNameDate = regexp.MustCompile(`(?i)\b(jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})\b`)
	slashDate     = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
	isoDate       = regexp.MustCompile(`(?:^|\D)(\d{4})[-_](\d{2})[-_](\d{2})(?:\D|$)`)

	// agenda-center file ids look like _08012023-1234
	compactDate = regexp.MustCompile(`_(\d{2})(\d{2})(\d{4})(?:\D|$)`)

	minutesWord = regexp.MustCompile(`(?i)(?:^|[^a-z])minutes(?:[^a-z]|$)`)
	agendaWord  = regexp.MustCompile(`(?i)(?:^|[^a-z])agenda(?:[^a-z]|$)`)
)

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "sept": time.September, "oct": time.October,
	"nov": time.November, "dec": time.December,
}

// InferDate finds the first calendar date in text. Recognized forms are
// "Aug 1, 2023", "08/01/2023", "2023-08-01" and agenda-center file ids.
func InferDate(text string) (time.Time, bool) {
	if m := monthNameDate.FindStringSubmatch(text); m != nil {
		if t, ok := makeDate(m[3], strconv.Itoa(int(months[strings.ToLower(m[1])])), m[2]); ok {
			return t, true
		}
	}
	if m := slashDate.FindStringSubmatch(text); m != nil {
		if t, ok := makeDate(m[3], m[1], m[2]); ok {
			return t, true
		}
	}
	if m := isoDate.FindStringSubmatch(text); m != nil {
		if t, ok := makeDate(m[1], m[2], m[3]); ok {
			return t, true
		}
	}
	if m := compactDate.FindStringSubmatch(text); m != nil {
		if t, ok := makeDate(m[3], m[1], m[2]); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func makeDate(year, month, day string) (time.Time, bool) {
	y, err1 := strconv.Atoi(year)
	m, err2 := strconv.Atoi(month)
	d, err3 := strconv.Atoi(day)
	if err1 != nil || err2 != nil || err3 != nil || m < 1 || m > 12 || d < 1 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes 02/30 into March
	if t.Day() != d || t.Month() != time.Month(m) {
		return time.Time{}, false
	}
	return t, true
}

// InferFileType reports whether text names minutes or an agenda. Minutes
// win when both appear, since minutes pages often mention the agenda.
func InferFileType(text string) (models.FileType, bool) {
	switch {
	case minutesWord.MatchString(text):
		return models.Minutes, true
	case agendaWord.MatchString(text):
		return models.Agenda, true
	}
	return "", false
}
