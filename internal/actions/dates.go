package actions

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// naturalDates lists relative day words, longest phrases first so that
// "depois de amanhã" is not consumed as "amanhã".
var naturalDates = []struct {
	phrase string
	offset int
}{
	{"depois de amanhã", 2},
	{"depois de amanha", 2},
	{"day after tomorrow", 2},
	{"amanhã", 1},
	{"amanha", 1},
	{"tomorrow", 1},
	{"hoje", 0},
	{"today", 0},
	{"ontem", -1},
	{"yesterday", -1},
}

var naturalDatePattern = func() *regexp.Regexp {
	alts := make([]string, len(naturalDates))
	for i, d := range naturalDates {
		alts[i] = regexp.QuoteMeta(d.phrase)
	}
	return regexp.MustCompile(`(?i)` + strings.Join(alts, "|"))
}()

// SubstituteDates replaces whole-word relative day words with YYYY-MM-DD
// dates computed from now.
func SubstituteDates(text string, now time.Time) string {
	matches := naturalDatePattern.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return text
	}

	var sb strings.Builder
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		if !wordBoundaryBefore(text, start) || !wordBoundaryAfter(text, end) {
			continue
		}
		offset, ok := dateOffset(text[start:end])
		if !ok {
			continue
		}
		sb.WriteString(text[last:start])
		sb.WriteString(now.AddDate(0, 0, offset).Format("2006-01-02"))
		last = end
	}
	sb.WriteString(text[last:])
	return sb.String()
}

func dateOffset(phrase string) (int, bool) {
	for _, d := range naturalDates {
		if strings.EqualFold(d.phrase, phrase) {
			return d.offset, true
		}
	}
	return 0, false
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func wordBoundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !isWordRune(r)
}

func wordBoundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !isWordRune(r)
}

var timeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTime reads an ISO-8601 timestamp. Values without an offset are taken
// in loc.
func ParseTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}
