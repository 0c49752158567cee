package schedule

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// dateLayout is the button/date text format shown to users.
const dateLayout = "02.01.06"

// weekdaysRu maps weekdays to their Russian abbreviations for date buttons.
var weekdaysRu = map[time.Weekday]string{
	time.Monday:    "Пн",
	time.Tuesday:   "Вт",
	time.Wednesday: "Ср",
	time.Thursday:  "Чт",
	time.Friday:    "Пт",
	time.Saturday:  "Сб",
	time.Sunday:    "Вс",
}

// leadingWeekdayRe strips an optional weekday token ("Пн ", "Вт  ") that
// users echo back when tapping a date button.
var leadingWeekdayRe = regexp.MustCompile(`^[А-Яа-я]+\s+`)

// FormatDate renders a date as a localized button label, e.g. "Вт 02.09.25".
func FormatDate(date time.Time) string {
	return fmt.Sprintf("%s %s", weekdaysRu[date.Weekday()], date.Format(dateLayout))
}

// ParseDate parses user date text: an optional leading weekday token
// followed by dd.mm.yy. The result is midnight in loc.
func ParseDate(text string, loc *time.Location) (time.Time, error) {
	cleaned := leadingWeekdayRe.ReplaceAllString(strings.TrimSpace(text), "")
	date, err := time.ParseInLocation(dateLayout, cleaned, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("schedule: parse date %q: %w", text, err)
	}
	return date, nil
}

// SameDate reports whether two timestamps fall on the same calendar date.
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
