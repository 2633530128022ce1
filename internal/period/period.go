// Package period computes the calendar periods a contract requires deliverables for.
// Everything here is pure: callers pass "today" explicitly.
package period

import (
	"fmt"
	"strings"
	"time"
)

// Periodicity is how often a contract requires a deliverable.
type Periodicity string

const (
	Monthly  Periodicity = "MONTHLY"
	Biweekly Periodicity = "BIWEEKLY"
	OneTime  Periodicity = "ONE_TIME"
)

// Valid reports whether p is a known periodicity.
func (p Periodicity) Valid() bool {
	switch p {
	case Monthly, Biweekly, OneTime:
		return true
	default:
		return false
	}
}

// ParsePeriodicity normalises free-form input ("monthly", "Quincenal", "one-time").
// Unknown values return false.
func ParsePeriodicity(raw string) (Periodicity, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	normalized = strings.NewReplacer("-", "_", " ", "_").Replace(normalized)
	switch normalized {
	case "MONTHLY", "MENSUAL":
		return Monthly, true
	case "BIWEEKLY", "QUINCENAL":
		return Biweekly, true
	case "ONE_TIME", "ONETIME", "UNICO", "ÚNICO":
		return OneTime, true
	default:
		return "", false
	}
}

// Period is a closed calendar interval [Start, End] with its 1-based sequence number.
type Period struct {
	Number int
	Start  time.Time
	End    time.Time
}

// Date truncates t to midnight UTC of its calendar date in t's own location.
func Date(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Required returns the periods between start and end that have fully elapsed before today.
// Numbering starts at 1 and only counts emitted periods.
func Required(start, end time.Time, p Periodicity, today time.Time) []Period {
	return RequiredFrom(start, end, p, today, 1)
}

// RequiredFrom is Required with numbering starting at first.
func RequiredFrom(start, end time.Time, p Periodicity, today time.Time, first int) []Period {
	if start.IsZero() || end.IsZero() {
		return nil
	}
	start, end, today = Date(start), Date(end), Date(today)
	if start.After(end) {
		return nil
	}
	if first < 1 {
		first = 1
	}

	switch p {
	case OneTime:
		if today.After(end) {
			return []Period{{Number: first, Start: start, End: end}}
		}
		return nil
	case Monthly:
		return walk(start, end, today, first, monthSlices)
	case Biweekly:
		return walk(start, end, today, first, halfMonthSlices)
	default:
		return nil
	}
}

// slicer splits the calendar month beginning at monthStart into consecutive ranges.
type slicer func(monthStart time.Time) [][2]time.Time

func monthSlices(monthStart time.Time) [][2]time.Time {
	return [][2]time.Time{{monthStart, endOfMonth(monthStart)}}
}

func halfMonthSlices(monthStart time.Time) [][2]time.Time {
	mid := monthStart.AddDate(0, 0, 14)
	return [][2]time.Time{
		{monthStart, mid},
		{mid.AddDate(0, 0, 1), endOfMonth(monthStart)},
	}
}

func walk(start, end, today time.Time, first int, slices slicer) []Period {
	var periods []Period
	number := first
	cursor := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	for !cursor.After(end) {
		for _, slice := range slices(cursor) {
			from, to := clip(slice[0], slice[1], start, end)
			if from.After(to) {
				continue
			}
			// periods are chronological: once one has not elapsed, none after it has
			if !to.Before(today) {
				return periods
			}
			periods = append(periods, Period{Number: number, Start: from, End: to})
			number++
		}
		cursor = cursor.AddDate(0, 1, 0)
	}
	return periods
}

func clip(from, to, start, end time.Time) (time.Time, time.Time) {
	if from.Before(start) {
		from = start
	}
	if to.After(end) {
		to = end
	}
	return from, to
}

func endOfMonth(monthStart time.Time) time.Time {
	return monthStart.AddDate(0, 1, -1)
}

// Label renders the human name of a period, used for payment concepts and exports.
func Label(p Period, periodicity Periodicity) string {
	switch periodicity {
	case Monthly:
		return fmt.Sprintf("%s %d", p.Start.Month(), p.Start.Year())
	case Biweekly:
		return fmt.Sprintf("%s %d (%d-%d)", p.Start.Month(), p.Start.Year(), p.Start.Day(), p.End.Day())
	default:
		return fmt.Sprintf("%s to %s", p.Start.Format("2006-01-02"), p.End.Format("2006-01-02"))
	}
}
