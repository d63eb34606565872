package domain

import (
	"fmt"
	"math"
	"time"
)

const dayMillis = 24 * 60 * 60 * 1000

// DayStart truncates a unix-millisecond timestamp to the start of its local
// day. Due timestamps are always stored at day granularity.
func DayStart(ts int64) int64 {
	t := time.UnixMilli(ts)
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location()).UnixMilli()
}

// ParseISODate converts a YYYY-MM-DD calendar date into a local day-start
// timestamp.
func ParseISODate(s string) (int64, error) {
	t, err := time.ParseInLocation("2006-01-02", s, time.Local)
	if err != nil {
		return 0, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t.UnixMilli(), nil
}

// FormatISODate renders a timestamp as a YYYY-MM-DD calendar date.
func FormatISODate(ts int64) string {
	return time.UnixMilli(ts).Format("2006-01-02")
}

// FormatDateTime renders a timestamp the way timeline entries display it.
func FormatDateTime(ts int64) string {
	return time.UnixMilli(ts).Format("02/01/2006 15:04")
}

// daysUntil counts whole local days from now until due. Rounding absorbs DST
// transitions inside the interval.
func daysUntil(due, now int64) int {
	diff := DayStart(due) - DayStart(now)
	return int(math.Round(float64(diff) / float64(dayMillis)))
}

// DueHuman returns the humanized due-date label shown on cards.
func DueHuman(due *int64, now int64) string {
	if due == nil {
		return "Sem prazo"
	}
	switch d := daysUntil(*due, now); {
	case d == 0:
		return "Hoje"
	case d == 1:
		return "Amanhã"
	case d == -1:
		return "Ontem"
	case d > 1:
		return fmt.Sprintf("Em %d dias", d)
	default:
		return fmt.Sprintf("Atrasado (%dd)", -d)
	}
}

// DueClass buckets a due date for styling: none, today, future or overdue.
func DueClass(due *int64, now int64) string {
	if due == nil {
		return "none"
	}
	switch d := daysUntil(*due, now); {
	case d == 0:
		return "today"
	case d > 0:
		return "future"
	default:
		return "overdue"
	}
}
