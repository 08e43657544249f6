// Package interval decodes ISO-8601 recurring intervals of the form
// <start>/<end>/<period> and enumerates the instants they cover.
package interval

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	apperrors "geomet-mapfile/internal/common/errors"
)

// DateFormat is the wire format of every timestamp the engine reads or writes.
const DateFormat = "2006-01-02T15:04:05Z"

// ErrMalformedInterval is matched by errors.Is for any parse failure.
var ErrMalformedInterval = &apperrors.StandardError{Code: apperrors.ErrCodeMalformedInterval}

var periodPattern = regexp.MustCompile(`^P(T?)(\d+)(.)`)

// maxMonths bounds calendar periods to what time.Time can step through.
const maxMonths = 12 * 10000

// Period is either a calendar step in whole months or a fixed duration.
type Period struct {
	Months   int
	Duration time.Duration
	token    string
}

// IsZero reports a period that does not advance time.
func (p Period) IsZero() bool {
	return p.Months == 0 && p.Duration == 0
}

// String returns the period token as it appeared in the source string.
func (p Period) String() string {
	return p.token
}

// Recurring is an immutable start/end/period triple in UTC.
type Recurring struct {
	Start  time.Time
	End    time.Time
	Period Period
	raw    string
}

// Parse decodes s. Without the T designator the unit must be M (months);
// with it the unit must be H (hours) or M (minutes).
func Parse(s string) (Recurring, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return Recurring{}, apperrors.NewMalformedIntervalError(s, "expected start/end/period")
	}

	start, err := ParseTime(parts[0])
	if err != nil {
		return Recurring{}, apperrors.NewMalformedIntervalError(s, fmt.Sprintf("start: %v", err))
	}
	end, err := ParseTime(parts[1])
	if err != nil {
		return Recurring{}, apperrors.NewMalformedIntervalError(s, fmt.Sprintf("end: %v", err))
	}
	if end.Before(start) {
		return Recurring{}, apperrors.NewMalformedIntervalError(s, "end precedes start")
	}

	period, err := ParsePeriod(parts[2])
	if err != nil {
		return Recurring{}, apperrors.NewMalformedIntervalError(s, err.Error())
	}

	return Recurring{Start: start, End: end, Period: period, raw: s}, nil
}

// ParsePeriod decodes the period token of a recurring interval.
func ParsePeriod(token string) (Period, error) {
	m := periodPattern.FindStringSubmatch(token)
	if m == nil {
		return Period{}, fmt.Errorf("period %q does not match P[T]<n><unit>", token)
	}

	n, err := strconv.Atoi(m[2])
	if err != nil {
		return Period{}, fmt.Errorf("period %q: %w", token, err)
	}

	p := Period{token: token}
	switch {
	case m[1] == "" && m[3] == "M":
		if n > maxMonths {
			return Period{}, fmt.Errorf("period %q: too many months", token)
		}
		p.Months = n
	case m[1] == "T" && m[3] == "H":
		p.Duration, err = fixed(token, n, time.Hour)
	case m[1] == "T" && m[3] == "M":
		p.Duration, err = fixed(token, n, time.Minute)
	default:
		return Period{}, fmt.Errorf("period %q: unsupported unit %q", token, m[3])
	}
	if err != nil {
		return Period{}, err
	}
	return p, nil
}

// fixed returns n units as a duration, refusing values time.Duration cannot hold.
func fixed(token string, n int, unit time.Duration) (time.Duration, error) {
	if int64(n) > math.MaxInt64/int64(unit) {
		return 0, fmt.Errorf("period %q overflows a duration", token)
	}
	d := time.Duration(n) * unit
	if n > 0 && d <= 0 {
		return 0, fmt.Errorf("period %q overflows a duration", token)
	}
	return d, nil
}

// ParseTime parses a timestamp in DateFormat.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(DateFormat, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// FormatTime renders t in DateFormat.
func FormatTime(t time.Time) string {
	return t.UTC().Format(DateFormat)
}

// String returns the source string.
func (r Recurring) String() string {
	return r.raw
}

// IsInstant reports whether the interval collapses to its end instant.
func (r Recurring) IsInstant() bool {
	return r.Period.IsZero() || r.Start.Equal(r.End)
}

// Add steps t forward by n periods. Calendar periods keep the day of month
// and clamp it to the last day of a shorter target month (Jan 31 + 1 month
// is Feb 29 in a leap year).
func (r Recurring) Add(t time.Time, n int) time.Time {
	if r.Period.Months != 0 {
		return addMonths(t, r.Period.Months*n)
	}
	return t.Add(time.Duration(n) * r.Period.Duration)
}

func addMonths(t time.Time, months int) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	first = first.AddDate(0, months, 0)

	day := t.Day()
	if last := daysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	return first.AddDate(0, 0, day-1)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Enumerate returns every instant from Start to End inclusive. Instant
// intervals enumerate to nothing.
func (r Recurring) Enumerate() []time.Time {
	if r.IsInstant() {
		return nil
	}

	var out []time.Time
	for t := r.Start; !t.After(r.End); {
		out = append(out, t)
		next := r.Add(t, 1)
		if !next.After(t) {
			break
		}
		t = next
	}
	return out
}
