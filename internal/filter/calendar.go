package filter

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/derickschaefer/filings/internal/model"
)

const dateLayout = "2006-01-02"

// MonthRef is a month relative to a filtered year: YearOffset years after
// it, calendar month Month (1-12).
type MonthRef struct {
	YearOffset int
	Month      int
}

// YearScope decides which months a bare year in a date filter covers.
// Start is inclusive and Stop exclusive.
type YearScope struct {
	Start MonthRef
	Stop  MonthRef
}

// DefaultYearScope covers the month ends of the calendar year itself.
var DefaultYearScope = YearScope{
	Start: MonthRef{YearOffset: 0, Month: 1},
	Stop:  MonthRef{YearOffset: 1, Month: 1},
}

// Validate rejects months outside 1-12 and a stop that is not after start.
func (s YearScope) Validate() error {
	for _, m := range []MonthRef{s.Start, s.Stop} {
		if m.Month < 1 || m.Month > 12 {
			return &model.ConfigError{Field: "year_filter_months", Value: strconv.Itoa(m.Month), Reason: "month must be 1-12"}
		}
	}
	if s.Stop.YearOffset*12+s.Stop.Month <= s.Start.YearOffset*12+s.Start.Month {
		return &model.ConfigError{Field: "year_filter_months", Reason: "stop is before or equal to start"}
	}
	return nil
}

// DateRange is the half-open interval [Start, End).
type DateRange struct {
	Start time.Time
	End   time.Time
}

func (r DateRange) String() string {
	return fmt.Sprintf("[%s, %s)", r.Start.Format(dateLayout), r.End.Format(dateLayout))
}

// MonthEnds lists the last day of every month whose month end lies in the
// range, in ascending order.
func (r DateRange) MonthEnds() []time.Time {
	var out []time.Time
	y, m := r.Start.Year(), int(r.Start.Month())
	for {
		d := MonthEnd(y, m)
		if !d.Before(r.End) {
			return out
		}
		if !d.Before(r.Start) {
			out = append(out, d)
		}
		m++
		if m > 12 {
			y, m = y+1, 1
		}
	}
}

// MonthEnd returns the last day of the month in UTC.
func MonthEnd(year, month int) time.Time {
	// Day 0 of the following month normalises to the last day of month,
	// including December → January of the next year and leap Februaries.
	return time.Date(year, time.Month(month+1), 0, 0, 0, 0, 0, time.UTC)
}

// ResolveYear turns a bare year into its date range under scope: from the
// end of the start month through the first day of the stop month.
func ResolveYear(year int, scope YearScope) (DateRange, error) {
	if err := scope.Validate(); err != nil {
		return DateRange{}, err
	}
	return DateRange{
		Start: MonthEnd(year+scope.Start.YearOffset, scope.Start.Month),
		End:   time.Date(year+scope.Stop.YearOffset, time.Month(scope.Stop.Month), 1, 0, 0, 0, 0, time.UTC),
	}, nil
}

var (
	yearRe  = regexp.MustCompile(`^\d{4}$`)
	monthRe = regexp.MustCompile(`^(\d{4})-(\d{1,2})$`)
)

// resolveDate rewrites one date filter value into the literal dates to
// request: a year becomes the month ends of its scope, a year-month the
// last day of that month, and a full date stays as it is.
func resolveDate(fieldName, v string, scope YearScope) ([]string, error) {
	if yearRe.MatchString(v) {
		year, _ := strconv.Atoi(v)
		r, err := ResolveYear(year, scope)
		if err != nil {
			return nil, err
		}
		ends := r.MonthEnds()
		out := make([]string, len(ends))
		for i, d := range ends {
			out[i] = d.Format(dateLayout)
		}
		return out, nil
	}
	if m := monthRe.FindStringSubmatch(v); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		if month < 1 || month > 12 {
			return nil, &model.ConfigError{Field: fieldName, Value: v, Reason: "month must be 1-12"}
		}
		return []string{MonthEnd(year, month).Format(dateLayout)}, nil
	}
	if _, err := time.Parse(dateLayout, v); err != nil {
		return nil, &model.ConfigError{Field: fieldName, Value: v, Reason: "expected YYYY, YYYY-MM or YYYY-MM-DD"}
	}
	return []string{v}, nil
}
