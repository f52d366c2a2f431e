package domain

import (
	"fmt"
	"time"
)

const Day = 24 * time.Hour

// DateOf truncates t to midnight UTC. Scheduling works on whole days.
func DateOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func AddDays(t time.Time, days int) time.Time {
	return DateOf(t).AddDate(0, 0, days)
}

// Period is an inclusive window of whole days.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func NewPeriod(start, end time.Time) (Period, error) {
	p := Period{Start: DateOf(start), End: DateOf(end)}
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}

func (p Period) Validate() error {
	if p.Start.IsZero() || p.End.IsZero() {
		return fmt.Errorf("%w: start and end are required", ErrInvalidPeriod)
	}
	if p.End.Before(p.Start) {
		return fmt.Errorf("%w: end %s before start %s", ErrInvalidPeriod, p.End.Format(time.DateOnly), p.Start.Format(time.DateOnly))
	}
	return nil
}

// Overlaps reports whether [start, end] shares at least one instant with p.
// The package end day is included in full.
func (p Period) Overlaps(start, end time.Time) bool {
	windowEnd := DateOf(p.End).Add(Day)
	return start.Before(windowEnd) && !end.Before(DateOf(p.Start))
}

func (p Period) String() string {
	return p.Start.Format("20060102") + "-" + p.End.Format("20060102")
}
