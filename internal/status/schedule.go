package status

import (
	"fmt"
	"time"

	"github.com/adhocore/gronx"
)

// Schedule yields the next refresh time strictly after a reference time.
type Schedule interface {
	Next(after time.Time) (time.Time, error)
}

// Every is a fixed-interval schedule.
func Every(d time.Duration) Schedule { return interval(d) }

type interval time.Duration

func (i interval) Next(after time.Time) (time.Time, error) {
	if i <= 0 {
		return time.Time{}, fmt.Errorf("status: non-positive interval %s", time.Duration(i))
	}
	return after.Add(time.Duration(i)), nil
}

// Cron parses a standard cron expression ("*/10 * * * *").
func Cron(expr string) (Schedule, error) {
	if !gronx.New().IsValid(expr) {
		return nil, fmt.Errorf("status: invalid cron expression %q", expr)
	}
	return cronSchedule(expr), nil
}

type cronSchedule string

func (c cronSchedule) Next(after time.Time) (time.Time, error) {
	return gronx.NextTickAfter(string(c), after, false)
}
