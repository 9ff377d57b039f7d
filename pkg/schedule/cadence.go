package schedule

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// Cadence is a periodic firing rule, expressible both as a crontab time
// field group and as the next firing instant for an in-process loop.
type Cadence interface {
	// Spec renders the five crontab time fields for this cadence.
	Spec() string
	// Next returns the first firing instant strictly after the given time.
	Next(after time.Time) time.Time
}

// Daily fires once a day at a fixed hour:minute offset.
func Daily(hour, minute int) (Cadence, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return nil, errors.Errorf("invalid daily offset %02d:%02d", hour, minute)
	}
	return &daily{hour: hour, minute: minute}, nil
}

type daily struct {
	hour   int
	minute int
}

func (d *daily) Spec() string {
	return fmt.Sprintf("%d %d * * *", d.minute, d.hour)
}

func (d *daily) Next(after time.Time) time.Time {
	next := time.Date(after.Year(), after.Month(), after.Day(), d.hour, d.minute, 0, 0, after.Location())
	if !next.After(after) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// TaskRefreshCadence is the reference task-refresh rule: daily at 00:15.
func TaskRefreshCadence() Cadence {
	c, err := Daily(0, 15)
	if err != nil {
		panic(err)
	}
	return c
}

// LauncherCadence is the reference launcher rule: every ten minutes.
func LauncherCadence() Cadence {
	c, err := Every(10 * time.Minute)
	if err != nil {
		panic(err)
	}
	return c
}

// Every fires on a fixed interval. The interval must be a whole number of
// minutes evenly dividing the hour so the crontab rendering (*/N) matches
// the agent loop behavior.
func Every(interval time.Duration) (Cadence, error) {
	minutes := int(interval / time.Minute)
	if interval%time.Minute != 0 || minutes < 1 || 60%minutes != 0 {
		return nil, errors.Errorf("interval %s cannot be expressed as a crontab minute step", interval)
	}
	return &every{interval: interval}, nil
}

type every struct {
	interval time.Duration
}

func (e *every) Spec() string {
	return fmt.Sprintf("*/%d * * * *", int(e.interval/time.Minute))
}

func (e *every) Next(after time.Time) time.Time {
	// Align to interval boundaries so firings stay stable regardless of
	// when the loop started.
	return after.Truncate(e.interval).Add(e.interval)
}
