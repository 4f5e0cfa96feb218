// internal/circulation/domain.go
package circulation

import (
	"time"
)

// LoanDays is how long a checkout lasts, counted from the checkout day.
const LoanDays = 14

// Clock returns the current instant.
type Clock func() time.Time

// Option configures the circulation service and scanner.
type Option func(*options)

type options struct {
	now Clock
	loc *time.Location
}

func defaultOptions() options {
	return options{now: time.Now, loc: time.UTC}
}

// WithClock overrides the time source.
func WithClock(now Clock) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLocation sets the zone whose calendar day counts as "today".
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.loc = loc
		}
	}
}

func (o options) today() time.Time {
	y, m, d := o.now().In(o.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DueDate returns the due date for a checkout made on day.
func DueDate(day time.Time) time.Time {
	return day.AddDate(0, 0, LoanDays)
}
