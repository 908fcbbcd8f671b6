// Package system provides the clocks that stamp progress events and reports.
package system

import "time"

// DefaultPrecision matches the millisecond granularity of progress records.
const DefaultPrecision = time.Millisecond

// Clock reads the wall clock in UTC, truncated to Precision. A zero
// Precision keeps full resolution.
type Clock struct {
	Precision time.Duration
}

// New returns a Clock with DefaultPrecision.
func New() *Clock {
	return &Clock{Precision: DefaultPrecision}
}

// Now returns the current UTC time.
func (c Clock) Now() time.Time {
	now := time.Now().UTC()
	if c.Precision > 0 {
		now = now.Truncate(c.Precision)
	}
	return now
}

// Fixed always reports the same instant. Reports and event logs built with
// it are reproducible.
type Fixed time.Time

// Now returns the fixed instant in UTC.
func (f Fixed) Now() time.Time {
	return time.Time(f).UTC()
}
