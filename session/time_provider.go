package session

import "time"

// TimeProvider supplies the current time and timers so the liveness check
// and the polling loop can be driven deterministically in tests.
type TimeProvider interface {
	Now() time.Time
	NewTimer(d time.Duration) *time.Timer
}

// RealTimeProvider implements TimeProvider with the system clock.
type RealTimeProvider struct{}

// Now returns the current system time.
func (RealTimeProvider) Now() time.Time {
	return time.Now()
}

// NewTimer creates a standard library timer.
func (RealTimeProvider) NewTimer(d time.Duration) *time.Timer {
	return time.NewTimer(d)
}

func getTimeProvider(tp TimeProvider) TimeProvider {
	if tp != nil {
		return tp
	}
	return RealTimeProvider{}
}
