package l2cap

import "time"

// TimeProvider is an interface for getting the current time and creating timers.
// This allows injecting a mock time provider for deterministic testing.
type TimeProvider interface {
	// Now returns the current time.
	Now() time.Time
	// NewTimer creates a new timer that fires after the given duration.
	NewTimer(d time.Duration) *time.Timer
	// Sleep pauses the calling goroutine for at least d.
	Sleep(d time.Duration)
}

// RealTimeProvider implements TimeProvider using the actual system time.
type RealTimeProvider struct{}

// Now returns the current system time.
func (RealTimeProvider) Now() time.Time {
	return time.Now()
}

// NewTimer creates a new timer using the standard library.
func (RealTimeProvider) NewTimer(d time.Duration) *time.Timer {
	return time.NewTimer(d)
}

// Sleep calls time.Sleep.
func (RealTimeProvider) Sleep(d time.Duration) {
	time.Sleep(d)
}

// defaultTimeProvider is the package-level default time provider.
var defaultTimeProvider TimeProvider = RealTimeProvider{}

// SetDefaultTimeProvider sets the package-level default time provider.
// This is primarily useful for testing to inject deterministic time.
func SetDefaultTimeProvider(tp TimeProvider) {
	if tp == nil {
		tp = RealTimeProvider{}
	}
	defaultTimeProvider = tp
}

// DefaultTimeProvider returns the package-level time provider.
func DefaultTimeProvider() TimeProvider {
	return defaultTimeProvider
}

// GetTimeProvider returns tp if non-nil, otherwise the package-level default.
func GetTimeProvider(tp TimeProvider) TimeProvider {
	if tp != nil {
		return tp
	}
	return defaultTimeProvider
}

// Deadline returns the earlier of now+timeout and the context-derived
// deadline, ignoring a zero deadline.
func Deadline(tp TimeProvider, timeout time.Duration, ctxDeadline time.Time, hasDeadline bool) time.Time {
	d := GetTimeProvider(tp).Now().Add(timeout)
	if hasDeadline && ctxDeadline.Before(d) {
		return ctxDeadline
	}
	return d
}
