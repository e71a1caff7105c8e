package l2cap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// mockTimeProvider is a deterministic time provider for testing.
type mockTimeProvider struct {
	currentTime time.Time
}

func (m *mockTimeProvider) Now() time.Time                       { return m.currentTime }
func (m *mockTimeProvider) NewTimer(d time.Duration) *time.Timer { return time.NewTimer(d) }
func (m *mockTimeProvider) Sleep(d time.Duration)                { m.currentTime = m.currentTime.Add(d) }

func TestRealTimeProvider(t *testing.T) {
	before := time.Now()
	result := RealTimeProvider{}.Now()
	after := time.Now()

	assert.False(t, result.Before(before) || result.After(after), "Now returned a time outside the call")
}

func TestGetTimeProvider(t *testing.T) {
	fixed := &mockTimeProvider{currentTime: time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)}
	assert.Same(t, fixed, GetTimeProvider(fixed))
	assert.Equal(t, DefaultTimeProvider(), GetTimeProvider(nil))

	SetDefaultTimeProvider(fixed)
	t.Cleanup(func() { SetDefaultTimeProvider(nil) })
	assert.Same(t, fixed, GetTimeProvider(nil))

	SetDefaultTimeProvider(nil)
	assert.Equal(t, RealTimeProvider{}, DefaultTimeProvider())
}

func TestDeadline(t *testing.T) {
	now := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)
	tp := &mockTimeProvider{currentTime: now}

	tests := []struct {
		name        string
		ctxDeadline time.Time
		hasDeadline bool
		want        time.Time
	}{
		{"no context deadline", time.Time{}, false, now.Add(time.Second)},
		{"later context deadline", now.Add(time.Minute), true, now.Add(time.Second)},
		{"earlier context deadline", now.Add(100 * time.Millisecond), true, now.Add(100 * time.Millisecond)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Deadline(tp, time.Second, tt.ctxDeadline, tt.hasDeadline))
		})
	}

	tp.Sleep(5 * time.Second)
	assert.Equal(t, now.Add(6*time.Second), Deadline(tp, time.Second, time.Time{}, false), "Sleep advances the mock clock")
}
