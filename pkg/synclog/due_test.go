package synclog

import (
	"testing"
	"time"
)

func TestDue(t *testing.T) {
	now := time.Date(2026, 6, 2, 12, 0, 0, 0, time.UTC)
	interval := 24 * time.Hour

	tests := []struct {
		name          string
		lastCompleted *time.Time
		want          bool
	}{
		{name: "never synced", lastCompleted: nil, want: true},
		{name: "exactly one interval ago", lastCompleted: timePtr(now.Add(-interval)), want: true},
		{name: "older than the interval", lastCompleted: timePtr(now.Add(-interval - time.Hour)), want: true},
		{name: "one second short", lastCompleted: timePtr(now.Add(-interval + time.Second)), want: false},
		{name: "just completed", lastCompleted: timePtr(now), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Due(tt.lastCompleted, interval, now); got != tt.want {
				t.Fatalf("Due() = %v, want %v", got, tt.want)
			}
		})
	}
}

func timePtr(v time.Time) *time.Time { return &v }
