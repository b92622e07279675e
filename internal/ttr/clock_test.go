package ttr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var thresholds = Thresholds{WarningHours: 2, CriticalHours: 1}

func TestRemaining(t *testing.T) {
	openedAt := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	assert.InDelta(t, 4.0, Remaining(openedAt, 4, openedAt), 1e-9)
	assert.InDelta(t, 2.5, Remaining(openedAt, 4, openedAt.Add(90*time.Minute)), 1e-9)
	assert.InDelta(t, 0.0, Remaining(openedAt, 4, openedAt.Add(4*time.Hour)), 1e-9)
	assert.InDelta(t, -1.0, Remaining(openedAt, 4, openedAt.Add(5*time.Hour)), 1e-9)
}

func TestRemainingFractionalMinutes(t *testing.T) {
	openedAt := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	remaining := Remaining(openedAt, 4, openedAt.Add(3*time.Hour+45*time.Minute))
	assert.InDelta(t, 0.25, remaining, 1e-9)
}

func TestClassifyBoundaries(t *testing.T) {
	tests := []struct {
		name      string
		remaining float64
		want      Severity
	}{
		{"well before warning", 5, SeveritySafe},
		{"just above warning", 2.0001, SeveritySafe},
		{"exactly warning", 2, SeverityWarning},
		{"between warning and critical", 1.5, SeverityWarning},
		{"exactly critical", 1, SeverityCritical},
		{"below critical", 0.5, SeverityCritical},
		{"exactly zero", 0, SeverityOverdue},
		{"negative", -0.25, SeverityOverdue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.remaining, thresholds))
		})
	}
}

// Eight-hour target walked through the day: WARNING at 1.5h left, CRITICAL
// just inside the final hour, OVERDUE one minute past the deadline.
func TestClassifyTimeline(t *testing.T) {
	openedAt := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	remaining := Remaining(openedAt, 8, openedAt.Add(6*time.Hour+30*time.Minute))
	assert.InDelta(t, 1.5, remaining, 1e-9)
	assert.Equal(t, SeverityWarning, Classify(remaining, thresholds))

	remaining = Remaining(openedAt, 8, openedAt.Add(7*time.Hour+5*time.Minute))
	assert.InDelta(t, 0.9166, remaining, 1e-3)
	assert.Equal(t, SeverityCritical, Classify(remaining, thresholds))

	remaining = Remaining(openedAt, 8, openedAt.Add(8*time.Hour+1*time.Minute))
	assert.InDelta(t, -0.0166, remaining, 1e-3)
	assert.Equal(t, SeverityOverdue, Classify(remaining, thresholds))
}

func TestIsDueSoon(t *testing.T) {
	assert.True(t, IsDueSoon(2.5, 3))
	assert.True(t, IsDueSoon(3, 3))
	assert.False(t, IsDueSoon(3.001, 3))
	assert.False(t, IsDueSoon(0, 3))
	assert.False(t, IsDueSoon(-1, 3))
}
