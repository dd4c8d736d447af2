package timeclock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func entryTimes(minutes int) (time.Time, *time.Time) {
	in := time.Date(2025, 6, 16, 9, 0, 0, 0, time.UTC)
	out := in.Add(time.Duration(minutes) * time.Minute)
	return in, &out
}

func TestComputePaidMinutes_OpenEntry(t *testing.T) {
	in := time.Date(2025, 6, 16, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, ComputePaidMinutes(in, nil, 30, "15", false))
}

func TestComputePaidMinutes_NegativeSpan(t *testing.T) {
	in := time.Date(2025, 6, 16, 9, 0, 0, 0, time.UTC)
	out := in.Add(-time.Hour)
	assert.Equal(t, 0, ComputePaidMinutes(in, &out, 0, "none", false))
}

func TestComputePaidMinutes_UnpaidBreakSubtracts(t *testing.T) {
	in, out := entryTimes(480)
	assert.Equal(t, 450, ComputePaidMinutes(in, out, 30, "none", false))
}

func TestComputePaidMinutes_PaidBreakKeepsMinutes(t *testing.T) {
	in, out := entryTimes(480)
	assert.Equal(t, 480, ComputePaidMinutes(in, out, 30, "none", true))
}

func TestComputePaidMinutes_BreakLargerThanSpanClampsToZero(t *testing.T) {
	in, out := entryTimes(20)
	assert.Equal(t, 0, ComputePaidMinutes(in, out, 60, "none", false))
}

func TestComputePaidMinutes_RawMinutesFloored(t *testing.T) {
	in := time.Date(2025, 6, 16, 9, 0, 0, 0, time.UTC)
	out := in.Add(59*time.Minute + 59*time.Second)
	assert.Equal(t, 59, ComputePaidMinutes(in, &out, 0, "none", false))
}

// A 09:00-18:07 day with a 30 minute unpaid break is 547 raw minutes,
// 517 after the break, and the 7-minute rule drops it to 510.
func TestComputePaidMinutes_SevenMinuteRule(t *testing.T) {
	in := time.Date(2025, 6, 16, 9, 0, 0, 0, time.UTC)
	out := in.Add(9*time.Hour + 7*time.Minute)
	assert.Equal(t, 510, ComputePaidMinutes(in, &out, 30, "15", false))
}

func TestApplyRounding_Policies(t *testing.T) {
	tests := []struct {
		name    string
		minutes int
		policy  string
		want    int
	}{
		{"none identity", 517, "none", 517},
		{"unknown policy identity", 517, "unhandled", 517},
		{"5 rounds down", 512, "5", 510},
		{"5 rounds up on half", 513, "5", 515},
		{"6 rounds to tenth of hour", 514, "6", 516},
		{"10 rounds down", 514, "10", 510},
		{"10 rounds up on half", 515, "10", 520},
		{"15 remainder seven rounds down", 517, "15", 510},
		{"15 remainder eight rounds up", 518, "15", 525},
		{"15 exact multiple unchanged", 510, "15", 510},
		{"30 rounds down", 494, "30", 480},
		{"30 rounds up on half", 495, "30", 510},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, applyRounding(tt.minutes, tt.policy))
		})
	}
}

// Longer worked spans never produce fewer paid minutes under any
// policy.
func TestComputePaidMinutes_Monotonic(t *testing.T) {
	in := time.Date(2025, 6, 16, 9, 0, 0, 0, time.UTC)
	policies := []string{"none", "5", "6", "10", "15", "30"}

	for _, policy := range policies {
		prev := 0
		for minutes := 0; minutes <= 600; minutes++ {
			out := in.Add(time.Duration(minutes) * time.Minute)
			got := ComputePaidMinutes(in, &out, 0, policy, true)
			if got < prev {
				t.Fatalf("policy %s: paid minutes decreased from %d to %d at span %d", policy, prev, got, minutes)
			}
			prev = got
		}
	}
}
