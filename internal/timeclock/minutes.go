// Package timeclock holds the pure paid-minutes engine shared by the
// punch coordinator and the payroll engine.
package timeclock

import "time"

// ComputePaidMinutes turns a clock-in/clock-out pair into payable
// minutes. Open entries (nil clockOut) contribute nothing. Raw minutes
// are floored, unpaid breaks are subtracted and clamped at zero, and
// the company rounding policy is applied last.
func ComputePaidMinutes(clockIn time.Time, clockOut *time.Time, breakMinutes int, policy string, breaksPaid bool) int {
	if clockOut == nil {
		return 0
	}

	raw := int(clockOut.Sub(clockIn) / time.Minute)
	if raw < 0 {
		return 0
	}
	if !breaksPaid {
		raw -= breakMinutes
		if raw < 0 {
			raw = 0
		}
	}

	return applyRounding(raw, policy)
}

// applyRounding rounds minutes per policy. Policies 5/6/10/30 round to
// the nearest multiple with half-up ties. Policy 15 is the 7-minute
// rule: a remainder of at most 7 rounds down, 8 and above rounds up.
func applyRounding(m int, policy string) int {
	switch policy {
	case "5":
		return roundNearest(m, 5)
	case "6":
		return roundNearest(m, 6)
	case "10":
		return roundNearest(m, 10)
	case "15":
		remainder := m % 15
		if remainder <= 7 {
			return m - remainder
		}
		return m + (15 - remainder)
	case "30":
		return roundNearest(m, 30)
	default:
		return m
	}
}

func roundNearest(m, multiple int) int {
	return (m + multiple/2) / multiple * multiple
}
