package service

import (
	"testing"

	"github.com/shiftline/shiftline-backend/internal/company"
	"github.com/shiftline/shiftline-backend/internal/payroll/repository"
	"github.com/shiftline/shiftline-backend/pkg/timeutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundCents(t *testing.T) {
	one := decimal.NewFromInt(1)
	ot := decimal.NewFromFloat(1.5)

	// 40 regular hours at 25.00/h
	assert.Equal(t, int64(100000), roundCents(2400, 2500, one))
	// 2.5 overtime hours at 25.00/h times 1.5
	assert.Equal(t, int64(9375), roundCents(150, 2500, ot))
	// 510 paid minutes at 25.00/h
	assert.Equal(t, int64(21250), roundCents(510, 2500, one))
	// Zero minutes pay nothing
	assert.Equal(t, int64(0), roundCents(0, 2500, one))
}

func TestRoundCentsHalfUp(t *testing.T) {
	// 1 minute at 0.01/h is 1/60 cent, which rounds down
	assert.Equal(t, int64(0), roundCents(1, 1, decimal.NewFromInt(1)))
	// 30 minutes at 0.01/h is exactly half a cent, which rounds up
	assert.Equal(t, int64(1), roundCents(30, 1, decimal.NewFromInt(1)))
	// 90 minutes at 0.01/h is 1.5 cents, again rounding up
	assert.Equal(t, int64(2), roundCents(90, 1, decimal.NewFromInt(1)))
}

// The weekly totals from a five-day 510-minute week with a 40 hour
// threshold: 42.5 hours split into 40 regular and 2.5 overtime, paying
// 100000 + 9375 cents.
func TestPayMathWeeklySplit(t *testing.T) {
	weekMinutes := 5 * 510
	threshold := 40 * 60

	overtime := weekMinutes - threshold
	require.Equal(t, 150, overtime)
	regular := weekMinutes - overtime
	require.Equal(t, 2400, regular)

	regularPay := roundCents(regular, 2500, decimal.NewFromInt(1))
	overtimePay := roundCents(overtime, 2500, decimal.NewFromFloat(1.5))
	assert.Equal(t, int64(100000), regularPay)
	assert.Equal(t, int64(9375), overtimePay)
	assert.Equal(t, int64(109375), regularPay+overtimePay)
}

// Regular plus overtime always equals total, and regenerating from the
// same inputs reproduces the same cents.
func TestPayMathRoundTrip(t *testing.T) {
	mult := decimal.NewFromFloat(1.5)
	cases := []struct {
		regular, overtime int
		rate              int64
	}{
		{2400, 150, 2500},
		{0, 0, 2500},
		{123, 45, 1999},
		{2399, 1, 3333},
	}
	for _, c := range cases {
		r1 := roundCents(c.regular, c.rate, decimal.NewFromInt(1))
		o1 := roundCents(c.overtime, c.rate, mult)
		r2 := roundCents(c.regular, c.rate, decimal.NewFromInt(1))
		o2 := roundCents(c.overtime, c.rate, mult)
		assert.Equal(t, r1+o1, r2+o2, "regeneration must be deterministic")
	}
}

func weeklySettings() company.Settings {
	s := company.DefaultSettings()
	s.PayrollWeekStartDay = 0
	return s
}

func TestResolvePeriodWeekly(t *testing.T) {
	req := GenerateRequest{PayrollType: repository.TypeWeekly, StartDate: "2025-06-16"}

	start, end, warnings, err := resolvePeriod(req, weeklySettings())
	require.NoError(t, err)
	assert.Equal(t, "2025-06-16", timeutil.FormatDate(start))
	assert.Equal(t, "2025-06-22", timeutil.FormatDate(end))
	assert.Empty(t, warnings, "2025-06-16 is a Monday")
}

func TestResolvePeriodWeeklyMisalignedWarns(t *testing.T) {
	req := GenerateRequest{PayrollType: repository.TypeWeekly, StartDate: "2025-06-18"}

	_, _, warnings, err := resolvePeriod(req, weeklySettings())
	require.NoError(t, err)
	assert.Len(t, warnings, 1)
}

func TestResolvePeriodBiweekly(t *testing.T) {
	s := weeklySettings()
	s.BiweeklyAnchorDate = "2025-06-02"

	req := GenerateRequest{PayrollType: repository.TypeBiweekly, StartDate: "2025-06-16"}
	start, end, _, err := resolvePeriod(req, s)
	require.NoError(t, err)
	assert.Equal(t, "2025-06-16", timeutil.FormatDate(start))
	assert.Equal(t, "2025-06-29", timeutil.FormatDate(end))

	// One week off the anchor is rejected
	req.StartDate = "2025-06-09"
	_, _, _, err = resolvePeriod(req, s)
	assert.Error(t, err)

	// Before the anchor but a whole number of fortnights away is fine
	req.StartDate = "2025-05-19"
	_, _, _, err = resolvePeriod(req, s)
	assert.NoError(t, err)
}

func TestResolvePeriodBiweeklyWithoutAnchor(t *testing.T) {
	req := GenerateRequest{PayrollType: repository.TypeBiweekly, StartDate: "2025-06-16"}

	start, end, warnings, err := resolvePeriod(req, weeklySettings())
	require.NoError(t, err)
	assert.Equal(t, 13, timeutil.DaysBetween(start, end))
	assert.Empty(t, warnings)
}

func TestResolvePeriodRejectsBadDate(t *testing.T) {
	req := GenerateRequest{PayrollType: repository.TypeWeekly, StartDate: "June 16"}
	_, _, _, err := resolvePeriod(req, weeklySettings())
	assert.Error(t, err)
}
