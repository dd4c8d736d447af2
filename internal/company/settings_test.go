package company

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()

	assert.Equal(t, "America/Chicago", s.Timezone)
	assert.Equal(t, 0, s.PayrollWeekStartDay)
	assert.True(t, s.OvertimeEnabled)
	assert.Equal(t, 40, s.OvertimeThresholdHoursPerWeek)
	assert.True(t, s.OvertimeMultiplierDefault.Equal(decimal.NewFromFloat(1.5)))
	assert.Equal(t, RoundingNone, s.RoundingPolicy)
	assert.False(t, s.BreaksPaid)
	assert.False(t, s.CashDrawerEnabled)
	assert.NoError(t, s.Validate())
}

func TestParseStoredMigratesDeprecatedKeys(t *testing.T) {
	raw := json.RawMessage(`{
		"week_start_day": 3,
		"rounding_rule": "15",
		"overtime_threshold": 38
	}`)

	s, err := ParseStored(raw)
	require.NoError(t, err)
	assert.Equal(t, 3, s.PayrollWeekStartDay)
	assert.Equal(t, "15", s.RoundingPolicy)
	assert.Equal(t, 38, s.OvertimeThresholdHoursPerWeek)
}

func TestParseStoredReplacementKeyWins(t *testing.T) {
	raw := json.RawMessage(`{"week_start_day": 3, "payroll_week_start_day": 5}`)

	s, err := ParseStored(raw)
	require.NoError(t, err)
	assert.Equal(t, 5, s.PayrollWeekStartDay)
}

func TestParseStoredEmptyYieldsDefaults(t *testing.T) {
	s, err := ParseStored(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), s)
}

func TestParseStoredToleratesUnknownKeys(t *testing.T) {
	s, err := ParseStored(json.RawMessage(`{"some_future_key": true, "timezone": "UTC"}`))
	require.NoError(t, err)
	assert.Equal(t, "UTC", s.Timezone)
}

func TestApplyUpdateRejectsUnknownKeys(t *testing.T) {
	_, err := ApplyUpdate(DefaultSettings(), []byte(`{"no_such_setting": 1}`))
	assert.Error(t, err)
}

func TestApplyUpdateRejectsDeprecatedKeys(t *testing.T) {
	_, err := ApplyUpdate(DefaultSettings(), []byte(`{"week_start_day": 2}`))
	assert.Error(t, err)
}

func TestApplyUpdateValidates(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad timezone", `{"timezone": "Mars/Olympus"}`},
		{"week start out of range", `{"payroll_week_start_day": 7}`},
		{"bad anchor date", `{"biweekly_anchor_date": "June 16"}`},
		{"multiplier below one", `{"overtime_multiplier_default": "0.5"}`},
		{"unknown rounding policy", `{"rounding_policy": "20"}`},
		{"unknown required role", `{"cash_drawer_required_roles": ["JANITOR"]}`},
		{"negative starting amount", `{"cash_drawer_starting_amount_cents": -1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ApplyUpdate(DefaultSettings(), []byte(tt.body))
			assert.Error(t, err)
		})
	}
}

func TestApplyUpdatePartial(t *testing.T) {
	s, err := ApplyUpdate(DefaultSettings(), []byte(`{"rounding_policy": "15", "breaks_paid": true}`))
	require.NoError(t, err)
	assert.Equal(t, "15", s.RoundingPolicy)
	assert.True(t, s.BreaksPaid)
	// Untouched keys keep their values
	assert.Equal(t, "America/Chicago", s.Timezone)
}

func TestCashRequiredFor(t *testing.T) {
	s := DefaultSettings()
	s.CashDrawerEnabled = true
	s.CashDrawerRequiredRoles = []string{"FRONTDESK"}

	assert.True(t, s.CashRequiredFor("FRONTDESK"))
	assert.True(t, s.CashRequiredFor("EMPLOYEE"), "legacy role normalizes to FRONTDESK")
	assert.False(t, s.CashRequiredFor("HOUSEKEEPING"))

	s.CashDrawerRequiredForAll = true
	assert.True(t, s.CashRequiredFor("HOUSEKEEPING"))

	s.CashDrawerEnabled = false
	assert.False(t, s.CashRequiredFor("FRONTDESK"), "master toggle wins")
}

func TestOvertimeThresholdMinutes(t *testing.T) {
	s := DefaultSettings()
	assert.Equal(t, 2400, s.OvertimeThresholdMinutes())
}

func TestSettingsMarshalRoundTrip(t *testing.T) {
	s := DefaultSettings()
	s.BiweeklyAnchorDate = "2025-06-16"
	s.CashDrawerEnabled = true

	raw, err := s.Marshal()
	require.NoError(t, err)

	parsed, err := ParseStored(raw)
	require.NoError(t, err)
	assert.Equal(t, s.BiweeklyAnchorDate, parsed.BiweeklyAnchorDate)
	assert.True(t, parsed.CashDrawerEnabled)
	assert.True(t, parsed.OvertimeMultiplierDefault.Equal(s.OvertimeMultiplierDefault))
}
