package service

import (
	"testing"
	"time"

	"github.com/shiftline/shiftline-backend/internal/schedule/repository"
	"github.com/shiftline/shiftline-backend/pkg/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := timeutil.ParseDate(s)
	require.NoError(t, err)
	return d
}

func intPtr(v int) *int { return &v }

func TestTemplateMatchesNone(t *testing.T) {
	tpl := &repository.ShiftTemplate{
		TemplateType: repository.TemplateNone,
		StartDate:    mustDate(t, "2025-06-16"),
	}

	assert.True(t, templateMatches(tpl, mustDate(t, "2025-06-16")))
	assert.False(t, templateMatches(tpl, mustDate(t, "2025-06-17")))
}

func TestTemplateMatchesWeekly(t *testing.T) {
	// Day 2 is Wednesday on the Monday-first index
	tpl := &repository.ShiftTemplate{
		TemplateType: repository.TemplateWeekly,
		StartDate:    mustDate(t, "2025-06-16"),
		DayOfWeek:    intPtr(2),
	}

	assert.True(t, templateMatches(tpl, mustDate(t, "2025-06-18")))
	assert.True(t, templateMatches(tpl, mustDate(t, "2025-06-25")))
	assert.False(t, templateMatches(tpl, mustDate(t, "2025-06-19")))
}

func TestTemplateMatchesWeeklyWithoutDay(t *testing.T) {
	tpl := &repository.ShiftTemplate{
		TemplateType: repository.TemplateWeekly,
		StartDate:    mustDate(t, "2025-06-16"),
	}
	assert.False(t, templateMatches(tpl, mustDate(t, "2025-06-18")))
}

func TestTemplateMatchesBiweekly(t *testing.T) {
	// Monday recurrence anchored at 2025-06-16, a Monday
	tpl := &repository.ShiftTemplate{
		TemplateType: repository.TemplateBiweekly,
		StartDate:    mustDate(t, "2025-06-16"),
		DayOfWeek:    intPtr(0),
	}

	assert.True(t, templateMatches(tpl, mustDate(t, "2025-06-16")), "anchor week")
	assert.False(t, templateMatches(tpl, mustDate(t, "2025-06-23")), "off week")
	assert.True(t, templateMatches(tpl, mustDate(t, "2025-06-30")), "next on week")
	assert.False(t, templateMatches(tpl, mustDate(t, "2025-07-07")))
	assert.True(t, templateMatches(tpl, mustDate(t, "2025-07-14")))

	// Wrong weekday never matches regardless of the fortnight
	assert.False(t, templateMatches(tpl, mustDate(t, "2025-06-17")))
}

func TestTemplateMatchesMonthly(t *testing.T) {
	tpl := &repository.ShiftTemplate{
		TemplateType: repository.TemplateMonthly,
		StartDate:    mustDate(t, "2025-06-01"),
		DayOfMonth:   intPtr(15),
	}

	assert.True(t, templateMatches(tpl, mustDate(t, "2025-06-15")))
	assert.True(t, templateMatches(tpl, mustDate(t, "2025-07-15")))
	assert.False(t, templateMatches(tpl, mustDate(t, "2025-06-14")))
}

func TestTemplateMatchesUnknownType(t *testing.T) {
	tpl := &repository.ShiftTemplate{
		TemplateType: "QUARTERLY",
		StartDate:    mustDate(t, "2025-06-16"),
	}
	assert.False(t, templateMatches(tpl, mustDate(t, "2025-06-16")))
}
