package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func conflicting(t *testing.T, date string, shiftIDs ...string) bulkCandidate {
	t.Helper()
	c := bulkCandidate{date: mustDate(t, date)}
	for _, id := range shiftIDs {
		c.conflicts = append(c.conflicts, Conflict{ShiftID: id})
	}
	return c
}

func TestConflictShiftIDsDedupesAcrossCandidates(t *testing.T) {
	// An overnight shift overlaps both the Monday and the Tuesday
	// candidate; overwrite must delete it exactly once.
	candidates := []bulkCandidate{
		conflicting(t, "2025-06-16", "shift-overnight"),
		conflicting(t, "2025-06-17", "shift-overnight", "shift-tuesday"),
		conflicting(t, "2025-06-18"),
	}

	ids := conflictShiftIDs(candidates)
	assert.Equal(t, []string{"shift-overnight", "shift-tuesday"}, ids)
}

func TestConflictShiftIDsNoConflicts(t *testing.T) {
	candidates := []bulkCandidate{
		conflicting(t, "2025-06-16"),
		conflicting(t, "2025-06-17"),
	}
	assert.Empty(t, conflictShiftIDs(candidates))
}

func TestConflictDetailsJoinsIDsPerDate(t *testing.T) {
	candidates := []bulkCandidate{
		conflicting(t, "2025-06-16", "shift-a", "shift-b"),
		conflicting(t, "2025-06-17"),
		conflicting(t, "2025-06-18", "shift-c"),
	}

	details := conflictDetails(candidates)
	assert.Equal(t, map[string]string{
		"2025-06-16": "shift-a,shift-b",
		"2025-06-18": "shift-c",
	}, details)
}

func TestConflictDetailsEmptyWithoutConflicts(t *testing.T) {
	candidates := []bulkCandidate{conflicting(t, "2025-06-16")}
	assert.Empty(t, conflictDetails(candidates))
}
