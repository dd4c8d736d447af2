package database

import (
	"strings"

	"github.com/lib/pq"
	"github.com/shiftline/shiftline-backend/pkg/errors"
)

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not a pq.Error.
func MapPQError(err error) *errors.AppError {
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return nil
	}

	switch pqErr.Code {
	// Check constraint violation (23514)
	case "23514":
		return errors.BadRequest("data validation failed: " + pqErr.Constraint)

	// Unique constraint violation (23505)
	case "23505":
		return errors.Conflict(formatConstraintMessage(pqErr))

	// Foreign key violation (23503)
	case "23503":
		return errors.BadRequest("referenced record does not exist")

	// Not null violation (23502)
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	default:
		return nil
	}
}

// formatConstraintMessage creates a user-friendly message for unique constraint violations.
// Argon2 salts per hash, so duplicate PINs cannot be detected by comparing
// hashes up front; the partial unique index on (company_id, pin_hash) is the
// authoritative signal and surfaces here.
func formatConstraintMessage(pqErr *pq.Error) string {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "pin_hash"):
		return "PIN already in use"
	case strings.Contains(constraint, "email"):
		return "a user with this email already exists"
	case strings.Contains(constraint, "slug"):
		return "a company with this slug already exists"
	case strings.Contains(constraint, "payroll_runs"):
		return "a payroll run already exists for this period"
	case strings.Contains(constraint, "clock_out"):
		return "employee already has an open shift"
	case strings.Contains(constraint, "time_entry_id"):
		return "a cash drawer session already exists for this shift"
	default:
		return "a record with these values already exists"
	}
}
