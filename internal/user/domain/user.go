// Package domain holds the user model's enumerations and the rules
// that depend on nothing but them.
package domain

import (
	"unicode"

	"github.com/shiftline/shiftline-backend/pkg/errors"
)

// Roles. EMPLOYEE is a legacy value still present in old rows; it is
// read as FRONTDESK and never written back.
const (
	RoleAdmin        = "ADMIN"
	RoleDeveloper    = "DEVELOPER"
	RoleMaintenance  = "MAINTENANCE"
	RoleFrontdesk    = "FRONTDESK"
	RoleHousekeeping = "HOUSEKEEPING"

	roleLegacyEmployee = "EMPLOYEE"
)

// User status values
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// PayRateTypeHourly is the only supported pay rate type.
const PayRateTypeHourly = "HOURLY"

// ValidRoles is the set of roles accepted on writes.
var ValidRoles = []string{
	RoleAdmin,
	RoleDeveloper,
	RoleMaintenance,
	RoleFrontdesk,
	RoleHousekeeping,
}

// NormalizeRole maps stored role values to the current set.
func NormalizeRole(role string) string {
	if role == roleLegacyEmployee {
		return RoleFrontdesk
	}
	return role
}

// IsValidRole reports whether role may be written. The legacy
// EMPLOYEE value is readable but not writable.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}

// CanPunch reports whether a user with this role may clock in and
// out. Admin and developer accounts never punch.
func CanPunch(role string) bool {
	role = NormalizeRole(role)
	return role != RoleAdmin && role != RoleDeveloper
}

// ValidatePasswordStrength enforces the password policy: at least 8
// characters with an upper-case letter, a lower-case letter and a digit.
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return errors.Validation(map[string]string{
			"password": "must be at least 8 characters",
		})
	}

	var hasUpper, hasLower, hasDigit bool
	for _, c := range password {
		switch {
		case unicode.IsUpper(c):
			hasUpper = true
		case unicode.IsLower(c):
			hasLower = true
		case unicode.IsDigit(c):
			hasDigit = true
		}
	}

	if !hasUpper || !hasLower || !hasDigit {
		return errors.Validation(map[string]string{
			"password": "must contain an upper-case letter, a lower-case letter and a digit",
		})
	}
	return nil
}

// ValidatePIN checks the kiosk PIN format: exactly four digits.
func ValidatePIN(pin string) error {
	if len(pin) != 4 {
		return errors.Validation(map[string]string{"pin": "must be exactly 4 digits"})
	}
	for _, c := range pin {
		if c < '0' || c > '9' {
			return errors.Validation(map[string]string{"pin": "must be exactly 4 digits"})
		}
	}
	return nil
}
