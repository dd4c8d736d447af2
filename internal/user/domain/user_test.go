package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeRole(t *testing.T) {
	assert.Equal(t, RoleFrontdesk, NormalizeRole("EMPLOYEE"))
	assert.Equal(t, RoleAdmin, NormalizeRole(RoleAdmin))
	assert.Equal(t, RoleHousekeeping, NormalizeRole(RoleHousekeeping))
}

func TestIsValidRole(t *testing.T) {
	for _, r := range ValidRoles {
		assert.True(t, IsValidRole(r), r)
	}
	assert.False(t, IsValidRole("EMPLOYEE"), "legacy value is readable but not writable")
	assert.False(t, IsValidRole("admin"), "roles are case sensitive")
	assert.False(t, IsValidRole(""))
}

func TestCanPunch(t *testing.T) {
	assert.False(t, CanPunch(RoleAdmin))
	assert.False(t, CanPunch(RoleDeveloper))
	assert.True(t, CanPunch(RoleFrontdesk))
	assert.True(t, CanPunch(RoleMaintenance))
	assert.True(t, CanPunch(RoleHousekeeping))
	assert.True(t, CanPunch("EMPLOYEE"), "legacy rows normalize to FRONTDESK")
}

func TestValidatePasswordStrength(t *testing.T) {
	tests := []struct {
		name     string
		password string
		valid    bool
	}{
		{"valid", "Passw0rd", true},
		{"too short", "Pw0rd", false},
		{"no upper", "passw0rd", false},
		{"no lower", "PASSW0RD", false},
		{"no digit", "Password", false},
		{"long and mixed", "CorrectHorse9battery", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePasswordStrength(tt.password)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidatePIN(t *testing.T) {
	assert.NoError(t, ValidatePIN("1234"))
	assert.NoError(t, ValidatePIN("0000"))
	assert.Error(t, ValidatePIN("123"))
	assert.Error(t, ValidatePIN("12345"))
	assert.Error(t, ValidatePIN("12a4"))
	assert.Error(t, ValidatePIN(""))
}
