package company

import (
	"bytes"
	"encoding/json"

	"github.com/shiftline/shiftline-backend/internal/user/domain"
	"github.com/shiftline/shiftline-backend/pkg/errors"
	"github.com/shiftline/shiftline-backend/pkg/timeutil"
	"github.com/shopspring/decimal"
)

// Rounding policies for paid-minute computation
const (
	RoundingNone = "none"
	Rounding5    = "5"
	Rounding6    = "6"
	Rounding10   = "10"
	Rounding15   = "15"
	Rounding30   = "30"
)

var validRoundingPolicies = []string{
	RoundingNone, Rounding5, Rounding6, Rounding10, Rounding15, Rounding30,
}

// Settings is the typed per-company settings bag, persisted as JSONB.
// Unknown keys are rejected on write. The deprecated keys
// week_start_day, rounding_rule and overtime_threshold are migrated on
// read and never written back.
type Settings struct {
	Timezone                      string          `json:"timezone"`
	PayrollWeekStartDay           int             `json:"payroll_week_start_day"`
	BiweeklyAnchorDate            string          `json:"biweekly_anchor_date,omitempty"`
	OvertimeEnabled               bool            `json:"overtime_enabled"`
	OvertimeThresholdHoursPerWeek int             `json:"overtime_threshold_hours_per_week"`
	OvertimeMultiplierDefault     decimal.Decimal `json:"overtime_multiplier_default"`
	RoundingPolicy                string          `json:"rounding_policy"`
	BreaksPaid                    bool            `json:"breaks_paid"`

	CashDrawerEnabled                bool     `json:"cash_drawer_enabled"`
	CashDrawerRequiredForAll         bool     `json:"cash_drawer_required_for_all"`
	CashDrawerRequiredRoles          []string `json:"cash_drawer_required_roles"`
	CashDrawerStartingAmountCents    int64    `json:"cash_drawer_starting_amount_cents"`
	CashDrawerVarianceThresholdCents int64    `json:"cash_drawer_variance_threshold_cents"`
	CashDrawerAllowEdit              bool     `json:"cash_drawer_allow_edit"`
	CashDrawerRequireManagerReview   bool     `json:"cash_drawer_require_manager_review"`
}

// DefaultSettings returns the settings a freshly registered company starts with.
func DefaultSettings() Settings {
	return Settings{
		Timezone:                      "America/Chicago",
		PayrollWeekStartDay:           0,
		OvertimeEnabled:               true,
		OvertimeThresholdHoursPerWeek: 40,
		OvertimeMultiplierDefault:     decimal.NewFromFloat(1.5),
		RoundingPolicy:                RoundingNone,
		BreaksPaid:                    false,
		CashDrawerEnabled:             false,
		CashDrawerRequiredRoles:       []string{},
		CashDrawerAllowEdit:           true,
	}
}

// ParseStored decodes a stored settings document, filling defaults for
// absent keys and migrating deprecated ones. Stored documents are
// trusted, so unknown keys are tolerated here.
func ParseStored(raw json.RawMessage) (Settings, error) {
	s := DefaultSettings()
	if len(raw) == 0 {
		return s, nil
	}

	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return s, err
	}

	// Deprecated keys only apply when the replacement is absent.
	migrate := map[string]string{
		"week_start_day":     "payroll_week_start_day",
		"rounding_rule":      "rounding_policy",
		"overtime_threshold": "overtime_threshold_hours_per_week",
	}
	for old, current := range migrate {
		if v, ok := m[old]; ok {
			if _, exists := m[current]; !exists {
				m[current] = v
			}
			delete(m, old)
		}
	}

	merged, err := json.Marshal(m)
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal(merged, &s); err != nil {
		return s, err
	}
	if s.CashDrawerRequiredRoles == nil {
		s.CashDrawerRequiredRoles = []string{}
	}
	return s, nil
}

// ApplyUpdate decodes a settings update on top of current. Unknown
// keys and deprecated keys are both rejected.
func ApplyUpdate(current Settings, raw []byte) (Settings, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	updated := current
	if err := dec.Decode(&updated); err != nil {
		return current, errors.BadRequest("unrecognized or malformed settings key: " + err.Error())
	}
	if updated.CashDrawerRequiredRoles == nil {
		updated.CashDrawerRequiredRoles = []string{}
	}
	if err := updated.Validate(); err != nil {
		return current, err
	}
	return updated, nil
}

// Validate checks all value constraints on the bag.
func (s Settings) Validate() error {
	details := make(map[string]string)

	if _, err := timeutil.LoadLocation(s.Timezone); err != nil {
		details["timezone"] = "must be a valid IANA time zone"
	}
	if s.PayrollWeekStartDay < 0 || s.PayrollWeekStartDay > 6 {
		details["payroll_week_start_day"] = "must be between 0 (Monday) and 6 (Sunday)"
	}
	if s.BiweeklyAnchorDate != "" {
		if _, err := timeutil.ParseDate(s.BiweeklyAnchorDate); err != nil {
			details["biweekly_anchor_date"] = "must be a YYYY-MM-DD date"
		}
	}
	if s.OvertimeThresholdHoursPerWeek < 0 {
		details["overtime_threshold_hours_per_week"] = "must not be negative"
	}
	if s.OvertimeMultiplierDefault.LessThan(decimal.NewFromInt(1)) {
		details["overtime_multiplier_default"] = "must be at least 1"
	}
	if !isValidRoundingPolicy(s.RoundingPolicy) {
		details["rounding_policy"] = "must be one of: none, 5, 6, 10, 15, 30"
	}
	for _, role := range s.CashDrawerRequiredRoles {
		if !domain.IsValidRole(role) {
			details["cash_drawer_required_roles"] = "contains an unknown role: " + role
		}
	}
	if s.CashDrawerStartingAmountCents < 0 {
		details["cash_drawer_starting_amount_cents"] = "must not be negative"
	}
	if s.CashDrawerVarianceThresholdCents < 0 {
		details["cash_drawer_variance_threshold_cents"] = "must not be negative"
	}

	if len(details) > 0 {
		return errors.Validation(details)
	}
	return nil
}

func isValidRoundingPolicy(p string) bool {
	for _, v := range validRoundingPolicies {
		if v == p {
			return true
		}
	}
	return false
}

// OvertimeThresholdMinutes converts the weekly threshold to minutes.
func (s Settings) OvertimeThresholdMinutes() int {
	return s.OvertimeThresholdHoursPerWeek * 60
}

// CashRequiredFor reports whether the cash drawer policy applies to an
// employee with the given role.
func (s Settings) CashRequiredFor(role string) bool {
	if !s.CashDrawerEnabled {
		return false
	}
	if s.CashDrawerRequiredForAll {
		return true
	}
	role = domain.NormalizeRole(role)
	for _, r := range s.CashDrawerRequiredRoles {
		if domain.NormalizeRole(r) == role {
			return true
		}
	}
	return false
}

// Marshal renders the bag for storage.
func (s Settings) Marshal() (json.RawMessage, error) {
	return json.Marshal(s)
}
