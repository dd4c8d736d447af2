package permission

import (
	"context"

	"github.com/shiftline/shiftline-backend/internal/user/domain"
	"github.com/shiftline/shiftline-backend/pkg/logger"
	"github.com/shiftline/shiftline-backend/pkg/tenant"
)

// Store is the slice of the repository the checker needs.
type Store interface {
	ListForRole(ctx context.Context, companyID, role string) ([]string, error)
}

// Checker answers "may this role do X" questions for the auth middleware.
type Checker struct {
	store  Store
	logger *logger.Logger
}

// NewChecker creates a new permission checker
func NewChecker(store Store, log *logger.Logger) *Checker {
	return &Checker{store: store, logger: log}
}

// Has reports whether the role holds the permission within the
// caller's company. ADMIN always does.
func (c *Checker) Has(ctx context.Context, role, required string) (bool, error) {
	role = domain.NormalizeRole(role)
	if role == domain.RoleAdmin {
		return true, nil
	}

	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return false, err
	}

	perms, err := c.store.ListForRole(ctx, companyID, role)
	if err != nil {
		return false, err
	}

	for _, p := range perms {
		if p == required {
			return true, nil
		}
	}

	c.logger.Debug().
		Str("role", role).
		Str("permission", required).
		Msg("permission denied")
	return false, nil
}
