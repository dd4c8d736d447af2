package permission

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shiftline/shiftline-backend/pkg/database"
)

// SentinelCompanyID marks role_permissions rows that hold the global
// defaults. A matching "system" company row exists to satisfy the FK.
var SentinelCompanyID = uuid.Nil.String()

// Permission is a catalog row
type Permission struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// RolePermission grants a permission to a role within a company
type RolePermission struct {
	Role         string    `db:"role" json:"role"`
	PermissionID string    `db:"permission_id" json:"permission_id"`
	CompanyID    string    `db:"company_id" json:"company_id"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Repository handles permission persistence
type Repository struct {
	db *database.DB
}

// NewRepository creates a new permission repository
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// ListForRole returns the permission names granted to a role. Company
// rows override the global defaults entirely: if any row exists for
// the company, only company rows apply.
func (r *Repository) ListForRole(ctx context.Context, companyID, role string) ([]string, error) {
	var perms []string

	query := `
		SELECT p.name
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role = $1 AND rp.company_id = $2
		ORDER BY p.name
	`
	if err := r.db.SelectContext(ctx, &perms, query, role, companyID); err != nil {
		return nil, err
	}
	if len(perms) > 0 {
		return perms, nil
	}

	if err := r.db.SelectContext(ctx, &perms, query, role, SentinelCompanyID); err != nil {
		return nil, err
	}
	return perms, nil
}

// Grant adds a role-permission row for a company. The permission must
// already exist in the catalog table.
func (r *Repository) Grant(ctx context.Context, companyID, role, permName string) error {
	query := `
		INSERT INTO role_permissions (role, permission_id, company_id)
		SELECT $1, p.id, $2 FROM permissions p WHERE p.name = $3
		ON CONFLICT DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query, role, companyID, permName)
	return err
}

// Revoke removes a role-permission row for a company.
func (r *Repository) Revoke(ctx context.Context, companyID, role, permName string) error {
	query := `
		DELETE FROM role_permissions rp
		USING permissions p
		WHERE rp.permission_id = p.id
		  AND rp.role = $1 AND rp.company_id = $2 AND p.name = $3
	`
	_, err := r.db.ExecContext(ctx, query, role, companyID, permName)
	return err
}
