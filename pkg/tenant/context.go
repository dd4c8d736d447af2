package tenant

import (
	"context"
	"errors"
)

// contextKey is a private type for context keys to prevent collisions
type contextKey string

const (
	companyIDKey   contextKey = "company_id"
	companySlugKey contextKey = "company_slug"
)

// ErrNoCompanyInContext is returned when tenant context is missing
var ErrNoCompanyInContext = errors.New("no company in context")

// WithCompany adds company identity to the context.
// This is called by the auth middleware after validating the access token,
// and by the kiosk handlers after resolving a slug.
func WithCompany(ctx context.Context, id, slug string) context.Context {
	ctx = context.WithValue(ctx, companyIDKey, id)
	ctx = context.WithValue(ctx, companySlugKey, slug)
	return ctx
}

// CompanyID extracts the company ID from context.
// Every repository call on a per-tenant table starts here; a missing
// company is a hard error, never an implicit "all tenants" query.
func CompanyID(ctx context.Context) (string, error) {
	id, ok := ctx.Value(companyIDKey).(string)
	if !ok || id == "" {
		return "", ErrNoCompanyInContext
	}
	return id, nil
}

// CompanySlug extracts the company slug from context.
func CompanySlug(ctx context.Context) (string, error) {
	slug, ok := ctx.Value(companySlugKey).(string)
	if !ok || slug == "" {
		return "", ErrNoCompanyInContext
	}
	return slug, nil
}

// MustCompanyID extracts the company ID from context and panics if not found.
// Use only in cases where missing tenant is a programming error.
func MustCompanyID(ctx context.Context) string {
	id, err := CompanyID(ctx)
	if err != nil {
		panic("company ID not found in context")
	}
	return id
}
