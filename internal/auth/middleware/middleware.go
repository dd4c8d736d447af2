// Package middleware wires authentication and authorization into the
// router: bearer-token parsing, role and permission gates, and the
// verified-email gate that fronts most core endpoints.
package middleware

import (
	"net/http"
	"strings"

	"github.com/shiftline/shiftline-backend/internal/auth/service"
	"github.com/shiftline/shiftline-backend/internal/auth/token"
	"github.com/shiftline/shiftline-backend/internal/permission"
	"github.com/shiftline/shiftline-backend/internal/user/domain"
	"github.com/shiftline/shiftline-backend/pkg/errors"
	"github.com/shiftline/shiftline-backend/pkg/httputil"
	"github.com/shiftline/shiftline-backend/pkg/logger"
	"github.com/shiftline/shiftline-backend/pkg/tenant"
)

// Middleware bundles the auth gates
type Middleware struct {
	codec   *token.Codec
	auth    *service.AuthService
	checker *permission.Checker
	logger  *logger.Logger
}

// New creates the auth middleware
func New(codec *token.Codec, auth *service.AuthService, checker *permission.Checker, log *logger.Logger) *Middleware {
	return &Middleware{codec: codec, auth: auth, checker: checker, logger: log}
}

// Authenticate validates the bearer access token and loads user and
// company identity into the request context.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			httputil.Error(w, errors.Unauthorized("missing authorization header"))
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			httputil.Error(w, errors.Unauthorized("invalid authorization header"))
			return
		}

		claims, err := m.codec.Parse(parts[1], token.TypeAccess)
		if err != nil {
			httputil.Error(w, err)
			return
		}

		ctx := httputil.WithUserContext(r.Context(), claims.Subject, claims.Email, claims.Role)
		ctx = tenant.WithCompany(ctx, claims.CompanyID, claims.CompanySlug)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole allows only the listed roles
func (m *Middleware) RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := domain.NormalizeRole(httputil.GetUserRole(r.Context()))
			for _, allowed := range roles {
				if role == allowed {
					next.ServeHTTP(w, r)
					return
				}
			}
			httputil.Error(w, errors.Forbidden("insufficient role"))
		})
	}
}

// RequirePermission gates on a category.verb capability
func (m *Middleware) RequirePermission(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := httputil.GetUserRole(r.Context())
			ok, err := m.checker.Has(r.Context(), role, perm)
			if err != nil {
				httputil.Error(w, err)
				return
			}
			if !ok {
				httputil.Error(w, errors.Forbidden("missing permission: "+perm))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireVerified rejects callers whose 30-day verification window
// has lapsed; the error payload carries the email so the client can
// route straight into the OTP flow.
func (m *Middleware) RequireVerified(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := httputil.GetUserID(r.Context())
		if userID == "" {
			httputil.Error(w, errors.Unauthorized("not authenticated"))
			return
		}
		if err := m.auth.RequireVerified(r.Context(), userID); err != nil {
			httputil.Error(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}
