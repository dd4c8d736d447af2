// Package token signs and verifies the three token types the API
// issues: short-lived access tokens, long-lived refresh tokens and
// password-setup invitation tokens. All are HMAC-SHA256 JWTs carrying
// a type claim so one can never stand in for another.
package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shiftline/shiftline-backend/pkg/config"
	"github.com/shiftline/shiftline-backend/pkg/errors"
)

// Token types
const (
	TypeAccess        = "access"
	TypeRefresh       = "refresh"
	TypePasswordSetup = "password_setup"
)

// Claims represents the JWT claims for all token types
type Claims struct {
	jwt.RegisteredClaims
	TokenType   string `json:"type"`
	CompanyID   string `json:"company_id,omitempty"`
	CompanySlug string `json:"company_slug,omitempty"`
	Role        string `json:"role,omitempty"`
	Email       string `json:"email,omitempty"`
}

// Identity is the user information baked into issued tokens
type Identity struct {
	UserID      string
	CompanyID   string
	CompanySlug string
	Role        string
	Email       string
}

// Pair contains access and refresh tokens
type Pair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	TokenType    string    `json:"token_type"`
}

// Codec signs and verifies tokens
type Codec struct {
	config *config.JWTConfig
}

// NewCodec creates a new token codec
func NewCodec(cfg *config.JWTConfig) *Codec {
	return &Codec{config: cfg}
}

// IssuePair issues an access+refresh token pair for the identity. The
// refresh token's expiry is returned so the session row can mirror it.
func (c *Codec) IssuePair(id Identity) (*Pair, time.Time, error) {
	now := time.Now()
	accessExpiry := now.Add(c.config.AccessExpiry)
	refreshExpiry := now.Add(c.config.RefreshExpiry)

	access, err := c.sign(Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.config.Issuer,
			Subject:   id.UserID,
			ExpiresAt: jwt.NewNumericDate(accessExpiry),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
		TokenType:   TypeAccess,
		CompanyID:   id.CompanyID,
		CompanySlug: id.CompanySlug,
		Role:        id.Role,
		Email:       id.Email,
	})
	if err != nil {
		return nil, time.Time{}, err
	}

	refresh, err := c.sign(Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.config.Issuer,
			Subject:   id.UserID,
			ExpiresAt: jwt.NewNumericDate(refreshExpiry),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
		TokenType: TypeRefresh,
		CompanyID: id.CompanyID,
	})
	if err != nil {
		return nil, time.Time{}, err
	}

	return &Pair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    accessExpiry,
		TokenType:    "Bearer",
	}, refreshExpiry, nil
}

// IssuePasswordSetup issues an invitation token carrying the invitee's
// user id and email.
func (c *Codec) IssuePasswordSetup(userID, companyID, email string) (string, error) {
	now := time.Now()
	return c.sign(Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.config.Issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(c.config.SetupExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
		TokenType: TypePasswordSetup,
		CompanyID: companyID,
		Email:     email,
	})
}

func (c *Codec) sign(claims Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(c.config.Secret))
}

// Parse verifies a token and requires the given type claim.
func (c *Codec) Parse(tokenString, expectedType string) (*Claims, error) {
	t, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.TokenInvalid()
		}
		return []byte(c.config.Secret), nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.TokenExpired()
		}
		return nil, errors.TokenInvalid()
	}

	claims, ok := t.Claims.(*Claims)
	if !ok || !t.Valid {
		return nil, errors.TokenInvalid()
	}
	if claims.TokenType != expectedType {
		return nil, errors.TokenInvalid()
	}

	return claims, nil
}

// AccessExpiry returns the configured access token TTL.
func (c *Codec) AccessExpiry() time.Duration {
	return c.config.AccessExpiry
}
