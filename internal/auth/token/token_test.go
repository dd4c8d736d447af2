package token

import (
	"testing"
	"time"

	"github.com/shiftline/shiftline-backend/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCodec() *Codec {
	return NewCodec(&config.JWTConfig{
		Secret:        "test-secret",
		AccessExpiry:  15 * time.Minute,
		RefreshExpiry: 7 * 24 * time.Hour,
		SetupExpiry:   7 * 24 * time.Hour,
		Issuer:        "shiftline-test",
	})
}

func testIdentity() Identity {
	return Identity{
		UserID:      "6f9619ff-8b86-4d01-b42d-00cf4fc964ff",
		CompanyID:   "11111111-2222-3333-4444-555555555555",
		CompanySlug: "demo",
		Role:        "ADMIN",
		Email:       "admin@demo.test",
	}
}

func TestIssuePairRoundTrip(t *testing.T) {
	codec := testCodec()
	id := testIdentity()

	pair, refreshExpiry, err := codec.IssuePair(id)
	require.NoError(t, err)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), pair.ExpiresAt, 5*time.Second)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), refreshExpiry, 5*time.Second)

	access, err := codec.Parse(pair.AccessToken, TypeAccess)
	require.NoError(t, err)
	assert.Equal(t, id.UserID, access.Subject)
	assert.Equal(t, id.CompanyID, access.CompanyID)
	assert.Equal(t, id.CompanySlug, access.CompanySlug)
	assert.Equal(t, id.Role, access.Role)
	assert.Equal(t, id.Email, access.Email)

	refresh, err := codec.Parse(pair.RefreshToken, TypeRefresh)
	require.NoError(t, err)
	assert.Equal(t, id.UserID, refresh.Subject)
	assert.Equal(t, id.CompanyID, refresh.CompanyID)
}

func TestParseRejectsWrongType(t *testing.T) {
	codec := testCodec()
	pair, _, err := codec.IssuePair(testIdentity())
	require.NoError(t, err)

	_, err = codec.Parse(pair.RefreshToken, TypeAccess)
	assert.Error(t, err, "a refresh token must not pass as access")

	_, err = codec.Parse(pair.AccessToken, TypeRefresh)
	assert.Error(t, err, "an access token must not pass as refresh")
}

func TestParseRejectsWrongSecret(t *testing.T) {
	pair, _, err := testCodec().IssuePair(testIdentity())
	require.NoError(t, err)

	other := NewCodec(&config.JWTConfig{
		Secret:        "a-different-secret",
		AccessExpiry:  15 * time.Minute,
		RefreshExpiry: 7 * 24 * time.Hour,
	})
	_, err = other.Parse(pair.AccessToken, TypeAccess)
	assert.Error(t, err)
}

func TestParseRejectsExpired(t *testing.T) {
	codec := NewCodec(&config.JWTConfig{
		Secret:        "test-secret",
		AccessExpiry:  -time.Minute,
		RefreshExpiry: 7 * 24 * time.Hour,
	})
	pair, _, err := codec.IssuePair(testIdentity())
	require.NoError(t, err)

	_, err = codec.Parse(pair.AccessToken, TypeAccess)
	assert.Error(t, err)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := testCodec().Parse("not-a-token", TypeAccess)
	assert.Error(t, err)
}

func TestPasswordSetupToken(t *testing.T) {
	codec := testCodec()

	tok, err := codec.IssuePasswordSetup("user-1", "company-1", "new@demo.test")
	require.NoError(t, err)

	claims, err := codec.Parse(tok, TypePasswordSetup)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "company-1", claims.CompanyID)
	assert.Equal(t, "new@demo.test", claims.Email)

	_, err = codec.Parse(tok, TypeAccess)
	assert.Error(t, err, "setup tokens never grant API access")
}
