package hash

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerify(t *testing.T) {
	encoded, err := Hash("Passw0rd!")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$"))

	ok, err := Verify("Passw0rd!", encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Verify("wrong-password", encoded)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashIsSalted(t *testing.T) {
	a, err := Hash("1234")
	require.NoError(t, err)
	b, err := Hash("1234")
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "equal inputs must not produce equal encodings")

	ok, err := Verify("1234", a)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = Verify("1234", b)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyRejectsMalformedEncoding(t *testing.T) {
	_, err := Verify("anything", "not-an-argon2-string")
	assert.Error(t, err)
}
