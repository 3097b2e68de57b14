package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var fastParams = Argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

func TestPasswordRoundTrip(t *testing.T) {
	encoded, err := HashPasswordWithParams("s3cret-pass", fastParams)
	require.NoError(t, err)
	require.Contains(t, encoded, "$argon2id$v=19$t=1,m=8192,p=1$")

	ok, err := VerifyPassword("s3cret-pass", encoded)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = VerifyPassword("wrong", encoded)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerifyPasswordMalformed(t *testing.T) {
	_, err := VerifyPassword("x", "plaintext")
	require.ErrorIs(t, err, ErrMalformedHash)

	_, err = VerifyPassword("x", "$argon2id$v=19$t=1,m=8,p=1$!!$!!")
	require.Error(t, err)
}

func TestOperatorTokenRoundTrip(t *testing.T) {
	now := time.Now()
	token, claims, err := GenerateOperatorToken("secret", "admin", time.Hour, now)
	require.NoError(t, err)
	require.Equal(t, "admin", claims.Username)

	parsed, err := ParseOperatorToken(token, "secret")
	require.NoError(t, err)
	require.Equal(t, "admin", parsed.Subject)
	require.Equal(t, RoleOperator, parsed.Role)

	_, err = ParseOperatorToken(token, "other-secret")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestOperatorTokenExpired(t *testing.T) {
	token, _, err := GenerateOperatorToken("secret", "admin", time.Minute, time.Now().Add(-time.Hour))
	require.NoError(t, err)

	_, err = ParseOperatorToken(token, "secret")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestGenerateOperatorTokenRequiresSecret(t *testing.T) {
	_, _, err := GenerateOperatorToken("", "admin", time.Hour, time.Now())
	require.Error(t, err)
}
