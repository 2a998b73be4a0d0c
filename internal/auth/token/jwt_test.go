package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niksbanna/ehr-portal-sub000/internal/revocation"
	dErrors "github.com/niksbanna/ehr-portal-sub000/pkg/domain-errors"
)

var (
	fixedNow   = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	jwtService = NewJWTService("test-signing-key", "ehr-test", WithClock(func() time.Time { return fixedNow }))
)

func Test_GenerateAccessToken(t *testing.T) {
	tok, err := jwtService.GenerateAccessToken("user-7", "doctor", time.Hour)
	require.NoError(t, err)

	claims, err := jwtService.ValidateToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-7", claims.Subject)
	assert.Equal(t, "doctor", claims.Role)
	assert.Equal(t, "ehr-test", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
	assert.Equal(t, fixedNow.Add(time.Hour), claims.ExpiresAt.Time.UTC())
}

func Test_ValidateToken_InvalidToken(t *testing.T) {
	_, err := jwtService.ValidateToken("invalid-token-string")
	require.ErrorIs(t, err, dErrors.New(dErrors.CodeUnauthorized, "invalid token"))
}

func Test_ValidateToken_ExpiredToken(t *testing.T) {
	tok, err := jwtService.GenerateAccessToken("user-7", "doctor", -time.Minute)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(tok)
	require.ErrorIs(t, err, dErrors.New(dErrors.CodeUnauthorized, "token has expired"))
}

func Test_ValidateToken_WrongKeyOrIssuer(t *testing.T) {
	other := NewJWTService("other-key", "ehr-test", WithClock(func() time.Time { return fixedNow }))
	tok, err := other.GenerateAccessToken("user-7", "doctor", time.Hour)
	require.NoError(t, err)
	_, err = jwtService.ValidateToken(tok)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))

	foreign := NewJWTService("test-signing-key", "someone-else", WithClock(func() time.Time { return fixedNow }))
	tok, err = foreign.GenerateAccessToken("user-7", "doctor", time.Hour)
	require.NoError(t, err)
	_, err = jwtService.ValidateToken(tok)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_ValidateToken_RejectsNoneAlgorithm(t *testing.T) {
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "attacker",
			Issuer:    "ehr-test",
			ExpiresAt: jwt.NewNumericDate(fixedNow.Add(time.Hour)),
		},
	})
	tok, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(tok)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_ValidateToken_RequiresExpiry(t *testing.T) {
	noExp := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-7", Issuer: "ehr-test"},
	})
	tok, err := noExp.SignedString([]byte("test-signing-key"))
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(tok)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestAdapter_FingerprintsRawToken(t *testing.T) {
	tok, err := jwtService.GenerateAccessToken("user-7", "admin", 30*time.Minute)
	require.NoError(t, err)

	claims, err := NewJWTServiceAdapter(jwtService).ValidateToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-7", claims.UserID)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, revocation.Fingerprint(tok), claims.Fingerprint)
	assert.Equal(t, fixedNow.Add(30*time.Minute), claims.ExpiresAt)
}
