package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIssuer(t *testing.T) *TokenIssuer {
	t.Helper()
	issuer, err := NewTokenIssuer(TokenConfig{Secret: "test-secret-test-secret-test-secret"})
	require.NoError(t, err)
	return issuer
}

func TestNewTokenIssuer_RequiresSecret(t *testing.T) {
	_, err := NewTokenIssuer(TokenConfig{})
	assert.Error(t, err)
}

func TestTokenIssuer_Defaults(t *testing.T) {
	issuer := newTestIssuer(t)
	assert.Equal(t, 7*24*time.Hour, issuer.TTL(PurposeAccess))
	assert.Equal(t, time.Hour, issuer.TTL(PurposePasswordReset))
}

func TestTokenIssuer_AccessRoundTrip(t *testing.T) {
	issuer := newTestIssuer(t)

	token, err := issuer.IssueAccessToken(42)
	require.NoError(t, err)

	claims, err := issuer.Verify(token, PurposeAccess)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "access", claims.Subject)
	require.NotNil(t, claims.NotBefore)
	require.NotNil(t, claims.ExpiresAt)
}

func TestTokenIssuer_Expired(t *testing.T) {
	issuer := newTestIssuer(t)
	issued := time.Now()

	token, err := issuer.Issue(PurposeAccess, 1, "", time.Minute)
	require.NoError(t, err)

	issuer.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = issuer.Verify(token, PurposeAccess)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestTokenIssuer_NotYetValid(t *testing.T) {
	issuer := newTestIssuer(t)
	issuer.now = func() time.Time { return time.Now().Add(time.Hour) }

	token, err := issuer.IssueAccessToken(1)
	require.NoError(t, err)

	issuer.now = time.Now
	_, err = issuer.Verify(token, PurposeAccess)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.ErrorIs(t, err, jwt.ErrTokenNotValidYet)
}

func TestTokenIssuer_WrongSecret(t *testing.T) {
	issuer := newTestIssuer(t)
	other, err := NewTokenIssuer(TokenConfig{Secret: "another-secret-another-secret-xx"})
	require.NoError(t, err)

	token, err := other.IssueAccessToken(1)
	require.NoError(t, err)

	_, err = issuer.Verify(token, PurposeAccess)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}

func TestTokenIssuer_RejectsOtherAlgorithms(t *testing.T) {
	issuer := newTestIssuer(t)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(PurposeAccess),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		UserID: 1,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(issuer.secret)
	require.NoError(t, err)

	_, err = issuer.Verify(token, PurposeAccess)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = issuer.Verify(none, PurposeAccess)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestTokenIssuer_RequiresExpiry(t *testing.T) {
	issuer := newTestIssuer(t)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: string(PurposeAccess)},
		UserID:           1,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(issuer.secret)
	require.NoError(t, err)

	_, err = issuer.Verify(token, PurposeAccess)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestTokenIssuer_CrossPurposeReuseFails(t *testing.T) {
	issuer := newTestIssuer(t)

	reset, err := issuer.IssuePasswordResetToken("a@example.com")
	require.NoError(t, err)
	confirm, err := issuer.IssueAccountConfirmToken(3, "a@example.com")
	require.NoError(t, err)
	access, err := issuer.IssueAccessToken(3)
	require.NoError(t, err)

	_, err = issuer.Verify(reset, PurposeAccess)
	assert.ErrorIs(t, err, ErrInvalidCredentials, "reset token must not authenticate")
	_, err = issuer.Verify(confirm, PurposeAccess)
	assert.ErrorIs(t, err, ErrInvalidCredentials, "confirm token must not authenticate")
	_, err = issuer.VerifyPasswordResetToken(access)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = issuer.VerifyAccountConfirmToken(reset)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestTokenIssuer_ResetAndConfirm(t *testing.T) {
	issuer := newTestIssuer(t)

	reset, err := issuer.IssuePasswordResetToken("a@example.com")
	require.NoError(t, err)
	email, err := issuer.VerifyPasswordResetToken(reset)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", email)

	confirm, err := issuer.IssueAccountConfirmToken(9, "b@example.com")
	require.NoError(t, err)
	id, email, err := issuer.VerifyAccountConfirmToken(confirm)
	require.NoError(t, err)
	assert.Equal(t, int64(9), id)
	assert.Equal(t, "b@example.com", email)
}

func TestTokenIssuer_EmptyToken(t *testing.T) {
	_, err := newTestIssuer(t).Verify("", PurposeAccess)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
