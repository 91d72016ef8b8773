package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Purpose is the token subject. A token issued for one purpose never
// verifies for another.
type Purpose string

const (
	PurposeAccess         Purpose = "access"
	PurposePasswordReset  Purpose = "passwordreset"
	PurposeAccountConfirm Purpose = "account_confirm"
)

// Claims are the signed token contents
type Claims struct {
	jwt.RegisteredClaims
	UserID int64  `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
}

// TokenConfig configures a TokenIssuer
type TokenConfig struct {
	Secret     string
	AccessTTL  time.Duration
	ResetTTL   time.Duration
	ConfirmTTL time.Duration
}

// TokenIssuer signs and verifies HS256 tokens
type TokenIssuer struct {
	secret []byte
	ttls   map[Purpose]time.Duration
	now    func() time.Time
}

// NewTokenIssuer creates an issuer. The secret must not be empty.
func NewTokenIssuer(cfg TokenConfig) (*TokenIssuer, error) {
	if cfg.Secret == "" {
		return nil, errors.New("token secret is required")
	}
	return &TokenIssuer{
		secret: []byte(cfg.Secret),
		ttls: map[Purpose]time.Duration{
			PurposeAccess:         orDefault(cfg.AccessTTL, 7*24*time.Hour),
			PurposePasswordReset:  orDefault(cfg.ResetTTL, time.Hour),
			PurposeAccountConfirm: orDefault(cfg.ConfirmTTL, 7*24*time.Hour),
		},
		now: time.Now,
	}, nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}

// TTL returns the configured lifetime for a purpose
func (t *TokenIssuer) TTL(purpose Purpose) time.Duration {
	return t.ttls[purpose]
}

// Issue signs a token. A non-positive ttl uses the purpose default.
func (t *TokenIssuer) Issue(purpose Purpose, userID int64, email string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = t.ttls[purpose]
	}
	now := t.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(purpose),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID: userID,
		Email:  email,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, algorithm, expiry, not-before and subject.
// Every failure is an InvalidCredentials AuthError.
func (t *TokenIssuer) Verify(tokenString string, purpose Purpose) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidCredentials
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithSubject(string(purpose)),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, newError(KindInvalidCredentials, ErrInvalidCredentials.Message, err)
	}
	if !token.Valid {
		return nil, ErrInvalidCredentials
	}
	return claims, nil
}

// IssueAccessToken signs a bearer token for a user
func (t *TokenIssuer) IssueAccessToken(userID int64) (string, error) {
	return t.Issue(PurposeAccess, userID, "", 0)
}

// IssuePasswordResetToken signs a reset token bound to an email
func (t *TokenIssuer) IssuePasswordResetToken(email string) (string, error) {
	return t.Issue(PurposePasswordReset, 0, email, 0)
}

// VerifyPasswordResetToken returns the email a reset token was issued for
func (t *TokenIssuer) VerifyPasswordResetToken(token string) (string, error) {
	claims, err := t.Verify(token, PurposePasswordReset)
	if err != nil {
		return "", err
	}
	if claims.Email == "" {
		return "", ErrInvalidCredentials
	}
	return claims.Email, nil
}

// IssueAccountConfirmToken signs a confirmation token for a pending account
func (t *TokenIssuer) IssueAccountConfirmToken(userID int64, email string) (string, error) {
	return t.Issue(PurposeAccountConfirm, userID, email, 0)
}

// VerifyAccountConfirmToken returns the user id and email of a confirmation token
func (t *TokenIssuer) VerifyAccountConfirmToken(token string) (int64, string, error) {
	claims, err := t.Verify(token, PurposeAccountConfirm)
	if err != nil {
		return 0, "", err
	}
	if claims.UserID == 0 || claims.Email == "" {
		return 0, "", ErrInvalidCredentials
	}
	return claims.UserID, claims.Email, nil
}
