package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken covers both signature and expiry failures. Callers must not
// tell a client which one it was.
var ErrInvalidToken = errors.New("invalid token")

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// Issuer signs and verifies the two token kinds with distinct secrets.
// Secrets are set once at startup and never mutated.
type Issuer struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

func (i *Issuer) accessTTL() time.Duration {
	if i.AccessTTL != 0 {
		return i.AccessTTL
	}
	return DefaultAccessTTL
}

func (i *Issuer) refreshTTL() time.Duration {
	if i.RefreshTTL != 0 {
		return i.RefreshTTL
	}
	return DefaultRefreshTTL
}

func (i *Issuer) IssueAccess(subjectID string) (string, time.Time, error) {
	return sign(subjectID, "", i.AccessSecret, i.accessTTL())
}

// IssueRefresh gives every token a fresh JTI. Timestamps only have second
// precision, so without it two logins in the same second would mint
// byte-identical tokens and rotation would be a no-op.
func (i *Issuer) IssueRefresh(subjectID string) (string, time.Time, error) {
	return sign(subjectID, uuid.NewString(), i.RefreshSecret, i.refreshTTL())
}

func (i *Issuer) VerifyAccess(token string) (*jwt.RegisteredClaims, error) {
	return verify(token, i.AccessSecret)
}

func (i *Issuer) VerifyRefresh(token string) (*jwt.RegisteredClaims, error) {
	return verify(token, i.RefreshSecret)
}

func sign(subjectID, jti string, secret []byte, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(ttl)
	claims := jwt.RegisteredClaims{
		Subject:   subjectID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        jti,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

func verify(tokenStr string, secret []byte) (*jwt.RegisteredClaims, error) {
	var claims jwt.RegisteredClaims
	tkn, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected sign method")
		}
		return secret, nil
	})
	if err != nil {
		// expiry vs signature stays server-side, the sentinel is all callers get
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !tkn.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}
