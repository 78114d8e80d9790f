package authority

import (
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// tokenSigner mints short-lived HS256 service tokens used as the bearer
// fallback when no API key is configured.
type tokenSigner struct {
	secret  []byte
	subject string
	ttl     time.Duration
}

func newTokenSigner(secret, subject string) *tokenSigner {
	return &tokenSigner{secret: []byte(secret), subject: subject, ttl: 5 * time.Minute}
}

// Sign builds and signs a service JWT.
func (ts *tokenSigner) Sign() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   ts.subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ts.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(ts.secret)
}
