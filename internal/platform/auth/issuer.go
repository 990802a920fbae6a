package auth

import (
	"errors"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// Issuer mints HS256 tokens that JWTVerifier accepts with the same secret.
type Issuer struct {
	Secret []byte
	Now    func() time.Time
}

func (i Issuer) Issue(id Identity, ttl time.Duration) (string, error) {
	if len(i.Secret) == 0 {
		return "", errors.New("issuer secret is empty")
	}
	if strings.TrimSpace(id.UID) == "" {
		return "", errors.New("uid is required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := time.Now
	if i.Now != nil {
		now = i.Now
	}
	t := now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UID,
			IssuedAt:  jwt.NewNumericDate(t),
			ExpiresAt: jwt.NewNumericDate(t.Add(ttl)),
		},
		Name:    id.DisplayName,
		Email:   id.Email,
		Picture: id.PhotoURL,
		Role:    id.Role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.Secret)
}
