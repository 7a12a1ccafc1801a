package token

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
)

// Invalid is returned for tokens that are malformed, expired or signed with
// another secret.
var Invalid = errors.New("[token] - invalid token")

// Service issues and validates HS256 signed tokens whose issuer is a user key.
type Service struct {
	Secret     []byte
	Expiration time.Duration
}

// New returns a signed token for issuer.
func (s *Service) New(issuer uuid.UUID) (string, error) {
	claims := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.StandardClaims{
		Issuer:    issuer.String(),
		ExpiresAt: time.Now().Add(s.Expiration).Unix(),
	})
	return claims.SignedString(s.Secret)
}

// Validate returns the issuer of token.
func (s *Service) Validate(token string) (uuid.UUID, error) {
	claims := &jwt.StandardClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Newf("unexpected signing method %v", t.Header["alg"])
		}
		return s.Secret, nil
	})
	if err != nil {
		return uuid.Nil, errors.Mark(err, Invalid)
	}
	key, err := uuid.Parse(claims.Issuer)
	return key, errors.Mark(err, Invalid)
}
