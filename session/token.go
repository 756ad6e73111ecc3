package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

const tokenIssuer = "go-login"

// ErrInvalidToken is returned for forged, malformed or expired cookies
var ErrInvalidToken = errors.New("invalid session token", errors.CategoryAuth).
	WithTextCode("SESSION_TOKEN_INVALID").
	WithCode(errors.CodeUnauthorized)

// TokenCodec signs session ids into the cookie value so a forged or
// expired cookie is rejected before the store is consulted.
type TokenCodec struct {
	key []byte
}

func NewTokenCodec(signingKey string) *TokenCodec {
	return &TokenCodec{key: []byte(signingKey)}
}

// Encode returns an HS256 token carrying id
func (c *TokenCodec) Encode(id string, expiresAt time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		ID:        id,
		Issuer:    tokenIssuer,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.key)
}

// Decode validates raw and returns the session id
func (c *TokenCodec) Decode(raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return c.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
	)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryAuth, ErrInvalidToken.Message).
			WithTextCode(ErrInvalidToken.TextCode)
	}

	if claims.ID == "" {
		return "", ErrInvalidToken
	}
	return claims.ID, nil
}
