package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Auther validates credentials presented on a fresh connection.
// Token issuance belongs to the external identity collaborator; this
// service only verifies.
type Auther interface {
	// Verify checks the token and returns the authenticated user ID.
	Verify(ctx context.Context, token string) (string, error)
}

var (
	ErrInvalidToken    = errors.New("auth: invalid token")
	ErrNoIdentityClaim = errors.New("auth: token carries no recognized identity claim")
)

// identityClaims is the ordered list of accepted identity-claim names.
// Checked in priority order, first present wins. A deliberate, bounded
// accommodation for the claim shapes of the identity providers the
// product has used, not open-ended duck typing.
var identityClaims = []string{"sub", "userId", "user_id", "uid"}

// JWTAuther verifies HMAC-signed tokens against a shared secret.
type JWTAuther struct {
	secret []byte
}

func NewJWTAuther(secret string) *JWTAuther {
	return &JWTAuther{secret: []byte(secret)}
}

func (a *JWTAuther) Verify(ctx context.Context, tokenStr string) (string, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	return identityFromClaims(claims)
}

func identityFromClaims(claims jwt.MapClaims) (string, error) {
	for _, name := range identityClaims {
		if raw, ok := claims[name]; ok {
			if id, ok := raw.(string); ok && id != "" {
				return id, nil
			}
		}
	}
	return "", ErrNoIdentityClaim
}
