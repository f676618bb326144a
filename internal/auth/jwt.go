// Package auth verifies caller identity. Token issuance belongs to the
// auth service; this side only validates.
package auth

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/vanchien08/thunderchat/pkg/apperr"
)

type JWTValidator struct {
	secret []byte
}

func NewJWTValidator(secret string) *JWTValidator {
	return &JWTValidator{secret: []byte(secret)}
}

// Validate returns the user id carried by the token.
func (j *JWTValidator) Validate(tokenStr string) (string, error) {
	tok, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		return j.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", apperr.Wrap(apperr.CodeUnauthenticated, "invalid token", err)
	}
	if claims, ok := tok.Claims.(jwt.MapClaims); ok && tok.Valid {
		if sub, ok := claims["sub"].(string); ok {
			return sub, nil
		}
		if userID, ok := claims["user_id"].(string); ok {
			return userID, nil
		}
	}
	return "", apperr.Unauthorized("token carries no user id")
}
