package auth

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var defaultPermissions = []string{"read:scans", "write:scans"}

// JWTValidator verifies HS256 session tokens signed with the provider's shared secret.
type JWTValidator struct {
	secret []byte
	issuer string
}

func NewJWTValidator(secret, issuer string) *JWTValidator {
	return &JWTValidator{secret: []byte(secret), issuer: issuer}
}

type sessionClaims struct {
	Permissions []string `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

func (v *JWTValidator) Validate(_ context.Context, credential string) (Principal, error) {
	tokenString := strings.TrimSpace(credential)
	if tokenString == "" {
		return Principal{}, unauthorized("empty token")
	}

	// Some clients URL-encode the token.
	if decoded, err := url.QueryUnescape(tokenString); err == nil {
		tokenString = decoded
	}

	if len(strings.Split(tokenString, ".")) != 3 {
		return Principal{}, unauthorized("token must have 3 parts separated by dots")
	}
	if len(v.secret) == 0 {
		return Principal{}, unauthorized("no signing secret configured")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims sessionClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return Principal{}, unauthorized("token has expired")
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return Principal{}, unauthorized("token signature is invalid")
		case errors.Is(err, jwt.ErrTokenMalformed):
			return Principal{}, unauthorized("token is malformed")
		default:
			return Principal{}, unauthorized("%s", err.Error())
		}
	}
	if !token.Valid {
		return Principal{}, unauthorized("invalid token")
	}

	if claims.Subject == "" {
		return Principal{}, unauthorized("missing user id in token")
	}

	permissions := claims.Permissions
	if len(permissions) == 0 {
		permissions = defaultPermissions
	}

	return Principal{UserID: claims.Subject, Permissions: permissions}, nil
}
