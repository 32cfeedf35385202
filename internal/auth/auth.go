// Package auth validates session credentials issued by the external identity
// provider and carries the resulting principal through request contexts.
package auth

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnauthorized wraps every credential rejection.
var ErrUnauthorized = errors.New("unauthorized")

// Principal is the authenticated identity of a request.
type Principal struct {
	UserID      string
	Permissions []string
}

// Validator turns a bearer credential into a principal.
type Validator interface {
	Validate(ctx context.Context, credential string) (Principal, error)
}

func unauthorized(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrUnauthorized, fmt.Sprintf(format, args...))
}

type principalKeyType struct{}

var principalKey principalKeyType

func NewContext(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	val := ctx.Value(principalKey)
	if val == nil {
		return Principal{}, false
	}
	p, ok := val.(Principal)
	return p, ok
}
