package auth

import (
	"context"
	"fmt"
	"strings"
)

// ChainValidator dispatches a credential to the JWT or opaque session
// validator based on its shape. Either validator may be nil when that
// credential type is not accepted.
type ChainValidator struct {
	JWT     Validator
	Session Validator
}

// Validate implements Validator
func (c *ChainValidator) Validate(ctx context.Context, raw string) (*SessionIdentity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: no credential", ErrUnauthenticated)
	}

	switch {
	case LooksOpaque(raw):
		if c.Session == nil {
			return nil, fmt.Errorf("%w: session tokens are not accepted", ErrUnauthenticated)
		}
		return c.Session.Validate(ctx, raw)
	case LooksJWT(raw):
		if c.JWT == nil {
			return nil, fmt.Errorf("%w: jwt tokens are not accepted", ErrUnauthenticated)
		}
		return c.JWT.Validate(ctx, raw)
	default:
		return nil, fmt.Errorf("%w: malformed credential", ErrUnauthenticated)
	}
}
