package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/tenantgate/pkg/rbac"
)

var (
	// ErrUnauthenticated is returned for absent, malformed, expired or
	// unresolvable credentials. Every credential failure wraps it.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrKeySetUnavailable is returned when the identity provider's signing
	// keys cannot be fetched. It says nothing about the credential.
	ErrKeySetUnavailable = errors.New("signing keys unavailable")

	// ErrSessionNotFound is returned when an opaque token has no live session
	ErrSessionNotFound = errors.New("session not found")

	// ErrNotSwitchable is returned when the active workspace cannot be changed
	// for a session, e.g. because it is carried by an externally issued JWT
	ErrNotSwitchable = errors.New("session is not switchable")
)

// TokenKind identifies how a credential was validated
type TokenKind string

const (
	TokenKindJWT     TokenKind = "jwt"
	TokenKindSession TokenKind = "session"
)

// SessionIdentity is the validated identity carried by a credential.
// WorkspaceID and Role are claims: hints until resolved against the
// membership store.
type SessionIdentity struct {
	UserID      uuid.UUID
	Email       string
	WorkspaceID *uuid.UUID
	Role        *rbac.Role
	Kind        TokenKind
	ExpiresAt   time.Time

	// Token is the raw credential, kept so the session can be updated on a
	// workspace switch. Never logged.
	Token string `json:"-"`
}

// HasWorkspaceClaim reports whether the credential names an active workspace
func (s *SessionIdentity) HasWorkspaceClaim() bool {
	return s != nil && s.WorkspaceID != nil && *s.WorkspaceID != uuid.Nil
}

// HasRoleClaim reports whether the credential carries a valid role
func (s *SessionIdentity) HasRoleClaim() bool {
	return s != nil && s.Role != nil && s.Role.Valid()
}

// Validator turns a raw credential into a SessionIdentity
type Validator interface {
	Validate(ctx context.Context, raw string) (*SessionIdentity, error)
}

// ValidatorFunc adapts a function to the Validator interface
type ValidatorFunc func(ctx context.Context, raw string) (*SessionIdentity, error)

// Validate calls f(ctx, raw)
func (f ValidatorFunc) Validate(ctx context.Context, raw string) (*SessionIdentity, error) {
	return f(ctx, raw)
}
