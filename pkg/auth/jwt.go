package auth

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/platinummonkey/tenantgate/pkg/rbac"
)

// JWTConfig configures verification of identity provider tokens
type JWTConfig struct {
	Issuer   string
	Audience string

	// Exactly one of PublicKeys or JWKSURL must be set
	PublicKeys []crypto.PublicKey
	JWKSURL    string

	// SupportedAlgs defaults to RS256 and ES256
	SupportedAlgs []string

	// Now overrides the clock used for expiry checks
	Now func() time.Time
}

// jwtClaims are the custom claims read from a verified token
type jwtClaims struct {
	Email       string `json:"email"`
	WorkspaceID string `json:"workspace_id"`
	Role        string `json:"role"`
}

// JWTValidator verifies signed tokens issued by the identity provider.
// It only interprets tokens, it never issues them.
type JWTValidator struct {
	verifier *oidc.IDTokenVerifier
	logger   *observability.Logger
}

// NewJWTValidator creates a validator for cfg
func NewJWTValidator(ctx context.Context, cfg JWTConfig, logger *observability.Logger) (*JWTValidator, error) {
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("jwt issuer is required")
	}
	if cfg.Audience == "" {
		return nil, fmt.Errorf("jwt audience is required")
	}

	var keySet oidc.KeySet
	switch {
	case cfg.JWKSURL != "" && len(cfg.PublicKeys) > 0:
		return nil, fmt.Errorf("configure either public keys or a JWKS URL, not both")
	case cfg.JWKSURL != "":
		keySet = remoteKeySet{keys: oidc.NewRemoteKeySet(ctx, cfg.JWKSURL)}
	case len(cfg.PublicKeys) > 0:
		keySet = &oidc.StaticKeySet{PublicKeys: cfg.PublicKeys}
	default:
		return nil, fmt.Errorf("jwt verification key is required")
	}

	algs := cfg.SupportedAlgs
	if len(algs) == 0 {
		algs = []string{oidc.RS256, oidc.ES256}
	}

	verifier := oidc.NewVerifier(cfg.Issuer, keySet, &oidc.Config{
		ClientID:             cfg.Audience,
		SupportedSigningAlgs: algs,
		Now:                  cfg.Now,
	})

	return &JWTValidator{
		verifier: verifier,
		logger:   logger,
	}, nil
}

// Validate verifies signature, issuer, audience and expiry, then extracts
// identity claims. Workspace and role claims that fail to parse are dropped
// rather than rejected: they are hints, and an absent hint sends the request
// down the NeedsWorkspace or Misconfigured path.
func (v *JWTValidator) Validate(ctx context.Context, raw string) (*SessionIdentity, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%w: empty token", ErrUnauthenticated)
	}

	fetch := &keyFetchFailure{}
	token, err := v.verifier.Verify(context.WithValue(ctx, keyFetchKey{}, fetch), raw)
	if err != nil {
		if fetch.err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKeySetUnavailable, fetch.err)
		}
		var expired *oidc.TokenExpiredError
		if errors.As(err, &expired) {
			return nil, fmt.Errorf("%w: token expired", ErrUnauthenticated)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	userID, err := uuid.Parse(token.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: subject is not a user id", ErrUnauthenticated)
	}

	var claims jwtClaims
	if err := token.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: failed to decode claims: %v", ErrUnauthenticated, err)
	}

	identity := &SessionIdentity{
		UserID:    userID,
		Email:     claims.Email,
		Kind:      TokenKindJWT,
		ExpiresAt: token.Expiry,
		Token:     raw,
	}

	if claims.WorkspaceID != "" {
		if workspaceID, err := uuid.Parse(claims.WorkspaceID); err == nil {
			identity.WorkspaceID = &workspaceID
		} else {
			v.logger.WithField("user_id", userID.String()).
				Warn("Ignoring malformed workspace_id claim")
		}
	}

	if claims.Role != "" {
		if role, err := rbac.ParseRole(claims.Role); err == nil {
			identity.Role = &role
		} else {
			v.logger.WithField("user_id", userID.String()).
				WithField("role_claim", claims.Role).
				Warn("Ignoring unknown role claim")
		}
	}

	return identity, nil
}

type keyFetchKey struct{}

// keyFetchFailure carries a key fetch error out of the verifier, which
// flattens signature errors into plain strings
type keyFetchFailure struct {
	err error
}

// remoteKeySet tells key fetch failures apart from bad signatures
type remoteKeySet struct {
	keys oidc.KeySet
}

func (k remoteKeySet) VerifySignature(ctx context.Context, jwt string) ([]byte, error) {
	payload, err := k.keys.VerifySignature(ctx, jwt)
	// Only fetch failures come back wrapped; bad signatures and malformed
	// tokens are plain errors
	if err != nil && errors.Unwrap(err) != nil {
		if f, ok := ctx.Value(keyFetchKey{}).(*keyFetchFailure); ok {
			f.err = err
		}
	}
	return payload, err
}
