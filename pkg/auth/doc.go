// Package auth validates inbound credentials and extracts identity claims.
//
// # Overview
//
// Two credential types are accepted:
//
//	JWT     - signed by the identity provider, verified with go-oidc
//	          against static public keys or a JWKS endpoint
//	Opaque  - tg_<base64url(32 random bytes)>, looked up by SHA256 hash
//	          in Redis behind a short-lived local LRU cache
//
// ChainValidator picks the right validator from the token shape:
//
//	validator := &auth.ChainValidator{JWT: jwtValidator, Session: sessionValidator}
//	identity, err := validator.Validate(ctx, raw)
//	if errors.Is(err, auth.ErrUnauthenticated) {
//		// 401
//	}
//
// # Claims are hints
//
// SessionIdentity.WorkspaceID and SessionIdentity.Role are whatever the
// credential asserted. Nothing in this package consults the membership
// store. Callers that mutate data or cross a tenant boundary must resolve
// the role through workspaces.MembershipResolver.
//
// # Credential extraction
//
// ExtractCredential reads "Authorization: Bearer <token>" first and falls
// back to the session cookie. When a cookie hash key is configured the
// cookie is signed with gorilla/securecookie:
//
//	cookies := auth.NewCookieCodec("", hashKey, blockKey, true)
//	raw, found, err := auth.ExtractCredential(r, cookies)
//
// # Workspace switching
//
// Opaque sessions can change their active workspace through
// SessionValidator.SwitchWorkspace. JWTs cannot be rewritten by this
// service; switching a JWT session returns ErrNotSwitchable.
package auth
