// Package middleware provides the HTTP middleware that surrounds the access
// guard: request ids, request logging, panic recovery and rate limiting.
//
// # Ordering
//
//	router.Use(middleware.RequestID)
//	router.Use(middleware.RequestLogger(logger))
//	router.Use(middleware.Recovery)
//	router.Use(accessGuard.Middleware)
//
// RequestID must run first so every log line and audit event carries the id.
//
// # Rate Limiting
//
// RateLimit wraps individual handlers that change membership (accepting an
// invitation, switching workspace). It runs after the guard and keys on the
// authenticated user, falling back to the client address.
//
//	limiter := middleware.NewDistributedRateLimiter(redisClient, nil, "")
//	handler = middleware.RateLimit(limiter, "invitations")(handler)
//
// NewRateLimiter is an in-process equivalent for single-instance deployments.
// Redis failures fail open and are logged.
package middleware
