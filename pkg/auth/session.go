package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/platinummonkey/tenantgate/pkg/rbac"
)

// Session is the server-side record behind an opaque token
type Session struct {
	UserID      uuid.UUID  `json:"user_id"`
	Email       string     `json:"email"`
	WorkspaceID *uuid.UUID `json:"workspace_id,omitempty"`
	Role        *rbac.Role `json:"role,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
}

// SessionStore keeps opaque sessions in Redis, keyed by token hash.
// The plaintext token is never stored.
type SessionStore struct {
	client    *redis.Client
	generator *TokenGenerator
	keyPrefix string
	ttl       time.Duration
}

// NewSessionStore creates a session store. ttl bounds the lifetime of new sessions.
func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionStore{
		client:    client,
		generator: NewTokenGenerator(),
		keyPrefix: "tenantgate:session:",
		ttl:       ttl,
	}
}

func (s *SessionStore) key(token string) string {
	return s.keyPrefix + s.generator.HashToken(token)
}

// Create stores a new session and returns its token. The token is only
// ever returned here.
func (s *SessionStore) Create(ctx context.Context, session Session) (string, error) {
	if session.UserID == uuid.Nil {
		return "", fmt.Errorf("session user id is required")
	}

	token, _, err := s.generator.GenerateToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}

	now := time.Now().UTC()
	session.CreatedAt = now
	session.ExpiresAt = now.Add(s.ttl)

	data, err := json.Marshal(session)
	if err != nil {
		return "", fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := s.client.Set(ctx, s.key(token), data, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store session: %w", err)
	}

	return token, nil
}

// Resolve returns the live session for token
func (s *SessionStore) Resolve(ctx context.Context, token string) (*Session, error) {
	data, err := s.client.Get(ctx, s.key(token)).Bytes()
	if err == redis.Nil {
		return nil, ErrSessionNotFound
	} else if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		// Corrupt records are removed so they cannot be retried forever
		s.client.Del(ctx, s.key(token))
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &session, nil
}

// SetWorkspace changes the active workspace and role claim of a session,
// keeping its remaining lifetime.
func (s *SessionStore) SetWorkspace(ctx context.Context, token string, workspaceID uuid.UUID, role rbac.Role) error {
	key := s.key(token)

	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return ErrSessionNotFound
		} else if err != nil {
			return fmt.Errorf("redis get failed: %w", err)
		}

		ttl, err := tx.TTL(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("redis ttl failed: %w", err)
		}
		if ttl <= 0 {
			return ErrSessionNotFound
		}

		var session Session
		if err := json.Unmarshal(data, &session); err != nil {
			return fmt.Errorf("failed to unmarshal session: %w", err)
		}
		session.WorkspaceID = &workspaceID
		session.Role = &role

		updated, err := json.Marshal(session)
		if err != nil {
			return fmt.Errorf("failed to marshal session: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, ttl)
			return nil
		})
		return err
	}, key)
}

// Revoke deletes a session
func (s *SessionStore) Revoke(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, s.key(token)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

// SessionValidator validates opaque tokens against the SessionStore with a
// short-lived local cache in front of Redis. Cache entries are evicted on
// every write made through the validator; writes made elsewhere become
// visible after cacheTTL.
type SessionValidator struct {
	store     *SessionStore
	generator *TokenGenerator
	cache     *lru.LRU[string, *Session]
	logger    *observability.Logger
}

// NewSessionValidator creates a validator. A cacheTTL of zero disables caching.
func NewSessionValidator(store *SessionStore, cacheSize int, cacheTTL time.Duration, logger *observability.Logger) *SessionValidator {
	v := &SessionValidator{
		store:     store,
		generator: NewTokenGenerator(),
		logger:    logger,
	}
	if cacheTTL > 0 {
		if cacheSize <= 0 {
			cacheSize = 10000
		}
		v.cache = lru.NewLRU[string, *Session](cacheSize, nil, cacheTTL)
	}
	return v
}

// Validate resolves an opaque token into a SessionIdentity
func (v *SessionValidator) Validate(ctx context.Context, raw string) (*SessionIdentity, error) {
	if err := v.generator.ValidateTokenFormat(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	cacheKey := v.generator.HashToken(raw)
	session, cached := v.lookupCache(cacheKey)
	if !cached {
		var err error
		session, err = v.store.Resolve(ctx, raw)
		if errors.Is(err, ErrSessionNotFound) {
			return nil, fmt.Errorf("%w: session not found", ErrUnauthenticated)
		} else if err != nil {
			// Storage failures are not the caller's fault; surface them as-is
			// so they become a 500 rather than a 401.
			return nil, fmt.Errorf("failed to resolve session: %w", err)
		}
		if v.cache != nil {
			v.cache.Add(cacheKey, session)
		}
	}

	if !session.ExpiresAt.IsZero() && time.Now().After(session.ExpiresAt) {
		v.evict(cacheKey)
		return nil, fmt.Errorf("%w: session expired", ErrUnauthenticated)
	}

	identity := &SessionIdentity{
		UserID:      session.UserID,
		Email:       session.Email,
		WorkspaceID: session.WorkspaceID,
		Kind:        TokenKindSession,
		ExpiresAt:   session.ExpiresAt,
		Token:       raw,
	}
	if session.Role != nil && session.Role.Valid() {
		role := *session.Role
		identity.Role = &role
	}

	return identity, nil
}

// SwitchWorkspace records a new active workspace and role on the session
func (v *SessionValidator) SwitchWorkspace(ctx context.Context, raw string, workspaceID uuid.UUID, role rbac.Role) error {
	if err := v.store.SetWorkspace(ctx, raw, workspaceID, role); err != nil {
		return err
	}
	v.evict(v.generator.HashToken(raw))
	return nil
}

// Revoke ends a session. The cache entry is evicted after the delete so a
// concurrent validation cannot cache the session again once it is gone.
func (v *SessionValidator) Revoke(ctx context.Context, raw string) error {
	err := v.store.Revoke(ctx, raw)
	v.evict(v.generator.HashToken(raw))
	return err
}

func (v *SessionValidator) lookupCache(key string) (*Session, bool) {
	if v.cache == nil {
		return nil, false
	}
	if session, ok := v.cache.Get(key); ok {
		observability.SessionCacheTotal.WithLabelValues("hit").Inc()
		return session, true
	}
	observability.SessionCacheTotal.WithLabelValues("miss").Inc()
	return nil, false
}

func (v *SessionValidator) evict(key string) {
	if v.cache != nil {
		v.cache.Remove(key)
	}
}
