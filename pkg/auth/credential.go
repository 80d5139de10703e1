package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
)

// DefaultCookieName is the cookie carrying the session credential
const DefaultCookieName = "tenantgate_session"

// CookieCodec reads and writes the session cookie. With a hash key the
// cookie value is HMAC-signed (and encrypted when a block key is also set);
// without one the raw credential is stored.
type CookieCodec struct {
	name   string
	secure bool
	codec  *securecookie.SecureCookie
}

// NewCookieCodec creates a codec. hashKey and blockKey may be empty.
func NewCookieCodec(name string, hashKey, blockKey []byte, secure bool) *CookieCodec {
	if name == "" {
		name = DefaultCookieName
	}
	c := &CookieCodec{name: name, secure: secure}
	if len(hashKey) > 0 {
		// securecookie treats any non-nil block key as an AES key
		if len(blockKey) == 0 {
			blockKey = nil
		}
		c.codec = securecookie.New(hashKey, blockKey)
	}
	return c
}

// Name returns the cookie name
func (c *CookieCodec) Name() string {
	return c.name
}

// Encode builds the cookie holding token
func (c *CookieCodec) Encode(token string, maxAge time.Duration) (*http.Cookie, error) {
	value := token
	if c.codec != nil {
		encoded, err := c.codec.Encode(c.name, token)
		if err != nil {
			return nil, fmt.Errorf("failed to encode session cookie: %w", err)
		}
		value = encoded
	}

	return &http.Cookie{
		Name:     c.name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	}, nil
}

// Decode extracts the token from a cookie value
func (c *CookieCodec) Decode(value string) (string, error) {
	if c.codec == nil {
		return value, nil
	}
	var token string
	if err := c.codec.Decode(c.name, value, &token); err != nil {
		return "", fmt.Errorf("invalid session cookie: %w", err)
	}
	return token, nil
}

// ExtractCredential returns the raw credential from the Authorization header,
// falling back to the session cookie. found is false when the request carries
// no credential at all. A present but malformed credential is returned with
// an error wrapping ErrUnauthenticated.
func ExtractCredential(r *http.Request, cookies *CookieCodec) (raw string, found bool, err error) {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			return "", true, fmt.Errorf("%w: invalid authorization header format", ErrUnauthenticated)
		}
		return strings.TrimSpace(parts[1]), true, nil
	}

	name := DefaultCookieName
	if cookies != nil {
		name = cookies.Name()
	}
	cookie, cerr := r.Cookie(name)
	if cerr != nil || cookie.Value == "" {
		return "", false, nil
	}

	if cookies == nil {
		return cookie.Value, true, nil
	}
	token, err := cookies.Decode(cookie.Value)
	if err != nil {
		return "", true, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	return token, true, nil
}
