// Package cookie reads and writes the signed session cookie. The cookie
// value is an HS256 JWT whose claims carry the session subject; the
// signing key is derived from the configured cookie password.
package cookie

import (
	"crypto/sha256"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/pbkdf2"

	"github.com/TransformCore/defra-identity/internal/log"
)

// Key derivation parameters. The salt is a fixed context string so every
// process sharing a cookie password derives the same key.
const (
	keySalt       = "defra-identity-session-cookie"
	keyIterations = 4096
	keyLength     = 32
)

// Codec signs, verifies and clears the session cookie under a configured
// name.
type Codec struct {
	name   string
	key    []byte
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

// NewCodec creates a cookie codec. The password is stretched with PBKDF2
// into the HMAC signing key. secure controls the Secure cookie attribute.
func NewCodec(name string, password []byte, ttl time.Duration, secure bool) *Codec {
	return &Codec{
		name:   name,
		key:    pbkdf2.Key(password, []byte(keySalt), keyIterations, keyLength, sha256.New),
		ttl:    ttl,
		secure: secure,
		now:    time.Now,
	}
}

// Name returns the configured cookie name.
func (c *Codec) Name() string {
	return c.name
}

// Set signs the claims and writes them as the session cookie. An expiry
// claim is added when the caller has not provided one.
func (c *Codec) Set(w http.ResponseWriter, claims map[string]any) error {
	tokenClaims := jwt.MapClaims{}
	for k, v := range claims {
		tokenClaims[k] = v
	}
	if _, ok := tokenClaims["exp"]; !ok && c.ttl > 0 {
		tokenClaims["exp"] = c.now().Add(c.ttl).Unix()
	}
	if _, ok := tokenClaims["iat"]; !ok {
		tokenClaims["iat"] = c.now().Unix()
	}

	value, err := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims).SignedString(c.key)
	if err != nil {
		return fmt.Errorf("signing session cookie: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     c.name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(c.ttl.Seconds()),
	})
	return nil
}

// Clear removes the session cookie by setting MaxAge to -1.
func (c *Codec) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:   c.name,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
}

// Claims verifies the session cookie on the request and returns its
// claims. It is a total function over the request: a missing cookie, bad
// signature, expired token or malformed value all come back as ok=false,
// never as an error.
func (c *Codec) Claims(r *http.Request) (map[string]any, bool) {
	raw, err := r.Cookie(c.name)
	if err != nil || raw.Value == "" {
		return nil, false
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw.Value, claims, func(*jwt.Token) (any, error) {
		return c.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(c.now))
	if err != nil || !token.Valid {
		log.LogDebugWithFields("cookie", "Rejected session cookie", map[string]any{
			"reason": fmt.Sprint(err),
		})
		return nil, false
	}

	return claims, true
}

// Subject extracts the session subject from the cookie claims. Absence of
// the cookie, of the claim, or any shape mismatch all mean "no session".
func (c *Codec) Subject(r *http.Request) (string, bool) {
	claims, ok := c.Claims(r)
	if !ok {
		return "", false
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", false
	}
	return sub, true
}
