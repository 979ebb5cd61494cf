package websession

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultCookieName is the name of the session cookie.
const DefaultCookieName = "relay_session"

const cookieIssuer = "pipeline-relay"

// ErrInvalidCookie is returned for cookies that fail signature or claim checks.
var ErrInvalidCookie = errors.New("invalid session cookie")

// CookieConfig configures a CookieCodec.
type CookieConfig struct {
	Name   string
	Secret []byte
	Secure bool
	MaxAge time.Duration
}

// CookieCodec signs and verifies session cookies. The cookie value is an
// HS256 JWT whose "sid" claim is the session ID.
type CookieCodec struct {
	cfg CookieConfig
}

type cookieClaims struct {
	SID string `json:"sid"`
	jwt.RegisteredClaims
}

// NewCookieCodec creates a codec. The secret must be non-empty.
func NewCookieCodec(cfg CookieConfig) (*CookieCodec, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("cookie secret is required")
	}
	if cfg.Name == "" {
		cfg.Name = DefaultCookieName
	}
	return &CookieCodec{cfg: cfg}, nil
}

// Name returns the cookie name.
func (c *CookieCodec) Name() string {
	return c.cfg.Name
}

// Encode returns the signed cookie value for sessionID.
func (c *CookieCodec) Encode(sessionID string, now time.Time) (string, error) {
	claims := cookieClaims{
		SID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   cookieIssuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if c.cfg.MaxAge > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(c.cfg.MaxAge))
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("signing session cookie: %w", err)
	}
	return signed, nil
}

// Decode verifies value and returns the session ID it names.
func (c *CookieCodec) Decode(value string) (string, error) {
	var claims cookieClaims
	token, err := jwt.ParseWithClaims(value, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.cfg.Secret, nil
	}, jwt.WithIssuer(cookieIssuer), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid || claims.SID == "" {
		return "", ErrInvalidCookie
	}
	return claims.SID, nil
}

// Read returns the session ID from r's cookie.
func (c *CookieCodec) Read(r *http.Request) (string, error) {
	ck, err := r.Cookie(c.cfg.Name)
	if err != nil {
		return "", ErrInvalidCookie
	}
	return c.Decode(ck.Value)
}

// Write sets the session cookie on w.
func (c *CookieCodec) Write(w http.ResponseWriter, sessionID string, now time.Time) error {
	value, err := c.Encode(sessionID, now)
	if err != nil {
		return err
	}
	ck := &http.Cookie{
		Name:     c.cfg.Name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if c.cfg.MaxAge > 0 {
		ck.MaxAge = int(c.cfg.MaxAge.Seconds())
	}
	http.SetCookie(w, ck)
	return nil
}

// Clear expires the session cookie on w.
func (c *CookieCodec) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.cfg.Name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   c.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}
