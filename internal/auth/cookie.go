// Package auth implements the auth-storage session cookie and the route
// gate that inspects it.
package auth

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"
)

// CookieName matches the client-side persisted store key.
const CookieName = "auth-storage"

// cookieTTL is 30 days.
const cookieTTL = 30 * 24 * time.Hour

// Session is the identity carried by the cookie.
type Session struct {
	IsAuthenticated bool   `json:"isAuthenticated"`
	UserID          int    `json:"userId"`
	Username        string `json:"username"`
}

// envelope mirrors the persisted-store wire shape: the state lives under a
// "state" key next to a schema version.
type envelope struct {
	State   Session `json:"state"`
	Version int     `json:"version"`
}

// Encode serializes the session into the URL-encoded JSON cookie value.
func Encode(s Session) string {
	raw, _ := json.Marshal(envelope{State: s})
	return url.QueryEscape(string(raw))
}

// Decode parses a cookie value. A missing, malformed or unauthenticated
// cookie yields ok=false; malformed cookies are never an error, just an
// anonymous request.
func Decode(value string) (Session, bool) {
	if value == "" {
		return Session{}, false
	}
	raw, err := url.QueryUnescape(value)
	if err != nil {
		return Session{}, false
	}
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return Session{}, false
	}
	if !env.State.IsAuthenticated || env.State.UserID <= 0 {
		return Session{}, false
	}
	return env.State, true
}

// NewCookie builds the Set-Cookie for a logged-in session.
func NewCookie(s Session, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    Encode(s),
		Path:     "/",
		Expires:  time.Now().Add(cookieTTL),
		SameSite: http.SameSiteStrictMode,
		Secure:   secure,
	}
}

// ClearCookie expires the session cookie.
func ClearCookie() *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		SameSite: http.SameSiteStrictMode,
	}
}

// FromRequest extracts the session from a request's cookie, if any.
func FromRequest(r *http.Request) (Session, bool) {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return Session{}, false
	}
	return Decode(c.Value)
}
