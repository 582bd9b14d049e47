package domain

import (
	"strings"
	"time"
)

// Cookie is one browser cookie scoped to the target site.
type Cookie struct {
	Name      string     `json:"name"`
	Value     string     `json:"value"`
	Domain    string     `json:"domain,omitempty"`
	Path      string     `json:"path,omitempty"`
	ExpiresAt *time.Time `json:"expires,omitempty"` // nil for session cookies
}

// SessionState is the bot-challenge cookie set shared by all scrape calls.
type SessionState struct {
	Cookies   []Cookie   `json:"cookies"`
	ExpiresAt *time.Time `json:"expiresAt"` // earliest cookie expiry
	FetchedAt time.Time  `json:"fetchedAt"`
}

// CookieHeader composes the "name=value; name2=value2" request header form.
func (s *SessionState) CookieHeader() string {
	parts := make([]string, 0, len(s.Cookies))
	for _, c := range s.Cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

// Valid reports whether the set is non-empty and not past its earliest
// cookie expiry at the given instant.
func (s *SessionState) Valid(now time.Time) bool {
	if s == nil || len(s.Cookies) == 0 {
		return false
	}
	return s.ExpiresAt == nil || s.ExpiresAt.After(now)
}

// EarliestExpiry returns the minimum expiry across all cookies, or nil when
// every cookie is a session cookie. A cookie set is only as valid as its
// shortest-lived cookie.
func EarliestExpiry(cookies []Cookie) *time.Time {
	var min *time.Time
	for _, c := range cookies {
		if c.ExpiresAt == nil {
			continue
		}
		if min == nil || c.ExpiresAt.Before(*min) {
			t := *c.ExpiresAt
			min = &t
		}
	}
	return min
}
