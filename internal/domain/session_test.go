package domain

import (
	"testing"
	"time"
)

func TestCookieHeader(t *testing.T) {
	state := SessionState{
		Cookies: []Cookie{
			{Name: "cf_clearance", Value: "abc123"},
			{Name: "session", Value: "xyz"},
		},
	}

	if got := state.CookieHeader(); got != "cf_clearance=abc123; session=xyz" {
		t.Fatalf("CookieHeader() = %q", got)
	}
}

func TestSessionStateValid(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	var nilState *SessionState
	if nilState.Valid(now) {
		t.Fatal("nil state must not be valid")
	}

	empty := &SessionState{}
	if empty.Valid(now) {
		t.Fatal("empty cookie set must not be valid")
	}

	expired := &SessionState{
		Cookies:   []Cookie{{Name: "a", Value: "b"}},
		ExpiresAt: &past,
	}
	if expired.Valid(now) {
		t.Fatal("expired state must not be valid")
	}

	live := &SessionState{
		Cookies:   []Cookie{{Name: "a", Value: "b"}},
		ExpiresAt: &future,
	}
	if !live.Valid(now) {
		t.Fatal("unexpired state must be valid")
	}

	sessionOnly := &SessionState{
		Cookies: []Cookie{{Name: "a", Value: "b"}},
	}
	if !sessionOnly.Valid(now) {
		t.Fatal("session-cookie-only state must be valid")
	}
}

func TestEarliestExpiry(t *testing.T) {
	early := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(48 * time.Hour)

	cookies := []Cookie{
		{Name: "a", ExpiresAt: &late},
		{Name: "b"}, // session cookie, no expiry
		{Name: "c", ExpiresAt: &early},
	}

	got := EarliestExpiry(cookies)
	if got == nil || !got.Equal(early) {
		t.Fatalf("EarliestExpiry() = %v, want %v", got, early)
	}

	if EarliestExpiry([]Cookie{{Name: "a"}, {Name: "b"}}) != nil {
		t.Fatal("expected nil for all-session cookie set")
	}
}
