package models

import "time"

// SessionTTL is how long a login session stays valid.
const SessionTTL = 7 * 24 * time.Hour

// Session is a web login session row, keyed by its opaque token. Sessions
// live in a separate credential domain from license keys.
type Session struct {
	Token          string
	UserID         string
	ExpiresAt      time.Time
	CreatedAt      time.Time
	LastAccessedAt time.Time
}

// Expired reports whether the session is past its expiry at the given time.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
