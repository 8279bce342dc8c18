package models

import "time"

// Session binds an opaque token to a user until ExpiresAt.
type Session struct {
	Token          string
	UserID         string
	ExpiresAt      time.Time
	LastAccessedAt time.Time
	CreatedAt      time.Time
}

// ActiveAt reports whether the session is still valid at now.
func (s *Session) ActiveAt(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}

// SessionUser is the result of resolving a session token: the session and
// the account it belongs to.
type SessionUser struct {
	Session Session
	User    User
}
