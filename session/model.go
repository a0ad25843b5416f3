package session

import "time"

// Session is one authenticated device session. A zero RevokedAt means the
// session has not been revoked.
type Session struct {
	ID         string
	UserID     string
	IPAddress  string
	UserAgent  string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	RememberMe bool
	RevokedAt  time.Time
}

// Revoke sets RevokedAt the first time it is called and reports whether the
// session changed. RevokedAt is never moved or cleared afterwards.
func (s *Session) Revoke(now time.Time) bool {
	if s.IsRevoked() {
		return false
	}
	s.RevokedAt = now
	return true
}

func (s *Session) IsRevoked() bool {
	return !s.RevokedAt.IsZero()
}

func (s *Session) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// IsActive is the conjunction callers usually want: neither revoked nor expired.
func (s *Session) IsActive(now time.Time) bool {
	return !s.IsRevoked() && !s.IsExpired(now)
}
