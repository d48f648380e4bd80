package domain

import "time"

// Session is a replayable authenticated session (cookies/tokens) for one
// platform. The blob is opaque to the core.
type Session struct {
	Platform  string
	Blob      []byte
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
