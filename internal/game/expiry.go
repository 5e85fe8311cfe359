package game

import "time"

// DefaultWaitingTTL is the window after which an unjoined waiting session is
// considered abandoned.
const DefaultWaitingTTL = 5 * time.Minute

// WaitingExpired is the single expiry predicate shared by every mutation and
// query path. A session with a second player is never expired, whatever its
// age.
func WaitingExpired(s *Session, ttl time.Duration, now time.Time) bool {
	if s == nil {
		return false
	}
	if s.Status != StatusWaiting || s.Player2 != "" {
		return false
	}
	return now.Sub(s.CreatedAt) > ttl
}

// RemainingWait returns how long a waiting session has left before expiry,
// zero once it is no longer waiting or already past the TTL.
func RemainingWait(s *Session, ttl time.Duration, now time.Time) time.Duration {
	if s == nil || s.Status != StatusWaiting {
		return 0
	}
	left := s.CreatedAt.Add(ttl).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}
