package models

import "time"

// Lease is a time-bounded, fenced grant on a lock key. Only the holder of
// Token may release or renew it.
type Lease struct {
	Key       string
	Token     string
	ExpiresAt time.Time
}

// Expired reports whether the lease is past its expiry at t.
func (l *Lease) Expired(t time.Time) bool {
	return !t.Before(l.ExpiresAt)
}
