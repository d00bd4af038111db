package cache

import "time"

// Entry is a cached result with its bookkeeping.
type Entry[V any] struct {
	Data         V
	CreatedAt    time.Time
	TTL          time.Duration
	HitCount     int64
	LastAccessAt time.Time
}

// Age returns how long the entry has existed at now.
func (e *Entry[V]) Age(now time.Time) time.Duration {
	return now.Sub(e.CreatedAt)
}

// Expired reports whether the entry's age exceeds its TTL at now.
func (e *Entry[V]) Expired(now time.Time) bool {
	return e.Age(now) > e.TTL
}
