package repository

import "time"

// CacheRepository is the key-value collaborator backing the rate-limit
// counters and the session revocation set. Production uses Redis; tests use
// an in-memory implementation. Only atomic increment-with-expiry and
// set-membership semantics are required.
type CacheRepository interface {
	Set(key string, value interface{}, expiration time.Duration) error
	Get(key string) (string, error)
	Delete(key string) error
	Increment(key string) (int64, error)
	Expire(key string, expiration time.Duration) error
	TTL(key string) (time.Duration, error)
}
