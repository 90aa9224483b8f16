// Package entity defines the link record shared by every layer of the service
// together with the domain errors callers match with errors.Is.
package entity

import (
	"errors"
	"time"
)

var (
	// ErrInvalidURL is returned when a long URL is not a well-formed absolute URL.
	ErrInvalidURL = errors.New("invalid url")
	// ErrInvalidLifespan is returned when a requested lifespan is not a positive number of days.
	ErrInvalidLifespan = errors.New("invalid lifespan")
	// ErrConflict is returned when a custom short key is already bound to a live link.
	ErrConflict = errors.New("short key conflict")
	// ErrLinkNotFound is returned when a short key is unknown or its link has expired.
	ErrLinkNotFound = errors.New("link not found")
	// ErrShortKeyExists is returned by storage when a short key is already persisted.
	ErrShortKeyExists = errors.New("short key exists")
	// ErrExhaustedKeyspace is returned when no free short key was found within the retry ceiling.
	ErrExhaustedKeyspace = errors.New("short key space exhausted")
	// ErrFlushPartialFailure is returned when some pending click counts could not be persisted.
	ErrFlushPartialFailure = errors.New("click flush partially failed")
)

// Link is a shortened URL record.
type Link struct {
	ShortKey  string    // ShortKey identifies the link; immutable once assigned.
	LongURL   string    // LongURL is the canonical URL used as the deduplication identity.
	TargetURL string    // TargetURL is the URL as submitted; visitors are redirected here.
	CreatedAt time.Time // CreatedAt is when the link was created.
	ExpiresAt time.Time // ExpiresAt is when the link stops resolving.
	Clicks    int64     // Clicks is the number of persisted visits.
}

// IsExpired reports whether the link has passed its expiration time at now.
// A zero ExpiresAt never expires.
func (l *Link) IsExpired(now time.Time) bool {
	if l.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(l.ExpiresAt)
}
