package session

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/quizcore/account"
)

var (
	// ErrSessionConflict is returned by Add when the user already holds a live token.
	ErrSessionConflict = errors.New("user already has a live session")
	// ErrSessionNotFound is returned when no session exists for a token.
	ErrSessionNotFound = errors.New("session not found")
	// ErrUserMismatch is returned by Update when the replacement user has a different id.
	ErrUserMismatch = errors.New("session user mismatch")
	// ErrInvalidUser is returned by Add for a user without an id.
	ErrInvalidUser = errors.New("session user has no id")
	// ErrRedisUnavailable wraps transport failures of the Redis registry.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// TokenValidator is the slice of the token service the registry needs. Validate returns
// nil or one of the token sentinels; those errors are passed through unchanged.
type TokenValidator interface {
	Validate(token string) error
	ExpiresAt(token string) (time.Time, error)
}

// Registry maps tokens to users and users back to their single live token.
type Registry interface {
	// Add registers token for user. ErrSessionConflict if the user already has a live token.
	Add(ctx context.Context, token string, user account.User) error
	// User validates token and returns its user; ok is false when no session exists.
	User(ctx context.Context, token string) (account.User, bool, error)
	// IsAlive validates token; on a token error the entry is evicted and the error returned.
	IsAlive(ctx context.Context, token string) (bool, error)
	// Remove deletes the session for token regardless of token validity. Idempotent.
	Remove(ctx context.Context, token string) error
	// Update replaces the stored user under an existing token.
	Update(ctx context.Context, token string, user account.User) error
	// Count returns the number of live sessions.
	Count(ctx context.Context) (int, error)
}
