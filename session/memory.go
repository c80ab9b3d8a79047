package session

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/quizcore/account"
)

// MemoryRegistry is the in-process [Registry].
//
// byToken holds token -> *Entry, byUser holds user id -> token. A user is claimed with
// LoadOrStore on byUser, so two concurrent Add calls for one user cannot both win. Calls
// for different users touch different keys and never block each other.
type MemoryRegistry struct {
	tokens  TokenValidator
	byToken sync.Map
	byUser  sync.Map
	now     func() time.Time
}

// NewMemoryRegistry returns an empty registry validating tokens with tokens.
func NewMemoryRegistry(tokens TokenValidator) *MemoryRegistry {
	return &MemoryRegistry{tokens: tokens, now: time.Now}
}

// Add implements [Registry]. A previous token of the same user that no longer validates
// is evicted first, so only a live token causes ErrSessionConflict.
func (r *MemoryRegistry) Add(ctx context.Context, token string, user account.User) error {
	if err := r.tokens.Validate(token); err != nil {
		return err
	}
	if user.ID == "" {
		return ErrInvalidUser
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		current, loaded := r.byUser.LoadOrStore(user.ID, token)
		if !loaded {
			r.byToken.Store(token, &Entry{Token: token, User: user, CreatedAt: r.now()})
			return nil
		}
		prev := current.(string)
		if r.tokens.Validate(prev) == nil {
			return ErrSessionConflict
		}
		r.evict(prev, user.ID)
	}
}

// User implements [Registry].
func (r *MemoryRegistry) User(ctx context.Context, token string) (account.User, bool, error) {
	if err := r.tokens.Validate(token); err != nil {
		return account.User{}, false, err
	}
	v, ok := r.byToken.Load(token)
	if !ok {
		return account.User{}, false, nil
	}
	return v.(*Entry).User, true, nil
}

// IsAlive implements [Registry].
func (r *MemoryRegistry) IsAlive(ctx context.Context, token string) (bool, error) {
	if err := r.tokens.Validate(token); err != nil {
		r.removeToken(token)
		return false, err
	}
	_, ok := r.byToken.Load(token)
	return ok, nil
}

// Remove implements [Registry].
func (r *MemoryRegistry) Remove(ctx context.Context, token string) error {
	r.removeToken(token)
	return nil
}

// Update implements [Registry]. The user id of a session never changes.
func (r *MemoryRegistry) Update(ctx context.Context, token string, user account.User) error {
	for {
		v, ok := r.byToken.Load(token)
		if !ok {
			return ErrSessionNotFound
		}
		old := v.(*Entry)
		if old.User.ID != user.ID {
			return ErrUserMismatch
		}
		next := &Entry{Token: token, User: user, CreatedAt: old.CreatedAt}
		if r.byToken.CompareAndSwap(token, old, next) {
			return nil
		}
	}
}

// Count implements [Registry].
func (r *MemoryRegistry) Count(ctx context.Context) (int, error) {
	return r.Len(), nil
}

// Len returns the number of stored sessions. It walks the token index.
func (r *MemoryRegistry) Len() int {
	n := 0
	r.byToken.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (r *MemoryRegistry) removeToken(token string) {
	v, ok := r.byToken.LoadAndDelete(token)
	if !ok {
		return
	}
	r.byUser.CompareAndDelete(v.(*Entry).User.ID, token)
}

// evict drops prev from both indexes. The user index is only cleared if it still points
// at prev, so a concurrent winner is never removed.
func (r *MemoryRegistry) evict(prev, userID string) {
	r.byToken.Delete(prev)
	r.byUser.CompareAndDelete(userID, prev)
}
