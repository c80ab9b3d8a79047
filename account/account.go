// Package account defines the user record shared by the session registry, the role
// transition flow and the stores, plus the provider and hasher seams the engine calls.
package account

import (
	"context"
	"errors"

	"github.com/MrEthical07/quizcore/permission"
)

// ErrUserNotFound is returned by providers when no user matches.
var ErrUserNotFound = errors.New("user not found")

// User is the authenticated principal. Entitlements hold the static canTake, canAuthor
// and canManage flags and never change during a session.
type User struct {
	ID           string
	Identifier   string
	PasswordHash string
	Entitlements permission.Mask64
}

// Permits reports whether the user may act under role.
func (u User) Permits(role permission.Role) bool {
	return permission.Permits(u.Entitlements, role)
}

// Provider resolves users from durable storage.
type Provider interface {
	UserByIdentifier(ctx context.Context, identifier string) (User, error)
	UserByID(ctx context.Context, id string) (User, error)
}

// Hasher is the one-way credential hasher. The core never inspects the algorithm.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
}
