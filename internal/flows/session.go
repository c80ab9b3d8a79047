package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/quizcore/account"
	"github.com/MrEthical07/quizcore/permission"
	"github.com/MrEthical07/quizcore/quizcache"
	"github.com/MrEthical07/quizcore/session"
)

// SessionDeps captures logout and current-user dependencies.
type SessionDeps struct {
	Observer
	Tokens   Tokens
	Registry session.Registry
	Cache    Cache

	Metrics Metrics
	Events  Events
	Errors  Errors
}

// Principal is the resolved caller of a session-bound operation.
type Principal struct {
	User account.User
	Role permission.Role
}

// resolveSession requires a live session for token and returns its user and role.
// Token errors come back unchanged.
func resolveSession(ctx context.Context, token string, registry session.Registry, tokens Tokens) (Principal, error) {
	alive, err := registry.IsAlive(ctx, token)
	if err != nil {
		return Principal{}, err
	}
	if !alive {
		return Principal{}, session.ErrSessionNotFound
	}
	user, ok, err := registry.User(ctx, token)
	if err != nil {
		return Principal{}, err
	}
	if !ok {
		return Principal{}, session.ErrSessionNotFound
	}
	name, err := tokens.Role(token)
	if err != nil {
		return Principal{}, err
	}
	role, ok := permission.ParseRole(name)
	if !ok {
		return Principal{}, permission.ErrInvalidRole
	}
	return Principal{User: user, Role: role}, nil
}

// RunCurrentUser returns the caller of a live session.
func RunCurrentUser(ctx context.Context, token string, deps SessionDeps) (*Principal, error) {
	if deps.Tokens == nil || deps.Registry == nil {
		return nil, deps.Errors.EngineNotReady
	}
	p, err := resolveSession(ctx, token, deps.Registry, deps.Tokens)
	if err != nil {
		return nil, passThrough(err, deps.Errors.Internal)
	}
	return &p, nil
}

// RunLogout removes the session for token regardless of its validity and drops the
// user's cached quizzes. Logging out an unknown token is not an error.
func RunLogout(ctx context.Context, token string, deps SessionDeps) error {
	deps.Observer = deps.Observer.withDefaults()
	if deps.Registry == nil {
		return deps.Errors.EngineNotReady
	}

	user, ok, lookupErr := deps.Registry.User(ctx, token)
	if err := deps.Registry.Remove(ctx, token); err != nil {
		return passThrough(err, deps.Errors.Internal)
	}
	if lookupErr != nil || !ok {
		return nil
	}

	if deps.Cache != nil {
		if err := deps.Cache.Clear(user.ID); err != nil && !errors.Is(err, quizcache.ErrNotFound) {
			deps.Warn("quizcore: quiz cache clear after logout failed", "user_id", user.ID, "error", err)
		}
	}
	deps.MetricInc(deps.Metrics.Logout)
	deps.EmitAudit(ctx, deps.Events.Logout, true, user.ID, nil, nil)
	return nil
}
