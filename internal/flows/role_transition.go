package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/quizcore/permission"
	"github.com/MrEthical07/quizcore/quizcache"
	"github.com/MrEthical07/quizcore/session"
)

// Direction selects which neighbour on the role ladder a transition targets.
type Direction int

const (
	DirectionUp Direction = iota
	DirectionDown
)

func (d Direction) String() string {
	if d == DirectionUp {
		return "up"
	}
	return "down"
}

// RoleTokens mints the replacement token for a role change.
type RoleTokens interface {
	NewTokenByRole(role permission.Role, userID string) (string, error)
}

// RoleTransitionDeps captures role up/down dependencies. Gate mints the new token.
type RoleTransitionDeps struct {
	Observer
	Tokens   Tokens
	Gate     RoleTokens
	Registry session.Registry
	Cache    Cache

	Metrics Metrics
	Events  Events
	Errors  Errors
}

// RoleTransitionResult carries the replacement token and the role it was issued for.
type RoleTransitionResult struct {
	Token string
	From  permission.Role
	To    permission.Role
}

// RunRoleTransition swaps the caller's session for one under the adjacent role.
//
// The steps are not atomic: the old session is removed before the new one is added, so a
// failure in between leaves the user logged out rather than holding two sessions.
func RunRoleTransition(ctx context.Context, token string, dir Direction, deps RoleTransitionDeps) (*RoleTransitionResult, error) {
	deps.Observer = deps.Observer.withDefaults()
	if deps.Tokens == nil || deps.Gate == nil || deps.Registry == nil || deps.Cache == nil {
		return nil, deps.Errors.EngineNotReady
	}

	p, err := resolveSession(ctx, token, deps.Registry, deps.Tokens)
	if err != nil {
		return nil, passThrough(err, deps.Errors.Internal)
	}

	next, ok := permission.Up(p.Role)
	if dir == DirectionDown {
		next, ok = permission.Down(p.Role)
	}
	if !ok || !p.User.Permits(next) {
		deps.MetricInc(deps.Metrics.RoleDenied)
		return nil, permission.ErrInvalidRole
	}

	if err := deps.Registry.Remove(ctx, token); err != nil {
		return nil, passThrough(err, deps.Errors.Internal)
	}
	if err := deps.Cache.Clear(p.User.ID); err != nil && !errors.Is(err, quizcache.ErrNotFound) {
		deps.Warn("quizcore: quiz cache clear during role transition failed", "user_id", p.User.ID, "error", err)
	}

	fresh, err := deps.Gate.NewTokenByRole(next, p.User.ID)
	if err != nil {
		deps.Warn("quizcore: role transition left user logged out", "user_id", p.User.ID, "stage", "issue", "error", err)
		return nil, passThrough(err, deps.Errors.Internal)
	}
	if err := deps.Registry.Add(ctx, fresh, p.User); err != nil {
		deps.Warn("quizcore: role transition left user logged out", "user_id", p.User.ID, "stage", "register", "error", err)
		return nil, passThrough(err, deps.Errors.Internal)
	}

	metric, event := deps.Metrics.RoleUp, deps.Events.RoleUp
	if dir == DirectionDown {
		metric, event = deps.Metrics.RoleDown, deps.Events.RoleDown
	}
	deps.MetricInc(metric)
	deps.EmitAudit(ctx, event, true, p.User.ID, nil, func() map[string]string {
		return map[string]string{"from": string(p.Role), "to": string(next)}
	})

	return &RoleTransitionResult{Token: fresh, From: p.Role, To: next}, nil
}
