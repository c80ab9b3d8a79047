package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/quizcore/account"
	"github.com/MrEthical07/quizcore/permission"
	"github.com/MrEthical07/quizcore/quizcache"
	"github.com/MrEthical07/quizcore/session"
)

// LoginResult is the flow-local login response shape.
type LoginResult struct {
	Token string
	User  account.User
	Role  permission.Role
}

// LoginDeps captures login dependencies. Cache, Limiter and ClientIP are optional.
type LoginDeps struct {
	Observer
	Provider account.Provider
	Hasher   account.Hasher
	Tokens   Tokens
	Registry session.Registry
	Cache    Cache
	Limiter  LoginLimiter
	ClientIP func(context.Context) string

	Metrics Metrics
	Events  Events
	Errors  Errors
}

// RunLogin verifies credentials, picks the role, issues a token and registers the
// session. An empty role selects the least privileged role the user may take.
func RunLogin(ctx context.Context, identifier, password, role string, deps LoginDeps) (*LoginResult, error) {
	deps.Observer = deps.Observer.withDefaults()
	if deps.ClientIP == nil {
		deps.ClientIP = func(context.Context) string { return "" }
	}
	if deps.Provider == nil || deps.Hasher == nil || deps.Tokens == nil || deps.Registry == nil {
		return nil, deps.Errors.EngineNotReady
	}

	ip := deps.ClientIP(ctx)
	if deps.Limiter != nil {
		if err := deps.Limiter.CheckLogin(ctx, identifier, ip); err != nil {
			return nil, loginRateLimited(ctx, identifier, "", deps)
		}
	}

	if password == "" {
		return nil, loginFailure(ctx, identifier, ip, "", "empty_password", deps)
	}

	user, err := deps.Provider.UserByIdentifier(ctx, identifier)
	if err != nil {
		if !errors.Is(err, account.ErrUserNotFound) {
			return nil, passThrough(err, deps.Errors.Internal)
		}
		return nil, loginFailure(ctx, identifier, ip, "", "user_not_found", deps)
	}

	ok, err := deps.Hasher.Verify(password, user.PasswordHash)
	if err != nil || !ok {
		return nil, loginFailure(ctx, identifier, ip, user.ID, "password_mismatch", deps)
	}
	password = ""
	user.PasswordHash = ""

	target, err := loginRole(user, role)
	if err != nil {
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, user.ID, err, func() map[string]string {
			return map[string]string{"identifier": identifier, "reason": "role_not_permitted", "role": role}
		})
		return nil, err
	}

	if deps.Limiter != nil {
		if err := deps.Limiter.ResetLogin(ctx, identifier, ip); err != nil {
			deps.Warn("quizcore: login limiter reset failed", "error", err)
		}
	}

	token, err := deps.Tokens.Issue(user.ID, string(target))
	if err != nil {
		return nil, passThrough(err, deps.Errors.Internal)
	}

	if err := deps.Registry.Add(ctx, token, user); err != nil {
		if errors.Is(err, session.ErrSessionConflict) {
			deps.MetricInc(deps.Metrics.SessionConflict)
			deps.EmitAudit(ctx, deps.Events.SessionConflict, false, user.ID, err, func() map[string]string {
				return map[string]string{"identifier": identifier}
			})
		}
		return nil, passThrough(err, deps.Errors.Internal)
	}

	// A new session starts from an empty cache; leftovers belong to an earlier role.
	if deps.Cache != nil {
		if err := deps.Cache.Clear(user.ID); err != nil && !errors.Is(err, quizcache.ErrNotFound) {
			deps.Warn("quizcore: quiz cache clear after login failed", "user_id", user.ID, "error", err)
		}
	}

	deps.MetricInc(deps.Metrics.SessionCreated)
	deps.MetricInc(deps.Metrics.LoginSuccess)
	deps.EmitAudit(ctx, deps.Events.LoginSuccess, true, user.ID, nil, func() map[string]string {
		return map[string]string{"role": string(target)}
	})

	return &LoginResult{Token: token, User: user, Role: target}, nil
}

func loginRole(user account.User, requested string) (permission.Role, error) {
	if requested == "" {
		r, ok := permission.DefaultRole(user.Entitlements)
		if !ok {
			return "", permission.ErrInvalidRole
		}
		return r, nil
	}
	r, ok := permission.ParseRole(requested)
	if !ok || !user.Permits(r) {
		return "", permission.ErrInvalidRole
	}
	return r, nil
}

// loginFailure records a failed attempt. A limiter error turns it into a rate limit.
func loginFailure(ctx context.Context, identifier, ip, userID, reason string, deps LoginDeps) error {
	if deps.Limiter != nil {
		if err := deps.Limiter.IncrementLogin(ctx, identifier, ip); err != nil {
			return loginRateLimited(ctx, identifier, userID, deps)
		}
	}
	deps.MetricInc(deps.Metrics.LoginFailure)
	deps.EmitAudit(ctx, deps.Events.LoginFailure, false, userID, deps.Errors.InvalidCredentials, func() map[string]string {
		return map[string]string{"identifier": identifier, "reason": reason}
	})
	return deps.Errors.InvalidCredentials
}

func loginRateLimited(ctx context.Context, identifier, userID string, deps LoginDeps) error {
	deps.MetricInc(deps.Metrics.LoginRateLimited)
	deps.EmitAudit(ctx, deps.Events.LoginRateLimited, false, userID, deps.Errors.LoginRateLimited, func() map[string]string {
		return map[string]string{"identifier": identifier}
	})
	return deps.Errors.LoginRateLimited
}
