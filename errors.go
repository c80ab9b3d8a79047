package quizcore

import (
	"errors"

	"github.com/MrEthical07/quizcore/jwt"
	"github.com/MrEthical07/quizcore/permission"
	"github.com/MrEthical07/quizcore/quiz"
	"github.com/MrEthical07/quizcore/quizcache"
	"github.com/MrEthical07/quizcore/session"
)

// Collaborator sentinels, re-exported so callers only import the root package.
var (
	// ErrTokenExpired means the token was valid but is past its expiry. Callers force a
	// re-login.
	ErrTokenExpired = jwt.ErrTokenExpired
	// ErrTokenInvalid covers forged, corrupt or otherwise unusable tokens.
	ErrTokenInvalid = jwt.ErrTokenInvalid
	// ErrInvalidArgument is returned when a token cannot be issued for the given user or role.
	ErrInvalidArgument = jwt.ErrInvalidArgument
	// ErrSessionConflict means the user already has a live session.
	ErrSessionConflict = session.ErrSessionConflict
	// ErrSessionNotFound means the token is not registered.
	ErrSessionNotFound = session.ErrSessionNotFound
	// ErrQuizConflict means the quiz is already cached for the user.
	ErrQuizConflict = quizcache.ErrConflict
	// ErrInvalidRole means the token's role does not allow the operation, or the requested
	// role transition is not permitted.
	ErrInvalidRole = permission.ErrInvalidRole
	// ErrValidation covers malformed submissions and quiz drafts.
	ErrValidation = quiz.ErrValidation
	// ErrRedisUnavailable wraps Redis failures of the session registry.
	ErrRedisUnavailable = session.ErrRedisUnavailable
)

var (
	// ErrInternal wraps unexpected collaborator failures. The cause is not exposed.
	ErrInternal = errors.New("internal error")
	// ErrInvalidCredentials is returned for unknown identifiers and wrong passwords alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrLoginRateLimited is returned while the failed login budget is exhausted.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrQuizNotFound is returned when the quiz exists neither in the cache nor the store.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuizPasswordRequired is returned for a protected quiz without the right password.
	ErrQuizPasswordRequired = errors.New("quiz password required")
	// ErrForbidden is returned when an author touches a quiz owned by someone else.
	ErrForbidden = errors.New("forbidden")
	// ErrEngineNotReady is returned by a zero or partially built Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
