package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/quizcore/quiz"
)

// Deps groups flow dependency sets. Root engine builds this once and delegates
// request methods to the matching flow implementation.
type Deps struct {
	Login   LoginDeps
	Session SessionDeps
	Role    RoleTransitionDeps
	Attempt AttemptDeps
	Quiz    QuizDeps
}

// Tokens is the slice of the token service the flows call.
type Tokens interface {
	Issue(userID, role string) (string, error)
	Role(token string) (string, error)
}

// Cache is the per-user quiz cache.
type Cache interface {
	Add(userID string, q quiz.Snapshot) error
	All(ctx context.Context, userID string) ([]quiz.Snapshot, error)
	Get(ctx context.Context, userID string, quizID int64) (quiz.Snapshot, error)
	Page(ctx context.Context, userID string, page, size int) ([]quiz.Snapshot, error)
	Remove(userID string, quizID int64) error
	Replace(userID string, q quiz.Snapshot) error
	Clear(userID string) error
	Has(userID string) bool
}

// LoginLimiter counts failed logins per identifier and client IP.
type LoginLimiter interface {
	CheckLogin(ctx context.Context, identifier, ip string) error
	IncrementLogin(ctx context.Context, identifier, ip string) error
	ResetLogin(ctx context.Context, identifier, ip string) error
}

// Metrics carries metric IDs used by the flows.
type Metrics struct {
	LoginSuccess     int
	LoginFailure     int
	LoginRateLimited int
	SessionCreated   int
	SessionConflict  int
	Logout           int
	RoleUp           int
	RoleDown         int
	RoleDenied       int
	AttemptCompleted int
	AttemptRejected  int
	ScoreLatency     int
	QuizCacheHit     int
	QuizCacheMiss    int
	QuizWritten      int
}

// Events carries audit event names used by the flows.
type Events struct {
	LoginSuccess     string
	LoginFailure     string
	LoginRateLimited string
	SessionConflict  string
	Logout           string
	RoleUp           string
	RoleDown         string
	AttemptCompleted string
	QuizCreated      string
	QuizUpdated      string
	QuizDeleted      string
}

// Errors carries host-level sentinel errors the flows return.
type Errors struct {
	EngineNotReady       error
	Internal             error
	InvalidCredentials   error
	LoginRateLimited     error
	QuizNotFound         error
	QuizPasswordRequired error
	Forbidden            error
}

// AuditFunc emits one audit event. metadata is only called when the sink is live.
type AuditFunc func(ctx context.Context, event string, success bool, userID string, err error, metadata func() map[string]string)

// Observer is the reporting side shared by every flow. Nil members are no-ops.
type Observer struct {
	MetricInc      func(int)
	ObserveLatency func(int, time.Duration)
	EmitAudit      AuditFunc
	Warn           func(msg string, args ...any)
	Now            func() time.Time
}

func (o Observer) withDefaults() Observer {
	if o.MetricInc == nil {
		o.MetricInc = func(int) {}
	}
	if o.ObserveLatency == nil {
		o.ObserveLatency = func(int, time.Duration) {}
	}
	if o.EmitAudit == nil {
		o.EmitAudit = func(context.Context, string, bool, string, error, func() map[string]string) {}
	}
	if o.Warn == nil {
		o.Warn = func(string, ...any) {}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}
