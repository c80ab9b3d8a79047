package quizcore

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrEthical07/quizcore/account"
	"github.com/MrEthical07/quizcore/internal/audit"
	internalflows "github.com/MrEthical07/quizcore/internal/flows"
	"github.com/MrEthical07/quizcore/internal/rate"
	"github.com/MrEthical07/quizcore/jwt"
	"github.com/MrEthical07/quizcore/password"
	"github.com/MrEthical07/quizcore/permission"
	"github.com/MrEthical07/quizcore/quizcache"
	"github.com/MrEthical07/quizcore/session"
	"github.com/MrEthical07/quizcore/store"
	"github.com/google/uuid"
)

// Engine is the quiz session and authorization core. Build one with [New].
//
// Engine is immutable after Build and safe for concurrent use. Request methods are thin
// delegates to internal/flows.
type Engine struct {
	config   Config
	tokens   *jwt.Manager
	gate     *permission.Gate
	registry session.Registry
	cache    *quizcache.Cache
	store    store.Store
	users    account.Provider
	hasher   *password.Argon2
	limiter  *rate.Limiter
	audit    *audit.Dispatcher
	metrics  *Metrics
	logger   *slog.Logger
	flows    internalflows.Service
}

// Close flushes pending audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports audit events discarded because the buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the current counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// ready reports whether the engine came out of Build. A zero Engine is not ready.
func (e *Engine) ready() bool {
	return e != nil && e.flows.Initialized()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricObserve(id MetricID, d time.Duration) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(id, d)
}

// Login checks credentials and opens the user's single session. An empty role selects
// the least privileged role the user is entitled to. A user with a live session gets
// ErrSessionConflict; unknown identifiers and wrong passwords both get
// ErrInvalidCredentials.
func (e *Engine) Login(ctx context.Context, identifier, password, role string) (*LoginResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	res, err := e.flows.Login(ctx, identifier, password, role)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: res.Token, User: res.User, Role: res.Role}, nil
}

// Logout removes the session for token and drops the user's cached quizzes. Unknown,
// expired and invalid tokens are accepted.
func (e *Engine) Logout(ctx context.Context, token string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.flows.Logout(ctx, token)
}

// CurrentUser returns the caller of a live session.
func (e *Engine) CurrentUser(ctx context.Context, token string) (*Principal, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	p, err := e.flows.CurrentUser(ctx, token)
	if err != nil {
		return nil, err
	}
	return &Principal{User: p.User, Role: p.Role}, nil
}

// UpUserRole replaces the caller's session with one for the next role up the ladder and
// returns the new token. The old token stops working. Not atomic: a failure after the old
// session is removed leaves the user logged out.
func (e *Engine) UpUserRole(ctx context.Context, token string) (*RoleChange, error) {
	return e.roleTransition(ctx, token, internalflows.DirectionUp)
}

// DownUserRole is UpUserRole in the other direction.
func (e *Engine) DownUserRole(ctx context.Context, token string) (*RoleChange, error) {
	return e.roleTransition(ctx, token, internalflows.DirectionDown)
}

func (e *Engine) roleTransition(ctx context.Context, token string, dir internalflows.Direction) (*RoleChange, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	res, err := e.flows.RoleTransition(ctx, token, dir)
	if err != nil {
		return nil, err
	}
	return &RoleChange{Token: res.Token, From: res.From, To: res.To}, nil
}

// CompleteQuiz scores answers against the quiz and persists the attempt with one
// answered choice per answer.
func (e *Engine) CompleteQuiz(ctx context.Context, token string, quizID int64, answers []SubmittedAnswer) (*AttemptResult, error) {
	return e.CompleteProtectedQuiz(ctx, token, quizID, answers, "")
}

// CompleteProtectedQuiz is CompleteQuiz for quizzes guarded by a password. An empty
// password is fine for unprotected quizzes.
func (e *Engine) CompleteProtectedQuiz(ctx context.Context, token string, quizID int64, answers []SubmittedAnswer, password string) (*AttemptResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	return e.flows.CompleteQuiz(ctx, token, internalflows.CompleteRequest{
		QuizID:   quizID,
		Answers:  answers,
		Password: password,
	})
}

// ListQuizzes returns one page of quizzes ordered by id. Authors see their own; other
// roles see every quiz.
func (e *Engine) ListQuizzes(ctx context.Context, token string, page, size int) ([]QuizSnapshot, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	return e.flows.ListQuizzes(ctx, token, page, size)
}

// GetQuiz returns one quiz.
func (e *Engine) GetQuiz(ctx context.Context, token string, quizID int64) (*QuizSnapshot, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	return e.flows.GetQuiz(ctx, token, quizID)
}

// CreateQuiz stores draft as a new quiz owned by the calling author. A non-empty password
// protects the quiz.
func (e *Engine) CreateQuiz(ctx context.Context, token string, draft QuizSnapshot, password string) (*QuizSnapshot, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	return e.flows.CreateQuiz(ctx, token, draft, password)
}

// UpdateQuiz merges edited into the stored quiz with the same id. Questions and answers
// with id 0 are added; stored ones missing from edited are deleted.
func (e *Engine) UpdateQuiz(ctx context.Context, token string, edited QuizSnapshot, password string) (*QuizSnapshot, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	return e.flows.UpdateQuiz(ctx, token, edited, password)
}

// DeleteQuiz removes a quiz with all of its attempts.
func (e *Engine) DeleteQuiz(ctx context.Context, token string, quizID int64) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.flows.DeleteQuiz(ctx, token, quizID)
}

// ListAttempts returns the caller's attempts, oldest first.
func (e *Engine) ListAttempts(ctx context.Context, token string) ([]Attempt, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	return e.flows.ListAttempts(ctx, token)
}

// CheckRole returns nil when token carries exactly role. Token errors come back
// unchanged. Session liveness is not checked.
func (e *Engine) CheckRole(token string, role Role) error {
	if e == nil || e.gate == nil {
		return ErrEngineNotReady
	}
	return e.gate.CheckRole(token, role)
}

// ActiveSessions counts registered sessions.
func (e *Engine) ActiveSessions(ctx context.Context) (int, error) {
	if e == nil || e.registry == nil {
		return 0, ErrEngineNotReady
	}
	return e.registry.Count(ctx)
}

// LoginAttempts returns the failed logins counted for identifier in the current window.
// It is always zero without Redis.
func (e *Engine) LoginAttempts(ctx context.Context, identifier string) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}
	if e.limiter == nil {
		return 0, nil
	}
	return e.limiter.LoginAttempts(ctx, identifier)
}

func (e *Engine) initFlows() {
	obs := internalflows.Observer{
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		ObserveLatency: func(id int, d time.Duration) {
			e.metricObserve(MetricID(id), d)
		},
		EmitAudit: e.emitAudit,
		Warn:      e.logger.Warn,
		Now:       time.Now,
	}
	metrics := internalflows.Metrics{
		LoginSuccess:     int(MetricLoginSuccess),
		LoginFailure:     int(MetricLoginFailure),
		LoginRateLimited: int(MetricLoginRateLimited),
		SessionCreated:   int(MetricSessionCreated),
		SessionConflict:  int(MetricSessionConflict),
		Logout:           int(MetricLogout),
		RoleUp:           int(MetricRoleUp),
		RoleDown:         int(MetricRoleDown),
		RoleDenied:       int(MetricRoleDenied),
		AttemptCompleted: int(MetricAttemptCompleted),
		AttemptRejected:  int(MetricAttemptRejected),
		ScoreLatency:     int(MetricScoreLatency),
		QuizCacheHit:     int(MetricQuizCacheHit),
		QuizCacheMiss:    int(MetricQuizCacheMiss),
		QuizWritten:      int(MetricQuizWritten),
	}
	events := internalflows.Events{
		LoginSuccess:     auditEventLoginSuccess,
		LoginFailure:     auditEventLoginFailure,
		LoginRateLimited: auditEventLoginRateLimited,
		SessionConflict:  auditEventSessionConflict,
		Logout:           auditEventLogout,
		RoleUp:           auditEventRoleUp,
		RoleDown:         auditEventRoleDown,
		AttemptCompleted: auditEventAttemptCompleted,
		QuizCreated:      auditEventQuizCreated,
		QuizUpdated:      auditEventQuizUpdated,
		QuizDeleted:      auditEventQuizDeleted,
	}
	errs := internalflows.Errors{
		EngineNotReady:       ErrEngineNotReady,
		Internal:             ErrInternal,
		InvalidCredentials:   ErrInvalidCredentials,
		LoginRateLimited:     ErrLoginRateLimited,
		QuizNotFound:         ErrQuizNotFound,
		QuizPasswordRequired: ErrQuizPasswordRequired,
		Forbidden:            ErrForbidden,
	}

	login := internalflows.LoginDeps{
		Observer: obs,
		Provider: e.users,
		Hasher:   e.hasher,
		Tokens:   e.tokens,
		Registry: e.registry,
		Cache:    e.cache,
		ClientIP: clientIPFromContext,
		Metrics:  metrics,
		Events:   events,
		Errors:   errs,
	}
	// A nil *rate.Limiter must not become a non-nil interface.
	if e.limiter != nil {
		login.Limiter = e.limiter
	}

	e.flows = internalflows.New(internalflows.Deps{
		Login: login,
		Session: internalflows.SessionDeps{
			Observer: obs,
			Tokens:   e.tokens,
			Registry: e.registry,
			Cache:    e.cache,
			Metrics:  metrics,
			Events:   events,
			Errors:   errs,
		},
		Role: internalflows.RoleTransitionDeps{
			Observer: obs,
			Tokens:   e.tokens,
			Gate:     e.gate,
			Registry: e.registry,
			Cache:    e.cache,
			Metrics:  metrics,
			Events:   events,
			Errors:   errs,
		},
		Attempt: internalflows.AttemptDeps{
			Observer:     obs,
			Tokens:       e.tokens,
			Registry:     e.registry,
			Cache:        e.cache,
			Store:        e.store,
			Hasher:       e.hasher,
			NewID:        uuid.NewString,
			FillPageSize: e.config.Cache.PageFillSize,
			Metrics:      metrics,
			Events:       events,
			Errors:       errs,
		},
		Quiz: internalflows.QuizDeps{
			Observer:     obs,
			Tokens:       e.tokens,
			Registry:     e.registry,
			Cache:        e.cache,
			Store:        e.store,
			Hasher:       e.hasher,
			FillPageSize: e.config.Cache.PageFillSize,
			Metrics:      metrics,
			Events:       events,
			Errors:       errs,
		},
	})
}

