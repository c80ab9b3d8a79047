package flows

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/quizcore/account"
	"github.com/MrEthical07/quizcore/permission"
	"github.com/MrEthical07/quizcore/quiz"
	"github.com/MrEthical07/quizcore/quizcache"
	"github.com/MrEthical07/quizcore/session"
	"github.com/MrEthical07/quizcore/store"
)

// defaultFillPageSize is the store page size used when filling an author's cache.
const defaultFillPageSize = 100

// QuizDeps captures quiz browsing and authoring dependencies.
type QuizDeps struct {
	Observer
	Tokens   Tokens
	Registry session.Registry
	Cache    Cache
	Store    store.Store
	Hasher   account.Hasher
	// FillPageSize bounds each store read while filling an author's cache.
	FillPageSize int

	Metrics Metrics
	Events  Events
	Errors  Errors
}

func (d QuizDeps) ready() bool {
	return d.Tokens != nil && d.Registry != nil && d.Cache != nil && d.Store != nil
}

// quizLookup resolves snapshots through the caller's cache.
type quizLookup struct {
	cache    Cache
	store    store.Store
	obs      Observer
	fillSize int
	m        Metrics
	e        Errors
}

func (d QuizDeps) lookup() quizLookup {
	return quizLookup{cache: d.Cache, store: d.Store, obs: d.Observer, fillSize: d.FillPageSize, m: d.Metrics, e: d.Errors}
}

// resolve returns the snapshot from the caller's cache, falling back to the store. An
// author's cache only ever holds the author's own quizzes, filled completely on first use.
// A quiz deleted since it was cached is evicted.
func (l quizLookup) resolve(ctx context.Context, p Principal, quizID int64) (quiz.Snapshot, error) {
	userID := p.User.ID
	if p.Role == permission.RoleAuthor {
		if err := l.fillOwned(ctx, userID); err != nil {
			return quiz.Snapshot{}, passThrough(err, l.e.Internal)
		}
	}

	snap, err := l.cache.Get(ctx, userID, quizID)
	if err == nil {
		l.obs.MetricInc(l.m.QuizCacheHit)
		return snap, nil
	}
	if errors.Is(err, store.ErrNotFound) {
		_ = l.cache.Remove(userID, quizID)
		return quiz.Snapshot{}, fmt.Errorf("%w: %d", l.e.QuizNotFound, quizID)
	}
	if !errors.Is(err, quizcache.ErrNotFound) {
		return quiz.Snapshot{}, passThrough(err, l.e.Internal)
	}

	l.obs.MetricInc(l.m.QuizCacheMiss)
	snap, err = l.store.FindByID(ctx, quizID)
	if err != nil {
		if isQuizMissing(err) {
			return quiz.Snapshot{}, fmt.Errorf("%w: %d", l.e.QuizNotFound, quizID)
		}
		return quiz.Snapshot{}, passThrough(err, l.e.Internal)
	}
	if p.Role == permission.RoleAuthor && snap.OwnerID != userID {
		return snap, nil
	}
	if err := l.cache.Add(userID, snap); err != nil && !errors.Is(err, quizcache.ErrConflict) {
		l.obs.Warn("quizcore: quiz cache add failed", "user_id", userID, "quiz_id", quizID, "error", err)
	}
	return snap, nil
}

// fillOwned loads every quiz owned by userID into an empty cache.
func (l quizLookup) fillOwned(ctx context.Context, userID string) error {
	if l.cache.Has(userID) {
		return nil
	}
	size := l.fillSize
	if size <= 0 {
		size = defaultFillPageSize
	}
	for page := 1; ; page++ {
		batch, err := l.store.FindByOwner(ctx, userID, page, size)
		if err != nil {
			return err
		}
		for _, snap := range batch {
			if err := l.cache.Add(userID, snap); err != nil && !errors.Is(err, quizcache.ErrConflict) {
				return err
			}
		}
		if len(batch) < size {
			return nil
		}
	}
}

// RunListQuizzes returns one page of quizzes ordered by id. Authors see their own quizzes
// through the cache; other roles page the whole catalogue from the store.
func RunListQuizzes(ctx context.Context, token string, page, size int, deps QuizDeps) ([]quiz.Snapshot, error) {
	deps.Observer = deps.Observer.withDefaults()
	if !deps.ready() {
		return nil, deps.Errors.EngineNotReady
	}
	p, err := resolveSession(ctx, token, deps.Registry, deps.Tokens)
	if err != nil {
		return nil, passThrough(err, deps.Errors.Internal)
	}

	if p.Role == permission.RoleAuthor {
		if err := deps.lookup().fillOwned(ctx, p.User.ID); err != nil {
			return nil, passThrough(err, deps.Errors.Internal)
		}
		out, err := deps.Cache.Page(ctx, p.User.ID, page, size)
		if errors.Is(err, store.ErrNotFound) {
			// A cached quiz was deleted behind the cache; rebuild from the store.
			_ = deps.Cache.Clear(p.User.ID)
			if err := deps.lookup().fillOwned(ctx, p.User.ID); err != nil {
				return nil, passThrough(err, deps.Errors.Internal)
			}
			out, err = deps.Cache.Page(ctx, p.User.ID, page, size)
		}
		if err != nil {
			return nil, passThrough(err, deps.Errors.Internal)
		}
		return out, nil
	}

	out, err := deps.Store.FindByOwner(ctx, "", page, size)
	if err != nil {
		return nil, passThrough(err, deps.Errors.Internal)
	}
	for _, snap := range out {
		if err := deps.Cache.Add(p.User.ID, snap); err != nil && !errors.Is(err, quizcache.ErrConflict) {
			deps.Warn("quizcore: quiz cache add failed", "user_id", p.User.ID, "quiz_id", snap.ID, "error", err)
		}
	}
	return out, nil
}

// RunGetQuiz returns one quiz. Authors may only read their own.
func RunGetQuiz(ctx context.Context, token string, quizID int64, deps QuizDeps) (*quiz.Snapshot, error) {
	deps.Observer = deps.Observer.withDefaults()
	if !deps.ready() {
		return nil, deps.Errors.EngineNotReady
	}
	p, err := resolveSession(ctx, token, deps.Registry, deps.Tokens)
	if err != nil {
		return nil, passThrough(err, deps.Errors.Internal)
	}

	snap, err := deps.lookup().resolve(ctx, p, quizID)
	if err != nil {
		return nil, err
	}
	if p.Role == permission.RoleAuthor && snap.OwnerID != p.User.ID {
		return nil, deps.Errors.Forbidden
	}
	return &snap, nil
}

// requireAuthor resolves the session and insists on the author role.
func requireAuthor(ctx context.Context, token string, deps QuizDeps) (Principal, error) {
	p, err := resolveSession(ctx, token, deps.Registry, deps.Tokens)
	if err != nil {
		return Principal{}, passThrough(err, deps.Errors.Internal)
	}
	if p.Role != permission.RoleAuthor {
		return Principal{}, permission.ErrInvalidRole
	}
	return p, nil
}

// RunCreateQuiz stores a new quiz owned by the caller. A non-empty password protects it.
func RunCreateQuiz(ctx context.Context, token string, draft quiz.Snapshot, password string, deps QuizDeps) (*quiz.Snapshot, error) {
	deps.Observer = deps.Observer.withDefaults()
	if !deps.ready() {
		return nil, deps.Errors.EngineNotReady
	}
	p, err := requireAuthor(ctx, token, deps)
	if err != nil {
		return nil, err
	}
	if err := quiz.ValidateDraft(draft); err != nil {
		return nil, err
	}

	draft = draft.Clone()
	draft.ID = 0
	draft.OwnerID = p.User.ID
	draft.PasswordHash = ""
	if password != "" {
		if deps.Hasher == nil {
			return nil, deps.Errors.EngineNotReady
		}
		if draft.PasswordHash, err = deps.Hasher.Hash(password); err != nil {
			return nil, passThrough(err, deps.Errors.Internal)
		}
	}

	stored, err := deps.Store.Insert(ctx, draft)
	if err != nil {
		return nil, passThrough(err, deps.Errors.Internal)
	}
	// An empty cache is filled from the store on the next listing.
	if deps.Cache.Has(p.User.ID) {
		if err := deps.Cache.Add(p.User.ID, stored); err != nil && !errors.Is(err, quizcache.ErrConflict) {
			deps.Warn("quizcore: quiz cache add failed", "user_id", p.User.ID, "quiz_id", stored.ID, "error", err)
		}
	}

	deps.MetricInc(deps.Metrics.QuizWritten)
	deps.EmitAudit(ctx, deps.Events.QuizCreated, true, p.User.ID, nil, func() map[string]string {
		return map[string]string{"quiz_id": fmt.Sprint(stored.ID)}
	})
	return &stored, nil
}

// RunUpdateQuiz merges edits into a quiz the caller owns. An empty password keeps the
// current one.
func RunUpdateQuiz(ctx context.Context, token string, edited quiz.Snapshot, password string, deps QuizDeps) (*quiz.Snapshot, error) {
	deps.Observer = deps.Observer.withDefaults()
	if !deps.ready() {
		return nil, deps.Errors.EngineNotReady
	}
	p, err := requireAuthor(ctx, token, deps)
	if err != nil {
		return nil, err
	}
	if err := quiz.ValidateDraft(edited); err != nil {
		return nil, err
	}

	current, err := deps.lookup().resolve(ctx, p, edited.ID)
	if err != nil {
		return nil, err
	}
	if current.OwnerID != p.User.ID {
		return nil, deps.Errors.Forbidden
	}

	edited = edited.Clone()
	edited.OwnerID = current.OwnerID
	edited.PasswordHash = current.PasswordHash
	if password != "" {
		if deps.Hasher == nil {
			return nil, deps.Errors.EngineNotReady
		}
		if edited.PasswordHash, err = deps.Hasher.Hash(password); err != nil {
			return nil, passThrough(err, deps.Errors.Internal)
		}
	}

	stored, err := deps.Store.Update(ctx, edited)
	if err != nil {
		if isQuizMissing(err) {
			_ = deps.Cache.Remove(p.User.ID, edited.ID)
			return nil, fmt.Errorf("%w: %d", deps.Errors.QuizNotFound, edited.ID)
		}
		return nil, passThrough(err, deps.Errors.Internal)
	}
	if err := deps.Cache.Replace(p.User.ID, stored); err != nil {
		deps.Warn("quizcore: quiz cache replace failed", "user_id", p.User.ID, "quiz_id", stored.ID, "error", err)
	}

	deps.MetricInc(deps.Metrics.QuizWritten)
	deps.EmitAudit(ctx, deps.Events.QuizUpdated, true, p.User.ID, nil, func() map[string]string {
		return map[string]string{"quiz_id": fmt.Sprint(stored.ID)}
	})
	return &stored, nil
}

// RunDeleteQuiz removes a quiz with its attempts. Authors delete their own quizzes;
// managers may delete any.
func RunDeleteQuiz(ctx context.Context, token string, quizID int64, deps QuizDeps) error {
	deps.Observer = deps.Observer.withDefaults()
	if !deps.ready() {
		return deps.Errors.EngineNotReady
	}
	p, err := resolveSession(ctx, token, deps.Registry, deps.Tokens)
	if err != nil {
		return passThrough(err, deps.Errors.Internal)
	}
	if p.Role != permission.RoleAuthor && p.Role != permission.RoleManager {
		return permission.ErrInvalidRole
	}

	current, err := deps.lookup().resolve(ctx, p, quizID)
	if err != nil {
		return err
	}
	if p.Role == permission.RoleAuthor && current.OwnerID != p.User.ID {
		return deps.Errors.Forbidden
	}

	if err := deps.Store.Delete(ctx, quizID); err != nil {
		if isQuizMissing(err) {
			_ = deps.Cache.Remove(p.User.ID, quizID)
			return fmt.Errorf("%w: %d", deps.Errors.QuizNotFound, quizID)
		}
		return passThrough(err, deps.Errors.Internal)
	}
	if err := deps.Cache.Remove(p.User.ID, quizID); err != nil && !errors.Is(err, quizcache.ErrNotFound) {
		deps.Warn("quizcore: quiz cache remove failed", "user_id", p.User.ID, "quiz_id", quizID, "error", err)
	}

	deps.MetricInc(deps.Metrics.QuizWritten)
	deps.EmitAudit(ctx, deps.Events.QuizDeleted, true, p.User.ID, nil, func() map[string]string {
		return map[string]string{"quiz_id": fmt.Sprint(quizID)}
	})
	return nil
}

// RunListAttempts returns the caller's attempts, oldest first.
func RunListAttempts(ctx context.Context, token string, deps QuizDeps) ([]quiz.Attempt, error) {
	if !deps.ready() {
		return nil, deps.Errors.EngineNotReady
	}
	p, err := resolveSession(ctx, token, deps.Registry, deps.Tokens)
	if err != nil {
		return nil, passThrough(err, deps.Errors.Internal)
	}
	out, err := deps.Store.AttemptsByUser(ctx, p.User.ID)
	if err != nil {
		return nil, passThrough(err, deps.Errors.Internal)
	}
	return out, nil
}
