package flows

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/quizcore/account"
	"github.com/MrEthical07/quizcore/quiz"
	"github.com/MrEthical07/quizcore/session"
	"github.com/MrEthical07/quizcore/store"
)

// AttemptDeps captures quiz completion dependencies.
type AttemptDeps struct {
	Observer
	Tokens   Tokens
	Registry session.Registry
	Cache    Cache
	Store    store.Store
	Hasher   account.Hasher
	NewID    func() string
	// FillPageSize bounds each store read while filling an author's cache.
	FillPageSize int

	Metrics Metrics
	Events  Events
	Errors  Errors
}

// CompleteRequest is one submission of answers for a quiz.
type CompleteRequest struct {
	QuizID   int64
	Answers  []quiz.SubmittedAnswer
	Password string
}

// RunCompleteQuiz scores a submission against the quiz snapshot and persists the attempt
// together with one answered choice per submitted answer.
func RunCompleteQuiz(ctx context.Context, token string, req CompleteRequest, deps AttemptDeps) (*quiz.Result, error) {
	deps.Observer = deps.Observer.withDefaults()
	if deps.Tokens == nil || deps.Registry == nil || deps.Cache == nil || deps.Store == nil || deps.NewID == nil {
		return nil, deps.Errors.EngineNotReady
	}

	p, err := resolveSession(ctx, token, deps.Registry, deps.Tokens)
	if err != nil {
		return nil, passThrough(err, deps.Errors.Internal)
	}

	start := deps.Now()
	lookup := quizLookup{
		cache:    deps.Cache,
		store:    deps.Store,
		obs:      deps.Observer,
		fillSize: deps.FillPageSize,
		m:        deps.Metrics,
		e:        deps.Errors,
	}
	snap, err := lookup.resolve(ctx, p, req.QuizID)
	if err != nil {
		return nil, err
	}

	if snap.Protected() {
		if req.Password == "" || deps.Hasher == nil {
			return nil, deps.Errors.QuizPasswordRequired
		}
		ok, err := deps.Hasher.Verify(req.Password, snap.PasswordHash)
		if err != nil || !ok {
			return nil, deps.Errors.QuizPasswordRequired
		}
	}

	score, err := quiz.Score(snap, req.Answers)
	if err != nil {
		deps.MetricInc(deps.Metrics.AttemptRejected)
		return nil, passThrough(err, deps.Errors.Internal)
	}

	now := deps.Now()
	attempt := quiz.Attempt{
		ID:        deps.NewID(),
		UserID:    p.User.ID,
		QuizID:    snap.ID,
		Score:     score,
		CreatedAt: now,
	}
	choices := make([]quiz.AnsweredChoice, len(req.Answers))
	for i, a := range req.Answers {
		choices[i] = quiz.AnsweredChoice{
			AttemptID:  attempt.ID,
			QuestionID: a.QuestionID,
			AnswerID:   a.AnswerID,
			AnsweredAt: now,
		}
	}

	if err := deps.Store.SaveAttempt(ctx, attempt, choices); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_ = deps.Cache.Remove(p.User.ID, snap.ID)
			return nil, fmt.Errorf("%w: %d", deps.Errors.QuizNotFound, snap.ID)
		}
		return nil, passThrough(err, deps.Errors.Internal)
	}

	deps.ObserveLatency(deps.Metrics.ScoreLatency, deps.Now().Sub(start))
	deps.MetricInc(deps.Metrics.AttemptCompleted)
	deps.EmitAudit(ctx, deps.Events.AttemptCompleted, true, p.User.ID, nil, func() map[string]string {
		return map[string]string{
			"quiz_id":    fmt.Sprint(snap.ID),
			"attempt_id": attempt.ID,
			"score":      fmt.Sprint(score),
		}
	})

	return &quiz.Result{Attempt: attempt, Choices: choices}, nil
}
