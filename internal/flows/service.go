package flows

import (
	"context"

	"github.com/MrEthical07/quizcore/quiz"
)

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Session.Registry != nil
}

func (s Service) Login(ctx context.Context, identifier, password, role string) (*LoginResult, error) {
	return RunLogin(ctx, identifier, password, role, s.deps.Login)
}

func (s Service) Logout(ctx context.Context, token string) error {
	return RunLogout(ctx, token, s.deps.Session)
}

func (s Service) CurrentUser(ctx context.Context, token string) (*Principal, error) {
	return RunCurrentUser(ctx, token, s.deps.Session)
}

func (s Service) RoleTransition(ctx context.Context, token string, dir Direction) (*RoleTransitionResult, error) {
	return RunRoleTransition(ctx, token, dir, s.deps.Role)
}

func (s Service) CompleteQuiz(ctx context.Context, token string, req CompleteRequest) (*quiz.Result, error) {
	return RunCompleteQuiz(ctx, token, req, s.deps.Attempt)
}

func (s Service) ListQuizzes(ctx context.Context, token string, page, size int) ([]quiz.Snapshot, error) {
	return RunListQuizzes(ctx, token, page, size, s.deps.Quiz)
}

func (s Service) GetQuiz(ctx context.Context, token string, quizID int64) (*quiz.Snapshot, error) {
	return RunGetQuiz(ctx, token, quizID, s.deps.Quiz)
}

func (s Service) CreateQuiz(ctx context.Context, token string, draft quiz.Snapshot, password string) (*quiz.Snapshot, error) {
	return RunCreateQuiz(ctx, token, draft, password, s.deps.Quiz)
}

func (s Service) UpdateQuiz(ctx context.Context, token string, edited quiz.Snapshot, password string) (*quiz.Snapshot, error) {
	return RunUpdateQuiz(ctx, token, edited, password, s.deps.Quiz)
}

func (s Service) DeleteQuiz(ctx context.Context, token string, quizID int64) error {
	return RunDeleteQuiz(ctx, token, quizID, s.deps.Quiz)
}

func (s Service) ListAttempts(ctx context.Context, token string) ([]quiz.Attempt, error) {
	return RunListAttempts(ctx, token, s.deps.Quiz)
}
