package quizcore

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
)

func correctAnswers(q *QuizSnapshot) []SubmittedAnswer {
	out := make([]SubmittedAnswer, 0, len(q.Questions))
	for _, question := range q.Questions {
		for _, a := range question.Answers {
			if a.IsCorrect {
				out = append(out, SubmittedAnswer{QuestionID: question.ID, AnswerID: a.ID})
				break
			}
		}
	}
	return out
}

func TestZeroEngineNotReady(t *testing.T) {
	var e *Engine
	ctx := context.Background()

	if _, err := e.Login(ctx, "alice", testPassword, ""); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("Login: expected ErrEngineNotReady, got %v", err)
	}
	if err := e.Logout(ctx, "tok"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("Logout: expected ErrEngineNotReady, got %v", err)
	}
	if _, err := e.CompleteQuiz(ctx, "tok", 1, nil); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("CompleteQuiz: expected ErrEngineNotReady, got %v", err)
	}
	if err := e.CheckRole("tok", RoleTaker); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("CheckRole: expected ErrEngineNotReady, got %v", err)
	}

	var zero Engine
	if _, err := zero.Login(ctx, "alice", testPassword, ""); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("zero Engine Login: expected ErrEngineNotReady, got %v", err)
	}
}

func TestZeroValueEngineDelegatesNotReady(t *testing.T) {
	var zero Engine
	ctx := context.Background()

	calls := map[string]func() error{
		"Login": func() error {
			_, err := zero.Login(ctx, "alice", testPassword, "")
			return err
		},
		"Logout": func() error { return zero.Logout(ctx, "tok") },
		"CurrentUser": func() error {
			_, err := zero.CurrentUser(ctx, "tok")
			return err
		},
		"UpUserRole": func() error {
			_, err := zero.UpUserRole(ctx, "tok")
			return err
		},
		"DownUserRole": func() error {
			_, err := zero.DownUserRole(ctx, "tok")
			return err
		},
		"CompleteQuiz": func() error {
			_, err := zero.CompleteQuiz(ctx, "tok", 1, nil)
			return err
		},
		"ListQuizzes": func() error {
			_, err := zero.ListQuizzes(ctx, "tok", 1, 10)
			return err
		},
		"GetQuiz": func() error {
			_, err := zero.GetQuiz(ctx, "tok", 1)
			return err
		},
		"CreateQuiz": func() error {
			_, err := zero.CreateQuiz(ctx, "tok", QuizSnapshot{}, "")
			return err
		},
		"UpdateQuiz": func() error {
			_, err := zero.UpdateQuiz(ctx, "tok", QuizSnapshot{}, "")
			return err
		},
		"DeleteQuiz": func() error { return zero.DeleteQuiz(ctx, "tok", 1) },
		"ListAttempts": func() error {
			_, err := zero.ListAttempts(ctx, "tok")
			return err
		},
		"CheckRole": func() error { return zero.CheckRole("tok", RoleTaker) },
		"ActiveSessions": func() error {
			_, err := zero.ActiveSessions(ctx)
			return err
		},
	}
	for name, call := range calls {
		if err := call(); !errors.Is(err, ErrEngineNotReady) {
			t.Errorf("%s on zero Engine: expected ErrEngineNotReady, got %v", name, err)
		}
	}
}

func TestBuildRequiresStore(t *testing.T) {
	if _, err := New().WithConfig(testConfig()).Build(); err == nil {
		t.Fatal("expected Build to fail without a store")
	}
}

func TestBuilderSingleUse(t *testing.T) {
	cfg := testConfig()
	b := New().WithConfig(cfg).WithStore(seedStore(t, cfg))
	e, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer e.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}

func TestLoginDefaultsToLowestRole(t *testing.T) {
	e, _ := newTestEngine(t, engineOpts{})

	res := login(t, e, "carol", "")
	if res.Role != RoleTaker {
		t.Fatalf("expected taker, got %s", res.Role)
	}
	if res.User.PasswordHash != "" {
		t.Fatal("password hash leaked through LoginResult")
	}
	if err := e.CheckRole(res.Token, RoleTaker); err != nil {
		t.Fatalf("CheckRole: %v", err)
	}
	if err := e.CheckRole(res.Token, RoleManager); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}

func TestLoginRejections(t *testing.T) {
	e, _ := newTestEngine(t, engineOpts{})
	ctx := context.Background()

	if _, err := e.Login(ctx, "alice", "wrong-password", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := e.Login(ctx, "nobody", testPassword, ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := e.Login(ctx, "alice", testPassword, "manager"); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("unentitled role: expected ErrInvalidRole, got %v", err)
	}

	login(t, e, "alice", "")
	if _, err := e.Login(ctx, "alice", testPassword, ""); !errors.Is(err, ErrSessionConflict) {
		t.Fatalf("second login: expected ErrSessionConflict, got %v", err)
	}

	snap := e.MetricsSnapshot()
	if snap.Counters[MetricLoginFailure] != 3 {
		t.Fatalf("expected 3 login failures, got %d", snap.Counters[MetricLoginFailure])
	}
	if snap.Counters[MetricSessionConflict] != 1 {
		t.Fatalf("expected 1 session conflict, got %d", snap.Counters[MetricSessionConflict])
	}
}

func TestConcurrentLoginSingleWinner(t *testing.T) {
	_, rdb := newTestRedis(t)
	e, _ := newTestEngine(t, engineOpts{redis: rdb})

	const n = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		winners   int
		conflicts int
	)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := e.Login(context.Background(), "alice", testPassword, "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, ErrSessionConflict):
				conflicts++
			default:
				t.Errorf("unexpected login error: %v", err)
			}
		}()
	}
	wg.Wait()

	if winners != 1 || conflicts != n-1 {
		t.Fatalf("expected 1 winner and %d conflicts, got %d and %d", n-1, winners, conflicts)
	}
	if got, err := e.ActiveSessions(context.Background()); err != nil || got != 1 {
		t.Fatalf("expected 1 active session, got %d (%v)", got, err)
	}
}

func TestLogoutAndCurrentUser(t *testing.T) {
	e, _ := newTestEngine(t, engineOpts{})
	ctx := context.Background()

	res := login(t, e, "bob", "author")
	p, err := e.CurrentUser(ctx, res.Token)
	if err != nil {
		t.Fatalf("CurrentUser: %v", err)
	}
	if p.User.ID != "u-bob" || p.Role != RoleAuthor {
		t.Fatalf("unexpected principal %+v", p)
	}

	if err := e.Logout(ctx, res.Token); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if err := e.Logout(ctx, res.Token); err != nil {
		t.Fatalf("second Logout: %v", err)
	}
	if err := e.Logout(ctx, "not-a-token"); err != nil {
		t.Fatalf("garbage Logout: %v", err)
	}
	if _, err := e.CurrentUser(ctx, res.Token); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	login(t, e, "bob", "")
}

func TestRoleLadder(t *testing.T) {
	_, rdb := newTestRedis(t)
	e, _ := newTestEngine(t, engineOpts{redis: rdb})
	ctx := context.Background()

	res := login(t, e, "carol", "")
	up, err := e.UpUserRole(ctx, res.Token)
	if err != nil {
		t.Fatalf("UpUserRole: %v", err)
	}
	if up.From != RoleTaker || up.To != RoleAuthor {
		t.Fatalf("unexpected change %+v", up)
	}
	if _, err := e.CurrentUser(ctx, res.Token); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("old token must be gone, got %v", err)
	}

	top, err := e.UpUserRole(ctx, up.Token)
	if err != nil {
		t.Fatalf("second UpUserRole: %v", err)
	}
	if top.To != RoleManager {
		t.Fatalf("expected manager, got %s", top.To)
	}
	if _, err := e.UpUserRole(ctx, top.Token); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("above manager: expected ErrInvalidRole, got %v", err)
	}

	down, err := e.DownUserRole(ctx, top.Token)
	if err != nil {
		t.Fatalf("DownUserRole: %v", err)
	}
	if down.To != RoleAuthor {
		t.Fatalf("expected author, got %s", down.To)
	}
	if n, _ := e.ActiveSessions(ctx); n != 1 {
		t.Fatalf("expected exactly one session, got %d", n)
	}

	snap := e.MetricsSnapshot()
	if snap.Counters[MetricRoleUp] != 2 || snap.Counters[MetricRoleDown] != 1 || snap.Counters[MetricRoleDenied] != 1 {
		t.Fatalf("unexpected role counters %v", snap.Counters)
	}
}

func TestRoleTransitionRespectsEntitlements(t *testing.T) {
	e, _ := newTestEngine(t, engineOpts{})
	ctx := context.Background()

	res := login(t, e, "alice", "")
	if _, err := e.UpUserRole(ctx, res.Token); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
	if _, err := e.DownUserRole(ctx, res.Token); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("below taker: expected ErrInvalidRole, got %v", err)
	}
	if _, err := e.CurrentUser(ctx, res.Token); err != nil {
		t.Fatalf("denied transition must keep the session: %v", err)
	}
}

func TestListQuizzesHugePage(t *testing.T) {
	e, _ := newTestEngine(t, engineOpts{})
	ctx := context.Background()

	author := login(t, e, "bob", "author")
	if _, err := e.CreateQuiz(ctx, author.Token, sampleDraft("arithmetic"), ""); err != nil {
		t.Fatalf("CreateQuiz: %v", err)
	}
	taker := login(t, e, "alice", "")

	for _, token := range []string{author.Token, taker.Token} {
		for _, tc := range []struct{ page, size, want int }{
			{1, math.MaxInt, 1},
			{3, math.MaxInt, 0},
			{math.MaxInt, 10, 0},
			{math.MaxInt, math.MaxInt, 0},
		} {
			list, err := e.ListQuizzes(ctx, token, tc.page, tc.size)
			if err != nil {
				t.Fatalf("ListQuizzes(%d, %d): %v", tc.page, tc.size, err)
			}
			if len(list) != tc.want {
				t.Fatalf("ListQuizzes(%d, %d) returned %d quizzes, want %d", tc.page, tc.size, len(list), tc.want)
			}
		}
	}
}

func TestAuthorAndTakerRoundTrip(t *testing.T) {
	e, _ := newTestEngine(t, engineOpts{})
	ctx := context.Background()

	author := login(t, e, "bob", "author")
	created, err := e.CreateQuiz(ctx, author.Token, sampleDraft("arithmetic"), "")
	if err != nil {
		t.Fatalf("CreateQuiz: %v", err)
	}
	if created.OwnerID != "u-bob" || created.ID == 0 {
		t.Fatalf("unexpected quiz %+v", created)
	}

	taker := login(t, e, "alice", "")
	if _, err := e.CreateQuiz(ctx, taker.Token, sampleDraft("nope"), ""); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("taker CreateQuiz: expected ErrInvalidRole, got %v", err)
	}

	list, err := e.ListQuizzes(ctx, taker.Token, 1, 10)
	if err != nil {
		t.Fatalf("ListQuizzes: %v", err)
	}
	if len(list) != 1 || list[0].ID != created.ID {
		t.Fatalf("unexpected listing %+v", list)
	}

	got, err := e.GetQuiz(ctx, taker.Token, created.ID)
	if err != nil {
		t.Fatalf("GetQuiz: %v", err)
	}

	res, err := e.CompleteQuiz(ctx, taker.Token, created.ID, correctAnswers(got))
	if err != nil {
		t.Fatalf("CompleteQuiz: %v", err)
	}
	if res.Attempt.Score != 5 {
		t.Fatalf("expected score 5, got %d", res.Attempt.Score)
	}
	if len(res.Choices) != 2 {
		t.Fatalf("expected 2 choices, got %d", len(res.Choices))
	}
	if res.Attempt.ID == "" {
		t.Fatal("attempt id not assigned")
	}

	attempts, err := e.ListAttempts(ctx, taker.Token)
	if err != nil {
		t.Fatalf("ListAttempts: %v", err)
	}
	if len(attempts) != 1 || attempts[0].ID != res.Attempt.ID {
		t.Fatalf("unexpected attempts %+v", attempts)
	}

	if _, err := e.CompleteQuiz(ctx, taker.Token, created.ID+100, nil); !errors.Is(err, ErrQuizNotFound) {
		t.Fatalf("missing quiz: expected ErrQuizNotFound, got %v", err)
	}

	snap := e.MetricsSnapshot()
	if snap.Counters[MetricAttemptCompleted] != 1 || snap.Counters[MetricQuizWritten] != 1 {
		t.Fatalf("unexpected counters %v", snap.Counters)
	}
	var observed uint64
	for _, v := range snap.Histograms[MetricScoreLatency] {
		observed += v
	}
	if observed != 1 {
		t.Fatalf("expected one latency observation, got %d", observed)
	}
}

func TestProtectedQuiz(t *testing.T) {
	e, _ := newTestEngine(t, engineOpts{})
	ctx := context.Background()

	author := login(t, e, "bob", "author")
	created, err := e.CreateQuiz(ctx, author.Token, sampleDraft("secret"), "open-sesame")
	if err != nil {
		t.Fatalf("CreateQuiz: %v", err)
	}
	if created.PasswordHash == "open-sesame" {
		t.Fatal("quiz password stored in clear")
	}

	taker := login(t, e, "alice", "")
	answers := correctAnswers(created)
	if _, err := e.CompleteQuiz(ctx, taker.Token, created.ID, answers); !errors.Is(err, ErrQuizPasswordRequired) {
		t.Fatalf("no password: expected ErrQuizPasswordRequired, got %v", err)
	}
	if _, err := e.CompleteProtectedQuiz(ctx, taker.Token, created.ID, answers, "wrong"); !errors.Is(err, ErrQuizPasswordRequired) {
		t.Fatalf("wrong password: expected ErrQuizPasswordRequired, got %v", err)
	}
	if _, err := e.CompleteProtectedQuiz(ctx, taker.Token, created.ID, answers, "open-sesame"); err != nil {
		t.Fatalf("right password: %v", err)
	}
}

func TestManagerDeletesForeignQuiz(t *testing.T) {
	e, s := newTestEngine(t, engineOpts{})
	ctx := context.Background()

	author := login(t, e, "bob", "author")
	created, err := e.CreateQuiz(ctx, author.Token, sampleDraft("doomed"), "")
	if err != nil {
		t.Fatalf("CreateQuiz: %v", err)
	}

	manager := login(t, e, "carol", "manager")
	if err := e.DeleteQuiz(ctx, manager.Token, created.ID); err != nil {
		t.Fatalf("DeleteQuiz: %v", err)
	}
	if _, err := s.FindByID(ctx, created.ID); err == nil {
		t.Fatal("quiz still in store")
	}

	list, err := e.ListQuizzes(ctx, author.Token, 1, 10)
	if err != nil {
		t.Fatalf("author ListQuizzes: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty listing, got %+v", list)
	}
}

func TestLoginThrottleWithRedis(t *testing.T) {
	_, rdb := newTestRedis(t)
	cfg := testConfig()
	cfg.Security.MaxLoginAttempts = 2
	e, _ := newTestEngine(t, engineOpts{cfg: cfg, redis: rdb})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := e.Login(ctx, "alice", "wrong", ""); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}
	if _, err := e.Login(ctx, "alice", "wrong", ""); !errors.Is(err, ErrLoginRateLimited) {
		t.Fatalf("failure over budget: expected ErrLoginRateLimited, got %v", err)
	}
	if n, err := e.LoginAttempts(ctx, "alice"); err != nil || n != 3 {
		t.Fatalf("expected 3 recorded attempts, got %d (%v)", n, err)
	}
	if _, err := e.Login(ctx, "alice", testPassword, ""); !errors.Is(err, ErrLoginRateLimited) {
		t.Fatalf("expected ErrLoginRateLimited, got %v", err)
	}
	if e.MetricsSnapshot().Counters[MetricLoginRateLimited] != 2 {
		t.Fatal("rate limited login not counted")
	}
}

func TestLoginAttemptsWithoutRedis(t *testing.T) {
	e, _ := newTestEngine(t, engineOpts{})
	if n, err := e.LoginAttempts(context.Background(), "alice"); err != nil || n != 0 {
		t.Fatalf("expected 0 without Redis, got %d (%v)", n, err)
	}
}

func TestLoginAuditCarriesClientIP(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 8
	sink := NewChannelSink(8)
	e, _ := newTestEngine(t, engineOpts{cfg: cfg, sink: sink})

	ctx := WithClientIP(context.Background(), "198.51.100.33")
	if _, err := e.Login(ctx, "alice", testPassword, ""); err != nil {
		t.Fatalf("Login: %v", err)
	}

	ev := <-sink.Events()
	if ev.EventType != "login_success" || !ev.Success {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.IP != "198.51.100.33" || ev.UserID != "u-alice" {
		t.Fatalf("unexpected event fields %+v", ev)
	}
	if ev.Timestamp.IsZero() {
		t.Fatal("timestamp not set")
	}
}
