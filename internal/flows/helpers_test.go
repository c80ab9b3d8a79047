package flows

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/quizcore/account"
	"github.com/MrEthical07/quizcore/jwt"
	"github.com/MrEthical07/quizcore/permission"
	"github.com/MrEthical07/quizcore/quiz"
	"github.com/MrEthical07/quizcore/quizcache"
	"github.com/MrEthical07/quizcore/session"
	"github.com/MrEthical07/quizcore/store/memory"
)

var (
	errNotReady       = errors.New("not ready")
	errInternal       = errors.New("internal")
	errBadCredentials = errors.New("bad credentials")
	errRateLimited    = errors.New("rate limited")
	errQuizNotFound   = errors.New("quiz not found")
	errQuizPassword   = errors.New("quiz password required")
	errForbidden      = errors.New("forbidden")
)

var testErrors = Errors{
	EngineNotReady:       errNotReady,
	Internal:             errInternal,
	InvalidCredentials:   errBadCredentials,
	LoginRateLimited:     errRateLimited,
	QuizNotFound:         errQuizNotFound,
	QuizPasswordRequired: errQuizPassword,
	Forbidden:            errForbidden,
}

var testMetrics = Metrics{
	LoginSuccess: 1, LoginFailure: 2, LoginRateLimited: 3, SessionCreated: 4, SessionConflict: 5,
	Logout: 6, RoleUp: 7, RoleDown: 8, RoleDenied: 9, AttemptCompleted: 10, AttemptRejected: 11,
	ScoreLatency: 12, QuizCacheHit: 13, QuizCacheMiss: 14, QuizWritten: 15,
}

var testEvents = Events{
	LoginSuccess: "login_success", LoginFailure: "login_failure", LoginRateLimited: "login_rate_limited",
	SessionConflict: "session_conflict", Logout: "logout", RoleUp: "role_up", RoleDown: "role_down",
	AttemptCompleted: "attempt_completed", QuizCreated: "quiz_created", QuizUpdated: "quiz_updated",
	QuizDeleted: "quiz_deleted",
}

type plainHasher struct{}

func (plainHasher) Hash(pw string) (string, error) { return "plain$" + pw, nil }

func (plainHasher) Verify(pw, encoded string) (bool, error) { return encoded == "plain$"+pw, nil }

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recorder struct {
	mu       sync.Mutex
	counters map[int]int
	events   []string
	warnings []string
}

func (r *recorder) inc(id int) {
	r.mu.Lock()
	r.counters[id]++
	r.mu.Unlock()
}

func (r *recorder) count(id int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[id]
}

func (r *recorder) audit(_ context.Context, event string, success bool, userID string, _ error, _ func() map[string]string) {
	r.mu.Lock()
	r.events = append(r.events, fmt.Sprintf("%s:%v:%s", event, success, userID))
	r.mu.Unlock()
}

func (r *recorder) warn(msg string, _ ...any) {
	r.mu.Lock()
	r.warnings = append(r.warnings, msg)
	r.mu.Unlock()
}

func (r *recorder) hasEvent(want string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == want {
			return true
		}
	}
	return false
}

type fixture struct {
	clock    *testClock
	tokens   *jwt.Manager
	registry *session.MemoryRegistry
	cache    *quizcache.Cache
	store    *memory.Store
	rec      *recorder
	deps     Deps
	nextID   int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &testClock{now: time.Now()}
	tokens, err := jwt.NewManager(jwt.Config{
		PrivateKey: []byte("flows-test-secret-0123456789abcdef"),
		Roles:      permission.Roles(),
		Now:        clock.Now,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	st := memory.New()
	f := &fixture{
		clock:    clock,
		tokens:   tokens,
		registry: session.NewMemoryRegistry(tokens),
		cache:    quizcache.New(st),
		store:    st,
		rec:      &recorder{counters: map[int]int{}},
	}

	users := []account.User{
		{ID: "u-taker", Identifier: "taker@example.com", Entitlements: permission.NewMask64(permission.EntitlementTake)},
		{ID: "u-author", Identifier: "author@example.com", Entitlements: permission.NewMask64(permission.EntitlementTake, permission.EntitlementAuthor)},
		{ID: "u-author2", Identifier: "author2@example.com", Entitlements: permission.NewMask64(permission.EntitlementTake, permission.EntitlementAuthor)},
		{ID: "u-boss", Identifier: "boss@example.com", Entitlements: permission.NewMask64(permission.EntitlementTake, permission.EntitlementAuthor, permission.EntitlementManage)},
		{ID: "u-ghost", Identifier: "ghost@example.com"},
	}
	for _, u := range users {
		u.PasswordHash = "plain$secret"
		if err := st.PutUser(context.Background(), u); err != nil {
			t.Fatalf("PutUser: %v", err)
		}
	}

	obs := Observer{
		MetricInc: f.rec.inc,
		EmitAudit: f.rec.audit,
		Warn:      f.rec.warn,
		Now:       clock.Now,
	}
	f.deps = Deps{
		Login: LoginDeps{
			Observer: obs, Provider: st, Hasher: plainHasher{}, Tokens: tokens, Registry: f.registry, Cache: f.cache,
			Metrics: testMetrics, Events: testEvents, Errors: testErrors,
		},
		Session: SessionDeps{
			Observer: obs, Tokens: tokens, Registry: f.registry, Cache: f.cache,
			Metrics: testMetrics, Events: testEvents, Errors: testErrors,
		},
		Role: RoleTransitionDeps{
			Observer: obs, Tokens: tokens, Gate: permission.NewGate(tokens), Registry: f.registry, Cache: f.cache,
			Metrics: testMetrics, Events: testEvents, Errors: testErrors,
		},
		Attempt: AttemptDeps{
			Observer: obs, Tokens: tokens, Registry: f.registry, Cache: f.cache, Store: st, Hasher: plainHasher{},
			NewID: func() string {
				f.nextID++
				return fmt.Sprintf("att-%d", f.nextID)
			},
			Metrics: testMetrics, Events: testEvents, Errors: testErrors,
		},
		Quiz: QuizDeps{
			Observer: obs, Tokens: tokens, Registry: f.registry, Cache: f.cache, Store: st, Hasher: plainHasher{},
			Metrics: testMetrics, Events: testEvents, Errors: testErrors,
		},
	}
	return f
}

func (f *fixture) service() Service {
	return New(f.deps)
}

func (f *fixture) login(t *testing.T, identifier, role string) string {
	t.Helper()
	res, err := f.service().Login(context.Background(), identifier, "secret", role)
	if err != nil {
		t.Fatalf("Login(%s, %q): %v", identifier, role, err)
	}
	return res.Token
}

// seedQuiz stores a two-question quiz owned by ownerID.
func (f *fixture) seedQuiz(t *testing.T, ownerID, password string) quiz.Snapshot {
	t.Helper()
	s := quiz.Snapshot{
		OwnerID: ownerID,
		Title:   "capitals",
		Questions: []quiz.Question{
			{Text: "France?", CorrectPoints: 2, IncorrectPoints: -1, Answers: []quiz.Answer{
				{Text: "Paris", IsCorrect: true}, {Text: "Lyon"},
			}},
			{Text: "Italy?", CorrectPoints: 3, IncorrectPoints: 0, Answers: []quiz.Answer{
				{Text: "Rome", IsCorrect: true}, {Text: "Milan"},
			}},
		},
	}
	if password != "" {
		s.PasswordHash = "plain$" + password
	}
	stored, err := f.store.Insert(context.Background(), s)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	return stored
}
