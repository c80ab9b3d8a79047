// Package quizcore is the session and authorization core of a quiz platform: signed
// role tokens, a single live session per user, a role ladder (taker, author, manager),
// a per-user quiz cache and attempt scoring.
//
// Engine methods are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// quizcore is the public surface. It exposes [Engine], [Builder], [Config] and value
// types (LoginResult, RoleChange, QuizSnapshot, MetricsSnapshot). Flow orchestration, the
// login throttle and audit dispatch live under internal/ and are never exported. Token
// signing lives in jwt, session storage in session, the role ladder in permission and
// durable storage behind store.
//
// # What this package must NOT do
//
//   - Expose Redis clients or session encoding details in its public API.
//   - Perform I/O outside of Engine methods (construction via Builder performs none).
//   - Import any sub-package that re-imports quizcore (no import cycles).
//
// # Consistency contract
//
// A user holds at most one live session. Role transitions swap that session for a new
// one and are not atomic: a failure halfway leaves the user logged out, never holding
// two sessions. Cached quiz snapshots are reattached to the store before they are
// returned, so a quiz deleted behind the cache surfaces as ErrQuizNotFound.
package quizcore
