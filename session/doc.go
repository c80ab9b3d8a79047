// Package session is the session registry: the live (token, user) pairings, with at most
// one live token per user.
//
// Two implementations satisfy [Registry]. [MemoryRegistry] keeps both directions in
// sync.Maps and claims a user with an atomic insert-if-absent on the user index, so
// unrelated users never contend on a shared lock. [RedisRegistry] gives the same contract
// across processes by running insert-if-absent and compare-and-delete as Lua scripts.
//
// # Architecture boundaries
//
// Token validity is delegated to a [TokenValidator]; the registry never parses tokens.
// Registry operations return typed errors directly. Only Add retries, and only to evict
// a stale entry left by an expired token.
//
// # What this package must NOT do
//
//   - Import quizcore, quizcache, or internal/flows.
//   - Keep an entry whose token has been observed expired or invalid.
package session
