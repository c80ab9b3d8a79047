// Package permission provides the entitlement bitmask carried by every user, the ordered
// role ladder (taker, author, manager) and the access-control gate that checks a token's
// role against a required role.
//
// # Architecture boundaries
//
// This package is pure and holds no mutable state beyond what callers inject. The gate
// derives roles through a [TokenService]; it never parses tokens itself.
//
// # What this package must NOT do
//
//   - Access Redis, databases, or the network.
//   - Import quizcore, session, or quizcache.
//   - Decide session liveness; that belongs to the session registry.
package permission
