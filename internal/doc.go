// Package internal groups the packages private to the quizcore module.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: pure-function orchestrators for every Engine operation
//   - rate: Redis-backed login throttle primitives
//
// # What this package must NOT do
//
//   - Export types that appear in the public quizcore API.
//   - Be imported by any package outside the quizcore module.
package internal
