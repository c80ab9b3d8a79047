// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunLogin, RunRoleTransition, RunCompleteQuiz, etc.) accepts a
// typed dependency struct and returns results without side-effects beyond those
// dependencies. The Engine builds the structs once and stays thin.
//
// # Architecture boundaries
//
// Flow functions coordinate the token service, session registry, quiz cache, durable
// store, credential hasher, login limiter, audit and metrics. They do NOT own any of
// these resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import quizcore (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency interfaces.
//   - Retry a failed registry or cache call.
package flows
