// Package jwt issues and validates the signed identity/role tokens used by quizcore.
//
// A token carries the role in the subject claim, the user id in the "id" claim, and
// issued-at/expiry times. Validation failures are reported as exactly one of
// [ErrTokenExpired] or [ErrTokenInvalid] so callers can force a logout on the first and
// reject the second as forged or corrupt.
package jwt
