// Package rate throttles failed logins with Redis counters.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Keys live under the
// configured prefix:
//   - <prefix>:l:<identifier>  failed logins per identifier
//   - <prefix>:li:<ip>         failed logins per client IP
//
// Identifiers are hashed before they become key material.
package rate
