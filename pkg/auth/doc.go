// Package auth provides pluggable authentication for the turnstile gateway.
//
// Authentication uses a chain-of-responsibility pattern with three-outcome
// voting: each authenticator returns Yes (identity found), No (credentials
// invalid), or Abstain (can't handle). A configurable default voter decides
// when all authenticators abstain.
//
// Auth is implemented as HTTP middleware, keeping it decoupled from turn
// processing. The middleware injects the caller's subject into the request
// context; quota accounting and turn persistence key off that subject.
package auth
