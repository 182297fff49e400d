// Package auth issues and validates the bearer tokens that guard the
// diagnostics API.
//
// Tokens are HS256 JWTs signed with the configured api.jwt_secret. Each
// carries a scope: ScopeRead allows inspection only, ScopeControl also
// allows actions such as forcing a device list refresh.
package auth
