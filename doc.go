// Package identity implements the identity and credential lifecycle for the
// irrigation-district management platform: password hashing, signed session
// tokens, logout revocation, password resets, and the pre-registration /
// activation flow for accounts seeded by bulk import.
//
// Account lifecycle:
//   - Accounts carry an AccountStatus field that is persisted via Bun.
//     Bulk-imported accounts start unprovisioned, move to pending-activation
//     once the holder picks an email and password, and become active when the
//     activation token is consumed. An orthogonal Enabled flag lets admins
//     block login without touching lifecycle state.
//   - AccountStateMachine centralizes the transition graph and persistence.
//     The pre-registration flow drives it; admins can also toggle Enabled
//     directly through the repository.
//
// Tokens:
//   - Session tokens are self-contained HS256 JWTs validated by TokenService;
//     only revocation (logout) needs a store lookup.
//   - Reset, pre-register, and activation tokens are opaque random strings
//     persisted with an expiry. Reset tokens are single-use via deletion;
//     pre-register and activation tokens via a used flag, so the audit trail
//     survives consumption.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by Auther and the
//     pre-registration flow. Sinks run best-effort (errors are logged) so you
//     can forward to a database or queue without blocking authentication.
package identity
