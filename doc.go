// Package auth is the authentication core of the chassis: registration
// with email verification, login with a per user cap on concurrent
// sessions, JWT access and refresh tokens bound to server side sessions,
// and the account lifecycle of users with roles and modules.
//
// Sessions:
//   - SessionRegistry indexes live sessions by id and by principal name.
//     MemorySessionRegistry is the in process implementation, the
//     repository package provides SQL and redis backed ones.
//   - Every token carries the id of the session it was minted for. The
//     request filter only honors a token while that session is alive, so
//     logout and refresh revoke tokens before they expire.
//
// Account lifecycle:
//   - AccountStatus is derived from the enabled, banned and verification
//     token columns. AccountStateMachine owns the transition graph and the
//     timestamps, CredentialVerifier bans accounts after repeated failures.
//
// Errors:
//   - Orchestrator errors carry a Kind and a text code. The HTTP error
//     handler renders them as problem details localized through the i18n
//     bundles.
package auth
