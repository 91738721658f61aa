// Package users provides site scoped accounts, expiring API tokens and
// profiles on top of Bun.
//
// Tokens:
//   - Every user owns at most one ExpiringToken. TokenIssuer mints keys,
//     extends them on use and rotates them on force login or refresh.
//     Staff tokens never expire.
//   - ProtectedRoute authenticates "Authorization: <scheme> <key>" headers
//     and stores the user in the request context (see FromContext).
//
// Sites:
//   - Users belong to the site resolved from the request host. Emails are
//     unique per site, so the same address may register on several sites.
//
// Activity sinks:
//   - ActivitySink receives login, logout, rotation and account events.
//     Sinks run best effort: failures are logged and never fail the request.
package users
