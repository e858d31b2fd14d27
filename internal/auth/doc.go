// Package auth validates the token a WebSocket client presents with the
// AUTH command.
//
// Three validators implement Validator:
//   - SocketExchange hands the token to a local identity helper over a unix
//     socket and returns the token info and user profile it answers with
//   - JWTValidator checks an HS256 token signed with a shared secret
//   - CachingValidator memoises another validator for a bounded time, so a
//     client reconnecting with the same token does not repeat the exchange
//
// A successful validation yields an Identity whose Profile is passed back to
// the client verbatim.
package auth
