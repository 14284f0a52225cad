// Package server provides HTTP routing, middleware, and OAuth handling for the CLI login and the feed web service.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
// Available middleware: [RequestLogger], [CORS] and [Recover].
//
// # OAuth Callback Handler
//
// [OAuthHandler] serves the single callback of `auth login`. It validates the state parameter,
// exchanges the authorization code and sends the credential through a channel.
// It only processes one callback to prevent replay attacks.
//
// # Feed API
//
// [API] backs `subfeed serve`:
//   - GET / and /login redirect to Google with a state from the [StateStore]
//   - GET /auth/callback exchanges the code and redirects to the frontend (or returns JSON)
//   - GET /subscriptions and /subscriptions/videos take a bearer token plus optional refresh_token and expires_in headers
//   - GET /search/{query} and /videos/{query} answer single-call lookups
//   - GET /healthz
//
// Errors are mapped to status codes by [StatusFor].
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
