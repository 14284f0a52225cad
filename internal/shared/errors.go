package shared

import "fmt"

var (
	// Configuration errors
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrUnauthorized     = fmt.Errorf("unauthorized")
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrRefreshFailed    = fmt.Errorf("token refresh failed")
	ErrInvalidState     = fmt.Errorf("invalid oauth state")

	// Upstream API errors
	ErrRateLimited    = fmt.Errorf("rate limited after retry")
	ErrUpstream       = fmt.Errorf("upstream API error")
	ErrTransport      = fmt.Errorf("transport error")
	ErrMalformedEntry = fmt.Errorf("malformed entry")
	ErrPagination     = fmt.Errorf("pagination token repeated")
	ErrNotFound       = fmt.Errorf("not found")

	// Input validation errors
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
