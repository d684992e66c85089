// Package microsoft holds what the Teams connectors share: endpoint
// configuration, the HTTP client, request headers, status code mapping and
// per-service rate limiting.
//
// The connectors live in subpackages:
//   - teams: external user search on teams.microsoft.com (organisational accounts)
//   - live: user search on teams.live.com (personal accounts)
//   - presence: presence and out-of-office lookup by MRI
//
// # Status codes
//
// WrapError maps HTTP status codes onto the domain error taxonomy. A 401 is
// domain.ErrAuthExpired and is the only status that triggers a token refresh.
// Unmapped codes are wrapped in a StatusError so callers can still read them.
//
// # Rate Limits
//
// The Teams search endpoints throttle aggressively and answer 429 with a
// Retry-After header. RateLimiter honours that header before the next request.
package microsoft
