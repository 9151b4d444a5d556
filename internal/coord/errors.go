package coord

import "errors"

// Sentinel errors for request classification. Callers match with errors.Is
// and decide between surfacing the failure and falling back to cached data.
var (
	// ErrInvalidInput marks malformed caller-supplied coordinates or names.
	// Never retried, never falls back to cache.
	ErrInvalidInput = errors.New("invalid input")

	// ErrRateLimited covers both the local sliding-window limiter and an
	// upstream 429. Surfaced with a try-later message, never auto-retried.
	ErrRateLimited = errors.New("rate limited")

	// ErrAuth marks a 401: invalid or not-yet-activated API key. Fatal for
	// the session.
	ErrAuth = errors.New("invalid API key")

	// ErrUpstream covers transport failures and non-2xx statuses outside the
	// dedicated classes, with status and message attached best-effort.
	ErrUpstream = errors.New("upstream failure")

	// ErrInvalidResponse marks a 2xx body that failed kind-specific schema
	// validation. The response is discarded and never cached.
	ErrInvalidResponse = errors.New("invalid response")

	// ErrNotFound means geocoding yielded no usable match.
	ErrNotFound = errors.New("location not found")

	// ErrCancelled marks an in-flight request aborted via CancelAll or a
	// cancelled caller context. Dropped silently, never shown as an error.
	ErrCancelled = errors.New("request cancelled")
)
