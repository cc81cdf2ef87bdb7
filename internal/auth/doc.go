// Package auth obtains, caches, and refreshes the bearer token used to authenticate requests against the upstream music API.
//
// # Token Cache
//
// [TokenCache] holds the single current [AccessToken] for the process.
//
// A token is served from memory while it remains usable; a 30 second skew window
// is subtracted from the issuer's expiry so a token is never presented right as it lapses.
//
// # In-Flight Coalescing
//
// At most one token issuance request is outstanding at a time.
// Concurrent callers needing a refresh subscribe to the same pending fetch
// and all observe its single outcome, success or failure.
// The pending fetch itself is the shared state, not a boolean flag,
// so check-then-start never races across goroutines.
//
// The issuance request runs under its own 10 second deadline, detached from any
// individual caller's context: the result is shared, so one caller's cancellation
// must not fail the others. A waiting caller whose context is canceled stops
// waiting and receives its context error; the fetch continues for everyone else.
//
// # Error Contract
//
// All failures surface as [*TokenError] carrying an HTTP-equivalent status and a
// human-readable message:
//   - [KindConfiguration] : base URL or universal key missing (status 500, never retried)
//   - [KindUpstreamRejected] : issuance endpoint returned non-2xx (upstream's status)
//   - [KindMalformedResponse] : 2xx with an unusable payload (status 502)
//   - [KindNetworkFailure] : transport error or timeout (status 502)
//
// Failures are never cached; the next call starts a fresh fetch.
// Retry policy belongs to callers; the proxy client retries exactly once on a 401
// from the resource API after forcing a refresh.
package auth
