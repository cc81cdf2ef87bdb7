// Package proxy implements the authenticated HTTP client the gateway uses against the upstream music API.
//
// # Client
//
// [Client] wraps an [auth.TokenCache] (via the [TokenProvider] interface) and
// attaches "Authorization: {tokenType} {accessToken}" to every outbound request.
//
// # 401 Retry Policy
//
// When the upstream resource API answers 401, the client forces exactly one
// token refresh and retries the original request exactly once before
// surfacing the failure. The refresh is forced through the token cache, so
// concurrent 401s still produce at most one issuance request.
//
// # Rate Limiting
//
// Outbound requests are paced with a token bucket ([rate.Limiter]) so bursts
// of gateway traffic do not trip the upstream's limits.
//
// # Catalog Helpers
//
// Playlists, PlaylistDetail, and SearchTracks decode the upstream's catalog
// endpoints into the DTOs in the models package.
package proxy
