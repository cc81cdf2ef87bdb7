// Package repositories implements SQLite persistence for the gateway's domain entities.
//
// [ResponseRepository] stores upstream GET responses keyed by method and
// path, giving the gateway a short-lived local copy to serve while the
// entry's TTL has not elapsed. Entries are replaced wholesale on refresh
// and hard-deleted on eviction; the cache holds nothing authoritative.
//
// The access token is never written here; it lives only in process
// memory (see the auth package).
package repositories
