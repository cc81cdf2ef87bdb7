// Package models defines domain entities and persistence interfaces for the tonearm gateway.
//
// The package contains two categories of types:
//
// 1. Data Transfer Objects (DTOs): Lightweight structs representing upstream catalog data
//   - [Playlist] : Playlist metadata from the upstream music API
//   - [PlaylistDetail] : Playlist with complete track listing
//   - [Track] : Song metadata
//
// 2. Persistent Entities: Database-backed models with full lifecycle management
//   - [CachedResponse] : Upstream GET responses stored with a freshness TTL
//
// Persistent entities implement the [Model] interface providing ID generation,
// timestamps, and validation. The [Repository] interface defines standard CRUD
// operations for database access.
//
// The access token itself is deliberately absent: tokens live only in process
// memory (see the auth package) and are never persisted.
package models
