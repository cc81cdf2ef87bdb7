// package models defines the data model for the tonearm gateway
package models

import (
	"fmt"
	"time"
)

// Model defines the base interface for all persistent models in the gateway.
type Model interface {
	ID() string           // ID returns the unique identifier for this model
	CreatedAt() time.Time // CreatedAt returns when this model was created
	UpdatedAt() time.Time // UpdatedAt returns when this model was last updated
	Validate() error      // Validate checks if the model's data is valid and returns an error if not
}

// Repository defines the interface for data access operations.
// Implementations handle database interactions for specific model types.
type Repository[T Model] interface {
	Create(model T) error                      // Create inserts a new model into the database
	Get(id string) (T, error)                  // Get retrieves a model by its ID
	Update(model T) error                      // Update modifies an existing model in the database
	Delete(id string) error                    // Delete removes a model from the database by its ID
	List(criteria map[string]any) ([]T, error) // List retrieves all models matching the given criteria
}

// Playlist represents a playlist from the upstream music API.
type Playlist struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	TrackCount  int    `json:"trackCount"`
	Public      bool   `json:"public"`
}

// Track represents a song from the upstream music API.
type Track struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Album    string `json:"album"`
	Duration int    `json:"duration"` // Duration in seconds
}

// PlaylistDetail represents a playlist with its full track listing.
type PlaylistDetail struct {
	Playlist Playlist `json:"playlist"`
	Tracks   []Track  `json:"tracks"`
}

// CachedResponse is an upstream GET response stored by the gateway and
// served while it remains fresh.
type CachedResponse struct {
	id          string
	cacheKey    string
	statusCode  int
	contentType string
	body        []byte
	fetchedAt   time.Time
	ttlSeconds  int
	createdAt   time.Time
	updatedAt   time.Time
}

// NewCachedResponse creates a CachedResponse for the given request key.
func NewCachedResponse(cacheKey string, statusCode int, contentType string, body []byte, fetchedAt time.Time, ttlSeconds int) *CachedResponse {
	now := time.Now()
	if contentType == "" {
		contentType = "application/json"
	}
	return &CachedResponse{
		cacheKey:    cacheKey,
		statusCode:  statusCode,
		contentType: contentType,
		body:        body,
		fetchedAt:   fetchedAt,
		ttlSeconds:  ttlSeconds,
		createdAt:   now,
		updatedAt:   now,
	}
}

// ResponseKey builds the cache key for a request.
func ResponseKey(method, path string) string {
	return method + " " + path
}

func (c *CachedResponse) ID() string           { return c.id }
func (c *CachedResponse) CacheKey() string     { return c.cacheKey }
func (c *CachedResponse) StatusCode() int      { return c.statusCode }
func (c *CachedResponse) ContentType() string  { return c.contentType }
func (c *CachedResponse) Body() []byte         { return c.body }
func (c *CachedResponse) FetchedAt() time.Time { return c.fetchedAt }
func (c *CachedResponse) TTLSeconds() int      { return c.ttlSeconds }
func (c *CachedResponse) CreatedAt() time.Time { return c.createdAt }
func (c *CachedResponse) UpdatedAt() time.Time { return c.updatedAt }

func (c *CachedResponse) SetID(id string)          { c.id = id }
func (c *CachedResponse) SetCreatedAt(t time.Time) { c.createdAt = t }
func (c *CachedResponse) SetUpdatedAt(t time.Time) { c.updatedAt = t }
func (c *CachedResponse) SetFetchedAt(t time.Time) { c.fetchedAt = t }

// Fresh reports whether the cached response is still within its TTL.
func (c *CachedResponse) Fresh(now time.Time) bool {
	return now.Before(c.fetchedAt.Add(time.Duration(c.ttlSeconds) * time.Second))
}

// Validate checks the cached response's data.
func (c *CachedResponse) Validate() error {
	if c.cacheKey == "" {
		return fmt.Errorf("cache key is required")
	}
	if c.statusCode < 100 || c.statusCode > 599 {
		return fmt.Errorf("invalid status code: %d", c.statusCode)
	}
	if c.ttlSeconds <= 0 {
		return fmt.Errorf("ttl must be positive: %d", c.ttlSeconds)
	}
	return nil
}
