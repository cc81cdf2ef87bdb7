package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lunarvale/tonearm/internal/models"
	"github.com/lunarvale/tonearm/internal/shared"
)

// ResponseRepository implements [models.Repository] for [models.CachedResponse] persistence.
type ResponseRepository struct {
	db *sql.DB
}

// NewResponseRepository creates a new [ResponseRepository] with the given database connection
func NewResponseRepository(db *sql.DB) *ResponseRepository {
	return &ResponseRepository{db: db}
}

// Create inserts a new cached response with a generated ID.
func (r *ResponseRepository) Create(response *models.CachedResponse) error {
	if err := response.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	id := shared.GenerateID()
	response.SetID(id)

	query := `
		INSERT INTO responses (id, cache_key, status_code, content_type, body, fetched_at, ttl_seconds, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query, id, response.CacheKey(), response.StatusCode(), response.ContentType(),
		response.Body(), response.FetchedAt(), response.TTLSeconds(), response.CreatedAt(), response.UpdatedAt())
	if err != nil {
		return fmt.Errorf("failed to insert cached response: %w", err)
	}

	return nil
}

// Get retrieves a cached response by ID.
func (r *ResponseRepository) Get(id string) (*models.CachedResponse, error) {
	query := `
		SELECT id, cache_key, status_code, content_type, body, fetched_at, ttl_seconds, created_at, updated_at
		FROM responses
		WHERE id = ?
	`
	return r.scanOne(r.db.QueryRow(query, id))
}

// GetByKey retrieves a cached response by its request key (method + path).
func (r *ResponseRepository) GetByKey(cacheKey string) (*models.CachedResponse, error) {
	query := `
		SELECT id, cache_key, status_code, content_type, body, fetched_at, ttl_seconds, created_at, updated_at
		FROM responses
		WHERE cache_key = ?
	`
	return r.scanOne(r.db.QueryRow(query, cacheKey))
}

// Update replaces the stored body and freshness metadata for an existing entry.
func (r *ResponseRepository) Update(response *models.CachedResponse) error {
	if err := response.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	response.SetUpdatedAt(now)

	query := `
		UPDATE responses
		SET status_code = ?, content_type = ?, body = ?, fetched_at = ?, ttl_seconds = ?, updated_at = ?
		WHERE cache_key = ?
	`

	result, err := r.db.Exec(query, response.StatusCode(), response.ContentType(), response.Body(),
		response.FetchedAt(), response.TTLSeconds(), now, response.CacheKey())
	if err != nil {
		return fmt.Errorf("failed to update cached response: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrCacheMiss, response.CacheKey())
	}

	return nil
}

// Put stores a cached response, replacing any existing entry for the same key.
func (r *ResponseRepository) Put(response *models.CachedResponse) error {
	existing, err := r.GetByKey(response.CacheKey())
	if err == nil && existing != nil {
		response.SetID(existing.ID())
		return r.Update(response)
	}
	return r.Create(response)
}

// Delete removes a cached response by ID.
func (r *ResponseRepository) Delete(id string) error {
	result, err := r.db.Exec("DELETE FROM responses WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete cached response: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrCacheMiss, id)
	}

	return nil
}

// List retrieves cached responses matching the given criteria.
// Supported criteria: "cache_key" (exact match).
func (r *ResponseRepository) List(criteria map[string]any) ([]*models.CachedResponse, error) {
	query := `
		SELECT id, cache_key, status_code, content_type, body, fetched_at, ttl_seconds, created_at, updated_at
		FROM responses
	`
	var args []any

	if key, ok := criteria["cache_key"]; ok {
		query += " WHERE cache_key = ?"
		args = append(args, key)
	}

	query += " ORDER BY fetched_at DESC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cached responses: %w", err)
	}
	defer rows.Close()

	var responses []*models.CachedResponse
	for rows.Next() {
		response, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		responses = append(responses, response)
	}

	return responses, rows.Err()
}

// DeleteExpired removes all entries whose TTL has elapsed at the given instant.
// Returns the number of entries removed.
func (r *ResponseRepository) DeleteExpired(now time.Time) (int64, error) {
	query := `
		DELETE FROM responses
		WHERE datetime(fetched_at, '+' || ttl_seconds || ' seconds') <= datetime(?)
	`
	result, err := r.db.Exec(query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired responses: %w", err)
	}
	return result.RowsAffected()
}

// Purge removes all cached responses. Returns the number of entries removed.
func (r *ResponseRepository) Purge() (int64, error) {
	result, err := r.db.Exec("DELETE FROM responses")
	if err != nil {
		return 0, fmt.Errorf("failed to purge responses: %w", err)
	}
	return result.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *ResponseRepository) scanOne(row *sql.Row) (*models.CachedResponse, error) {
	response, err := r.scan(row)
	if err == sql.ErrNoRows {
		return nil, shared.ErrCacheMiss
	}
	return response, err
}

func (r *ResponseRepository) scan(row scanner) (*models.CachedResponse, error) {
	var (
		id          string
		cacheKey    string
		statusCode  int
		contentType string
		body        []byte
		fetchedAt   time.Time
		ttlSeconds  int
		createdAt   time.Time
		updatedAt   time.Time
	)

	if err := row.Scan(&id, &cacheKey, &statusCode, &contentType, &body, &fetchedAt, &ttlSeconds, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan cached response: %w", err)
	}

	response := models.NewCachedResponse(cacheKey, statusCode, contentType, body, fetchedAt, ttlSeconds)
	response.SetID(id)
	response.SetCreatedAt(createdAt)
	response.SetUpdatedAt(updatedAt)

	return response, nil
}
