// Catalog helpers decoding upstream music API responses into DTOs.
package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/lunarvale/tonearm/internal/models"
	"github.com/lunarvale/tonearm/internal/shared"
)

// Playlists retrieves all playlists from the upstream catalog.
//
// Calls GET /api/playlists.
func (c *Client) Playlists(ctx context.Context) ([]models.Playlist, error) {
	resp, err := c.Get(ctx, "/api/playlists")
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var upstream []struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
		TrackCount  int    `json:"trackCount"`
		Public      bool   `json:"public"`
	}
	if err := json.Unmarshal(resp.Body, &upstream); err != nil {
		return nil, fmt.Errorf("failed to decode playlists: %w", err)
	}

	playlists := make([]models.Playlist, len(upstream))
	for i, p := range upstream {
		playlists[i] = models.Playlist{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			TrackCount:  p.TrackCount,
			Public:      p.Public,
		}
	}

	return playlists, nil
}

// PlaylistDetail retrieves a playlist with its full track listing.
//
// Calls GET /api/playlists/{id}.
func (c *Client) PlaylistDetail(ctx context.Context, playlistID string) (*models.PlaylistDetail, error) {
	if playlistID == "" {
		return nil, fmt.Errorf("%w: playlist ID", shared.ErrMissingArgument)
	}

	resp, err := c.Get(ctx, fmt.Sprintf("/api/playlists/%s", url.PathEscape(playlistID)))
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var upstream struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
		TrackCount  int    `json:"trackCount"`
		Public      bool   `json:"public"`
		Tracks      []struct {
			ID       string `json:"id"`
			Title    string `json:"title"`
			Artist   string `json:"artist"`
			Album    string `json:"album"`
			Duration int    `json:"duration"`
		} `json:"tracks"`
	}
	if err := json.Unmarshal(resp.Body, &upstream); err != nil {
		return nil, fmt.Errorf("failed to decode playlist: %w", err)
	}

	detail := &models.PlaylistDetail{
		Playlist: models.Playlist{
			ID:          upstream.ID,
			Name:        upstream.Name,
			Description: upstream.Description,
			TrackCount:  upstream.TrackCount,
			Public:      upstream.Public,
		},
		Tracks: make([]models.Track, len(upstream.Tracks)),
	}

	for i, t := range upstream.Tracks {
		detail.Tracks[i] = models.Track{
			ID:       t.ID,
			Title:    t.Title,
			Artist:   t.Artist,
			Album:    t.Album,
			Duration: t.Duration,
		}
	}

	return detail, nil
}

// SearchTracks searches the upstream catalog.
//
// Calls GET /api/search?q={query}.
func (c *Client) SearchTracks(ctx context.Context, query string) ([]models.Track, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: search query", shared.ErrMissingArgument)
	}

	resp, err := c.Get(ctx, fmt.Sprintf("/api/search?q=%s", url.QueryEscape(query)))
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var upstream []struct {
		ID       string `json:"id"`
		Title    string `json:"title"`
		Artist   string `json:"artist"`
		Album    string `json:"album"`
		Duration int    `json:"duration"`
	}
	if err := json.Unmarshal(resp.Body, &upstream); err != nil {
		return nil, fmt.Errorf("failed to decode search results: %w", err)
	}

	tracks := make([]models.Track, len(upstream))
	for i, t := range upstream {
		tracks[i] = models.Track{
			ID:       t.ID,
			Title:    t.Title,
			Artist:   t.Artist,
			Album:    t.Album,
			Duration: t.Duration,
		}
	}

	return tracks, nil
}

// checkStatus converts a non-2xx upstream response into an error with
// any detail message the upstream included.
func checkStatus(resp *Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var errResp struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(resp.Body, &errResp); err == nil {
		if errResp.Message != "" {
			return fmt.Errorf("%w: status %d: %s", shared.ErrAPIRequest, resp.StatusCode, errResp.Message)
		}
		if errResp.Detail != "" {
			return fmt.Errorf("%w: status %d: %s", shared.ErrAPIRequest, resp.StatusCode, errResp.Detail)
		}
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: status 401", shared.ErrAuthFailed)
	}
	return fmt.Errorf("%w: status %d", shared.ErrAPIRequest, resp.StatusCode)
}
