// Package spotify provides a client for the Spotify catalog API.
package spotify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"
)

// catalogAPI is the subset of the Spotify SDK used by Client.
type catalogAPI interface {
	Search(ctx context.Context, query string, t spotify.SearchType, opts ...spotify.RequestOption) (*spotify.SearchResult, error)
	GetAlbumTracks(ctx context.Context, id spotify.ID, opts ...spotify.RequestOption) (*spotify.SimpleTrackPage, error)
}

// Client is a Spotify API client.
type Client struct {
	client     catalogAPI
	market     string
	maxRetries int
	retryDelay time.Duration
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	Market       string
}

// Album is an album found in the Spotify catalog.
type Album struct {
	ID      string
	Name    string
	Artists []string
	Tracks  []AlbumTrack
}

// AlbumTrack is one track of an album.
type AlbumTrack struct {
	Name     string
	Artists  []string
	Duration time.Duration
}

// New creates a new Spotify client authenticated with the client-credentials flow.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("spotify credentials are required")
	}

	creds := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}

	// HTTP client with automatic token refresh
	httpClient := creds.Client(ctx)

	market := cfg.Market
	if market == "" {
		market = "US"
	}

	return &Client{
		client:     spotify.New(httpClient),
		market:     market,
		maxRetries: 3,
		retryDelay: time.Second,
	}, nil
}

// FindAlbum searches for an album by title and artist and returns it with its tracks.
// Returns nil if no album matches.
func (c *Client) FindAlbum(ctx context.Context, album, artist string, limit int) (*Album, error) {
	query := buildAlbumQuery(album, artist)
	if query == "" {
		return nil, errors.New("album title is required")
	}

	if limit <= 0 {
		limit = 5
	}
	if limit > 50 {
		limit = 50
	}

	var result *spotify.SearchResult
	err := c.retry(func() error {
		r, err := c.client.Search(ctx, query, spotify.SearchTypeAlbum,
			spotify.Limit(limit),
			spotify.Market(c.market),
		)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to search")
	}

	if result.Albums == nil || len(result.Albums.Albums) == 0 {
		return nil, nil
	}

	best := pickAlbum(result.Albums.Albums, album)
	tracks, err := c.GetAlbumTracks(ctx, string(best.ID))
	if err != nil {
		return nil, err
	}

	return &Album{
		ID:      string(best.ID),
		Name:    best.Name,
		Artists: artistNames(best.Artists),
		Tracks:  tracks,
	}, nil
}

// GetAlbumTracks retrieves the tracks of an album by ID, URL, or URI.
func (c *Client) GetAlbumTracks(ctx context.Context, albumID string) ([]AlbumTrack, error) {
	id := extractAlbumID(albumID)
	if id == "" {
		return nil, errors.New("invalid album ID")
	}

	var tracks []AlbumTrack
	offset := 0
	limit := 50

	for {
		var page *spotify.SimpleTrackPage
		err := c.retry(func() error {
			p, err := c.client.GetAlbumTracks(ctx, spotify.ID(id),
				spotify.Limit(limit),
				spotify.Offset(offset),
				spotify.Market(c.market),
			)
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to get album tracks")
		}

		for _, t := range page.Tracks {
			tracks = append(tracks, AlbumTrack{
				Name:     t.Name,
				Artists:  artistNames(t.Artists),
				Duration: time.Duration(t.Duration) * time.Millisecond,
			})
		}

		if len(page.Tracks) < limit {
			break
		}
		offset += limit
	}

	return tracks, nil
}

// GetAlbumURL returns the Spotify URL for an album.
func (c *Client) GetAlbumURL(albumID string) string {
	return fmt.Sprintf("https://open.spotify.com/album/%s", albumID)
}

// pickAlbum prefers an exact (case-insensitive) title match, else the first result.
func pickAlbum(albums []spotify.SimpleAlbum, title string) spotify.SimpleAlbum {
	for _, a := range albums {
		if strings.EqualFold(strings.TrimSpace(a.Name), strings.TrimSpace(title)) {
			return a
		}
	}
	return albums[0]
}

func artistNames(artists []spotify.SimpleArtist) []string {
	names := make([]string, len(artists))
	for i, a := range artists {
		names[i] = a.Name
	}
	return names
}

// buildAlbumQuery builds a field-filtered search query.
func buildAlbumQuery(album, artist string) string {
	album = strings.TrimSpace(album)
	if album == "" {
		return ""
	}
	query := fmt.Sprintf("album:%q", album)
	if artist = strings.TrimSpace(artist); artist != "" {
		query += fmt.Sprintf(" artist:%q", artist)
	}
	return query
}

// retry retries an operation with exponential backoff.
func (c *Client) retry(fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			time.Sleep(c.retryDelay * time.Duration(i+1))
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	// Rate limit errors and server errors are retryable
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}

// extractAlbumID extracts the album ID from a Spotify album URL or URI.
func extractAlbumID(input string) string {
	input = strings.TrimSpace(input)
	// Handle Spotify URI format: spotify:album:ALBUM_ID
	if strings.HasPrefix(input, "spotify:album:") {
		return strings.TrimPrefix(input, "spotify:album:")
	}

	// Handle URL format: https://open.spotify.com/album/ALBUM_ID or https://open.spotify.com/intl-XX/album/ALBUM_ID
	if strings.Contains(input, "open.spotify.com") && strings.Contains(input, "/album/") {
		parts := strings.Split(input, "/album/")
		if len(parts) >= 2 {
			// Remove query parameters and trailing slashes
			id := strings.Split(parts[len(parts)-1], "?")[0]
			id = strings.TrimRight(id, "/")
			return id
		}
	}

	// Assume it's already an album ID
	return input
}
