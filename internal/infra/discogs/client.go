// Package discogs provides a client for the Discogs database API.
package discogs

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// ErrNotFound is returned when the release does not exist.
var ErrNotFound = errors.New("release not found")

// DefaultRequestsPerMinute matches the authenticated Discogs rate limit.
const DefaultRequestsPerMinute = 60

// Client is a Discogs API client.
type Client struct {
	token      string
	userAgent  string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Config represents Discogs client configuration.
type Config struct {
	Token             string
	UserAgent         string
	RequestsPerMinute int
	Timeout           time.Duration
}

// Release represents a Discogs release.
type Release struct {
	ID        int
	Title     string
	Artists   []string
	Tracklist []Track
}

// Track represents one playable entry of a release tracklist.
type Track struct {
	Position     string
	Title        string
	Duration     time.Duration // 0 if unknown
	Artists      []string
	ExtraArtists []string
}

// releaseResponse represents the response from the /releases/{id} API.
type releaseResponse struct {
	ID        int          `json:"id"`
	Title     string       `json:"title"`
	Artists   []artistJSON `json:"artists"`
	Tracklist []struct {
		Position     string       `json:"position"`
		Type         string       `json:"type_"`
		Title        string       `json:"title"`
		Duration     string       `json:"duration"`
		Artists      []artistJSON `json:"artists"`
		ExtraArtists []artistJSON `json:"extraartists"`
	} `json:"tracklist"`
}

type artistJSON struct {
	Name string `json:"name"`
	ANV  string `json:"anv"`
	Role string `json:"role"`
}

// DiscogsError represents an error response from the Discogs API.
type DiscogsError struct {
	Message string `json:"message"`
}

// New creates a new Discogs client.
func New(cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, errors.New("discogs token is required")
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "crate/1.0"
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = DefaultRequestsPerMinute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &Client{
		token:      cfg.Token,
		userAgent:  cfg.UserAgent,
		baseURL:    "https://api.discogs.com",
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1),
	}, nil
}

// GetRelease retrieves a release by ID.
// Reference: https://www.discogs.com/developers#page:database,header:database-release
func (c *Client) GetRelease(ctx context.Context, releaseID string) (*Release, error) {
	releaseID = strings.TrimSpace(releaseID)
	if releaseID == "" {
		return nil, errors.New("release ID is required")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "rate limiter wait failed")
	}

	reqURL := c.baseURL + "/releases/" + url.PathEscape(releaseID)

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Authorization", "Discogs token="+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.Wrapf(ErrNotFound, "release=%s", releaseID)
	}

	// Check for Discogs API errors
	if resp.StatusCode != http.StatusOK {
		var apiError DiscogsError
		if err := json.Unmarshal(body, &apiError); err == nil && apiError.Message != "" {
			return nil, errors.Errorf("discogs API error %d: %s", resp.StatusCode, apiError.Message)
		}
		return nil, errors.Errorf("discogs API error %d", resp.StatusCode)
	}

	// Parse successful response
	var response releaseResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, errors.Wrap(err, "failed to parse response")
	}

	release := &Release{
		ID:      response.ID,
		Title:   response.Title,
		Artists: names(response.Artists),
	}
	for _, t := range response.Tracklist {
		// Headings and index tracks are not playable entries
		if t.Type != "" && t.Type != "track" {
			continue
		}
		release.Tracklist = append(release.Tracklist, Track{
			Position:     t.Position,
			Title:        t.Title,
			Duration:     ParseDuration(t.Duration),
			Artists:      names(t.Artists),
			ExtraArtists: names(t.ExtraArtists),
		})
	}

	zlog.Debug().Msgf("discogs: release fetched: id=%s tracks=%d", releaseID, len(release.Tracklist))
	return release, nil
}

// ParseDuration parses a Discogs duration ("m:ss" or "h:mm:ss").
// Returns 0 for empty or malformed input.
func ParseDuration(s string) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	var total time.Duration
	for _, part := range strings.Split(s, ":") {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return 0
		}
		total = total*60 + time.Duration(n)
	}
	return total * time.Second
}

// names returns the credited names, preferring the artist name variation.
func names(artists []artistJSON) []string {
	out := make([]string, 0, len(artists))
	for _, a := range artists {
		name := a.Name
		if a.ANV != "" {
			name = a.ANV
		}
		out = append(out, name)
	}
	return out
}
