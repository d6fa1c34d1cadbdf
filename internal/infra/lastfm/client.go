// Package lastfm provides a client for the Last.fm album API.
package lastfm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

const defaultBaseURL = "https://ws.audioscrobbler.com/2.0/"

// errorAlbumNotFound is the Last.fm error code for an unknown album.
const errorAlbumNotFound = 6

var ErrNotFound = errors.New("album not found on last.fm")

// Client is a Last.fm API client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// Config represents Last.fm client configuration.
type Config struct {
	APIKey  string
	Timeout time.Duration
}

// Album is an album as described by Last.fm.
type Album struct {
	Name   string
	Artist string
	Tracks []AlbumTrack
}

// AlbumTrack is one track of an album.
type AlbumTrack struct {
	Rank     int
	Name     string
	Artist   string
	Duration time.Duration
}

// albumInfoResponse represents the response from album.getInfo.
type albumInfoResponse struct {
	Album struct {
		Name   string `json:"name"`
		Artist string `json:"artist"`
		Tracks struct {
			// An array, or a single object for one-track albums.
			Track json.RawMessage `json:"track"`
		} `json:"tracks"`
	} `json:"album"`
}

type albumTrack struct {
	Name     string `json:"name"`
	Duration *int   `json:"duration"` // seconds, null when unknown
	Attr     struct {
		Rank int `json:"rank"`
	} `json:"@attr"`
	Artist struct {
		Name string `json:"name"`
	} `json:"artist"`
}

// LastFMError represents an error response from Last.fm API.
type LastFMError struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
}

// New creates a new Last.fm client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("last.fm API key is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// GetAlbumInfo retrieves an album and its tracklist.
// Reference: https://www.last.fm/api/show/album.getInfo
func (c *Client) GetAlbumInfo(ctx context.Context, album, artist string) (*Album, error) {
	if album == "" || artist == "" {
		return nil, errors.New("album name and artist name are required")
	}

	params := url.Values{}
	params.Set("method", "album.getInfo")
	params.Set("api_key", c.apiKey)
	params.Set("artist", artist)
	params.Set("album", album)
	params.Set("format", "json")
	params.Set("autocorrect", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}

	// Check for Last.fm API errors
	var apiError LastFMError
	if err := json.Unmarshal(body, &apiError); err == nil && apiError.Error != 0 {
		if apiError.Error == errorAlbumNotFound {
			return nil, errors.Wrapf(ErrNotFound, "%s - %s", artist, album)
		}
		return nil, errors.Errorf("last.fm API error %d: %s", apiError.Error, apiError.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("last.fm API status %d", resp.StatusCode)
	}

	var response albumInfoResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, errors.Wrap(err, "failed to parse response")
	}

	tracks, err := decodeTracks(response.Album.Tracks.Track)
	if err != nil {
		return nil, err
	}

	result := &Album{
		Name:   response.Album.Name,
		Artist: response.Album.Artist,
		Tracks: make([]AlbumTrack, 0, len(tracks)),
	}
	for _, t := range tracks {
		at := AlbumTrack{Rank: t.Attr.Rank, Name: t.Name, Artist: t.Artist.Name}
		if t.Duration != nil {
			at.Duration = time.Duration(*t.Duration) * time.Second
		}
		result.Tracks = append(result.Tracks, at)
	}

	zlog.Debug().Msgf("lastfm: album info fetched: artist=%s album=%s tracks=%d", artist, album, len(result.Tracks))
	return result, nil
}

func decodeTracks(raw json.RawMessage) ([]albumTrack, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if raw[0] == '{' {
		var single albumTrack
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil, errors.Wrap(err, "failed to parse track")
		}
		return []albumTrack{single}, nil
	}
	var tracks []albumTrack
	if err := json.Unmarshal(raw, &tracks); err != nil {
		return nil, errors.Wrap(err, "failed to parse tracks")
	}
	return tracks, nil
}
