// Package content provides a client for the storefront content source: it
// supplies product records and persists enriched tracklists.
package content

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/crate/internal/domain/product"
	"github.com/osa030/crate/internal/domain/track"
)

// Errors
var (
	ErrNotFound        = errors.New("product not found")
	ErrPersistRejected = errors.New("tracklist persistence rejected")
)

// Config represents content client configuration.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client is a content-source API client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Track is the wire representation of a tracklist entry.
type Track struct {
	Title    string  `json:"title"`
	Artist   string  `json:"artist,omitempty"`
	AudioURL string  `json:"audioUrl,omitempty"`
	Duration float64 `json:"duration,omitempty"` // seconds
}

// ProductResponse represents a product document.
type ProductResponse struct {
	DocumentID        string  `json:"documentId"`
	SwellProductID    string  `json:"swellProductId"`
	Slug              string  `json:"slug"`
	Title             string  `json:"title"`
	Artist            string  `json:"artist"`
	DiscogsID         string  `json:"discogsId"`
	TracklistEnhanced bool    `json:"tracklistEnhanced"`
	Tracklist         []Track `json:"tracklist"`
}

// EnhancementRequest describes which fields the persistence endpoint should enrich.
type EnhancementRequest struct {
	EnhanceTitles  bool  `json:"enhanceTitles"`
	EnhanceArtists bool  `json:"enhanceArtists"`
	Timestamp      int64 `json:"timestamp"` // unix milliseconds
}

// PersistRequest is the body of a tracklist persistence call.
type PersistRequest struct {
	DocumentID         string             `json:"documentId"`
	Tracklist          []Track            `json:"tracklist"`
	EnhancementRequest EnhancementRequest `json:"enhancementRequest"`
}

// PersistResponse is the reply of a tracklist persistence call.
type PersistResponse struct {
	Success                   bool    `json:"success"`
	Tracklist                 []Track `json:"tracklist"`
	SwellProductID            string  `json:"swellProductId"`
	TitleEnhancementsApplied  int     `json:"titleEnhancementsApplied"`
	ArtistEnhancementsApplied int     `json:"artistEnhancementsApplied"`
	Error                     string  `json:"error,omitempty"`
}

// PersistResult is the outcome of a successful persistence call.
type PersistResult struct {
	Tracklist          []track.Track
	CommerceID         string
	TitleEnhancements  int
	ArtistEnhancements int
}

// New creates a new content client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("content base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// GetProduct retrieves the product record identified by key.
func (c *Client) GetProduct(ctx context.Context, key product.Key) (*product.Product, error) {
	if key.IsZero() {
		return nil, errors.New("product key is required")
	}

	params := url.Values{}
	if key.DocumentID != "" {
		params.Set("documentId", key.DocumentID)
	}
	if key.CommerceID != "" {
		params.Set("swellProductId", key.CommerceID)
	}

	var response ProductResponse
	if err := c.do(ctx, http.MethodGet, "/products?"+params.Encode(), nil, &response); err != nil {
		return nil, err
	}

	p := &product.Product{
		Key: product.Key{
			DocumentID: response.DocumentID,
			CommerceID: response.SwellProductID,
		},
		Slug:            response.Slug,
		Title:           response.Title,
		Artist:          response.Artist,
		CatalogID:       response.DiscogsID,
		AlreadyEnhanced: response.TracklistEnhanced,
		Tracklist:       fromWire(response.Tracklist),
	}
	if p.Key.DocumentID == "" {
		p.Key.DocumentID = key.DocumentID
	}
	if p.Key.CommerceID == "" {
		p.Key.CommerceID = key.CommerceID
	}
	return p, nil
}

// Persist asks the content source to enrich and durably save the tracklist of
// a product document. It returns the saved tracklist.
func (c *Client) Persist(ctx context.Context, documentID string, tracks []track.Track, req EnhancementRequest) (*PersistResult, error) {
	if documentID == "" {
		return nil, errors.New("document ID is required")
	}

	body := PersistRequest{
		DocumentID:         documentID,
		Tracklist:          toWire(tracks),
		EnhancementRequest: req,
	}

	var response PersistResponse
	if err := c.do(ctx, http.MethodPost, "/tracklists/enhance", body, &response); err != nil {
		return nil, err
	}
	if !response.Success {
		return nil, errors.Wrapf(ErrPersistRejected, "document=%s reason=%s", documentID, response.Error)
	}

	zlog.Debug().Msgf("content: tracklist persisted: document=%s titles=%d artists=%d",
		documentID, response.TitleEnhancementsApplied, response.ArtistEnhancementsApplied)

	return &PersistResult{
		Tracklist:          fromWire(response.Tracklist),
		CommerceID:         response.SwellProductID,
		TitleEnhancements:  response.TitleEnhancementsApplied,
		ArtistEnhancements: response.ArtistEnhancementsApplied,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var reader io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "failed to encode request")
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response body")
	}

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Newf("content API error: status=%d body=%s", resp.StatusCode, truncate(string(body), 200))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "failed to parse response")
	}
	return nil
}

func fromWire(in []Track) []track.Track {
	out := make([]track.Track, len(in))
	for i, t := range in {
		out[i] = track.Track{
			Title:    t.Title,
			Artist:   t.Artist,
			AudioURL: t.AudioURL,
			Duration: time.Duration(t.Duration * float64(time.Second)),
		}
	}
	return out
}

func toWire(in []track.Track) []Track {
	out := make([]Track, len(in))
	for i, t := range in {
		out[i] = Track{
			Title:    t.Title,
			Artist:   t.Artist,
			AudioURL: t.AudioURL,
			Duration: t.Duration.Seconds(),
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
