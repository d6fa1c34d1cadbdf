// Package enrichment replaces placeholder track metadata with values from an
// external catalog, at most once per product per session.
package enrichment

import (
	"context"

	"github.com/osa030/crate/internal/app/catalog"
	"github.com/osa030/crate/internal/app/notification"
	"github.com/osa030/crate/internal/domain/product"
	"github.com/osa030/crate/internal/domain/track"
	"github.com/osa030/crate/internal/infra/content"
)

// Request is the input of one enrichment run.
type Request struct {
	Key             product.Key
	Tracklist       []track.Track
	ProductArtist   string
	CatalogID       string // External release ID, may be empty
	AlreadyEnhanced bool   // Content source reports a previously enriched tracklist
}

// NewRequest builds a request for p.
func NewRequest(p *product.Product) Request {
	return Request{
		Key:             p.Key,
		Tracklist:       p.Tracks(),
		ProductArtist:   p.Artist,
		CatalogID:       p.CatalogID,
		AlreadyEnhanced: p.AlreadyEnhanced,
	}
}

// IsCompilation reports whether the product is credited to multiple artists.
func (r *Request) IsCompilation() bool {
	return track.IsVariousArtist(r.ProductArtist)
}

// Result is the outcome of one enrichment run.
type Result struct {
	Reason           notification.Reason
	Tracklist        []track.Track
	EnhancementTypes *notification.EnhancementTypes
}

// CatalogSource fetches external release data.
type CatalogSource interface {
	FetchRelease(ctx context.Context, q catalog.Query) (*catalog.Release, error)
}

// Persister fetches external data and durably saves the merged tracklist in
// one call.
type Persister interface {
	Persist(ctx context.Context, documentID string, tracks []track.Track, req content.EnhancementRequest) (*content.PersistResult, error)
}

// Saver stores merged tracklists produced by the catalog path.
type Saver interface {
	Save(ctx context.Context, key product.Key, tracks []track.Track) error
}

// PlaybackPatcher patches tracks already loaded into the player.
type PlaybackPatcher interface {
	ApplyTracklistUpdate(key product.Key, tracks []track.Track) bool
}

// Recorder observes enrichment outcomes.
type Recorder interface {
	RecordEnrichment(reason notification.Reason)
}
