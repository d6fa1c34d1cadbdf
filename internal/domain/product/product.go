// Package product provides the storefront Product entity and its composite key.
package product

import (
	"strconv"

	"github.com/osa030/crate/internal/domain/track"
)

// Key identifies a product across the content catalog and the commerce backend.
// It is comparable and used directly as a cache key.
type Key struct {
	DocumentID string // Content document ID
	CommerceID string // Commerce backend product ID
}

// String returns an unambiguous encoding of the key.
func (k Key) String() string {
	return strconv.Quote(k.DocumentID) + "/" + strconv.Quote(k.CommerceID)
}

// IsZero reports whether neither identifier is set.
func (k Key) IsZero() bool {
	return k.DocumentID == "" && k.CommerceID == ""
}

// Matches reports whether the track belongs to the product identified by k.
func (k Key) Matches(t *track.Track) bool {
	if k.DocumentID != "" && t.ProductID == k.DocumentID {
		return true
	}
	return k.CommerceID != "" && t.CommerceID == k.CommerceID
}

// Product represents a release (record or mixtape) as supplied by the content source.
type Product struct {
	Key             Key
	Slug            string
	Title           string
	Artist          string
	CatalogID       string        // External catalog release ID (empty if unknown)
	AlreadyEnhanced bool          // Tracklist was enriched in a previous session
	Tracklist       []track.Track // Tracks in release order
}

// IsCompilation reports whether the product is credited to multiple artists.
func (p *Product) IsCompilation() bool {
	return track.IsVariousArtist(p.Artist)
}

// Tracks returns the tracklist with product identifiers filled in.
func (p *Product) Tracks() []track.Track {
	tracks := make([]track.Track, len(p.Tracklist))
	for i, t := range p.Tracklist {
		t.ProductID = p.Key.DocumentID
		t.CommerceID = p.Key.CommerceID
		t.CatalogID = p.CatalogID
		t.ProductSlug = p.Slug
		if t.Album == "" {
			t.Album = p.Title
		}
		if t.Artist == "" && !p.IsCompilation() {
			t.Artist = p.Artist
		}
		t.TrackIndex = i
		tracks[i] = t
	}
	return tracks
}
