// Package track provides the Track domain entity.
package track

import (
	"regexp"
	"strings"
	"time"
)

// Track represents a single playable preview track of a storefront product.
type Track struct {
	Title       string        // Track title (may be a "Track N" placeholder)
	Artist      string        // Track artist
	Album       string        // Product (release) title
	AudioURL    string        // Audio locator of the preview file
	ProductID   string        // Content document ID of the product
	CatalogID   string        // External catalog (Discogs) release ID
	CommerceID  string        // Commerce backend product ID
	ProductSlug string        // Storefront slug / display link
	TrackIndex  int           // Position within the product tracklist
	Duration    time.Duration // Track duration (0 if unknown)
}

var placeholderTitle = regexp.MustCompile(`(?i)^track\s+\d+$`)

// HasAudio reports whether the track carries an audio locator.
func (t *Track) HasAudio() bool {
	return strings.TrimSpace(t.AudioURL) != ""
}

// IsPlaceholderTitle reports whether the title is empty or a generic "Track N".
func (t *Track) IsPlaceholderTitle() bool {
	title := strings.TrimSpace(t.Title)
	return title == "" || placeholderTitle.MatchString(title)
}

// IsPlaceholderArtist reports whether the artist is empty or a "Various" placeholder.
func (t *Track) IsPlaceholderArtist() bool {
	return IsVariousArtist(t.Artist)
}

// IsVariousArtist reports whether name is empty or one of the generic
// multi-artist credits used for compilations.
func IsVariousArtist(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "various", "various artists", "v/a", "va", "v.a.":
		return true
	default:
		return false
	}
}

// Clone returns a copy of the tracklist that shares no backing array with tracks.
func Clone(tracks []Track) []Track {
	if tracks == nil {
		return nil
	}
	out := make([]Track, len(tracks))
	copy(out, tracks)
	return out
}

// TotalDuration returns the summed duration of all tracks with a known duration.
func TotalDuration(tracks []Track) time.Duration {
	var total time.Duration
	for _, t := range tracks {
		total += t.Duration
	}
	return total
}
