package enrichment

import (
	"regexp"
	"strings"

	"github.com/osa030/crate/internal/app/catalog"
	"github.com/osa030/crate/internal/app/notification"
	"github.com/osa030/crate/internal/domain/track"
)

// disambiguation matches the " (2)" suffix catalogs add to homonymous artists.
var disambiguation = regexp.MustCompile(`\s*\(\d+\)$`)

// Merge overlays release data onto tracks positionally. A title is replaced
// only when it is a placeholder, an artist only on compilations when it is a
// placeholder, and durations are only backfilled. tracks is not modified.
func Merge(tracks []track.Track, release *catalog.Release, compilation bool) ([]track.Track, notification.EnhancementTypes) {
	out := track.Clone(tracks)
	var types notification.EnhancementTypes
	if release == nil {
		return out, types
	}

	for i := range out {
		if i >= len(release.Tracks) {
			break
		}
		ext := release.Tracks[i]
		t := &out[i]

		if t.IsPlaceholderTitle() {
			if title := strings.TrimSpace(ext.Title); title != "" {
				t.Title = title
				types.TitleCount++
			}
		}
		if compilation && t.IsPlaceholderArtist() {
			if performer := primaryPerformer(ext); performer != "" {
				t.Artist = performer
				types.ArtistCount++
			}
		}
		if t.Duration == 0 && ext.Duration > 0 {
			t.Duration = ext.Duration
		}
	}

	types.Titles = types.TitleCount > 0
	types.Artists = types.ArtistCount > 0
	return out, types
}

// primaryPerformer returns the first usable credit of ext, main artists first.
func primaryPerformer(ext catalog.ReleaseTrack) string {
	for _, names := range [][]string{ext.Artists, ext.ExtraArtists} {
		for _, name := range names {
			name = CleanArtistName(name)
			if !track.IsVariousArtist(name) {
				return name
			}
		}
	}
	return ""
}

// CleanArtistName strips catalog disambiguation numerals ("Name (2)" -> "Name").
func CleanArtistName(name string) string {
	return strings.TrimSpace(disambiguation.ReplaceAllString(strings.TrimSpace(name), ""))
}

// restamp copies the identifiers of the request's tracks onto tracks that
// were produced elsewhere (cache, persistence endpoint), matched by position.
func restamp(tracks []track.Track, req *Request) []track.Track {
	out := track.Clone(tracks)
	if out == nil {
		out = []track.Track{}
	}
	for i := range out {
		t := &out[i]
		if i >= len(req.Tracklist) {
			t.ProductID = req.Key.DocumentID
			t.CommerceID = req.Key.CommerceID
			t.CatalogID = req.CatalogID
			t.TrackIndex = i
			continue
		}
		src := req.Tracklist[i]
		t.ProductID = src.ProductID
		t.CommerceID = src.CommerceID
		t.CatalogID = src.CatalogID
		t.ProductSlug = src.ProductSlug
		t.TrackIndex = src.TrackIndex
		if t.AudioURL == "" {
			t.AudioURL = src.AudioURL
		}
		if t.Album == "" {
			t.Album = src.Album
		}
	}
	return out
}
