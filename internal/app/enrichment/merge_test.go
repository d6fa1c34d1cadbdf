package enrichment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/crate/internal/app/catalog"
	"github.com/osa030/crate/internal/app/notification"
	"github.com/osa030/crate/internal/domain/product"
	"github.com/osa030/crate/internal/domain/track"
)

func TestMerge_PreservesRealTitles(t *testing.T) {
	tracks := []track.Track{
		{Title: "Track 1"},
		{Title: "Strings of Life"},
		{Title: ""},
		{Title: "track 4"},
	}
	release := &catalog.Release{Tracks: []catalog.ReleaseTrack{
		{Title: "Nude Photo"},
		{Title: "Something Else"},
		{Title: "The Dance"},
		{Title: "   "},
	}}

	merged, types := Merge(tracks, release, false)

	assert.Equal(t, "Nude Photo", merged[0].Title)
	assert.Equal(t, "Strings of Life", merged[1].Title, "a real title is never overwritten")
	assert.Equal(t, "The Dance", merged[2].Title)
	assert.Equal(t, "track 4", merged[3].Title, "blank external title is ignored")
	assert.True(t, types.Titles)
	assert.Equal(t, 2, types.TitleCount)
	assert.False(t, types.Artists)

	assert.Equal(t, "Track 1", tracks[0].Title, "input is not modified")
}

func TestMerge_Positional(t *testing.T) {
	tracks := []track.Track{{Title: "Track 1"}, {Title: "Track 2"}, {Title: "Track 3"}}
	release := &catalog.Release{Tracks: []catalog.ReleaseTrack{{Title: "First"}}}

	merged, types := Merge(tracks, release, false)

	require.Len(t, merged, 3)
	assert.Equal(t, "First", merged[0].Title)
	assert.Equal(t, "Track 2", merged[1].Title)
	assert.Equal(t, "Track 3", merged[2].Title)
	assert.Equal(t, 1, types.TitleCount)
}

func TestMerge_Artists(t *testing.T) {
	tests := []struct {
		name        string
		artist      string
		compilation bool
		ext         catalog.ReleaseTrack
		want        string
		wantCount   int
	}{
		{
			name:        "compilation placeholder replaced",
			artist:      "Various Artists",
			compilation: true,
			ext:         catalog.ReleaseTrack{Artists: []string{"Ron Trent"}},
			want:        "Ron Trent",
			wantCount:   1,
		},
		{
			name:        "disambiguation stripped",
			artist:      "",
			compilation: true,
			ext:         catalog.ReleaseTrack{Artists: []string{"Chez Damier (2)"}},
			want:        "Chez Damier",
			wantCount:   1,
		},
		{
			name:        "extra artists used when no main artist",
			artist:      "VA",
			compilation: true,
			ext:         catalog.ReleaseTrack{ExtraArtists: []string{"Anthony Nicholson"}},
			want:        "Anthony Nicholson",
			wantCount:   1,
		},
		{
			name:        "various external credit is unusable",
			artist:      "V/A",
			compilation: true,
			ext:         catalog.ReleaseTrack{Artists: []string{"Various"}},
			want:        "V/A",
			wantCount:   0,
		},
		{
			name:        "not a compilation",
			artist:      "",
			compilation: false,
			ext:         catalog.ReleaseTrack{Artists: []string{"Ron Trent"}},
			want:        "",
			wantCount:   0,
		},
		{
			name:        "real artist kept",
			artist:      "Larry Heard",
			compilation: true,
			ext:         catalog.ReleaseTrack{Artists: []string{"Mr. Fingers"}},
			want:        "Larry Heard",
			wantCount:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracks := []track.Track{{Title: "Known", Artist: tt.artist}}
			release := &catalog.Release{Tracks: []catalog.ReleaseTrack{tt.ext}}

			merged, types := Merge(tracks, release, tt.compilation)

			assert.Equal(t, tt.want, merged[0].Artist)
			assert.Equal(t, tt.wantCount, types.ArtistCount)
			assert.Equal(t, tt.wantCount > 0, types.Artists)
		})
	}
}

func TestMerge_DurationBackfill(t *testing.T) {
	tracks := []track.Track{
		{Title: "A"},
		{Title: "B", Duration: 3 * time.Minute},
	}
	release := &catalog.Release{Tracks: []catalog.ReleaseTrack{
		{Duration: 5 * time.Minute},
		{Duration: 7 * time.Minute},
	}}

	merged, types := Merge(tracks, release, false)

	assert.Equal(t, 5*time.Minute, merged[0].Duration)
	assert.Equal(t, 3*time.Minute, merged[1].Duration, "known duration kept")
	assert.False(t, types.Any())
}

func TestCleanArtistName(t *testing.T) {
	tests := map[string]string{
		"Name (2)":      "Name",
		"Name (12)":     "Name",
		" Name ":        "Name",
		"Name (UK)":     "Name (UK)",
		"(2) Something": "(2) Something",
	}
	for in, want := range tests {
		assert.Equal(t, want, CleanArtistName(in), in)
	}
}

func TestRestamp(t *testing.T) {
	req := &Request{
		Key:       product.Key{DocumentID: "doc", CommerceID: "sku"},
		CatalogID: "42",
		Tracklist: []track.Track{
			{Title: "Track 1", AudioURL: "a.mp3", ProductID: "doc", CommerceID: "sku", CatalogID: "42", ProductSlug: "slug", TrackIndex: 0, Album: "LP"},
		},
	}
	tracks := []track.Track{{Title: "Real"}, {Title: "Bonus"}}

	out := restamp(tracks, req)

	require.Len(t, out, 2)
	assert.Equal(t, "Real", out[0].Title)
	assert.Equal(t, "a.mp3", out[0].AudioURL)
	assert.Equal(t, "slug", out[0].ProductSlug)
	assert.Equal(t, "LP", out[0].Album)
	assert.Equal(t, "doc", out[1].ProductID)
	assert.Equal(t, "sku", out[1].CommerceID)
	assert.Equal(t, 1, out[1].TrackIndex)
	assert.Empty(t, tracks[0].AudioURL, "input is not modified")
}

type stopGate struct {
	name   string
	stop   bool
	called *[]string
}

func (g stopGate) Name() string { return g.name }

func (g stopGate) Check(ctx context.Context, req *Request) Decision {
	*g.called = append(*g.called, g.name)
	if g.stop {
		return Halt(notification.Reason(g.name), nil, false)
	}
	return Pass()
}

func TestGateChain_Execute(t *testing.T) {
	var called []string
	chain := NewGateChain()
	chain.Add(stopGate{name: "first", called: &called})
	chain.Add(stopGate{name: "second", stop: true, called: &called})
	chain.Add(stopGate{name: "third", stop: true, called: &called})

	d := chain.Execute(context.Background(), &Request{})

	assert.True(t, d.Stop)
	assert.Equal(t, notification.Reason("second"), d.Reason)
	assert.Equal(t, []string{"first", "second"}, called)
	assert.Len(t, chain.Gates(), 3)

	empty := NewGateChain()
	assert.False(t, empty.Execute(context.Background(), &Request{}).Stop)
}
