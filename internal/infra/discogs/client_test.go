package discogs

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetRelease(t *testing.T) {
	// Mock server
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/releases/249504", r.URL.Path)
		assert.Equal(t, "Discogs token=test_token", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"))

		response := `{
			"id": 249504,
			"title": "Jazz Jamboree",
			"artists": [{"name": "Various"}],
			"tracklist": [
				{"position": "", "type_": "heading", "title": "Side A"},
				{"position": "A1", "type_": "track", "title": "So What", "duration": "9:22",
				 "artists": [{"name": "Miles Davis (2)", "anv": ""}]},
				{"position": "A2", "type_": "track", "title": "Take Five", "duration": "",
				 "extraartists": [{"name": "Paul Desmond", "role": "Written-By"}]}
			]
		}`
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, response)
	}))
	defer server.Close()

	client, err := New(Config{Token: "test_token"})
	require.NoError(t, err)
	client.baseURL = server.URL

	release, err := client.GetRelease(context.Background(), "249504")
	require.NoError(t, err)

	assert.Equal(t, 249504, release.ID)
	assert.Equal(t, []string{"Various"}, release.Artists)
	require.Len(t, release.Tracklist, 2, "headings are skipped")
	assert.Equal(t, "So What", release.Tracklist[0].Title)
	assert.Equal(t, 9*time.Minute+22*time.Second, release.Tracklist[0].Duration)
	assert.Equal(t, []string{"Miles Davis (2)"}, release.Tracklist[0].Artists)
	assert.Equal(t, time.Duration(0), release.Tracklist[1].Duration)
	assert.Equal(t, []string{"Paul Desmond"}, release.Tracklist[1].ExtraArtists)
}

func TestGetRelease_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		notFound bool
	}{
		{name: "not found", status: http.StatusNotFound, body: `{"message": "Release not found."}`, notFound: true},
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{"message": "You are making requests too quickly."}`},
		{name: "malformed", status: http.StatusOK, body: `{"id": `},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			client, err := New(Config{Token: "test_token"})
			require.NoError(t, err)
			client.baseURL = server.URL

			_, err = client.GetRelease(context.Background(), "1")
			require.Error(t, err)
			assert.Equal(t, tt.notFound, errors.Is(err, ErrNotFound))
		})
	}
}

func TestGetRelease_Validation(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err, "token is required")

	client, err := New(Config{Token: "t"})
	require.NoError(t, err)
	_, err = client.GetRelease(context.Background(), "  ")
	assert.Error(t, err)
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
	}{
		{"3:45", 3*time.Minute + 45*time.Second},
		{"0:59", 59 * time.Second},
		{"1:02:03", time.Hour + 2*time.Minute + 3*time.Second},
		{"", 0},
		{"abc", 0},
		{"3:x5", 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseDuration(tt.input))
		})
	}
}
