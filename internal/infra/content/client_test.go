package content

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/crate/internal/domain/product"
	"github.com/osa030/crate/internal/domain/track"
)

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestGetProduct(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/products", r.URL.Path)
		assert.Equal(t, "doc-1", r.URL.Query().Get("documentId"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		response := `{
			"documentId": "doc-1",
			"swellProductId": "sku-1",
			"slug": "kind-of-blue",
			"title": "Kind of Blue",
			"artist": "Miles Davis",
			"discogsId": "1234",
			"tracklistEnhanced": true,
			"tracklist": [
				{"title": "Track 1", "audioUrl": "https://cdn.example.com/1.mp3", "duration": 545.5},
				{"title": "Freddie Freeloader"}
			]
		}`
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, response)
	}))
	defer server.Close()

	client, err := New(Config{BaseURL: server.URL + "/", Token: "secret"})
	require.NoError(t, err)

	p, err := client.GetProduct(context.Background(), product.Key{DocumentID: "doc-1"})
	require.NoError(t, err)

	assert.Equal(t, product.Key{DocumentID: "doc-1", CommerceID: "sku-1"}, p.Key)
	assert.Equal(t, "1234", p.CatalogID)
	assert.True(t, p.AlreadyEnhanced)
	require.Len(t, p.Tracklist, 2)
	assert.Equal(t, "https://cdn.example.com/1.mp3", p.Tracklist[0].AudioURL)
	assert.Equal(t, 545500*time.Millisecond, p.Tracklist[0].Duration)
	assert.Equal(t, time.Duration(0), p.Tracklist[1].Duration)
}

func TestGetProduct_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	client, err := New(Config{BaseURL: server.URL})
	require.NoError(t, err)

	_, err = client.GetProduct(context.Background(), product.Key{CommerceID: "sku-404"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = client.GetProduct(context.Background(), product.Key{})
	assert.Error(t, err)
}

func TestPersist(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/tracklists/enhance", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req PersistRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "doc-1", req.DocumentID)
		assert.True(t, req.EnhancementRequest.EnhanceTitles)
		assert.False(t, req.EnhancementRequest.EnhanceArtists)
		assert.Equal(t, int64(1700000000000), req.EnhancementRequest.Timestamp)
		require.Len(t, req.Tracklist, 1)
		assert.Equal(t, "Track 1", req.Tracklist[0].Title)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"success": true,
			"tracklist": [{"title": "So What", "duration": 562}],
			"swellProductId": "sku-1",
			"titleEnhancementsApplied": 1,
			"artistEnhancementsApplied": 0
		}`)
	}))
	defer server.Close()

	client, err := New(Config{BaseURL: server.URL})
	require.NoError(t, err)

	result, err := client.Persist(context.Background(), "doc-1",
		[]track.Track{{Title: "Track 1"}},
		EnhancementRequest{EnhanceTitles: true, Timestamp: 1700000000000})
	require.NoError(t, err)

	assert.Equal(t, "sku-1", result.CommerceID)
	assert.Equal(t, 1, result.TitleEnhancements)
	require.Len(t, result.Tracklist, 1)
	assert.Equal(t, "So What", result.Tracklist[0].Title)
	assert.Equal(t, 562*time.Second, result.Tracklist[0].Duration)
}

func TestPersist_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{
			name:    "rejected",
			status:  http.StatusOK,
			body:    `{"success": false, "error": "document locked"}`,
			wantErr: ErrPersistRejected,
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			body:   `internal`,
		},
		{
			name:   "malformed body",
			status: http.StatusOK,
			body:   `{"success": `,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			client, err := New(Config{BaseURL: server.URL})
			require.NoError(t, err)

			_, err = client.Persist(context.Background(), "doc-1", nil, EnhancementRequest{})
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}
