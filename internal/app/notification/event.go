package notification

import (
	"github.com/osa030/crate/internal/domain/product"
	"github.com/osa030/crate/internal/domain/track"
)

// Kind identifies the type of an Event.
type Kind int

const (
	KindTracklistUpdated           Kind = iota // Enrichment pipeline finished a run
	KindContentDataUpdated                     // Persisted tracklist changed (compat channel)
	KindEnhancedTracklistAvailable             // Enriched tracklist is ready for a product
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindTracklistUpdated:
		return "tracklist_updated"
	case KindContentDataUpdated:
		return "content_data_updated"
	case KindEnhancedTracklistAvailable:
		return "enhanced_tracklist_available"
	default:
		return "unknown"
	}
}

// Event is one of TracklistUpdated, ContentDataUpdated or EnhancedTracklistAvailable.
type Event interface {
	Kind() Kind
	isEvent()
}

// Reason explains how an enrichment run concluded.
type Reason string

const (
	ReasonNoTracklist      Reason = "no_tracklist"
	ReasonCached           Reason = "cached"
	ReasonAlreadyEnhanced  Reason = "already_enhanced"
	ReasonAlreadyProcessed Reason = "already_processed"
	ReasonNoCatalogID      Reason = "no_discogs_id"
	ReasonSkipped          Reason = "skipped"
	ReasonCatalogSuccess   Reason = "discogs_success"
	ReasonCatalogError     Reason = "discogs_error"
	ReasonAPIError         Reason = "api_error"
	ReasonNoData           Reason = "no_data"
)

// EnhancementTypes describes what an enrichment run changed.
type EnhancementTypes struct {
	Titles      bool `json:"titles"`
	Artists     bool `json:"artists"`
	TitleCount  int  `json:"titleCount"`
	ArtistCount int  `json:"artistCount"`
}

// Any reports whether anything was enhanced.
func (e EnhancementTypes) Any() bool {
	return e.Titles || e.Artists
}

// TracklistUpdated is published after every enrichment run, including no-op runs,
// so consumers always receive the current tracklist.
type TracklistUpdated struct {
	Key              product.Key
	Tracklist        []track.Track
	Reason           Reason
	EnhancementTypes *EnhancementTypes // set on discogs_success only
}

// ContentDataUpdated mirrors the legacy content-update channel.
type ContentDataUpdated struct {
	Type       string // always "tracklistUpdate"
	DocumentID string
	CommerceID string
	Tracklist  []track.Track
}

// ContentUpdateTracklist is the only ContentDataUpdated type emitted today.
const ContentUpdateTracklist = "tracklistUpdate"

// EnhancedTracklistAvailable announces an enriched tracklist for a product.
type EnhancedTracklistAvailable struct {
	ProductID         string
	Key               product.Key
	EnhancedTracklist []track.Track
	EnhancementTypes  EnhancementTypes
}

func (TracklistUpdated) Kind() Kind           { return KindTracklistUpdated }
func (ContentDataUpdated) Kind() Kind         { return KindContentDataUpdated }
func (EnhancedTracklistAvailable) Kind() Kind { return KindEnhancedTracklistAvailable }

func (TracklistUpdated) isEvent()           {}
func (ContentDataUpdated) isEvent()         {}
func (EnhancedTracklistAvailable) isEvent() {}
