package enrichment

import (
	"context"

	"github.com/osa030/crate/internal/app/cache"
	"github.com/osa030/crate/internal/app/notification"
	"github.com/osa030/crate/internal/domain/track"
)

// Decision is the outcome of a gate check.
type Decision struct {
	Stop      bool
	Reason    notification.Reason
	Tracklist []track.Track
	Cache     bool // store Tracklist in the data cache
}

// Pass returns a decision that lets the request continue.
func Pass() Decision {
	return Decision{}
}

// Halt returns a decision that ends the run with reason.
func Halt(reason notification.Reason, tracks []track.Track, cacheIt bool) Decision {
	return Decision{Stop: true, Reason: reason, Tracklist: tracks, Cache: cacheIt}
}

// Gate is one step of the decision chain run before any external call.
type Gate interface {
	// Name returns the gate name.
	Name() string
	// Check inspects the request and decides whether the run stops here.
	Check(ctx context.Context, req *Request) Decision
}

// GateChain executes gates in sequence.
type GateChain struct {
	gates []Gate
}

// NewGateChain creates a new gate chain.
func NewGateChain() *GateChain {
	return &GateChain{
		gates: make([]Gate, 0),
	}
}

// Add adds a gate to the chain.
func (c *GateChain) Add(g Gate) {
	c.gates = append(c.gates, g)
}

// Execute runs all gates in sequence.
// Returns immediately if any gate stops the request.
func (c *GateChain) Execute(ctx context.Context, req *Request) Decision {
	for _, g := range c.gates {
		if d := g.Check(ctx, req); d.Stop {
			return d
		}
	}
	return Pass()
}

// Gates returns all gates in the chain.
func (c *GateChain) Gates() []Gate {
	return c.gates
}

type noTracklistGate struct{}

func (noTracklistGate) Name() string { return "no_tracklist" }

func (noTracklistGate) Check(ctx context.Context, req *Request) Decision {
	if len(req.Tracklist) == 0 {
		return Halt(notification.ReasonNoTracklist, []track.Track{}, false)
	}
	return Pass()
}

// cachedGate answers from the data cache.
type cachedGate struct {
	cache *cache.Manager
}

func (g *cachedGate) Name() string { return "cached" }

func (g *cachedGate) Check(ctx context.Context, req *Request) Decision {
	cached, ok := cache.Lookup[[]track.Track](g.cache, NamespaceTracklists, req.Key)
	if !ok {
		return Pass()
	}
	return Halt(notification.ReasonCached, restamp(cached, req), false)
}

// alreadyEnhancedGate trusts the content source's enhanced flag when enabled.
type alreadyEnhancedGate struct {
	trust bool
}

func (g *alreadyEnhancedGate) Name() string { return "already_enhanced" }

func (g *alreadyEnhancedGate) Check(ctx context.Context, req *Request) Decision {
	if g.trust && req.AlreadyEnhanced {
		return Halt(notification.ReasonAlreadyEnhanced, req.Tracklist, true)
	}
	return Pass()
}

// processedGate stops products that were attempted within the guard TTL.
type processedGate struct {
	cache *cache.Manager
}

func (g *processedGate) Name() string { return "already_processed" }

func (g *processedGate) Check(ctx context.Context, req *Request) Decision {
	if _, ok := g.cache.Get(NamespaceProcessed, req.Key); ok {
		return Halt(notification.ReasonAlreadyProcessed, req.Tracklist, false)
	}
	return Pass()
}

// catalogIDGate stops products without an external release ID when one is required.
type catalogIDGate struct {
	require bool
}

func (g *catalogIDGate) Name() string { return "no_discogs_id" }

func (g *catalogIDGate) Check(ctx context.Context, req *Request) Decision {
	if g.require && req.CatalogID == "" {
		return Halt(notification.ReasonNoCatalogID, req.Tracklist, true)
	}
	return Pass()
}

// needsUpdateGate stops tracklists without placeholders.
type needsUpdateGate struct{}

func (needsUpdateGate) Name() string { return "skipped" }

func (needsUpdateGate) Check(ctx context.Context, req *Request) Decision {
	titles, artists := needsUpdate(req)
	if !titles && !artists {
		return Halt(notification.ReasonSkipped, req.Tracklist, true)
	}
	return Pass()
}

// needsUpdate reports whether any title, and any artist, needs enrichment.
// Artists only count on compilations.
func needsUpdate(req *Request) (titles, artists bool) {
	compilation := req.IsCompilation()
	for i := range req.Tracklist {
		t := &req.Tracklist[i]
		if t.IsPlaceholderTitle() {
			titles = true
		}
		if compilation && t.IsPlaceholderArtist() {
			artists = true
		}
	}
	return titles, artists
}
