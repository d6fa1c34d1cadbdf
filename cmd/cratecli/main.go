// Package main provides the crate CLI entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/crate/internal/api/connect"
)

var (
	app    = kingpin.New("cratecli", "crate preview player client")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token  = app.Flag("token", "Admin token (or set ADMIN_TOKEN env)").Envar("ADMIN_TOKEN").String()

	stateCmd = app.Command("state", "Show the playback state").Alias("status")

	playCmd        = app.Command("play", "Play a product's tracklist")
	playDocumentID = playCmd.Arg("document-id", "Product document ID").Required().String()
	playCommerceID = playCmd.Flag("commerce-id", "Product commerce ID").String()
	playStart      = playCmd.Flag("start", "Index of the first track to play").Default("0").Int()

	nextCmd     = app.Command("next", "Play the next track in the history")
	previousCmd = app.Command("previous", "Play the previous track in the history").Alias("prev")
	pauseCmd    = app.Command("pause", "Pause playback")
	resumeCmd   = app.Command("resume", "Resume playback")
	stopCmd     = app.Command("stop", "Stop playback")
	clearCmd    = app.Command("clear-history", "Stop playback and clear the play history")

	enrichCmd        = app.Command("enrich", "Enrich a product's tracklist and print the outcome")
	enrichDocumentID = enrichCmd.Arg("document-id", "Product document ID").Required().String()
	enrichCommerceID = enrichCmd.Flag("commerce-id", "Product commerce ID").String()

	watchCmd = app.Command("watch", "Stream playback state changes")

	adminCmd = app.Command("admin", "Administrative commands (require the admin token)")

	cacheStatsCmd = adminCmd.Command("cache-stats", "Show cache statistics")

	clearCacheCmd       = adminCmd.Command("clear-cache", "Clear a cache namespace, or all namespaces")
	clearCacheNamespace = clearCacheCmd.Arg("namespace", "Namespace to clear").String()

	retryCmd        = adminCmd.Command("retry", "Forget enrichment outcomes for a product and enrich again")
	retryDocumentID = retryCmd.Arg("document-id", "Product document ID").Required().String()
	retryCommerceID = retryCmd.Flag("commerce-id", "Product commerce ID").String()

	storedCmd        = adminCmd.Command("stored", "Show the locally stored enriched tracklist")
	storedDocumentID = storedCmd.Arg("document-id", "Product document ID").Required().String()
	storedCommerceID = storedCmd.Flag("commerce-id", "Product commerce ID").String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	player := apiconnect.NewPlayerClient(http.DefaultClient, *server)

	switch command {
	case stateCmd.FullCommand():
		s, err := player.GetState(ctx)
		exitOnError(err)
		printState(s)
	case playCmd.FullCommand():
		resp, err := player.PlayProduct(ctx, &apiconnect.PlayProductRequest{
			DocumentID: *playDocumentID,
			CommerceID: *playCommerceID,
			StartIndex: *playStart,
		})
		exitOnError(err)
		fmt.Printf("Playing %s - %s\n", resp.Artist, resp.Title)
		printState(&resp.State)
	case nextCmd.FullCommand():
		transport(player.Next(ctx))
	case previousCmd.FullCommand():
		transport(player.Previous(ctx))
	case pauseCmd.FullCommand():
		transport(player.Pause(ctx))
	case resumeCmd.FullCommand():
		transport(player.Resume(ctx))
	case stopCmd.FullCommand():
		transport(player.Stop(ctx))
	case clearCmd.FullCommand():
		transport(player.ClearHistory(ctx))
	case enrichCmd.FullCommand():
		resp, err := player.EnrichProduct(ctx, &apiconnect.ProductRequest{DocumentID: *enrichDocumentID, CommerceID: *enrichCommerceID})
		exitOnError(err)
		printEnrichment(resp)
	case watchCmd.FullCommand():
		watch(ctx, player)
	default:
		runAdmin(ctx, command)
	}
}

func runAdmin(ctx context.Context, command string) {
	if *token == "" {
		fmt.Println("Error: admin token is required (use --token or ADMIN_TOKEN env)")
		os.Exit(1)
	}
	admin := apiconnect.NewAdminClient(http.DefaultClient, *server, *token)

	switch command {
	case cacheStatsCmd.FullCommand():
		stats, err := admin.CacheStats(ctx)
		exitOnError(err)
		fmt.Printf("Memory: %d / %d bytes\n", stats.Memory, stats.GlobalMaxMemory)
		fmt.Printf("%-24s %8s %10s %8s %8s %9s %10s\n", "NAMESPACE", "ENTRIES", "MEMORY", "HITS", "MISSES", "EVICTED", "REJECTED")
		for _, ns := range stats.Namespaces {
			fmt.Printf("%-24s %8d %10d %8d %8d %9d %10d\n",
				ns.Name, ns.Entries, ns.Memory, ns.Hits, ns.Misses, ns.Evictions, ns.Rejections)
		}
	case clearCacheCmd.FullCommand():
		_, err := admin.ClearCache(ctx, *clearCacheNamespace)
		exitOnError(err)
		if *clearCacheNamespace == "" {
			fmt.Println("All cache namespaces cleared")
		} else {
			fmt.Printf("Cache namespace %s cleared\n", *clearCacheNamespace)
		}
	case retryCmd.FullCommand():
		resp, err := admin.RetryEnrichment(ctx, &apiconnect.ProductRequest{DocumentID: *retryDocumentID, CommerceID: *retryCommerceID})
		exitOnError(err)
		printEnrichment(resp)
	case storedCmd.FullCommand():
		resp, err := admin.StoredTracklist(ctx, &apiconnect.ProductRequest{DocumentID: *storedDocumentID, CommerceID: *storedCommerceID})
		exitOnError(err)
		printTracks(resp.Tracklist)
	}
}

func watch(ctx context.Context, player *apiconnect.PlayerClient) {
	stream, err := player.WatchState(ctx)
	exitOnError(err)
	defer stream.Close()

	for stream.Receive() {
		s := stream.Msg()
		title := "-"
		if s.CurrentTrack != nil {
			title = s.CurrentTrack.Title
		}
		fmt.Printf("[%s] %-8s %s %s/%s\n",
			time.Now().Format(time.TimeOnly), s.State, title,
			formatMs(s.CurrentTimeMs), formatMs(s.DurationMs))
	}
	if err := stream.Err(); err != nil && ctx.Err() == nil {
		exitOnError(err)
	}
}

func transport(resp *apiconnect.TransportResponse, err error) {
	exitOnError(err)
	if !resp.Changed {
		fmt.Println("Nothing to do")
	}
	printState(&resp.State)
}

func printState(s *apiconnect.PlayerState) {
	fmt.Println("\n=== PLAYER STATE ===")
	fmt.Printf("State: %s\n", s.State)
	if s.CurrentTrack != nil {
		fmt.Printf("Current: %s - %s (%s/%s)\n", s.CurrentTrack.Artist, s.CurrentTrack.Title,
			formatMs(s.CurrentTimeMs), formatMs(s.DurationMs))
	} else if s.LastTrack != nil {
		fmt.Printf("Last: %s - %s\n", s.LastTrack.Artist, s.LastTrack.Title)
	}
	if s.StopReason != "" {
		fmt.Printf("Stop Reason: %s\n", s.StopReason)
	}
	if s.LastError != "" {
		fmt.Printf("Last Error: %s\n", s.LastError)
	}
	fmt.Printf("History: %d tracks (position %d)\n", len(s.PlayHistory), s.CurrentTrackIndex+1)
	fmt.Println()
}

func printEnrichment(resp *apiconnect.EnrichmentResponse) {
	fmt.Printf("Reason: %s\n", resp.Reason)
	if t := resp.EnhancementTypes; t != nil {
		fmt.Printf("Enhanced: titles=%d artists=%d\n", t.TitleCount, t.ArtistCount)
	}
	printTracks(resp.Tracklist)
}

func printTracks(tracks []apiconnect.Track) {
	for _, t := range tracks {
		fmt.Printf("  %2d. %-40s %-30s %s\n", t.TrackIndex+1, t.Title, t.Artist, formatMs(t.DurationMs))
	}
}

func formatMs(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}
