package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/hashtags/hashtag-timeline/internal/config"
	"github.com/hashtags/hashtag-timeline/internal/credentials"
	"github.com/hashtags/hashtag-timeline/internal/models"
	"github.com/hashtags/hashtag-timeline/internal/retry"
	"github.com/hashtags/hashtag-timeline/internal/storage"
	"github.com/hashtags/hashtag-timeline/internal/timeline"
	"github.com/hashtags/hashtag-timeline/internal/twitter"
	"github.com/joho/godotenv"
)

func main() {
	persist := flag.Bool("persist", false, "read and write tokens through the configured storage backend")
	reset := flag.Bool("reset", false, "clear stored tokens before authorizing")
	query := flag.String("q", "", "override SEARCH_QUERY")
	flag.Parse()

	fmt.Println("🔍 Hashtag Timeline - Search Connectivity Check")
	fmt.Println("===============================================")

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	if *query != "" {
		// The flag overrides the environment
		os.Setenv("SEARCH_QUERY", *query)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	var backend storage.StorageInterface = storage.NewMemoryStorage()
	if *persist {
		fileStore, err := storage.NewFileStorage(cfg.StoragePath)
		if err != nil {
			log.Fatalf("Failed to open storage: %v", err)
		}
		backend = fileStore
	}

	store := credentials.NewStore(backend)
	authority := twitter.NewAuthority(cfg.Credentials(), store, cfg.APIBaseURL, cfg.RequestTimeout)

	if *reset {
		if err := authority.Reset(ctx); err != nil {
			log.Fatalf("Failed to reset tokens: %v", err)
		}
		fmt.Println("🧹 Stored tokens cleared")
	}
	authority.LoadState(ctx)

	fmt.Print("🔸 Authorizing app... ")
	_, err = authority.AuthorizeAppWithRetry(ctx, retry.Policy{
		MaxAttempts:    cfg.AuthMaxAttempts,
		InitialBackoff: cfg.AuthInitialBackoff,
	})
	if err != nil {
		fmt.Printf("❌ ERROR: %v\n", err)
		return
	}
	fmt.Println("✅ SUCCESS")

	hashtag := twitter.MakeHashtag(cfg.SearchQuery)
	fmt.Printf("🔸 Searching %s (%s, %d)... ", hashtag, cfg.ResultType(), cfg.SearchCount)

	client := twitter.NewClient(authority, cfg.APIBaseURL, cfg.RequestTimeout)
	tweets, err := client.Search(ctx, models.SearchQuery{
		Query:      hashtag,
		ResultType: cfg.ResultType(),
		Count:      cfg.SearchCount,
	})
	if err != nil {
		fmt.Printf("❌ ERROR: %v\n", err)
		return
	}
	fmt.Printf("✅ SUCCESS (%d statuses)\n", len(tweets))

	fmt.Println(strings.Repeat("-", 47))
	now := time.Now()
	withMedia := 0
	for _, status := range tweets {
		entry, ok := twitter.Resolve(status, now)
		if !ok {
			fmt.Printf("   %d  ⚪ no media\n", status.ID)
			continue
		}
		withMedia++

		line := fmt.Sprintf("   %d  %s %s", status.ID, mediaIcon(entry), timeline.FormatAge(entry.Tweet.CreatedAt, now))
		if entry.RetweetedBy != "" {
			line += fmt.Sprintf(" (retweet of %d by @%s)", entry.Tweet.ID, entry.RetweetedBy)
		}
		fmt.Println(line)
		fmt.Printf("      image: %s\n", entry.ImageURL)
		if entry.HasVideo() {
			fmt.Printf("      video: %s\n", entry.VideoURL)
		}
	}

	fmt.Printf("\n✅ %d of %d statuses would be shown\n", withMedia, len(tweets))
}

func mediaIcon(entry models.TimelineEntry) string {
	if entry.MediaType == models.MediaVideo {
		if entry.HasVideo() {
			return "🎬 video"
		}
		return "🖼️  video thumbnail"
	}
	return "📷 photo"
}
