// One-shot consolidation over a single guild database. Useful for
// testing prompts and for manual runs while the daemon is stopped.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/mirabot/mira/internal/consolidate"
	"github.com/mirabot/mira/internal/extract"
	"github.com/mirabot/mira/internal/llm"
	"github.com/mirabot/mira/internal/reconcile"
	"github.com/mirabot/mira/internal/sentiment"
	"github.com/mirabot/mira/internal/store"
)

func main() {
	dbPath := flag.String("db", "", "Path to guild database file")
	botID := flag.Int64("bot-id", 0, "Bot user ID (excluded from processing)")
	model := flag.String("model", "gpt-4o-mini", "Completion model")
	endpoint := flag.String("endpoint", "", "OpenAI-compatible endpoint (default: api.openai.com)")
	minMessages := flag.Int("min-messages", sentiment.MinMessages, "Minimum messages for sentiment analysis")
	dryRun := flag.Bool("dry-run", false, "Print log stats without consolidating")
	verbose := flag.Bool("verbose", false, "Verbose output")
	flag.Parse()

	if *dbPath == "" {
		log.Fatal("-db is required")
	}

	godotenv.Load()

	db, err := store.Open(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	stats, err := db.Stats()
	if err != nil {
		log.Fatalf("Failed to get stats: %v", err)
	}
	log.Printf("Database: %s", *dbPath)
	log.Printf("  Users: %d", stats["users"])
	log.Printf("  Facts: %d", stats["long_term_memory"])
	log.Printf("  Short-term log entries: %d", stats["short_term_message_log"])
	log.Printf("  Archived messages: %d", stats["message_archive"])

	if *dryRun {
		log.Println("Dry run - exiting")
		return
	}

	completions, err := llm.NewClient(llm.Config{
		Endpoint: *endpoint,
		Model:    *model,
		APIKey:   os.Getenv("OPENAI_API_KEY"),
		Verbose:  *verbose,
	})
	if err != nil {
		log.Fatalf("Failed to create completion client: %v", err)
	}

	analyzer := sentiment.New(completions, *verbose)
	analyzer.MinMessages = *minMessages

	c := consolidate.New(db,
		extract.New(completions, *verbose),
		analyzer,
		reconcile.New(completions, *verbose),
		*botID)

	result, err := c.Run(context.Background())
	if err != nil {
		log.Fatalf("Consolidation failed: %v", err)
	}

	log.Println("Consolidation complete:")
	log.Printf("  Users processed: %d", result.UsersProcessed)
	log.Printf("  Facts added: %d", result.FactsAdded)
	log.Printf("  Errors: %d", result.Errors)
	if result.ArchiveFile != "" {
		log.Printf("  Archived %d messages to %s", result.Archived, result.ArchiveFile)
	}
}
