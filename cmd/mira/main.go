package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/mirabot/mira/internal/config"
	"github.com/mirabot/mira/internal/consolidate"
	"github.com/mirabot/mira/internal/extract"
	"github.com/mirabot/mira/internal/llm"
	"github.com/mirabot/mira/internal/reconcile"
	"github.com/mirabot/mira/internal/senses"
	"github.com/mirabot/mira/internal/sentiment"
	"github.com/mirabot/mira/internal/store"
)

func main() {
	log.Println("mira - personality-driven chat bot")
	log.Println("==================================")

	// Load .env file (optional - won't error if missing)
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, using environment variables")
	} else {
		log.Println("[config] Loaded .env file")
	}

	discordToken := os.Getenv("DISCORD_TOKEN")
	if discordToken == "" {
		log.Fatal("DISCORD_TOKEN environment variable required")
	}
	apiKey := os.Getenv("OPENAI_API_KEY")

	configPath := os.Getenv("MIRA_CONFIG")
	if configPath == "" {
		configPath = "mira.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("Failed to create data dir: %v", err)
	}
	tenants := store.NewTenants(cfg.DataDir)
	defer tenants.CloseAll()

	completions, err := llm.NewClient(llm.Config{
		Endpoint: cfg.LLM.Endpoint,
		Model:    cfg.LLM.Model,
		APIKey:   apiKey,
	})
	if err != nil {
		log.Fatalf("Failed to create completion client: %v", err)
	}

	discord, err := senses.NewDiscordSense(senses.DiscordConfig{
		Token:     discordToken,
		ChannelID: cfg.Discord.ChannelID,
	}, tenants)
	if err != nil {
		log.Fatalf("Failed to create Discord sense: %v", err)
	}
	if err := discord.Start(); err != nil {
		log.Fatalf("Failed to start Discord sense: %v", err)
	}
	defer discord.Stop()

	runAll := func() {
		for guildID, db := range tenants.Open() {
			analyzer := sentiment.New(completions, false)
			analyzer.MinMessages = cfg.Consolidation.MinMessages
			c := consolidate.New(db,
				extract.New(completions, false),
				analyzer,
				reconcile.New(completions, false),
				discord.BotUserID())

			result, err := c.Run(context.Background())
			if err != nil {
				log.Printf("[main] consolidation failed for guild %s: %v", guildID, err)
				continue
			}
			log.Printf("[main] guild %s: %d users, %d facts, %d errors",
				guildID, result.UsersProcessed, result.FactsAdded, result.Errors)
		}
	}

	var scheduler *cron.Cron
	if cfg.Consolidation.Schedule != "" {
		scheduler = cron.New()
		if _, err := scheduler.AddFunc(cfg.Consolidation.Schedule, runAll); err != nil {
			log.Fatalf("Bad consolidation schedule %q: %v", cfg.Consolidation.Schedule, err)
		}
		scheduler.Start()
		defer scheduler.Stop()
		log.Printf("[main] consolidation scheduled: %s", cfg.Consolidation.Schedule)
	} else {
		log.Println("[main] consolidation scheduling disabled")
	}

	log.Println("[main] running, press Ctrl+C to stop")
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("[main] shutting down")
}
