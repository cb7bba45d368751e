package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voicestats/internal/cache"
	"voicestats/internal/clock"
	"voicestats/internal/config"
	"voicestats/internal/database"
	"voicestats/internal/discord"
	"voicestats/internal/logging"
	"voicestats/internal/voice"
)

func main() {
	log := logging.Init()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize database
	db, err := database.New(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Connect to the cache store
	cacheClient, err := cache.New(cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer cacheClient.Close()

	// Build the accrual engine
	calendar := clock.NewCalendar(cfg.TZOffsetHours)
	repository := database.NewRepository(db)
	sessions := voice.NewSessionStore(cacheClient)
	ledger := voice.NewLedger(cacheClient)
	names := voice.NewNameCache(cacheClient)
	flusher := voice.NewFlusher(ledger, names, sessions, repository, calendar, log)
	tracker := voice.NewTracker(sessions, ledger, flusher, calendar, log)
	registry := voice.NewTempChannelRegistry(cacheClient)
	policy := voice.NewTempChannelPolicy(cfg.SpawnChannelIDs, registry)

	// Initialize Discord bot
	bot, err := discord.New(cfg.DiscordToken, tracker, names, repository, calendar, policy, registry, log)
	if err != nil {
		log.Fatalf("Failed to create Discord bot: %v", err)
	}

	// Start bot
	if err := bot.Start(); err != nil {
		log.Fatalf("Failed to start bot: %v", err)
	}
	defer bot.Stop()

	// Periodic catch-up flush for long-lived sessions
	stop := make(chan struct{})
	go runSweep(flusher, cfg.FlushInterval, stop)

	// Wait for interrupt signal
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	close(stop)
	log.Infow("shutting down bot")
}

func runSweep(flusher *voice.Flusher, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			if err := flusher.FlushAllToday(ctx); err != nil {
				logging.Sugar().Warnw("periodic flush failed", "error", err)
			}
			cancel()
		case <-stop:
			return
		}
	}
}
