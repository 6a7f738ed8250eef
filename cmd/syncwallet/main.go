package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/wnt/copytrail/internal/config"
	"github.com/wnt/copytrail/internal/database"
	"github.com/wnt/copytrail/internal/helius"
	"github.com/wnt/copytrail/internal/logger"
	"github.com/wnt/copytrail/internal/pnl"
	"github.com/wnt/copytrail/internal/profile"
	"github.com/wnt/copytrail/internal/store"
	"github.com/wnt/copytrail/internal/syncer"
	"gorm.io/gorm"
)

func main() {
	// Parse command-line arguments
	envFile := flag.String("envFile", ".env", "Path to .env file")
	wallets := flag.String("wallet", "", "Wallet address to sync; comma-separated for a batch (required)")
	force := flag.Bool("force", false, "Ignore the stored cursor and re-sync the full history")
	timeframe := flag.String("timeframe", pnl.TimeframeAll, "Summary timeframe: 24h, 7d, 30d, 90d or all")
	userID := flag.Uint("user", 1, "Owning user ID")
	parallel := flag.Int("parallel", 4, "Concurrent syncs for a batch")
	timeout := flag.Duration("timeout", 15*time.Minute, "Overall run timeout")
	flag.Parse()

	if *wallets == "" {
		fmt.Fprintln(os.Stderr, "Usage: syncwallet -wallet <address>[,<address>...] [-force] [-timeframe all]")
		os.Exit(1)
	}

	// Load environment variables from the specified file
	if err := godotenv.Load(*envFile); err != nil {
		log.Printf("No .env file found at %s, using environment variables", *envFile)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	mainLogger := logger.New(cfg.LogLevel)

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	st := store.New(db)

	provider, err := helius.NewClient(cfg, mainLogger)
	if err != nil {
		log.Fatalf("Failed to initialize provider client: %v", err)
	}

	coordinator := syncer.NewCoordinator(cfg, st, provider, nil, mainLogger)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	addresses := strings.Split(*wallets, ",")
	for i := range addresses {
		addresses[i] = strings.TrimSpace(addresses[i])
	}

	if len(addresses) > 1 {
		results := coordinator.SyncAll(ctx, addresses, *userID, *force, *parallel)
		failed := 0
		for _, entry := range results {
			if entry.Err != nil {
				failed++
				fmt.Fprintf(os.Stderr, "%s: %v\n", entry.Address, entry.Err)
				continue
			}
			fmt.Printf("%s: %d new transactions, %d new trades\n",
				entry.Address, entry.Result.NewTransactions, entry.Result.NewTrades)
		}
		if failed > 0 {
			os.Exit(1)
		}
		return
	}

	result, err := coordinator.Sync(ctx, addresses[0], *userID, *force)
	if err != nil {
		log.Fatalf("Sync failed: %v", err)
	}

	engine := pnl.NewEngine(st, mainLogger)
	summary, err := engine.Summary(ctx, result.WalletID, *timeframe)
	if err != nil {
		log.Fatalf("Failed to summarize wallet: %v", err)
	}

	profiler := profile.NewProfiler(st, mainLogger)
	behavior, err := profiler.Profile(ctx, result.WalletID)
	if err != nil {
		log.Fatalf("Failed to profile wallet: %v", err)
	}

	// A wallet with no trades has no score row yet.
	score, err := st.GetFollowScore(ctx, result.WalletID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Fatalf("Failed to load follow score: %v", err)
	}

	report := map[string]interface{}{
		"sync":         result,
		"summary":      summary,
		"profile":      behavior,
		"follow_score": score,
	}
	encoded, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Fatalf("Failed to encode report: %v", err)
	}
	fmt.Println(string(encoded))
}
