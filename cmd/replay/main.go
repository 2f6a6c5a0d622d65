// Command replay re-executes stored trade logs against fresh curves and
// reports any divergence from the stored curve states. Exits 1 on divergence.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"fairlaunch/internal/config"
	pgstore "fairlaunch/internal/storage/postgres"
	"fairlaunch/internal/verification"
)

func main() {
	config.LoadEnvFile(".env")

	// Parse flags
	configPath := flag.String("config", os.Getenv("FAIRLAUNCH_CONFIG"), "Path to YAML config file (curve rules must match the server)")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string (overrides config)")
	tokenID := flag.String("token-id", "", "Verify a single token (default: all tokens)")
	outputJSON := flag.Bool("json", false, "Output as JSON")
	verbose := flag.Bool("verbose", false, "Log every verified token")

	flag.Parse()

	logger := log.New(os.Stderr, "[replay] ", log.LstdFlags)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	dsn := cfg.Storage.PostgresDSN
	if *postgresDSN != "" {
		dsn = *postgresDSN
	}
	if dsn == "" {
		logger.Fatal("--postgres-dsn or POSTGRES_DSN is required")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	pool, err := pgstore.NewPool(ctx, dsn)
	if err != nil {
		logger.Fatalf("connect to postgres: %v", err)
	}
	defer pool.Close()

	verifier := verification.NewReplayVerifier(verification.ReplayVerifierOptions{
		TradeStore:  pgstore.NewTradeRecordStore(pool),
		StateStore:  pgstore.NewCurveStateStore(pool),
		CurveConfig: cfg.Curve.Config,
		Logger:      logger,
		Verbose:     *verbose,
	})

	var report *verification.Report
	if *tokenID != "" {
		res, err := verifier.VerifyToken(ctx, *tokenID)
		if err != nil {
			logger.Fatalf("verify %s: %v", *tokenID, err)
		}
		report = singleReport(res)
	} else {
		report, err = verifier.VerifyAll(ctx)
		if err != nil {
			logger.Fatalf("verify: %v", err)
		}
	}

	if *outputJSON {
		output, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(output))
	} else {
		printReport(report)
	}

	if report.DivergentTokens > 0 {
		pool.Close()
		os.Exit(1)
	}
}

func singleReport(res *verification.TokenResult) *verification.Report {
	r := &verification.Report{
		TotalTokens: 1,
		TotalTrades: res.Trades,
		Results:     []verification.TokenResult{*res},
	}
	if res.Match {
		r.MatchedTokens = 1
	} else {
		r.DivergentTokens = 1
	}
	return r
}

func printReport(r *verification.Report) {
	for _, res := range r.Results {
		status := "OK"
		if !res.Match {
			status = "DIVERGED"
		}
		fmt.Printf("%-8s %s (%d trades)\n", status, res.TokenID, res.Trades)
		for _, d := range res.Divergences {
			fmt.Printf("         %s\n", d)
		}
	}

	fmt.Printf("\n=== Replay Summary ===\n")
	fmt.Printf("Tokens:            %d\n", r.TotalTokens)
	fmt.Printf("Matched:           %d\n", r.MatchedTokens)
	fmt.Printf("Divergent:         %d\n", r.DivergentTokens)
	fmt.Printf("Trades replayed:   %d\n", r.TotalTrades)
}
