// Example: a dry run of the entry loop against a simulated contest form.
// This example demonstrates how to:
//   - Build an App from the default configuration pointed at a scratch directory
//   - Plug in a custom Submitter instead of the browser driver
//   - Watch probes lose until one wins and the real entry is confirmed
//   - Read the attempt history afterwards

package main

import (
	"context"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/osmike/sweeper"
	"github.com/osmike/sweeper/internal/config"
	"github.com/osmike/sweeper/internal/domain"

	"go.uber.org/zap"
)

// luckyForm wins one probe in winEvery and always confirms a real entry.
type luckyForm struct {
	winEvery int
}

func (f luckyForm) Submit(_ context.Context, a sweeper.Attempt) sweeper.Outcome {
	if a.Mode == domain.Real {
		return sweeper.Outcome{Result: domain.Won}
	}
	if rand.IntN(f.winEvery) == 0 {
		return sweeper.Outcome{Result: domain.Won}
	}
	return sweeper.Outcome{Result: domain.Lost}
}

func main() {
	dir, err := os.MkdirTemp("", "sweeper-dryrun")
	if err != nil {
		log.Fatalf("Failed to create scratch dir: %v", err)
	}
	defer os.RemoveAll(dir)

	cfg := scratchConfig(dir)
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	app, err := sweeper.New(cfg, logger, sweeper.Options{Submitter: luckyForm{winEvery: 5}})
	if err != nil {
		log.Fatalf("Failed to build app: %v", err)
	}
	defer app.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	fmt.Println("[Sweeper] Dry run started")
	if err := app.Run(ctx); err != nil {
		log.Fatalf("Run stopped: %v", err)
	}
	fmt.Printf("[Sweeper] Halted: %t\n", app.Halted())

	history, err := app.History(0)
	if err != nil {
		log.Fatalf("Failed to read history: %v", err)
	}
	for _, a := range history {
		fmt.Printf("[Sweeper] %-5s %-7s %s\n", a.Mode, a.Result, a.Identity)
	}
}

func scratchConfig(dir string) *config.Config {
	must := func(rel, content string) {
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			log.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			log.Fatal(err)
		}
	}
	must("addresses.csv", "Email,FirstName,TimesUsed,LastUsedDate\nreal@example.com,Ann,0,\n")
	must("dummy_addresses.csv", "Email,LastUsedDate\nprobe1@example.com,\nprobe2@example.com,\n")
	must("receipts/fresh/receipt-001.jpg", "receipt")
	must("dummy_receipts/dummy.png", "dummy")

	cfg := config.DefaultConfig()
	cfg.Schedule.Every = "100ms"
	cfg.Schedule.CheckInterval = "10ms"
	cfg.Schedule.RunImmediately = true
	cfg.Confirm.Backoff = "10ms"
	cfg.Real.Table = filepath.Join(dir, "addresses.csv")
	cfg.Real.ReceiptsDir = filepath.Join(dir, "receipts/fresh")
	cfg.Real.UsedReceiptsDir = filepath.Join(dir, "receipts/used")
	cfg.Probe.Table = filepath.Join(dir, "dummy_addresses.csv")
	cfg.Probe.ReceiptsDir = filepath.Join(dir, "dummy_receipts")
	cfg.History.Path = filepath.Join(dir, "history.db")
	cfg.Logging.Dir = filepath.Join(dir, "logs")
	cfg.Driver.URL = "https://contest.example/Enter"
	return cfg
}
