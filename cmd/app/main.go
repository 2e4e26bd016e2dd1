package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"sort"

	"RangePull/internal/batch"
	"RangePull/internal/di"
	"RangePull/internal/domain/models"
	"RangePull/pkg/config"
	applogger "RangePull/pkg/logger"
	"RangePull/pkg/metrics"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "config/config.yaml", "config file path")
	mode := flag.String("mode", "stream", "run mode: stream or batch")
	input := flag.String("input", "", "batch mode: JSONL trade file (one trade per line)")
	flag.Parse()

	// Load config
	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	if *mode == "batch" {
		runBatch(cfg, *input)
		return
	}

	log.Printf("env=%s backend=%s threshold=%d decibps", cfg.Environment, cfg.Backend.Type, cfg.RangeBar.ThresholdDecibps)

	// Wire DI: Initialize all dependencies
	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	log.Printf("clickhouse: connected and schema ready - db: %s", cfg.ClickHouse.Database)
	log.Printf("kafka: connected brokers=%v topic=%s", cfg.Kafka.Brokers, cfg.Kafka.Topic)

	// Run application (blocks until signal)
	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}

// runBatch converts a JSONL trade file into range bars on the worker pool
// and writes the per-symbol results as JSON to stdout.
func runBatch(cfg *config.Config, input string) {
	if input == "" {
		log.Fatal("batch mode requires -input")
	}

	f, err := os.Open(input)
	if err != nil {
		log.Fatalf("open input: %v", err)
	}
	defer f.Close()

	var trades []*models.Trade
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var t models.Trade
		if err := json.Unmarshal(line, &t); err != nil {
			log.Fatalf("parse trade: %v", err)
		}
		trades = append(trades, &t)
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("read input: %v", err)
	}

	lg, err := applogger.New(&applogger.Config{Level: "warn", Format: "console", Output: "stderr"})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}

	engine, err := batch.New(batch.Config{
		ThresholdDecibps: cfg.RangeBar.ThresholdDecibps,
		Workers:          cfg.Batch.Workers,
		ValidateVolume:   cfg.Batch.ValidateVolume,
	}, lg, metrics.New())
	if err != nil {
		log.Fatalf("batch engine: %v", err)
	}

	results, err := engine.Process(context.Background(), trades)
	if err != nil {
		log.Fatalf("batch process: %v", err)
	}

	symbols := make([]string, 0, len(results))
	failed := false
	for sym, res := range results {
		symbols = append(symbols, sym)
		if res.Err != nil {
			failed = true
			log.Printf("symbol %s rejected: %v", sym, res.Err)
		}
	}
	sort.Strings(symbols)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for _, sym := range symbols {
		if err := enc.Encode(results[sym]); err != nil {
			log.Fatalf("encode result: %v", err)
		}
	}
	if failed {
		os.Exit(1)
	}
}
