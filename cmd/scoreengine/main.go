package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/moduleforge/fraudscore/internal/domain/fraudmodel"
	"github.com/moduleforge/fraudscore/internal/infrastructure/config"
	"github.com/moduleforge/fraudscore/internal/infrastructure/logging"
	"github.com/moduleforge/fraudscore/internal/infrastructure/metrics"
	"github.com/moduleforge/fraudscore/internal/service/biometric"
	"github.com/moduleforge/fraudscore/internal/service/fraud"
	"github.com/moduleforge/fraudscore/internal/service/graph"
	"github.com/moduleforge/fraudscore/internal/service/history"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		metricsAddr = flag.String("metrics-addr", ":9090", "Address to serve /metrics on")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Environment)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	registry := prometheus.NewRegistry()
	collectors := metrics.New(registry)

	go serveMetrics(*metricsAddr, registry, logger)

	cache := history.New(cfg.Cache, logger, collectors)
	profiler := biometric.New()
	txnGraph := graph.New(cfg.GraphWindowHours, cfg.MinFraudRingSize)

	// No trained classifier is wired in by default (spec.md §4.5:
	// "training is external" to this core); every prediction uses the
	// deterministic heuristic until one is loaded.
	engine := fraud.New(cfg, cache, profiler, txnGraph, nil, logger, collectors)
	defer engine.Stop()

	logger.Info("fraud engine ready",
		zap.String("cache_backend", cache.BackendName()),
		zap.Float64("fraud_threshold", cfg.FraudThreshold),
	)

	if err := scoreStream(context.Background(), engine, logger, os.Stdin, os.Stdout); err != nil {
		log.Fatalf("scoring loop exited with error: %v", err)
	}
}

// scoreStream reads one JSON-encoded Transaction per line from r and
// writes one JSON-encoded FraudScore per line to w, in order. A
// malformed line is rejected at this boundary (spec.md §7: input
// validation never reaches the core) and logged, without aborting the
// stream.
func scoreStream(ctx context.Context, engine *fraud.Engine, logger *zap.Logger, r *os.File, w *os.File) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	encoder := json.NewEncoder(w)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		txn, err := decodeTransaction(line)
		if err != nil {
			logger.Warn("rejecting malformed transaction", zap.Error(err))
			continue
		}

		requestID := uuid.NewString()
		reqLogger := logger.With(zap.String("request_id", requestID), zap.String("transaction_id", txn.TransactionID))

		score := engine.Analyze(ctx, txn)
		reqLogger.Info("scored transaction",
			zap.Float64("fraud_probability", score.FraudProbability),
			zap.Bool("is_fraudulent", score.IsFraudulent),
			zap.Float64("latency_ms", score.LatencyMS),
		)

		if err := encoder.Encode(score); err != nil {
			return fmt.Errorf("encode fraud score: %w", err)
		}
	}
	return scanner.Err()
}

func decodeTransaction(line []byte) (fraudmodel.Transaction, error) {
	var txn fraudmodel.Transaction
	if err := json.Unmarshal(line, &txn); err != nil {
		return fraudmodel.Transaction{}, fmt.Errorf("decode transaction: %w", err)
	}
	if txn.TransactionID == "" {
		return fraudmodel.Transaction{}, fmt.Errorf("transaction_id is required")
	}
	if txn.Amount.IsZero() {
		return fraudmodel.Transaction{}, fmt.Errorf("amount must be positive")
	}
	return txn, nil
}

func serveMetrics(addr string, registry *prometheus.Registry, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("metrics server stopped", zap.Error(err))
	}
}
