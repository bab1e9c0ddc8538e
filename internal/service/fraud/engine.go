// Package fraud implements the Fraud Engine (spec.md §4.1): the
// orchestrator that fans a transaction out to the ML, Graph, and
// Biometric detectors concurrently, fuses their scores by fixed
// weight, applies the decision threshold, and updates the stateful
// substrates the detectors read.
package fraud

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/moduleforge/fraudscore/internal/domain/fraudmodel"
	"github.com/moduleforge/fraudscore/internal/infrastructure/config"
	"github.com/moduleforge/fraudscore/internal/infrastructure/metrics"
	"github.com/moduleforge/fraudscore/internal/service/biometric"
	"github.com/moduleforge/fraudscore/internal/service/graph"
	"github.com/moduleforge/fraudscore/internal/service/history"
	"github.com/moduleforge/fraudscore/internal/service/mlscore"
)

const (
	defaultMLScore        = 0.5
	defaultGraphScore     = 0.0
	defaultBiometricScore = 0.5

	// reasonThreshold is the per-signal cutoff spec.md §4.1 step 8 uses
	// to attribute a fraudulent verdict to individual detectors.
	reasonThreshold = 0.7
)

// Engine is the fraud-scoring orchestrator. Construct with New; it owns
// a worker pool and the Graph/Biometric state for its entire lifetime,
// so it must be stopped with Stop when no longer needed.
type Engine struct {
	cfg        *config.Config
	cache      *history.Cache
	profiler   *biometric.Profiler
	graph      *graph.Graph
	scorer     *mlscore.Scorer
	pool       *workerPool
	logger     *zap.Logger
	collectors *metrics.Collectors
}

// New wires an Engine from its configuration and collaborators. cache,
// profiler, and graph are constructed by the caller (main wiring) so
// tests can substitute fakes/in-memory variants freely; classifier may
// be nil, in which case the ML Scorer always falls back to its
// heuristic.
func New(cfg *config.Config, cache *history.Cache, profiler *biometric.Profiler, g *graph.Graph, classifier mlscore.Classifier, logger *zap.Logger, collectors *metrics.Collectors) *Engine {
	return &Engine{
		cfg:        cfg,
		cache:      cache,
		profiler:   profiler,
		graph:      g,
		scorer:     mlscore.New(classifier),
		pool:       newWorkerPool(3),
		logger:     logger,
		collectors: collectors,
	}
}

// Stop tears down the engine's worker pool, waiting for any in-flight
// detector tasks to drain.
func (e *Engine) Stop() {
	e.pool.stop()
}

// Analyze scores a single transaction end to end (spec.md §4.1). It
// never returns an error: every syntactically valid Transaction yields
// a FraudScore, with detector faults and timeouts substituted by fixed
// defaults rather than propagated.
func (e *Engine) Analyze(ctx context.Context, txn fraudmodel.Transaction) fraudmodel.FraudScore {
	start := time.Now()

	// Detectors see history as of task-start, not as mutated by this
	// same call's post-scoring update (spec.md §5).
	senderHistory := e.cache.GetUserHistory(ctx, txn.SenderID)
	receiverHistory := e.cache.GetUserHistory(ctx, txn.ReceiverID)

	// All three detectors are submitted to the pool before any is
	// awaited, so they run concurrently and the wait below is bounded
	// by the slowest detector's own timeout rather than the sum of all
	// three (spec.md §4.1 step 2: "They must run in parallel (not
	// sequentially)"; §5: "each task's deadline is independent").
	mlPending := e.submitML(txn, senderHistory, receiverHistory)
	graphPending := e.submitGraph(txn)
	biometricPending := e.submitBiometric(txn)

	mlScore := e.awaitDetector("ml", mlPending)
	graphScore := e.awaitDetector("graph", graphPending)
	biometricScore := e.awaitDetector("biometric", biometricPending)

	p := e.cfg.MLScoreWeight*mlScore + e.cfg.GraphScoreWeight*graphScore + e.cfg.BiometricWeight*biometricScore
	isFraudulent := p >= e.cfg.FraudThreshold

	latencyMS := float64(time.Since(start)) / float64(time.Millisecond)

	// History update happens after scoring so it can never affect the
	// call that produced it (spec.md §4.1 step 7).
	e.cache.UpdateUserHistory(ctx, txn.SenderID, txn.DeviceID, txn.IPAddress, txn.Timestamp)
	e.cache.UpdateUserHistory(ctx, txn.ReceiverID, txn.DeviceID, txn.IPAddress, txn.Timestamp)
	e.cache.IncrementTransactionCount(ctx, txn.SenderID, 0)

	var reason string
	if isFraudulent {
		reason = buildReason(mlScore, graphScore, biometricScore)
	}

	if e.collectors != nil {
		e.collectors.AnalyzeLatency.Observe(time.Since(start).Seconds())
		e.collectors.Decisions.WithLabelValues(fmt.Sprintf("%t", isFraudulent)).Inc()
	}

	return fraudmodel.FraudScore{
		TransactionID:    txn.TransactionID,
		FraudProbability: round4(p),
		MLScore:          round4(mlScore),
		GraphScore:       round4(graphScore),
		BiometricScore:   round4(biometricScore),
		IsFraudulent:     isFraudulent,
		LatencyMS:        round2(latencyMS),
		Reason:           reason,
	}
}

func (e *Engine) submitML(txn fraudmodel.Transaction, senderHistory, receiverHistory fraudmodel.UserHistory) *pendingDetector {
	return submitDetector(e.pool, e.cfg.MLScoringTimeout, func() float64 {
		features := mlscore.ExtractFeatures(txn, senderHistory, receiverHistory)
		return e.scorer.Predict(features)
	}, defaultMLScore)
}

func (e *Engine) submitGraph(txn fraudmodel.Transaction) *pendingDetector {
	return submitDetector(e.pool, e.cfg.GraphAnalysisTimeout, func() float64 {
		e.graph.AddTransaction(txn.SenderID, txn.ReceiverID, txn.Amount, txn.Timestamp)
		return e.graph.DetectFraudRing(txn.SenderID, txn.ReceiverID).Score
	}, defaultGraphScore)
}

func (e *Engine) submitBiometric(txn fraudmodel.Transaction) *pendingDetector {
	return submitDetector(e.pool, e.cfg.BiometricTimeout, func() float64 {
		if txn.Biometric == nil {
			return defaultBiometricScore
		}
		score := e.profiler.AnomalyScore(txn.SenderID, txn.Biometric)
		e.profiler.UpdateProfile(txn.SenderID, txn.Biometric)
		return score
	}, defaultBiometricScore)
}

// awaitDetector blocks for the detector's own deadline and records its
// observed latency and, on expiry, its timeout count.
func (e *Engine) awaitDetector(name string, p *pendingDetector) float64 {
	score, ok, elapsed := p.await()
	if e.collectors != nil {
		e.collectors.DetectorLatency.WithLabelValues(name).Observe(elapsed.Seconds())
		if !ok {
			e.collectors.DetectorTimeouts.WithLabelValues(name).Inc()
		}
	}
	return score
}

// buildReason concatenates the per-signal explanations for a
// fraudulent verdict (spec.md §4.1 step 8).
func buildReason(mlScore, graphScore, biometricScore float64) string {
	var reasons []string
	if mlScore > reasonThreshold {
		reasons = append(reasons, "High ML risk score")
	}
	if graphScore > reasonThreshold {
		reasons = append(reasons, "Fraud ring detected")
	}
	if biometricScore > reasonThreshold {
		reasons = append(reasons, "Biometric anomaly")
	}
	if len(reasons) == 0 {
		return "Multiple risk factors"
	}
	return strings.Join(reasons, "; ")
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
