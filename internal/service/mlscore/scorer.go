// Package mlscore implements the ML Scorer (spec.md §4.5): fixed-length
// feature extraction from a transaction plus its cached history, and a
// fraud-probability prediction that falls back to a deterministic
// heuristic whenever no trained classifier is loaded or inference
// faults.
package mlscore

import (
	"math"

	"github.com/moduleforge/fraudscore/internal/domain/fraudmodel"
)

// FeatureVector holds the nine engineered features spec.md §4.5 and
// §9 define, addressed by field rather than by index so a future
// classifier implementation never has to reason about positional
// coupling.
type FeatureVector struct {
	Amount           float64
	HourOfDay        int
	DayOfWeek        int // Monday = 0
	AmountLog        float64
	SenderTxnCount   int64
	ReceiverTxnCount int64
	AmountVelocity   int64
	DeviceChanged    bool
	IPChanged        bool
}

// ExtractFeatures builds a FeatureVector from a transaction and the
// sender/receiver's cached history, as it stood before this
// transaction's own history update runs.
//
// device_changed and ip_changed are computed here directly from
// senderHistory's pre-update last-seen device/IP rather than read off
// senderHistory.DeviceChanged/IPChanged: those stored flags describe
// the PREVIOUS transaction's change, since the History Cache only
// recomputes them during its own update step, which the engine runs
// after scoring. Reusing the stale flag would score every transaction
// against a one-transaction-old signal.
func ExtractFeatures(txn fraudmodel.Transaction, senderHistory, receiverHistory fraudmodel.UserHistory) FeatureVector {
	amount := txn.Amount.Float64()
	// time.Weekday has Sunday = 0; spec.md wants Monday = 0.
	weekday := (int(txn.Timestamp.Weekday()) + 6) % 7

	hasSenderHistory := senderHistory.TxnCount > 0
	deviceChanged := hasSenderHistory && senderHistory.LastDevice != txn.DeviceID
	ipChanged := hasSenderHistory && senderHistory.LastIP != txn.IPAddress

	return FeatureVector{
		Amount:           amount,
		HourOfDay:        txn.Timestamp.Hour(),
		DayOfWeek:        weekday,
		AmountLog:        math.Log1p(amount),
		SenderTxnCount:   senderHistory.TxnCount,
		ReceiverTxnCount: receiverHistory.TxnCount,
		AmountVelocity:   senderHistory.AmountVelocity,
		DeviceChanged:    deviceChanged,
		IPChanged:        ipChanged,
	}
}

// Classifier is the capability a trained model must provide. A real
// implementation (e.g. a loaded gradient-boosted tree) would satisfy
// this; none is wired in by default, so Scorer falls back to the
// heuristic (spec.md §4.5: "training is external" to this core).
type Classifier interface {
	// Predict returns the positive-class probability for features, or
	// an error if inference faulted.
	Predict(features FeatureVector) (float64, error)
}

// Scorer predicts fraud probability from a FeatureVector, preferring a
// loaded Classifier and falling back to a deterministic heuristic on a
// nil classifier or any inference fault.
type Scorer struct {
	classifier Classifier
}

// New creates a Scorer. classifier may be nil, in which case every
// prediction uses the heuristic.
func New(classifier Classifier) *Scorer {
	return &Scorer{classifier: classifier}
}

// Predict returns the fraud probability for features.
func (s *Scorer) Predict(features FeatureVector) float64 {
	if s.classifier == nil {
		return heuristicScore(features)
	}
	p, err := s.classifier.Predict(features)
	if err != nil {
		return heuristicScore(features)
	}
	return p
}

// heuristicScore is the deterministic lower-bound fallback spec.md
// §4.5 defines.
func heuristicScore(f FeatureVector) float64 {
	var score float64

	if f.Amount > 50000 {
		score += 0.3
	}
	if f.HourOfDay < 5 {
		score += 0.2
	}
	if f.AmountVelocity > 5 {
		score += 0.3
	}
	if f.DeviceChanged || f.IPChanged {
		score += 0.2
	}

	return math.Min(score, 1.0)
}
