// Package biometric implements the Biometric Profiler (spec.md §4.3):
// a per-user rolling sample window for four behavioral channels, and an
// anomaly score for a new sample against that window.
package biometric

import (
	"math"
	"sync"

	"github.com/moduleforge/fraudscore/internal/domain/fraudmodel"
)

const (
	maxSamplesPerChannel = 100
	minSamplesForScoring = 5
)

// Profiler holds every user's rolling biometric windows. The map is
// guarded by a single mutex (spec.md §5: "global lock permitted given
// N=100 bound per user"); each user's channel slices additionally have
// their own mutex so concurrent scoring and updating for different
// users never contend.
type Profiler struct {
	mu       sync.Mutex
	profiles map[string]*userProfile
}

type userProfile struct {
	mu       sync.Mutex
	channels [len(fraudmodel.AllChannels)][]float64
}

// New creates an empty Profiler.
func New() *Profiler {
	return &Profiler{profiles: make(map[string]*userProfile)}
}

func (p *Profiler) getOrCreate(userID string) *userProfile {
	p.mu.Lock()
	defer p.mu.Unlock()

	up, ok := p.profiles[userID]
	if !ok {
		up = &userProfile{}
		p.profiles[userID] = up
	}
	return up
}

func (p *Profiler) get(userID string) (*userProfile, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	up, ok := p.profiles[userID]
	return up, ok
}

// UpdateProfile appends every present channel value from sample onto
// userID's rolling window, truncating each channel to the most recent
// 100 samples.
func (p *Profiler) UpdateProfile(userID string, sample *fraudmodel.BiometricSample) {
	if sample == nil {
		return
	}
	up := p.getOrCreate(userID)

	up.mu.Lock()
	defer up.mu.Unlock()
	for _, ch := range fraudmodel.AllChannels {
		v, present := sample.Value(ch)
		if !present {
			continue
		}
		seq := append(up.channels[ch], v)
		if len(seq) > maxSamplesPerChannel {
			seq = seq[len(seq)-maxSamplesPerChannel:]
		}
		up.channels[ch] = seq
	}
}

// AnomalyScore compares sample against userID's rolling window as it
// stood before any update from this same call - callers must invoke
// this before UpdateProfile for the same sample (spec.md §4.3:
// "profile updates for the current sample happen AFTER scoring").
func (p *Profiler) AnomalyScore(userID string, sample *fraudmodel.BiometricSample) float64 {
	up, ok := p.get(userID)
	if !ok {
		return 0.5
	}
	if sample == nil {
		return 0.5
	}

	up.mu.Lock()
	defer up.mu.Unlock()

	var scores []float64
	for _, ch := range fraudmodel.AllChannels {
		v, present := sample.Value(ch)
		if !present {
			continue
		}
		history := up.channels[ch]
		if len(history) < minSamplesForScoring {
			continue
		}
		scores = append(scores, deviationScore(v, history))
	}

	if len(scores) == 0 {
		return 0.5
	}

	var sum float64
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores))
}

// deviationScore maps a value's z-score against history's population
// mean/stdev onto the fixed [0,1] scale spec.md §4.3 defines.
func deviationScore(v float64, history []float64) float64 {
	mean := populationMean(history)
	stddev := populationStdDev(history, mean)

	if stddev == 0 {
		if math.Abs(v-mean) < 0.01 {
			return 0.0
		}
		return 1.0
	}

	z := math.Abs(v-mean) / stddev
	switch {
	case z > 3:
		return 0.95
	case z > 2:
		return 0.75
	case z > 1:
		return 0.4
	default:
		return 0.1
	}
}

func populationMean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func populationStdDev(values []float64, mean float64) float64 {
	var sumSq float64
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)))
}
