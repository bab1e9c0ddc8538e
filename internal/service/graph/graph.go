// Package graph implements the Graph Analyzer (spec.md §4.4): a
// time-windowed directed multigraph of sender to receiver transactions
// used to detect fraud rings (cycles), mule accounts (high in/out
// degree), and velocity bursts.
//
// The graph never exposes its internal adjacency to callers - only
// AddTransaction and DetectFraudRing, guarded by a single coarse
// RWMutex, per spec.md §9 ("do not expose the graph data structure").
package graph

import (
	"sort"
	"sync"
	"time"

	"github.com/moduleforge/fraudscore/internal/domain/fraudmodel"
)

const (
	velocityWindow    = time.Hour
	velocityThreshold = 10
	velocityDivisor   = 20.0
	// maxInducedSubgraphSize bounds cycle enumeration cost; above this
	// spec.md §4.4 permits skipping straight to the velocity/mule
	// fallback rather than exploring an unbounded search space.
	maxInducedSubgraphSize = 64
)

type edgeData struct {
	weight      int64
	totalAmount fraudmodel.Money
}

// Graph is the sliding-window transaction graph. Zero value is not
// usable; construct with New.
type Graph struct {
	mu sync.RWMutex

	windowHours int
	minRingSize int

	out           map[string]map[string]*edgeData
	in            map[string]map[string]*edgeData
	outgoingTimes map[string][]time.Time
}

// New creates an empty Graph with the given sliding window (hours) and
// minimum ring size for cycle-based fraud detection.
func New(windowHours, minRingSize int) *Graph {
	return &Graph{
		windowHours:   windowHours,
		minRingSize:   minRingSize,
		out:           make(map[string]map[string]*edgeData),
		in:            make(map[string]map[string]*edgeData),
		outgoingTimes: make(map[string][]time.Time),
	}
}

func (g *Graph) hasNode(id string) bool {
	_, hasOut := g.out[id]
	_, hasIn := g.in[id]
	_, hasTimes := g.outgoingTimes[id]
	return hasOut || hasIn || hasTimes
}

func (g *Graph) ensureNode(id string) {
	if _, ok := g.out[id]; !ok {
		g.out[id] = make(map[string]*edgeData)
	}
	if _, ok := g.in[id]; !ok {
		g.in[id] = make(map[string]*edgeData)
	}
}

// AddTransaction inserts one sender to receiver edge and then evicts
// every node whose most recent outgoing transaction has aged out of
// the sliding window, using timestamp as "now" for expiry (event time,
// spec.md §9 - deliberately distinct from the wall-clock time
// VelocityScore uses).
func (g *Graph) AddTransaction(sender, receiver string, amount fraudmodel.Money, timestamp time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.ensureNode(sender)
	g.ensureNode(receiver)

	if e, ok := g.out[sender][receiver]; ok {
		e.weight++
		e.totalAmount = e.totalAmount.Add(amount)
	} else {
		e := &edgeData{weight: 1, totalAmount: amount}
		g.out[sender][receiver] = e
		g.in[receiver][sender] = e
	}

	g.outgoingTimes[sender] = append(g.outgoingTimes[sender], timestamp)

	g.evictExpired(timestamp)
}

func (g *Graph) evictExpired(now time.Time) {
	cutoff := now.Add(-time.Duration(g.windowHours) * time.Hour)

	var toEvict []string
	for node, times := range g.outgoingTimes {
		if len(times) == 0 {
			continue
		}
		if maxTime(times).Before(cutoff) {
			toEvict = append(toEvict, node)
		}
	}
	for _, node := range toEvict {
		g.removeNode(node)
	}
}

func (g *Graph) removeNode(node string) {
	for receiver := range g.out[node] {
		delete(g.in[receiver], node)
	}
	for sender := range g.in[node] {
		delete(g.out[sender], node)
	}
	delete(g.out, node)
	delete(g.in, node)
	delete(g.outgoingTimes, node)
}

func maxTime(ts []time.Time) time.Time {
	m := ts[0]
	for _, t := range ts[1:] {
		if t.After(m) {
			m = t
		}
	}
	return m
}

// RingResult is the outcome of DetectFraudRing.
type RingResult struct {
	Score float64
	Ring  map[string]struct{}
}

// DetectFraudRing implements spec.md §4.4: it looks for an elementary
// cycle of at least minRingSize nodes in the local subgraph induced by
// {sender, receiver} ∪ successors(sender) ∪ predecessors(receiver); if
// none is found it falls back to the max of velocity and mule scores.
func (g *Graph) DetectFraudRing(sender, receiver string) (result RingResult) {
	result.Ring = map[string]struct{}{}

	g.mu.RLock()
	defer g.mu.RUnlock()

	if !g.hasNode(sender) || !g.hasNode(receiver) {
		return result
	}

	if ring := g.findRingSafely(sender, receiver); len(ring) > 0 {
		result.Score = 0.9
		result.Ring = ring
		return result
	}

	v := g.velocityScoreLocked(sender)
	m := g.muleScoreLocked(receiver)
	result.Score = max(v, m)
	return result
}

// findRingSafely never lets a cycle-enumeration fault escape to the
// caller (spec.md §4.4: "never propagate the fault").
func (g *Graph) findRingSafely(sender, receiver string) (ring map[string]struct{}) {
	defer func() {
		if recover() != nil {
			ring = nil
		}
	}()
	return g.findRingLocked(sender, receiver)
}

func (g *Graph) findRingLocked(sender, receiver string) map[string]struct{} {
	nodeSet := map[string]struct{}{sender: {}, receiver: {}}
	for successor := range g.out[sender] {
		nodeSet[successor] = struct{}{}
	}
	for predecessor := range g.in[receiver] {
		nodeSet[predecessor] = struct{}{}
	}

	if len(nodeSet) > maxInducedSubgraphSize {
		return nil
	}

	nodes := make([]string, 0, len(nodeSet))
	for n := range nodeSet {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)

	adj := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		for neighbor := range g.out[n] {
			if _, inSet := nodeSet[neighbor]; inSet {
				adj[n] = append(adj[n], neighbor)
			}
		}
	}

	ring := map[string]struct{}{}
	for _, cycle := range elementaryCycles(nodes, adj) {
		if len(cycle) >= g.minRingSize {
			for _, n := range cycle {
				ring[n] = struct{}{}
			}
		}
	}
	return ring
}

// elementaryCycles enumerates every elementary (simple) directed cycle
// in the graph described by adj, restricted to the given node set.
// Each cycle is reported exactly once, rooted at the lowest-index node
// on it - the same duplicate-avoidance technique Johnson's algorithm
// uses, without its blocking-set performance optimization (acceptable
// given the caller bounds |nodes| to maxInducedSubgraphSize).
func elementaryCycles(nodes []string, adj map[string][]string) [][]string {
	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		index[n] = i
	}

	var cycles [][]string
	for i, start := range nodes {
		visited := map[string]bool{start: true}
		path := []string{start}

		var dfs func(v string)
		dfs = func(v string) {
			for _, w := range adj[v] {
				if index[w] < i {
					continue
				}
				if w == start {
					cyc := make([]string, len(path))
					copy(cyc, path)
					cycles = append(cycles, cyc)
					continue
				}
				if visited[w] {
					continue
				}
				visited[w] = true
				path = append(path, w)
				dfs(w)
				path = path[:len(path)-1]
				visited[w] = false
			}
		}
		dfs(start)
	}
	return cycles
}

// VelocityScore reports node's outgoing burst score using wall-clock
// "now" (spec.md §9: intentionally distinct from the graph's event-time
// expiry).
func (g *Graph) VelocityScore(node string) float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.velocityScoreLocked(node)
}

func (g *Graph) velocityScoreLocked(node string) float64 {
	times := g.outgoingTimes[node]
	if len(times) == 0 {
		return 0.0
	}

	now := time.Now()
	var count int
	for _, t := range times {
		if now.Sub(t).Seconds() < velocityWindow.Seconds() {
			count++
		}
	}

	if count > velocityThreshold {
		score := float64(count) / velocityDivisor
		if score > 1.0 {
			score = 1.0
		}
		return score
	}
	return 0.0
}

// MuleScore reports node's pass-through-account score from its current
// in/out degree.
func (g *Graph) MuleScore(node string) float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.muleScoreLocked(node)
}

func (g *Graph) muleScoreLocked(node string) float64 {
	inDegree := len(g.in[node])
	outDegree := len(g.out[node])

	switch {
	case inDegree > 5 && outDegree > 5:
		return 0.8
	case inDegree > 3 && outDegree > 3:
		return 0.6
	default:
		return 0.0
	}
}

