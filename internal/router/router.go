// Package router implements the hybrid orchestrator: a deterministic
// escalation state machine composing the three parser tiers into one
// parse(utterance) contract.
//
// The heuristic tier is the dominant fast path; the grammar tier is
// consulted only on heuristic no-match and accepted only at or above the
// configured confidence threshold; the generative tier is the tier of
// last resort and its output is always forwarded to validation. A tier
// that fails outright is logged and fallen through, never surfaced to
// the caller unless every tier fails.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/voltaic-labs/wattson/internal/intent"
	"github.com/voltaic-labs/wattson/internal/parser"
)

var (
	parsesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wattson",
			Subsystem: "router",
			Name:      "parses_total",
			Help:      "Parses resolved, by producing tier",
		},
		[]string{"tier"},
	)

	tierFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wattson",
			Subsystem: "router",
			Name:      "tier_failures_total",
			Help:      "Tier calls that failed outright and were fallen through",
		},
		[]string{"tier"},
	)

	parseLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wattson",
			Subsystem: "router",
			Name:      "parse_latency_seconds",
			Help:      "End-to-end parse latency, by resolving tier",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"tier"},
	)
)

// HeuristicTier is the tier-1 contract: a match or an explicit no-match,
// never a low-confidence guess.
type HeuristicTier interface {
	TryRoute(utterance string) (*intent.RawCandidate, bool)
}

// Router is the escalation state machine.
type Router struct {
	heuristic        HeuristicTier
	grammar          parser.Parser
	generative       parser.Parser
	grammarThreshold float64

	mu    sync.Mutex
	stats map[intent.Tier]*tierStats
}

type tierStats struct {
	calls    uint64
	failures uint64
	latency  time.Duration
}

// TierStats is one tier's accumulated counters.
type TierStats struct {
	Calls       uint64
	Failures    uint64
	MeanLatency time.Duration
}

// Stats is a point-in-time snapshot of the router's tier distribution.
type Stats map[intent.Tier]TierStats

// New creates a Router. grammarThreshold is the acceptance bar for
// tier-2 output; candidates below it escalate to tier 3.
func New(heuristic HeuristicTier, grammar, generative parser.Parser, grammarThreshold float64) *Router {
	return &Router{
		heuristic:        heuristic,
		grammar:          grammar,
		generative:       generative,
		grammarThreshold: grammarThreshold,
		stats: map[intent.Tier]*tierStats{
			intent.TierHeuristic:  {},
			intent.TierGrammar:    {},
			intent.TierGenerative: {},
		},
	}
}

// Parse runs the utterance through the tiers in escalation order and
// returns the first acceptable candidate. The only error conditions are
// context cancellation and all three tiers failing.
func (r *Router) Parse(ctx context.Context, utterance string) (*intent.RawCandidate, error) {
	start := time.Now()
	logger := slog.With("parse_id", uuid.NewString())

	// Tier 1: deterministic patterns.
	if cand, ok := r.heuristic.TryRoute(utterance); ok {
		cand.Tier = intent.TierHeuristic
		r.record(ctx, cand, start)
		logger.Debug("resolved by heuristic tier", "intent", cand.Intent, "latency", cand.RoutingLatency)
		return cand, nil
	}

	// Tier 2: grammar service, accepted only with a recognized intent
	// at or above the threshold. An unknown intent escalates no matter
	// how confident the grammar service is about it.
	cand, err := r.grammar.Parse(ctx, utterance)
	switch {
	case err != nil:
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.recordFailure(intent.TierGrammar)
		logger.Warn("grammar tier failed, escalating", "error", err)
	case cand.Intent.Valid() && cand.Confidence >= r.grammarThreshold:
		cand.Tier = intent.TierGrammar
		r.record(ctx, cand, start)
		logger.Debug("resolved by grammar tier", "intent", cand.Intent, "confidence", cand.Confidence)
		return cand, nil
	default:
		logger.Debug("grammar tier not accepted, escalating",
			"intent", cand.Intent, "confidence", cand.Confidence, "threshold", r.grammarThreshold)
	}

	// Tier 3: generative, always forwarded regardless of confidence.
	cand, err = r.generative.Parse(ctx, utterance)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.recordFailure(intent.TierGenerative)
		return nil, fmt.Errorf("all parser tiers failed: %w", err)
	}
	cand.Tier = intent.TierGenerative
	r.record(ctx, cand, start)
	logger.Debug("resolved by generative tier", "intent", cand.Intent, "confidence", cand.Confidence)
	return cand, nil
}

// record updates counters for a successful parse. A cancelled context
// abandons the result without touching the counters, so an interrupted
// generative call cannot skew the tier distribution.
func (r *Router) record(ctx context.Context, cand *intent.RawCandidate, start time.Time) {
	if ctx.Err() != nil {
		return
	}
	elapsed := time.Since(start)

	parsesTotal.WithLabelValues(string(cand.Tier)).Inc()
	parseLatency.WithLabelValues(string(cand.Tier)).Observe(elapsed.Seconds())

	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.stats[cand.Tier]
	s.calls++
	s.latency += elapsed
}

func (r *Router) recordFailure(tier intent.Tier) {
	tierFailuresTotal.WithLabelValues(string(tier)).Inc()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats[tier].failures++
}

// Stats returns a snapshot of per-tier call counts, failures and mean
// latency.
func (r *Router) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(Stats, len(r.stats))
	for tier, s := range r.stats {
		ts := TierStats{Calls: s.calls, Failures: s.failures}
		if s.calls > 0 {
			ts.MeanLatency = s.latency / time.Duration(s.calls)
		}
		out[tier] = ts
	}
	return out
}

// Close releases the external tiers. Every tier is closed even when an
// earlier close fails.
func (r *Router) Close() error {
	return errors.Join(r.grammar.Close(), r.generative.Close())
}
