package router

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltaic-labs/wattson/internal/intent"
)

type stubHeuristic struct {
	cand *intent.RawCandidate
}

func (s *stubHeuristic) TryRoute(string) (*intent.RawCandidate, bool) {
	if s.cand == nil {
		return nil, false
	}
	return s.cand, true
}

type stubTier struct {
	name     string
	cand     *intent.RawCandidate
	err      error
	closeErr error
	calls    int
	closed   bool
}

func (s *stubTier) Name() string { return s.name }
func (s *stubTier) Parse(ctx context.Context, _ string) (*intent.RawCandidate, error) {
	s.calls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.err != nil {
		return nil, s.err
	}
	c := *s.cand
	return &c, nil
}
func (s *stubTier) Close() error {
	s.closed = true
	return s.closeErr
}

func candidate(typ intent.Type, conf float64) *intent.RawCandidate {
	return &intent.RawCandidate{Intent: typ, Confidence: conf}
}

func TestParse_HeuristicShortCircuits(t *testing.T) {
	grammar := &stubTier{name: "grammar", cand: candidate(intent.TypeRanking, 0.9)}
	generative := &stubTier{name: "generative", cand: candidate(intent.TypeRanking, 0.9)}
	r := New(&stubHeuristic{cand: candidate(intent.TypePowerQuery, 0.95)}, grammar, generative, 0.85)

	cand, err := r.Parse(context.Background(), "compressor-1 power")
	require.NoError(t, err)

	assert.Equal(t, intent.TierHeuristic, cand.Tier)
	assert.Equal(t, 0, grammar.calls, "later tiers must not be consulted")
	assert.Equal(t, 0, generative.calls)
}

func TestParse_GrammarAcceptedAtThreshold(t *testing.T) {
	grammar := &stubTier{name: "grammar", cand: candidate(intent.TypeEnergyQuery, 0.85)}
	generative := &stubTier{name: "generative", cand: candidate(intent.TypeEnergyQuery, 0.5)}
	r := New(&stubHeuristic{}, grammar, generative, 0.85)

	cand, err := r.Parse(context.Background(), "how much juice did the boiler drink")
	require.NoError(t, err)

	assert.Equal(t, intent.TierGrammar, cand.Tier)
	assert.Equal(t, 0, generative.calls)
}

func TestParse_GrammarBelowThresholdEscalates(t *testing.T) {
	grammar := &stubTier{name: "grammar", cand: candidate(intent.TypeEnergyQuery, 0.4)}
	generative := &stubTier{name: "generative", cand: candidate(intent.TypeEnergyQuery, 0.3)}
	r := New(&stubHeuristic{}, grammar, generative, 0.85)

	cand, err := r.Parse(context.Background(), "mumble mumble energy")
	require.NoError(t, err)

	// Tier of last resort: forwarded regardless of confidence.
	assert.Equal(t, intent.TierGenerative, cand.Tier)
	assert.InDelta(t, 0.3, cand.Confidence, 1e-9)
}

func TestParse_GrammarUnknownIntentEscalates(t *testing.T) {
	// Confidence alone is not acceptance: an unknown intent would only
	// be rejected by validation, while the generative tier may still
	// recognise the utterance.
	grammar := &stubTier{name: "grammar", cand: candidate(intent.TypeUnknown, 0.99)}
	generative := &stubTier{name: "generative", cand: candidate(intent.TypeBaseline, 0.7)}
	r := New(&stubHeuristic{}, grammar, generative, 0.85)

	cand, err := r.Parse(context.Background(), "what does this thing normally use")
	require.NoError(t, err)

	assert.Equal(t, intent.TierGenerative, cand.Tier)
	assert.Equal(t, intent.TypeBaseline, cand.Intent)
}

func TestParse_GrammarFailureFallsThrough(t *testing.T) {
	grammar := &stubTier{name: "grammar", err: errors.New("service down")}
	generative := &stubTier{name: "generative", cand: candidate(intent.TypeFactoryOverview, 0.9)}
	r := New(&stubHeuristic{}, grammar, generative, 0.85)

	cand, err := r.Parse(context.Background(), "overview please")
	require.NoError(t, err, "tier failures are recovered, not propagated")
	assert.Equal(t, intent.TierGenerative, cand.Tier)

	stats := r.Stats()
	assert.Equal(t, uint64(1), stats[intent.TierGrammar].Failures)
}

func TestParse_AllTiersFailing(t *testing.T) {
	grammar := &stubTier{name: "grammar", err: errors.New("down")}
	generative := &stubTier{name: "generative", err: errors.New("also down")}
	r := New(&stubHeuristic{}, grammar, generative, 0.85)

	_, err := r.Parse(context.Background(), "anything")
	assert.Error(t, err)
}

func TestParse_EscalationMonotonicity(t *testing.T) {
	// The same unambiguous candidate at every tier: disabling earlier
	// tiers changes the reported tier but never the parsed content.
	want := candidate(intent.TypeComparison, 0.9)
	want.Machines = []string{"Compressor-1", "Compressor-2"}

	full := New(&stubHeuristic{cand: want}, &stubTier{name: "grammar", cand: want}, &stubTier{name: "generative", cand: want}, 0.85)
	noHeuristic := New(&stubHeuristic{}, &stubTier{name: "grammar", cand: want}, &stubTier{name: "generative", cand: want}, 0.85)
	generativeOnly := New(&stubHeuristic{}, &stubTier{name: "grammar", err: errors.New("down")}, &stubTier{name: "generative", cand: want}, 0.85)

	c1, err := full.Parse(context.Background(), "compare the compressors")
	require.NoError(t, err)
	c2, err := noHeuristic.Parse(context.Background(), "compare the compressors")
	require.NoError(t, err)
	c3, err := generativeOnly.Parse(context.Background(), "compare the compressors")
	require.NoError(t, err)

	assert.Equal(t, intent.TierHeuristic, c1.Tier)
	assert.Equal(t, intent.TierGrammar, c2.Tier)
	assert.Equal(t, intent.TierGenerative, c3.Tier)

	for _, c := range []*intent.RawCandidate{c1, c2, c3} {
		assert.Equal(t, want.Intent, c.Intent)
		assert.Equal(t, want.Machines, c.Machines)
	}
}

func TestParse_CancellationSkipsCounters(t *testing.T) {
	generative := &stubTier{name: "generative", cand: candidate(intent.TypeRanking, 0.9)}
	r := New(&stubHeuristic{}, &stubTier{name: "grammar", cand: candidate(intent.TypeUnknown, 0)}, generative, 0.85)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Parse(ctx, "anything")
	assert.Error(t, err)

	stats := r.Stats()
	assert.Zero(t, stats[intent.TierGenerative].Calls, "abandoned parse must not corrupt counters")
}

func TestClose_ClosesAllTiers(t *testing.T) {
	grammar := &stubTier{name: "grammar", closeErr: errors.New("close failed")}
	generative := &stubTier{name: "generative"}
	r := New(&stubHeuristic{}, grammar, generative, 0.85)

	err := r.Close()
	assert.Error(t, err)
	assert.True(t, grammar.closed)
	assert.True(t, generative.closed, "a failing close must not skip the remaining tier")
}

func TestStats_TierDistribution(t *testing.T) {
	grammar := &stubTier{name: "grammar", cand: candidate(intent.TypeEnergyQuery, 0.9)}
	r := New(&stubHeuristic{cand: candidate(intent.TypePowerQuery, 0.95)}, grammar, &stubTier{name: "generative"}, 0.85)

	for i := 0; i < 3; i++ {
		_, err := r.Parse(context.Background(), "compressor-1 power")
		require.NoError(t, err)
	}

	stats := r.Stats()
	assert.Equal(t, uint64(3), stats[intent.TierHeuristic].Calls)
	assert.Zero(t, stats[intent.TierGrammar].Calls)
	assert.Zero(t, stats[intent.TierGenerative].Calls)
}
