// Package validate is the zero-trust gate between parser tiers and the
// telemetry API.
//
// No entity extracted by any tier is forwarded downstream until it is
// re-checked against live reference data: machine names against the
// whitelist, metrics against the closed enumeration, time expressions
// through the time-range parser, confidence against per-tier thresholds.
// On success the validator emits an Intent whose entities are canonical
// whitelist spellings — nothing downstream re-validates them.
package validate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/voltaic-labs/wattson/internal/intent"
	"github.com/voltaic-labs/wattson/internal/timerange"
)

// Rejection reasons surfaced in ValidationResult.Errors.
const (
	ReasonLowConfidence    = "low_confidence"
	ReasonUnknownMachine   = "unknown_machine"
	ReasonAmbiguousMachine = "ambiguous_machine"
	ReasonInvalidTimeRange = "invalid_time_range"
	ReasonInvalidMetric    = "invalid_metric"
	ReasonUnknownIntent    = "unknown_intent"
)

// WarningMachineMissing marks a machine-scoped intent downgraded to
// factory scope because no machine could be resolved.
const WarningMachineMissing = "machine_missing"

// MachineSource supplies the current whitelist snapshot.
type MachineSource interface {
	Machines() []string
}

// Options are the validator's tunables.
type Options struct {
	// GenerativeThreshold is the minimum confidence for generative-tier
	// candidates. Grammar-tier candidates use GrammarThreshold and
	// heuristic ones HeuristicThreshold — the heuristic tier is already
	// deterministic, so its bar is looser.
	GenerativeThreshold float64
	GrammarThreshold    float64
	HeuristicThreshold  float64

	// FuzzyCutoff is the minimum token-Jaccard similarity for a fuzzy
	// machine match. Token overlap accepts word reorderings ("north
	// hvac") but never spelling errors — a typo is always a rejection
	// with suggestions, keeping the gate zero-trust.
	FuzzyCutoff float64

	// SuggestionFloor is the minimum normalized-levenshtein similarity
	// for a name to appear in the "did you mean" list.
	SuggestionFloor float64

	// AmbiguityBand: a runner-up within this margin of the best fuzzy
	// score (and itself above the cutoff) makes the mention ambiguous.
	AmbiguityBand float64

	// MaxSuggestions caps the "did you mean" list.
	MaxSuggestions int
}

// DefaultOptions returns the production tuning.
func DefaultOptions() Options {
	return Options{
		GenerativeThreshold: 0.85,
		GrammarThreshold:    0.85,
		HeuristicThreshold:  0.50,
		FuzzyCutoff:         0.72,
		SuggestionFloor:     0.40,
		AmbiguityBand:       0.05,
		MaxSuggestions:      3,
	}
}

// Validator cross-checks raw candidates against reference data.
type Validator struct {
	machines   MachineSource
	timeParser *timerange.Parser
	opts       Options
}

// New creates a Validator reading whitelist snapshots from src.
func New(src MachineSource, tp *timerange.Parser, opts Options) *Validator {
	if tp == nil {
		tp = timerange.New()
	}
	if opts.MaxSuggestions <= 0 {
		opts.MaxSuggestions = 3
	}
	return &Validator{machines: src, timeParser: tp, opts: opts}
}

// Validate checks one candidate. The whitelist snapshot is taken once on
// entry, so a concurrent refresh cannot produce mixed-view results.
func (v *Validator) Validate(cand *intent.RawCandidate) intent.ValidationResult {
	res := intent.ValidationResult{}
	whitelist := v.machines.Machines()

	if !cand.Intent.Valid() {
		res.Errors = append(res.Errors, ReasonUnknownIntent)
		return res
	}

	if cand.Confidence < v.threshold(cand.Tier) {
		res.Errors = append(res.Errors,
			fmt.Sprintf("%s: %.2f below %.2f", ReasonLowConfidence, cand.Confidence, v.threshold(cand.Tier)))
		return res
	}

	out := &intent.Intent{
		Type:       cand.Intent,
		Confidence: cand.Confidence,
	}

	// Machine resolution: single mention, then element-wise lists. Any
	// failing element fails the whole candidate — no partial lists.
	if cand.Machine != "" {
		canonical, ok := v.resolveMachine(cand.Machine, whitelist, &res)
		if !ok {
			return res
		}
		out.Machine = canonical
	}
	if len(cand.Machines) > 0 {
		resolved := make([]string, 0, len(cand.Machines))
		for _, raw := range cand.Machines {
			canonical, ok := v.resolveMachine(raw, whitelist, &res)
			if !ok {
				return res
			}
			resolved = append(resolved, canonical)
		}
		out.Machines = resolved
	}

	// Intent/machine consistency: machine-scoped intents without a
	// resolvable machine stay usable at factory scope.
	if cand.Intent.RequiresMachine() && out.Machine == "" && len(out.Machines) == 0 {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("%s: %s answered at factory scope", WarningMachineMissing, cand.Intent))
	}

	if cand.Metric != "" {
		metric, ok := intent.ParseMetric(cand.Metric)
		if !ok {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %q", ReasonInvalidMetric, cand.Metric))
			return res
		}
		out.Metric = metric
	} else {
		out.Metric = cand.Intent.ImpliedMetric()
	}

	if cand.TimeRangeText != "" {
		start, end, ok := v.timeParser.Parse(cand.TimeRangeText)
		if !ok {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %q", ReasonInvalidTimeRange, cand.TimeRangeText))
			return res
		}
		out.TimeRange = &intent.TimeRange{Start: start, End: end}
	}

	res.Valid = true
	res.Intent = out
	return res
}

func (v *Validator) threshold(tier intent.Tier) float64 {
	switch tier {
	case intent.TierHeuristic:
		return v.opts.HeuristicThreshold
	case intent.TierGrammar:
		return v.opts.GrammarThreshold
	default:
		return v.opts.GenerativeThreshold
	}
}

// resolveMachine maps one raw machine string to its canonical whitelist
// spelling. Exact case-insensitive match wins outright; token-Jaccard
// overlap above the cutoff resolves word reorderings; anything else —
// typos included — appends unknown_machine with a ranked "did you mean"
// list. A near-tie between two overlap matches appends ambiguous_machine.
func (v *Validator) resolveMachine(raw string, whitelist []string, res *intent.ValidationResult) (string, bool) {
	needle := normalizeName(raw)
	if needle == "" {
		res.Errors = append(res.Errors, fmt.Sprintf("%s: empty machine name", ReasonUnknownMachine))
		return "", false
	}

	for _, name := range whitelist {
		if normalizeName(name) == needle {
			return name, true
		}
	}

	ranked := rankByOverlap(needle, whitelist)
	if len(ranked) == 0 {
		res.Errors = append(res.Errors, fmt.Sprintf("%s: %q", ReasonUnknownMachine, raw))
		return "", false
	}

	best := ranked[0]
	if best.score < v.opts.FuzzyCutoff {
		res.Errors = append(res.Errors, fmt.Sprintf("%s: %q", ReasonUnknownMachine, raw))
		res.Suggestions = append(res.Suggestions, v.suggestions(needle, whitelist)...)
		return "", false
	}

	if len(ranked) > 1 {
		runnerUp := ranked[1]
		if runnerUp.score >= v.opts.FuzzyCutoff && best.score-runnerUp.score < v.opts.AmbiguityBand {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %q", ReasonAmbiguousMachine, raw))
			res.Suggestions = append(res.Suggestions,
				fmt.Sprintf("Did you mean %s?", best.name),
				fmt.Sprintf("Did you mean %s?", runnerUp.name))
			return "", false
		}
	}
	return best.name, true
}

// suggestions returns up to MaxSuggestions whitelist names ranked by
// edit-distance similarity to the failed mention.
func (v *Validator) suggestions(needle string, whitelist []string) []string {
	ranked := make([]scoredName, 0, len(whitelist))
	for _, name := range whitelist {
		s := editSimilarity(needle, normalizeName(name))
		if s >= v.opts.SuggestionFloor {
			ranked = append(ranked, scoredName{name: name, score: s})
		}
	}
	sortRanked(ranked)

	n := v.opts.MaxSuggestions
	if len(ranked) < n {
		n = len(ranked)
	}
	out := make([]string, 0, n)
	for _, s := range ranked[:n] {
		out = append(out, fmt.Sprintf("Did you mean %s?", s.name))
	}
	return out
}

type scoredName struct {
	name  string
	score float64
}

func sortRanked(ranked []scoredName) {
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score == ranked[j].score {
			return ranked[i].name < ranked[j].name
		}
		return ranked[i].score > ranked[j].score
	})
}

// rankByOverlap orders the whitelist by token-Jaccard similarity to the
// needle, best first, name as tiebreak.
func rankByOverlap(needle string, whitelist []string) []scoredName {
	out := make([]scoredName, 0, len(whitelist))
	for _, name := range whitelist {
		out = append(out, scoredName{name: name, score: tokenJaccard(needle, normalizeName(name))})
	}
	sortRanked(out)
	return out
}

// tokenJaccard is |A∩B| / |A∪B| over hyphen-split tokens.
func tokenJaccard(a, b string) float64 {
	at := strings.Split(a, "-")
	bt := strings.Split(b, "-")
	set := make(map[string]bool, len(at))
	for _, t := range at {
		set[t] = true
	}
	inter := 0
	union := len(set)
	seen := make(map[string]bool, len(bt))
	for _, t := range bt {
		if seen[t] {
			continue
		}
		seen[t] = true
		if set[t] {
			inter++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// editSimilarity is 1 - levenshtein/maxLen, in [0,1]. Used for ranking
// suggestions, never for accepting a match.
func editSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(maxLen)
}

// normalizeName lowercases and folds spaces to hyphens so spoken forms
// ("compressor 1") compare equal to canonical ones ("Compressor-1").
func normalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '-' || r == '_'
	}), "-")
}
