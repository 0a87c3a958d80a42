// Package heuristic implements tier 1 of the intent pipeline: a
// deterministic pattern/keyword router.
//
// It answers the large majority of real-world traffic in well under a
// millisecond and returns no-match — never a low-confidence guess — for
// anything it cannot classify, delegating escalation to the hybrid
// router.
package heuristic

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"

	"github.com/voltaic-labs/wattson/internal/intent"
)

// MachineSource supplies the current machine whitelist snapshot.
type MachineSource interface {
	Machines() []string
}

// matchConfidence is the fixed confidence assigned to heuristic matches.
// The tier is deterministic, so the value reflects pattern precision,
// not model uncertainty.
const matchConfidence = 0.95

// numberWords resolves colloquial spoken numbers so "Compressor one"
// matches "Compressor-1".
var numberWords = map[string]string{
	"one": "1", "two": "2", "three": "3", "four": "4", "five": "5",
	"six": "6", "seven": "7", "eight": "8", "nine": "9", "ten": "10",
}

// groupAliases maps spoken group names to the whitelist prefix shared by
// the group's members. Checked in slice order so an utterance naming two
// groups resolves deterministically.
var groupAliases = []struct {
	alias  string
	prefix string
}{
	{"compressors", "compressor"},
	{"hvac units", "hvac"},
	{"hvacs", "hvac"},
	{"conveyor belts", "conveyor"},
	{"conveyors", "conveyor"},
	{"boilers", "boiler"},
	{"welding robots", "welding-robot"},
	{"cnc mills", "cnc-mill"},
	{"lights", "lighting"},
}

var (
	timeExprRe = regexp.MustCompile(
		`\b(today|yesterday|this week|last week|this month|last month|(?:last|past)\s+\d+\s+(?:hour|day|week)s?)\b`)

	groupRe    = regexp.MustCompile(`\b(?:all|both|the|every)\s+([a-z][a-z -]+?s)\b`)
	pairwiseRe = regexp.MustCompile(`(.+?)\s+(?:and|vs\.?|versus)\s+(.+)`)
	topNRe     = regexp.MustCompile(`\btop\s+\d+\b`)

	// Unit spellings nest as substrings ("kw" inside "kwh", "watt"
	// inside "kilowatt hours"). normalize canonicalizes the spelled-out
	// forms, and the power unit is matched on word boundaries so it can
	// never fire inside the energy unit.
	kilowattHourRe = regexp.MustCompile(`\bkilowatt[ -]hours?\b`)
	kilowattRe     = regexp.MustCompile(`\bkilowatts?\b`)
	kwUnitRe       = regexp.MustCompile(`\bkw\b`)
)

// metricKeywords is evaluated in slice order; the order is a fixed
// classification rule. Cost vocabulary wins over power, power over
// energy, so overlapping phrasings ("spending" vs "consumption") resolve
// deterministically.
var metricKeywords = []struct {
	metric intent.Metric
	words  []string
	unitRe *regexp.Regexp // word-bounded unit match, if the set has one
}{
	{intent.MetricCost, []string{"cost", "spend", "spending", "spent", "bill", "expense", "price", "dollar", "money"}, nil},
	{intent.MetricPower, []string{"power", "watt", "demand", "draw", "load"}, kwUnitRe},
	{intent.MetricEnergy, []string{"energy", "kwh", "consumption", "consum", "usage", "using", "used", "electricity"}, nil},
	{intent.MetricEfficiency, []string{"efficien", "performance", "utilization"}, nil},
	{intent.MetricProduction, []string{"production", "output", "produced", "throughput"}, nil},
	{intent.MetricAlerts, []string{"alert", "alarm", "warning", "fault"}, nil},
}

// Router is the tier-1 heuristic classifier.
type Router struct {
	machines MachineSource
}

// New creates a heuristic router reading whitelist snapshots from src.
func New(src MachineSource) *Router {
	return &Router{machines: src}
}

// TryRoute classifies the utterance. The second return is false when no
// pattern fires; the router never guesses.
func (r *Router) TryRoute(utterance string) (*intent.RawCandidate, bool) {
	start := time.Now()

	text := normalize(utterance)
	if text == "" {
		return nil, false
	}
	whitelist := r.machines.Machines()

	cand := &intent.RawCandidate{
		Confidence: matchConfidence,
		Tier:       intent.TierHeuristic,
	}

	if m := timeExprRe.FindString(text); m != "" {
		cand.TimeRangeText = m
	}

	// Multi-machine first: a group mention or an explicit pair makes
	// ranking/comparison vocabulary decisive.
	machines := extractGroup(text, whitelist)
	if len(machines) == 0 {
		machines = extractPair(text, whitelist)
	}
	single := ""
	if len(machines) == 0 {
		single = extractSingle(text, whitelist)
	}

	cand.Intent = classify(text, single, machines)
	if cand.Intent == intent.TypeUnknown {
		return nil, false
	}

	switch cand.Intent {
	case intent.TypeComparison, intent.TypeRanking:
		cand.Machines = machines
	default:
		cand.Machine = single
		if single == "" && len(machines) == 1 {
			cand.Machine = machines[0]
		} else if len(machines) > 1 {
			cand.Machines = machines
		}
	}

	// A comparison must ground at least two machines. Fewer means a
	// mention failed to resolve; no-match lets the utterance escalate
	// with its mentions intact instead of passing validation without
	// them.
	if cand.Intent == intent.TypeComparison && len(cand.Machines) < 2 {
		return nil, false
	}

	cand.Metric = string(inferMetric(text, cand.Intent))
	cand.RoutingLatency = time.Since(start)
	return cand, true
}

// classify maps the utterance onto an intent type using a priority-ordered
// pattern table. Ranking and comparison vocabulary outranks single-machine
// status vocabulary when both appear.
func classify(text, single string, machines []string) intent.Type {
	switch {
	case topNRe.MatchString(text),
		containsAny(text, "rank", "highest", "biggest consumer", "most energy", "most power", "which machine uses the most"):
		return intent.TypeRanking

	case containsAny(text, "compare", " vs ", " vs. ", "versus", "difference between"),
		len(machines) >= 2:
		return intent.TypeComparison

	case containsAny(text, "forecast", "predict", "projection", "will use", "expected usage"):
		return intent.TypeForecast

	case containsAny(text, "anomal", "unusual", "abnormal", "spike", "out of the ordinary"):
		return intent.TypeAnomalyDetection

	case containsAny(text, "baseline", "typical usage", "normal level", "normally use"):
		return intent.TypeBaseline

	case containsAny(text, "cost", "spend", "bill", "expense", "how much money"):
		return intent.TypeCostAnalysis

	case containsAny(text, "factory overview", "overview", "whole factory", "entire factory", "whole plant", "total consumption", "all machines"):
		return intent.TypeFactoryOverview

	case single != "" && containsAny(text, "status", "running", "online", "how is", "doing", "alert", "alarm", "fault"):
		return intent.TypeMachineStatus

	case single != "" && (containsAny(text, "power", "watt", "demand", "draw") || kwUnitRe.MatchString(text)):
		return intent.TypePowerQuery

	case single != "" && containsAny(text, "energy", "kwh", "consum", "usage", "using", "used", "electricity"):
		return intent.TypeEnergyQuery

	default:
		return intent.TypeUnknown
	}
}

// inferMetric picks the metric the utterance is about. Keyword sets are
// checked in fixed priority order; if nothing matches the intent type's
// implied metric applies, and finally energy.
func inferMetric(text string, typ intent.Type) intent.Metric {
	for _, set := range metricKeywords {
		if set.unitRe != nil && set.unitRe.MatchString(text) {
			return set.metric
		}
		for _, w := range set.words {
			if strings.Contains(text, w) {
				return set.metric
			}
		}
	}
	if typ.Valid() {
		return typ.ImpliedMetric()
	}
	return intent.MetricEnergy
}

// extractGroup resolves group mentions ("compare all compressors", "both
// compressors", "all hvac units") to every whitelist member sharing the
// group's prefix. Output order follows the whitelist, then sorted for
// stability across refreshes.
func extractGroup(text string, whitelist []string) []string {
	prefix := ""
	for _, g := range groupAliases {
		if strings.Contains(text, g.alias) {
			prefix = g.prefix
			break
		}
	}
	if prefix == "" {
		if m := groupRe.FindStringSubmatch(text); m != nil {
			for _, g := range groupAliases {
				if g.alias == m[1] {
					prefix = g.prefix
					break
				}
			}
		}
	}
	if prefix == "" {
		return nil
	}

	var out []string
	for _, name := range whitelist {
		if strings.HasPrefix(normalizeName(name), prefix) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// extractPair resolves "X and Y" / "X vs Y" mentions to exactly the two
// fuzzy-resolved whitelist names, or nothing.
func extractPair(text string, whitelist []string) []string {
	m := pairwiseRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	left, okL := resolveMention(m[1], whitelist)
	right, okR := resolveMention(m[2], whitelist)
	if !okL || !okR || left == right {
		return nil
	}
	return []string{left, right}
}

// extractSingle finds the one machine the utterance talks about by
// scanning the whitelist for mentions. The longest mention wins so
// "Compressor-1" is not shadowed by a hypothetical "Compressor" entry.
func extractSingle(text string, whitelist []string) string {
	best := ""
	bestLen := 0
	for _, name := range whitelist {
		n := normalizeName(name)
		if strings.Contains(text, n) || strings.Contains(text, strings.ReplaceAll(n, "-", " ")) {
			if len(n) > bestLen {
				best = name
				bestLen = len(n)
			}
		}
	}
	return best
}

// resolveMention maps one free-form machine mention (a pairwise side, a
// trailing fragment) to a canonical whitelist name: exact, then prefix,
// then edit distance <= 2 on the normalized forms.
func resolveMention(mention string, whitelist []string) (string, bool) {
	mention = normalize(mention)
	// Strip leading articles and trailing query words that pairwise
	// capture tends to drag along.
	mention = strings.TrimPrefix(mention, "the ")
	for _, cut := range []string{"?", ".", ","} {
		mention = strings.ReplaceAll(mention, cut, "")
	}
	fields := strings.Fields(mention)
	if len(fields) == 0 {
		return "", false
	}

	// The mention may be embedded in a longer phrase ("compare compressor
	// one and compressor two today"): try suffix windows of 1-3 tokens on
	// the left side, prefix windows on the right.
	windows := mentionWindows(fields)
	for _, w := range windows {
		m := strings.ReplaceAll(w, " ", "-")
		for _, name := range whitelist {
			n := normalizeName(name)
			if m == n || (len(m) >= 4 && strings.HasPrefix(n, m)) {
				return name, true
			}
		}
	}
	for _, w := range windows {
		m := strings.ReplaceAll(w, " ", "-")
		if len(m) < 4 {
			continue
		}
		for _, name := range whitelist {
			if levenshtein.ComputeDistance(m, normalizeName(name)) <= 2 {
				return name, true
			}
		}
	}
	return "", false
}

// mentionWindows generates 3-, 2- and 1-token windows from both ends of
// the token list, longest first.
func mentionWindows(fields []string) []string {
	var out []string
	for size := 3; size >= 1; size-- {
		if len(fields) >= size {
			out = append(out, strings.Join(fields[:size], " "))
			if len(fields) > size {
				out = append(out, strings.Join(fields[len(fields)-size:], " "))
			}
		}
	}
	return out
}

// normalize lowercases, trims, canonicalizes spelled-out energy/power
// units and rewrites spoken number words.
func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = kilowattHourRe.ReplaceAllString(s, "kwh")
	s = kilowattRe.ReplaceAllString(s, "kw")
	fields := strings.Fields(s)
	for i, f := range fields {
		if d, ok := numberWords[strings.Trim(f, "?,.!")]; ok {
			fields[i] = d
		}
	}
	return strings.Join(fields, " ")
}

// normalizeName puts a whitelist name in comparable form.
func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// containsAny reports whether text contains any of the given substrings.
func containsAny(text string, subs ...string) bool {
	for _, s := range subs {
		if strings.Contains(text, s) {
			return true
		}
	}
	return false
}
