// Package intent defines the core data types flowing through the wattson pipeline.
//
// Parser tiers produce a RawCandidate: an unverified guess at what the
// speaker wants. The validator turns a RawCandidate into an Intent, whose
// entities are guaranteed to be canonical whitelist members. Nothing
// downstream re-checks machine names — the Intent is the trust boundary.
package intent

import "time"

// Type identifies the kind of query the speaker is making.
type Type string

const (
	// TypeUnknown means no recognisable intent was found.
	TypeUnknown Type = "unknown"

	TypeEnergyQuery      Type = "energy_query"
	TypePowerQuery       Type = "power_query"
	TypeMachineStatus    Type = "machine_status"
	TypeFactoryOverview  Type = "factory_overview"
	TypeComparison       Type = "comparison"
	TypeRanking          Type = "ranking"
	TypeCostAnalysis     Type = "cost_analysis"
	TypeForecast         Type = "forecast"
	TypeAnomalyDetection Type = "anomaly_detection"
	TypeBaseline         Type = "baseline"
)

// Types lists every valid intent type, excluding TypeUnknown.
var Types = []Type{
	TypeEnergyQuery, TypePowerQuery, TypeMachineStatus, TypeFactoryOverview,
	TypeComparison, TypeRanking, TypeCostAnalysis, TypeForecast,
	TypeAnomalyDetection, TypeBaseline,
}

// Valid reports whether t is a member of the closed intent enumeration.
// TypeUnknown is not valid — it marks a candidate that must not pass validation.
func (t Type) Valid() bool {
	for _, v := range Types {
		if t == v {
			return true
		}
	}
	return false
}

// RequiresMachine reports whether queries of this type are about one
// specific machine. A missing machine on such an intent is a downgrade
// to factory scope, not a hard failure.
func (t Type) RequiresMachine() bool {
	switch t {
	case TypeMachineStatus, TypeEnergyQuery, TypePowerQuery:
		return true
	default:
		return false
	}
}

// ImpliedMetric returns the metric a query of this type is about when the
// utterance names none explicitly.
func (t Type) ImpliedMetric() Metric {
	switch t {
	case TypePowerQuery:
		return MetricPower
	case TypeCostAnalysis:
		return MetricCost
	case TypeMachineStatus:
		return MetricAlerts
	default:
		return MetricEnergy
	}
}

// Metric is the closed enumeration of measurable quantities.
type Metric string

const (
	MetricPower      Metric = "power"
	MetricEnergy     Metric = "energy"
	MetricCost       Metric = "cost"
	MetricEfficiency Metric = "efficiency"
	MetricProduction Metric = "production"
	MetricAlerts     Metric = "alerts"
)

// ParseMetric maps a raw metric string onto the closed enumeration.
// The second return is false for anything outside it.
func ParseMetric(s string) (Metric, bool) {
	switch Metric(s) {
	case MetricPower, MetricEnergy, MetricCost, MetricEfficiency, MetricProduction, MetricAlerts:
		return Metric(s), true
	default:
		return "", false
	}
}

// Tier identifies which parser produced a candidate.
type Tier string

const (
	TierHeuristic  Tier = "heuristic"
	TierGrammar    Tier = "grammar"
	TierGenerative Tier = "generative"
)

// RawCandidate is an unverified intent/entity guess produced by a parser
// tier. Entity fields are raw strings exactly as extracted — they must
// never be forwarded downstream without passing through the validator.
type RawCandidate struct {
	// Intent is the guessed query type, or TypeUnknown.
	Intent Type `json:"intent"`

	// Confidence is the producing tier's self-reported confidence in [0,1].
	Confidence float64 `json:"confidence"`

	// Machine is the raw single-machine mention, if any.
	Machine string `json:"machine,omitempty"`

	// Machines holds raw mentions for multi-machine queries (comparison,
	// ranking over a named group). Populated instead of Machine.
	Machines []string `json:"machines,omitempty"`

	// Metric is the raw metric string, if the tier inferred one.
	Metric string `json:"metric,omitempty"`

	// TimeRangeText is the untouched natural-language time expression
	// (e.g. "last week"), left for the validator to parse.
	TimeRangeText string `json:"time_range_text,omitempty"`

	// Tier records which parser produced this candidate.
	Tier Tier `json:"tier"`

	// RoutingLatency is how long the producing tier took.
	RoutingLatency time.Duration `json:"routing_latency"`
}

// TimeRange is an absolute UTC interval with Start <= End.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Intent is a validated, executable query. Every Machine/Machines value
// is the canonical spelling of a whitelist member at validation time.
type Intent struct {
	Type       Type       `json:"intent"`
	Machine    string     `json:"machine,omitempty"`
	Machines   []string   `json:"machines,omitempty"`
	Metric     Metric     `json:"metric,omitempty"`
	TimeRange  *TimeRange `json:"time_range,omitempty"`
	Confidence float64    `json:"confidence"`
}

// ValidationResult is the outcome of validating one RawCandidate.
type ValidationResult struct {
	// Valid reports whether the candidate survived every check.
	Valid bool `json:"valid"`

	// Intent is set only when Valid is true.
	Intent *Intent `json:"intent,omitempty"`

	// Errors lists rejection reasons in the order checks ran.
	Errors []string `json:"errors,omitempty"`

	// Warnings lists non-fatal findings (e.g. a machine-scoped intent
	// downgraded to factory scope).
	Warnings []string `json:"warnings,omitempty"`

	// Suggestions lists candidate corrections for voice feedback,
	// e.g. "Did you mean Compressor-1?".
	Suggestions []string `json:"suggestions,omitempty"`
}
